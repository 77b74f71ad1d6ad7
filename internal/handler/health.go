package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Health(c *gin.Context) {
	body := gin.H{"status": "healthy"}
	if h.stream != nil {
		body["stream_clients"] = h.stream.ClientCount()
	}
	c.JSON(http.StatusOK, body)
}
