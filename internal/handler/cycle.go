package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// GetLastCycle returns the summary of the most recent cycle, 404 before the first one.
func (h *Handler) GetLastCycle(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.last-cycle")
	defer span.End()

	if h.summaries == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cycle has run yet"})
		return
	}
	summary, found, err := h.summaries.LastSummary(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cycle has run yet"})
		return
	}
	span.SetAttributes(attribute.String("cycle_id", summary.ID))
	c.JSON(http.StatusOK, summary)
}

// TriggerCycle runs one cycle synchronously and returns its summary.
func (h *Handler) TriggerCycle(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cycle runner unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-cycle")
	defer span.End()

	summary, err := h.runner.RunNow(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) GetRecentAssessments(c *gin.Context) {
	if h.assessments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}

	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRecentLimit)
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.recent-assessments")
	defer span.End()

	records, err := h.assessments.RecentAssessments(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(records), "assessments": records})
}
