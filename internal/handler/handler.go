package handler

import (
	"context"
	"net/http"

	"fixture-edge/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

type SummaryReader interface {
	LastSummary(ctx context.Context) (domain.CycleSummary, bool, error)
}

type AssessmentReader interface {
	RecentAssessments(ctx context.Context, limit int) ([]domain.AssessmentRecord, error)
}

type CycleRunner interface {
	RunNow(ctx context.Context) (domain.CycleSummary, error)
}

// AlertStream upgrades subscribers onto the live alert feed.
type AlertStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	ClientCount() int
}

type Handler struct {
	tracer      trace.Tracer
	summaries   SummaryReader
	assessments AssessmentReader
	runner      CycleRunner
	stream      AlertStream
	registry    *prometheus.Registry
	apiKey      string
}

func New(tracer trace.Tracer, summaries SummaryReader, registry *prometheus.Registry, apiKey string) *Handler {
	return &Handler{
		tracer:    tracer,
		summaries: summaries,
		registry:  registry,
		apiKey:    apiKey,
	}
}

func (h *Handler) SetAssessmentReader(r AssessmentReader) { h.assessments = r }

func (h *Handler) SetCycleRunner(r CycleRunner) { h.runner = r }

func (h *Handler) SetAlertStream(s AlertStream) { h.stream = s }

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	if h.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api", APIKeyAuth(h.apiKey))
	api.GET("/cycles/last", h.GetLastCycle)
	api.POST("/cycles/run", h.TriggerCycle)
	api.GET("/assessments/recent", h.GetRecentAssessments)
	if h.stream != nil {
		api.GET("/stream/alerts", gin.WrapF(h.stream.ServeWS))
	}
}
