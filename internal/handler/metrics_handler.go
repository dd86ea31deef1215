package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/geo-attendance-api/internal/service"
)

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	healthy func() bool
}

// NewMetricsHandler constructs a metrics handler. healthy reports background
// loop liveness and may be nil.
func NewMetricsHandler(metrics *service.MetricsService, healthy func() bool) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, healthy: healthy}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready fails when the auto-end loop has gone quiet, so an orchestrator can
// restart the instance.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.healthy != nil && !h.healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "reason": "scheduler stalled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
