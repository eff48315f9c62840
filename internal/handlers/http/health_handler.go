package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aimon/internal/infrastructure/monitoring"
)

// HealthHandler serves liveness and Prometheus scrape endpoints. These sit
// outside the versioned API group so probes need no auth.
type HealthHandler struct {
	checker  *monitoring.HealthChecker
	registry *prometheus.Registry
}

func NewHealthHandler(checker *monitoring.HealthChecker, registry *prometheus.Registry) *HealthHandler {
	return &HealthHandler{
		checker:  checker,
		registry: registry,
	}
}

func (h *HealthHandler) SetupRoutes(router gin.IRouter) {
	router.GET("/healthz", h.Healthz)
	if h.registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})))
	}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
