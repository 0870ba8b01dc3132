package httpapi

import (
	"watchearn/pkg/config"
	"watchearn/pkg/health"
	"watchearn/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine),
)

// NewEngine builds the gin engine with the shared middleware chain and the
// ops routes. Feature routes are registered on top of it.
func NewEngine(cfg *config.Config, h health.HealthService) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Trace(cfg.AppName),
		middleware.AccessLog(),
		middleware.Metrics(),
		middleware.Error(),
	)

	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
