package httpapi

import (
	"watchearn/pkg/config"
	"watchearn/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi.routes",
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

// Register mounts the public API under /api and the service-to-service
// routes under /internal.
func Register(r *gin.Engine, h *Handler, cfg *config.Config) {
	api := r.Group("/api", middleware.Auth(cfg.Auth.JWTSecret), middleware.Channel())
	{
		api.GET("/account", h.GetAccount)
		api.GET("/videos/available", h.AvailableVideos)
		api.POST("/videos/watch", h.RecordWatch)
		api.POST("/withdrawal/request", h.RequestWithdrawal)
		api.GET("/withdrawal/history", h.WithdrawalHistory)
	}

	internal := r.Group("/internal", middleware.InternalToken(cfg.Auth.InternalToken))
	{
		internal.POST("/accounts", h.OpenAccount)
		internal.POST("/withdrawals/:id/status", h.SettleWithdrawal)
		internal.GET("/accounts/:id/ledger", h.LedgerEntries)
		internal.GET("/accounts/:id/ledger/verify", h.VerifyLedger)
	}
}
