package main

import (
	"log"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"watchearn/internal/httpapi"
	"watchearn/pkg/clock"
	"watchearn/pkg/config"
	"watchearn/pkg/db"
	"watchearn/pkg/gen"
	"watchearn/pkg/grafana/pyroscope"
	"watchearn/pkg/hashistack/secretmanager"
	"watchearn/pkg/health"
	corehttp "watchearn/pkg/httpapi"
	"watchearn/pkg/logger"
	"watchearn/pkg/otelcol"
	"watchearn/pkg/redis"
	"watchearn/pkg/sequence"
	"watchearn/pkg/server"
	"watchearn/pkg/task"
	"watchearn/services/account"
	"watchearn/services/bootstrap"
	"watchearn/services/ledger"
	"watchearn/services/quota"
	"watchearn/services/video"
	"watchearn/services/watch"
	"watchearn/services/withdrawal"
)

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		clock.Module,
		redis.Module,
		sequence.Module,
		task.Client,
		health.Module,
		otelcol.Module,
		pyroscope.Module,
		corehttp.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		bootstrap.Module,
		account.Module,
		ledger.Module,
		quota.Module,
		video.Module,
		watch.Module,
		withdrawal.Module,
		fxLogger,
	}
	if secretmanager.Enabled() {
		opts = append(opts, secretmanager.Module)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
