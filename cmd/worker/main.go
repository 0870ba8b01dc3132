package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"watchearn/pkg/clock"
	"watchearn/pkg/config"
	"watchearn/pkg/db"
	"watchearn/pkg/gen"
	"watchearn/pkg/grafana/pyroscope"
	"watchearn/pkg/hashistack/secretmanager"
	"watchearn/pkg/logger"
	"watchearn/pkg/otelcol"
	"watchearn/pkg/redis"
	"watchearn/pkg/sequence"
	"watchearn/pkg/task"
	"watchearn/services/account"
	"watchearn/services/bootstrap"
	"watchearn/services/ledger"
	"watchearn/services/withdrawal"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		clock.Module,
		redis.Module,
		sequence.Module,
		task.Client,
		task.Server,
		otelcol.Module,
		pyroscope.Module,
		bootstrap.Module,
		account.Module,
		ledger.Module,
		ledger.TaskModule,
		withdrawal.Module,
		withdrawal.TaskModule,
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
