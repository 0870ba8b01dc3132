package ledger

import (
	"watchearn/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
)

// TaskModule wires the worker side: chain verification handler and the
// nightly scheduler that feeds it.
var TaskModule = fx.Module("ledger.task",
	fx.Provide(
		NewTaskHandler,
		NewScheduler,
	),
	fx.Invoke(
		registerHandlers,
		StartScheduler,
	),
)

func registerHandlers(mux *asynq.ServeMux, h *TaskHandler) {
	mux.HandleFunc(taskname.LedgerVerifyChain, h.HandleVerifyChain)
}
