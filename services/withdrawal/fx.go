package withdrawal

import (
	"watchearn/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("withdrawal.service",
	fx.Provide(NewService),
)

var TaskModule = fx.Module("withdrawal.task",
	fx.Provide(NewTaskHandler),
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, h *TaskHandler) {
	mux.HandleFunc(taskname.WithdrawalCreated, h.HandleCreated)
	mux.HandleFunc(taskname.WithdrawalSettle, h.HandleSettle)
}
