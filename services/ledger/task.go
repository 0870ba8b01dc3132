package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"watchearn/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type VerifyChainPayload struct {
	UserID string `json:"user_id"`
	DayKey string `json:"day_key"`
}

func NewVerifyChainTask(p VerifyChainPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.LedgerVerifyChain, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(60*time.Second),
		asynq.Queue(taskname.QueueLow),
		asynq.TaskID(fmt.Sprintf("verify:%s:%s", p.UserID, p.DayKey)),
	), nil
}

type TaskHandler struct {
	svc *Service
}

func NewTaskHandler(svc *Service) *TaskHandler {
	return &TaskHandler{svc: svc}
}

func (h *TaskHandler) HandleVerifyChain(ctx context.Context, t *asynq.Task) error {
	var payload VerifyChainPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("user_id", payload.UserID),
		zap.String("day_key", payload.DayKey),
	)

	report, err := h.svc.VerifyChain(ctx, payload.UserID)
	if err != nil {
		zapLog.Error("failed to verify ledger chain", zap.Error(err))
		return err
	}

	if !report.Valid || !report.BalanceMatches {
		zapLog.Error("ledger chain is inconsistent",
			zap.Int("entries", report.Entries),
			zap.String("broken_at", report.BrokenAt),
			zap.Bool("balance_matches", report.BalanceMatches),
		)
		return fmt.Errorf("ledger chain for %s is inconsistent: %w", payload.UserID, asynq.SkipRetry)
	}

	zapLog.Info("ledger chain verified", zap.Int("entries", report.Entries))
	return nil
}
