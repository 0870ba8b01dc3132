package withdrawal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"watchearn/pkg/config"
	"watchearn/pkg/errutil"
	"watchearn/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type CreatedPayload struct {
	WithdrawalID string `json:"withdrawal_id"`
	UserID       string `json:"user_id"`
}

type SettlePayload struct {
	WithdrawalID string `json:"withdrawal_id"`
	Status       Status `json:"status"`
	Note         string `json:"note,omitempty"`
}

func NewCreatedTask(p CreatedPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.WithdrawalCreated, payload,
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		asynq.Queue(taskname.QueueDefault),
		asynq.TaskID("created:"+p.WithdrawalID),
	), nil
}

func NewSettleTask(p SettlePayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.WithdrawalSettle, payload,
		asynq.MaxRetry(10),
		asynq.Timeout(30*time.Second),
		asynq.Queue(taskname.QueueCritical),
		asynq.TaskID(fmt.Sprintf("settle:%s:%s", p.WithdrawalID, p.Status)),
	), nil
}

type TaskHandler struct {
	svc *Service
	cfg *config.Config
}

func NewTaskHandler(svc *Service, cfg *config.Config) *TaskHandler {
	return &TaskHandler{svc: svc, cfg: cfg}
}

// HandleCreated hands new requests to settlement. With auto processing on,
// the request moves to PROCESSING right away.
func (h *TaskHandler) HandleCreated(ctx context.Context, t *asynq.Task) error {
	var payload CreatedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("withdrawal_id", payload.WithdrawalID),
	)

	if !h.cfg.Settlement.AutoProcess {
		zapLog.Info("withdrawal awaiting manual settlement")
		return nil
	}

	_, err := h.svc.Transition(ctx, payload.WithdrawalID, StatusProcessing, "")
	switch {
	case err == nil:
		zapLog.Info("withdrawal moved to processing")
		return nil
	case errors.Is(err, errutil.ErrInvalidTransition):
		zapLog.Info("withdrawal already left pending", zap.Error(err))
		return nil
	case errors.Is(err, errutil.ErrNotFound), errors.Is(err, errutil.ErrInvalidInput):
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		zapLog.Error("failed to start withdrawal processing", zap.Error(err))
		return err
	}
}

// HandleSettle applies a status reported by the payout side.
func (h *TaskHandler) HandleSettle(ctx context.Context, t *asynq.Task) error {
	var payload SettlePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("withdrawal_id", payload.WithdrawalID),
		zap.String("status", string(payload.Status)),
	)

	_, err := h.svc.Transition(ctx, payload.WithdrawalID, payload.Status, payload.Note)
	if err == nil {
		zapLog.Info("withdrawal settled")
		return nil
	}

	switch errutil.ReasonOf(err) {
	case errutil.ReasonInvalidTransition, errutil.ReasonNotFound, errutil.ReasonInvalidInput:
		zapLog.Warn("settlement rejected", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	zapLog.Error("failed to settle withdrawal", zap.Error(err))
	return err
}
