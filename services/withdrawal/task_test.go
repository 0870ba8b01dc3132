package withdrawal

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"watchearn/pkg/taskname"
)

func TestHandleCreated(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "u1", "10")
	ctx := context.Background()

	req, err := f.svc.Request(ctx, input("u1", "5"))
	require.NoError(t, err)

	tk, err := NewCreatedTask(CreatedPayload{WithdrawalID: req.ID, UserID: "u1"})
	require.NoError(t, err)

	h := NewTaskHandler(f.svc, f.cfg)

	// manual settlement leaves the request alone
	require.NoError(t, h.HandleCreated(ctx, tk))
	stored, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)

	f.cfg.Settlement.AutoProcess = true
	require.NoError(t, h.HandleCreated(ctx, tk))
	stored, err = f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, stored.Status)

	// redelivery is harmless
	require.NoError(t, h.HandleCreated(ctx, tk))

	missing, err := NewCreatedTask(CreatedPayload{WithdrawalID: "missing"})
	require.NoError(t, err)
	err = h.HandleCreated(ctx, missing)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleSettle(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "u1", "10")
	ctx := context.Background()
	h := NewTaskHandler(f.svc, f.cfg)

	req, err := f.svc.Request(ctx, input("u1", "5"))
	require.NoError(t, err)

	reject, err := NewSettleTask(SettlePayload{WithdrawalID: req.ID, Status: StatusRejected, Note: "bank rejected"})
	require.NoError(t, err)
	require.Equal(t, taskname.WithdrawalSettle, reject.Type())
	require.NoError(t, h.HandleSettle(ctx, reject))
	requireDecimal(t, "10", f.balance(t, "u1"))

	err = h.HandleSettle(ctx, reject)
	require.True(t, errors.Is(err, asynq.SkipRetry))
	requireDecimal(t, "10", f.balance(t, "u1"))

	err = h.HandleSettle(ctx, asynq.NewTask(taskname.WithdrawalSettle, []byte("not json")))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}
