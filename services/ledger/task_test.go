package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"watchearn/pkg/clock"
	"watchearn/pkg/config"
	"watchearn/pkg/task"
	"watchearn/pkg/taskname"
)

func TestHandleVerifyChain(t *testing.T) {
	f := newFixture(t)
	f.open(t, "u1")
	ctx := context.Background()

	first, err := f.svc.Credit(ctx, earning("u1", "2"))
	require.NoError(t, err)

	h := NewTaskHandler(f.svc)
	tk, err := NewVerifyChainTask(VerifyChainPayload{UserID: "u1", DayKey: "2024-01-01"})
	require.NoError(t, err)
	require.Equal(t, taskname.LedgerVerifyChain, tk.Type())
	require.NoError(t, h.HandleVerifyChain(ctx, tk))

	require.NoError(t, f.db.Model(&LedgerEntry{}).Where("id = ?", first.ID).Update("hash", "forged").Error)
	err = h.HandleVerifyChain(ctx, tk)
	require.Error(t, err)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleVerifyChainBadPayload(t *testing.T) {
	h := NewTaskHandler(newFixture(t).svc)

	err := h.HandleVerifyChain(context.Background(), asynq.NewTask(taskname.LedgerVerifyChain, []byte("{")))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestSchedulerRunOnce(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.open(t, fmt.Sprintf("user-%d", i))
	}

	rec := &task.Recorder{}
	fixed := clock.NewFixed(time.Date(2024, 4, 2, 1, 0, 0, 0, time.UTC))
	cal, err := clock.NewCalendar(fixed, &config.Config{})
	require.NoError(t, err)
	s := NewScheduler(f.accounts, rec, cal)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)

	tasks := rec.Tasks()
	require.Len(t, tasks, 3)

	var payload VerifyChainPayload
	require.NoError(t, json.Unmarshal(tasks[0].Payload(), &payload))
	require.Equal(t, "user-0", payload.UserID)
	require.Equal(t, "2024-04-02", payload.DayKey)
}

func TestSchedulerSkipsDuplicateTasks(t *testing.T) {
	f := newFixture(t)
	f.open(t, "user-0")

	rec := &task.Recorder{Err: fmt.Errorf("failed to enqueue task: %w", asynq.ErrTaskIDConflict)}
	cal, err := clock.NewCalendar(clock.System{}, &config.Config{})
	require.NoError(t, err)
	s := NewScheduler(f.accounts, rec, cal)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestNextRunTime(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), nextRunTime(now, 1, 0))

	now = time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC), nextRunTime(now, 1, 0))
}
