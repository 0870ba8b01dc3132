package ledger

import (
	"context"
	"errors"
	"time"

	"watchearn/pkg/clock"
	"watchearn/pkg/task"
	"watchearn/services/account"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const auditBatchSize = 500

type Scheduler struct {
	accounts *account.Service
	enqueuer task.Enqueuer
	calendar *clock.Calendar
	hour     int
}

func NewScheduler(accounts *account.Service, enqueuer task.Enqueuer, calendar *clock.Calendar) *Scheduler {
	return &Scheduler{
		accounts: accounts,
		enqueuer: enqueuer,
		calendar: calendar,
		hour:     1,
	}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started ledger audit scheduler")

	for {
		now := s.calendar.Clock.Now().In(s.calendar.Location)
		next := nextRunTime(now, s.hour, 0)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			start := time.Now()
			n, err := s.RunOnce(ctx)
			if err != nil {
				zap.L().Error("[Scheduler] ledger audit enqueue failed", zap.Int("enqueued", n), zap.Error(err))
				continue
			}
			zap.L().Info("[Scheduler] ledger audit enqueued",
				zap.Int("enqueued", n),
				zap.Duration("duration", time.Since(start)),
			)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

// RunOnce enqueues one verification task per account and returns how many
// were accepted by the queue.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	_, day := s.calendar.Today()

	enqueued := 0
	after := ""
	for {
		batch, err := s.accounts.List(ctx, after, auditBatchSize)
		if err != nil {
			return enqueued, err
		}

		for _, acc := range batch {
			t, err := NewVerifyChainTask(VerifyChainPayload{UserID: acc.ID, DayKey: day})
			if err != nil {
				return enqueued, err
			}
			if _, err := s.enqueuer.Enqueue(ctx, t); err != nil {
				if errors.Is(err, asynq.ErrTaskIDConflict) {
					continue
				}
				return enqueued, err
			}
			enqueued++
		}

		if len(batch) < auditBatchSize {
			return enqueued, nil
		}
		after = batch[len(batch)-1].ID
	}
}

// nextRunTime returns the next occurrence of hour:minute at or after now.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
