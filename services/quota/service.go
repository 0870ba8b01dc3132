package quota

import (
	"context"

	"watchearn/pkg/clock"
	"watchearn/pkg/config"
	"watchearn/pkg/db"
	"watchearn/pkg/errutil"
	"watchearn/pkg/logger"
	"watchearn/services/account"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("watchearn/services/quota")

var (
	rolloversTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quota_rollovers_total",
		Help: "Daily counters reset on first activity of a new day.",
	})
	rejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quota_rejections_total",
		Help: "Watches refused because the daily limit was reached.",
	})
)

type Service struct {
	db       *gorm.DB
	cfg      *config.Config
	calendar *clock.Calendar
	accounts *account.Service
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Config   *config.Config
	Calendar *clock.Calendar
	Accounts *account.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		cfg:      p.Config,
		calendar: p.Calendar,
		accounts: p.Accounts,
	}
}

func (s *Service) Limit() int {
	return s.cfg.DailyVideoLimit
}

// CheckAndRefresh rolls the daily counter over when the stored day is stale
// and reports how many watches are left today.
func (s *Service) CheckAndRefresh(ctx context.Context, userID string) (status *Status, err error) {
	if err := account.ValidateUserID(userID); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "quota.CheckAndRefresh", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	_, day := s.calendar.Today()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := s.RefreshTx(ctx, tx, userID, day)
		if err != nil {
			return err
		}
		// A lagging clock must not report a fresh quota for a day already passed.
		if acc.LastQuotaDay > day {
			day = acc.LastQuotaDay
		}
		st := NewStatus(acc.WatchedOn(day), s.Limit(), day)
		status = &st
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, db.Classify(err, "failed to check quota")
	}

	span.SetAttributes(attribute.Int("watched", status.VideosWatchedToday), attribute.Bool("allowed", status.Allowed))
	return status, nil
}

// RefreshTx resets the counter for dayKey if it still belongs to an earlier
// day and returns the account as seen afterwards. Day keys are ISO dates, so
// the string comparison only ever moves the counter forward.
func (s *Service) RefreshTx(ctx context.Context, tx *gorm.DB, userID, dayKey string) (*account.Account, error) {
	res := tx.WithContext(ctx).Model(&account.Account{}).
		Where("id = ? AND last_quota_day < ?", userID, dayKey).
		Updates(map[string]any{
			"videos_watched_today": 0,
			"last_quota_day":       dayKey,
		})
	if res.Error != nil {
		logger.FromContext(ctx).Error("failed to roll quota over", zap.String("user_id", userID), zap.Error(res.Error))
		return nil, db.Classify(res.Error, "failed to roll quota over")
	}
	if res.RowsAffected > 0 {
		rolloversTotal.Inc()
		logger.FromContext(ctx).Debug("quota rolled over", zap.String("user_id", userID), zap.String("day_key", dayKey))
	}

	return s.accounts.GetTx(ctx, tx, userID)
}

// ConsumeTx takes one unit of today's quota. It expects RefreshTx to have
// run for the same dayKey in tx.
func (s *Service) ConsumeTx(ctx context.Context, tx *gorm.DB, userID, dayKey string) (*Status, error) {
	limit := s.Limit()

	res := tx.WithContext(ctx).Model(&account.Account{}).
		Where("id = ? AND last_quota_day = ? AND videos_watched_today < ?", userID, dayKey, limit).
		Update("videos_watched_today", gorm.Expr("videos_watched_today + 1"))
	if res.Error != nil {
		logger.FromContext(ctx).Error("failed to consume quota", zap.String("user_id", userID), zap.Error(res.Error))
		return nil, db.Classify(res.Error, "failed to consume quota")
	}

	if res.RowsAffected == 0 {
		exists, err := account.Exists(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, errutil.NotFound("account not found", nil)
		}
		acc, err := s.accounts.GetTx(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		if acc.LastQuotaDay > dayKey {
			logger.FromContext(ctx).Warn("stale quota day rejected",
				zap.String("user_id", userID), zap.String("day_key", dayKey), zap.String("current_day", acc.LastQuotaDay))
			return nil, errutil.Transient("quota day has already moved on", nil)
		}
		rejectionsTotal.Inc()
		return nil, errutil.QuotaExceeded("daily video limit reached",
			errutil.WithDetails(errutil.Detail{Field: "limit", Message: "daily limit reached"}))
	}

	acc, err := s.accounts.GetTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	st := NewStatus(acc.WatchedOn(dayKey), limit, dayKey)
	return &st, nil
}
