package watch

import (
	"context"
	"encoding/json"
	"strings"

	"watchearn/pkg/clock"
	"watchearn/pkg/config"
	"watchearn/pkg/db"
	"watchearn/pkg/db/pagination"
	"watchearn/pkg/errutil"
	"watchearn/pkg/logger"
	"watchearn/services/account"
	"watchearn/services/ledger"
	"watchearn/services/quota"
	"watchearn/services/video"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("watchearn/services/watch")

var watchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "watch_events_total",
	Help: "Watch reports by outcome reason.",
}, []string{"outcome"})

const maxChannelLength = 32

type Service struct {
	db       *gorm.DB
	cfg      *config.Config
	node     *snowflake.Node
	calendar *clock.Calendar
	quota    *quota.Service
	videos   *video.Service
	ledger   *ledger.Service
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Config   *config.Config
	Node     *snowflake.Node
	Calendar *clock.Calendar
	Quota    *quota.Service
	Videos   *video.Service
	Ledger   *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		cfg:      p.Config,
		node:     p.Node,
		calendar: p.Calendar,
		quota:    p.Quota,
		videos:   p.Videos,
		ledger:   p.Ledger,
	}
}

func validate(req Request) error {
	if err := account.ValidateUserID(req.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(req.VideoID) == "" {
		return errutil.InvalidInput("video id is required",
			errutil.WithDetails(errutil.Detail{Field: "videoId", Message: "required"}))
	}
	if req.WatchDuration.IsNegative() {
		return errutil.InvalidInput("watch duration must not be negative",
			errutil.WithDetails(errutil.Detail{Field: "watchDuration", Message: "must be >= 0"}))
	}
	if len(req.Channel) > maxChannelLength {
		return errutil.InvalidInput("channel is too long")
	}
	return nil
}

// earningFor returns what a watch of v pays. Only completed watches earn.
func (s *Service) earningFor(v *video.Video, completed bool) decimal.Decimal {
	if !completed {
		return decimal.Zero
	}
	if v.EarningAmount.IsPositive() {
		return v.EarningAmount
	}
	return s.cfg.VideoEarningAmount
}

// RecordWatch admits one watch of a video by a user for today. The quota
// unit, the event row and the credit commit together or not at all.
func (s *Service) RecordWatch(ctx context.Context, req Request) (result *Result, err error) {
	if err := validate(req); err != nil {
		watchesTotal.WithLabelValues(string(errutil.ReasonInvalidInput)).Inc()
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "watch.RecordWatch", trace.WithAttributes(
		attribute.String("user_id", req.UserID),
		attribute.String("video_id", req.VideoID),
		attribute.Bool("completed", req.Completed),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	log := logger.FromContext(ctx).With(
		zap.String("user_id", req.UserID),
		zap.String("video_id", req.VideoID),
	)

	now, day := s.calendar.Today()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := s.videos.GetActiveTx(ctx, tx, req.VideoID)
		if err != nil {
			return err
		}

		if _, err := s.quota.RefreshTx(ctx, tx, req.UserID, day); err != nil {
			return err
		}
		status, err := s.quota.ConsumeTx(ctx, tx, req.UserID, day)
		if err != nil {
			return err
		}

		event := &WatchEvent{
			ID:            s.node.Generate().String(),
			UserID:        req.UserID,
			VideoID:       v.ID,
			DayKey:        day,
			WatchedAt:     now.UTC(),
			WatchDuration: req.WatchDuration.Round(3),
			Completed:     req.Completed,
			EarningAmount: s.earningFor(v, req.Completed),
			Channel:       req.Channel,
		}
		if err := tx.WithContext(ctx).Create(event).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return errutil.AlreadyWatched("video already watched today", err,
					errutil.WithDetails(errutil.Detail{Field: "videoId", Message: req.VideoID}))
			}
			return db.Classify(err, "failed to record watch event")
		}

		result = &Result{
			Accepted:      true,
			EarningAmount: event.EarningAmount,
			EventID:       event.ID,
			Quota:         *status,
		}

		if !event.EarningAmount.IsPositive() {
			return nil
		}

		meta, _ := json.Marshal(map[string]string{"video_id": v.ID, "day_key": day})
		entry, err := s.ledger.CreditTx(ctx, tx, ledger.Posting{
			UserID:      req.UserID,
			Amount:      event.EarningAmount,
			Kind:        ledger.KindWatchEarning,
			ReferenceID: event.ID,
			Description: "watched " + v.Title,
			Metadata:    datatypes.JSON(meta),
		})
		if err != nil {
			return err
		}

		if err := tx.WithContext(ctx).Model(event).Update("ledger_entry_id", entry.ID).Error; err != nil {
			return db.Classify(err, "failed to link ledger entry")
		}
		result.LedgerEntryID = entry.ID
		return nil
	})
	if err != nil {
		err = db.Classify(err, "failed to record watch")
		reason := errutil.ReasonOf(err)
		if reason == "" {
			reason = "ERROR"
		}
		watchesTotal.WithLabelValues(string(reason)).Inc()
		log.Info("watch rejected", zap.String("reason", string(reason)), zap.Error(err))
		return nil, err
	}

	watchesTotal.WithLabelValues("ACCEPTED").Inc()
	log.Info("watch recorded",
		zap.String("event_id", result.EventID),
		zap.String("earning", result.EarningAmount.String()),
		zap.Int("watched_today", result.Quota.VideosWatchedToday),
	)
	return result, nil
}

// AvailableVideos lists active videos the user has not watched today along
// with the current quota. The listing may lag behind concurrent watches.
func (s *Service) AvailableVideos(ctx context.Context, userID, category string, limit int) (*Available, error) {
	status, err := s.quota.CheckAndRefresh(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit = pagination.Pagination{Limit: limit}.Normalize().Limit

	catalog, err := s.videos.ListActive(ctx, category, 0)
	if err != nil {
		return nil, err
	}

	watched, err := s.watchedOn(ctx, userID, status.DayKey)
	if err != nil {
		return nil, err
	}

	videos := make([]*video.Video, 0, limit)
	for _, v := range catalog {
		if _, ok := watched[v.ID]; ok {
			continue
		}
		videos = append(videos, v)
		if len(videos) == limit {
			break
		}
	}

	return &Available{Videos: videos, Quota: *status}, nil
}

func (s *Service) watchedOn(ctx context.Context, userID, dayKey string) (map[string]struct{}, error) {
	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	var ids []string
	if err := s.db.WithContext(ctx).Model(&WatchEvent{}).
		Where("user_id = ? AND day_key = ?", userID, dayKey).
		Pluck("video_id", &ids).Error; err != nil {
		return nil, db.Classify(err, "failed to load watch history")
	}

	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// Events returns the watch events of userID for dayKey, oldest first.
func (s *Service) Events(ctx context.Context, userID, dayKey string) ([]*WatchEvent, error) {
	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	var out []*WatchEvent
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND day_key = ?", userID, dayKey).
		Order("watched_at ASC").
		Find(&out).Error; err != nil {
		return nil, db.Classify(err, "failed to list watch events")
	}
	return out, nil
}
