package video

import (
	"context"
	"strings"

	"watchearn/pkg/config"
	"watchearn/pkg/db"
	"watchearn/pkg/errutil"
	"watchearn/pkg/logger"
	"watchearn/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("watchearn/services/video")

// maxCatalog bounds how many active videos one listing loads.
const maxCatalog = 1000

type Service struct {
	db    *gorm.DB
	cfg   *config.Config
	node  *snowflake.Node
	cache *ListCache
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
	Node   *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		cfg:   p.Config,
		node:  p.Node,
		cache: NewListCache(p.Config.VideoCacheTTL),
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Video, error) {
	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	var v Video
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, db.Classify(err, "video not found")
	}
	return &v, nil
}

// GetActiveTx resolves an active video inside the caller's transaction.
// Inactive videos read as not found.
func (s *Service) GetActiveTx(ctx context.Context, tx *gorm.DB, id string) (*Video, error) {
	var v Video
	if err := tx.WithContext(ctx).Where("id = ? AND active = ?", id, true).First(&v).Error; err != nil {
		return nil, db.Classify(err, "video not found")
	}
	return &v, nil
}

// ListActive returns active videos newest first, optionally filtered by
// category. A non-positive limit returns the whole cached listing.
func (s *Service) ListActive(ctx context.Context, category string, limit int) ([]*Video, error) {
	category = strings.TrimSpace(category)

	ctx, span := tracer.Start(ctx, "video.ListActive", trace.WithAttributes(attribute.String("category", category)))
	defer span.End()

	videos, ok := s.cache.Get(category)
	if !ok {
		v, err, _ := s.cache.group.Do(category, func() (any, error) {
			loaded, err := s.loadActive(ctx, category)
			if err != nil {
				return nil, err
			}
			s.cache.Set(category, loaded)
			return loaded, nil
		})
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		videos = v.([]*Video)
	}

	if limit > 0 && len(videos) > limit {
		videos = videos[:limit]
	}
	return append([]*Video(nil), videos...), nil
}

func (s *Service) loadActive(ctx context.Context, category string) ([]*Video, error) {
	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	q := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at DESC").
		Order("id DESC").
		Limit(maxCatalog)
	if category != "" {
		q = q.Where("category = ?", category)
	}

	var out []*Video
	if err := q.Find(&out).Error; err != nil {
		logger.FromContext(ctx).Error("failed to load video catalog", zap.String("category", category), zap.Error(err))
		return nil, db.Classify(err, "failed to load video catalog")
	}
	return out, nil
}

// Upsert inserts or replaces catalog rows by id and assigns ids to new ones.
func (s *Service) Upsert(ctx context.Context, videos ...*Video) error {
	if len(videos) == 0 {
		return nil
	}

	for _, v := range videos {
		if strings.TrimSpace(v.Title) == "" || strings.TrimSpace(v.URL) == "" {
			return errutil.InvalidInput("video title and url are required")
		}
		if v.EarningAmount.IsNegative() {
			return errutil.InvalidInput("video earning amount must not be negative")
		}
		if !ledger.FitsScale(v.EarningAmount, ledger.AmountScale) {
			return errutil.InvalidInput("video earning amount has more than 4 decimal places")
		}
		if v.ID == "" {
			v.ID = s.node.Generate().String()
		}
	}

	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "url", "thumbnail_url", "category",
			"duration_seconds", "earning_amount", "active", "updated_at",
		}),
	}).Create(&videos).Error
	if err != nil {
		logger.FromContext(ctx).Error("failed to upsert videos", zap.Int("count", len(videos)), zap.Error(err))
		return db.Classify(err, "failed to upsert videos")
	}

	s.cache.InvalidateAll()
	return nil
}
