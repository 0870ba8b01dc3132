package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"watchearn/pkg/config"
	"watchearn/services/account"
	"watchearn/services/ledger"
	"watchearn/services/video"
	"watchearn/services/watch"
	"watchearn/services/withdrawal"
)

// Models lists every table owned by the services, in dependency order.
func Models() []any {
	return []any{
		&account.Account{},
		&ledger.LedgerEntry{},
		&video.Video{},
		&watch.WatchEvent{},
		&withdrawal.WithdrawalRequest{},
	}
}

type Service struct {
	db     *gorm.DB
	config *config.Config
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		config: p.Config,
	}
}

// Migrate creates or updates the schema when DATABASE_AUTO_MIGRATE is set.
func (s *Service) Migrate(ctx context.Context) error {
	if !s.config.Database.AutoMigrate {
		zap.L().Info("[bootstrap] Auto migration disabled, skipping")
		return nil
	}

	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		zap.L().Error("[bootstrap] Failed to migrate schema", zap.Error(err))
		return err
	}

	zap.L().Info("[bootstrap] Schema migrated", zap.Int("tables", len(Models())))
	return nil
}
