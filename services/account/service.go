package account

import (
	"context"
	"strings"

	"watchearn/pkg/config"
	"watchearn/pkg/db"
	"watchearn/pkg/errutil"
	"watchearn/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var Module = fx.Module("account.service",
	fx.Provide(NewService),
)

const maxUserIDLength = 64

type Service struct {
	db  *gorm.DB
	cfg *config.Config
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB, cfg: p.Config}
}

func ValidateUserID(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errutil.InvalidInput("user id is required", errutil.WithDetails(errutil.Detail{Field: "userId", Message: "required"}))
	}
	if len(userID) > maxUserIDLength {
		return errutil.InvalidInput("user id is too long", errutil.WithDetails(errutil.Detail{Field: "userId", Message: "max 64 characters"}))
	}
	return nil
}

// Open creates a zero-balance account for userID. Opening an existing
// account returns it unchanged.
func (s *Service) Open(ctx context.Context, userID string) (*Account, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	acc := &Account{
		ID:          userID,
		Balance:     decimal.Zero,
		TotalEarned: decimal.Zero,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(acc)
	if res.Error != nil {
		logger.FromContext(ctx).Error("failed to open account", zap.String("user_id", userID), zap.Error(res.Error))
		return nil, db.Classify(res.Error, "failed to open account")
	}
	if res.RowsAffected > 0 {
		logger.FromContext(ctx).Info("account opened", zap.String("user_id", userID))
	}

	return s.GetTx(ctx, s.db, userID)
}

func (s *Service) Get(ctx context.Context, userID string) (*Account, error) {
	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	return s.GetTx(ctx, s.db, userID)
}

// GetTx reads the account through tx so callers can stay inside their
// transaction.
func (s *Service) GetTx(ctx context.Context, tx *gorm.DB, userID string) (*Account, error) {
	var acc Account
	if err := tx.WithContext(ctx).Where("id = ?", userID).First(&acc).Error; err != nil {
		return nil, db.Classify(err, "account not found")
	}
	return &acc, nil
}

// List scans accounts ordered by id, starting after afterID.
func (s *Service) List(ctx context.Context, afterID string, limit int) ([]*Account, error) {
	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	q := s.db.WithContext(ctx).Order("id ASC").Limit(limit)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}

	var out []*Account
	if err := q.Find(&out).Error; err != nil {
		return nil, db.Classify(err, "failed to list accounts")
	}
	return out, nil
}

// Exists is used to tell NotFound apart from a failed conditional update.
func Exists(ctx context.Context, tx *gorm.DB, userID string) (bool, error) {
	var n int64
	if err := tx.WithContext(ctx).Model(&Account{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return false, db.Classify(err, "failed to check account")
	}
	return n > 0, nil
}
