package ledger

import (
	"context"
	"time"

	"watchearn/pkg/config"
	"watchearn/pkg/db"
	"watchearn/pkg/errutil"
	"watchearn/pkg/logger"
	"watchearn/services/account"

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
	"gorm.io/gorm"
)

var tracer = otel.Tracer("watchearn/services/ledger")

var (
	postingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_postings_total",
		Help: "Balance movements applied, by entry kind and outcome.",
	}, []string{"kind", "outcome"})
	chainChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_chain_verifications_total",
		Help: "Hash chain verifications, by result.",
	}, []string{"result"})
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	cfg      *config.Config
	accounts *account.Service
	now      func() time.Time
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Accounts *account.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		cfg:      p.Config,
		accounts: p.Accounts,
		now:      time.Now,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Credit applies p in its own transaction.
func (s *Service) Credit(ctx context.Context, p Posting) (entry *LedgerEntry, err error) {
	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err = s.CreditTx(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// CreditTx increases balance by p.Amount inside tx. Earning kinds also
// increase total_earned. A zero amount changes nothing and returns a nil entry.
func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, p Posting) (entry *LedgerEntry, err error) {
	ctx, span := tracer.Start(ctx, "ledger.Credit", trace.WithAttributes(
		attribute.String("user_id", p.UserID),
		attribute.String("kind", string(p.Kind)),
	))
	defer func() { endSpan(span, err) }()

	if p.Kind.Type() != EntryCredit {
		return nil, errutil.InvalidInput("posting kind is not a credit")
	}
	if p.Amount.IsNegative() {
		return nil, errutil.InvalidInput("credit amount must not be negative")
	}
	if !FitsScale(p.Amount, AmountScale) {
		return nil, errutil.InvalidInput("credit amount has more than 4 decimal places")
	}
	if p.Amount.IsZero() {
		return nil, nil
	}

	updates := map[string]any{
		"balance": gorm.Expr("balance + ?", p.Amount),
	}
	if p.Kind.CountsAsEarning() {
		updates["total_earned"] = gorm.Expr("total_earned + ?", p.Amount)
	}

	res := tx.WithContext(ctx).Model(&account.Account{}).Where("id = ?", p.UserID).Updates(updates)
	if res.Error != nil {
		postingsTotal.WithLabelValues(string(p.Kind), "error").Inc()
		logger.FromContext(ctx).Error("failed to credit account", zap.String("user_id", p.UserID), zap.Error(res.Error))
		return nil, db.Classify(res.Error, "failed to credit account")
	}
	if res.RowsAffected == 0 {
		postingsTotal.WithLabelValues(string(p.Kind), "not_found").Inc()
		return nil, errutil.NotFound("account not found", nil)
	}

	entry, err = s.appendEntry(ctx, tx, p)
	if err != nil {
		return nil, err
	}

	postingsTotal.WithLabelValues(string(p.Kind), "applied").Inc()
	return entry, nil
}

// Debit applies p in its own transaction.
func (s *Service) Debit(ctx context.Context, p Posting) (entry *LedgerEntry, err error) {
	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err = s.DebitTx(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DebitTx decreases balance by p.Amount only when the balance covers it.
// The check and the decrement are one conditional UPDATE.
func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, p Posting) (entry *LedgerEntry, err error) {
	ctx, span := tracer.Start(ctx, "ledger.Debit", trace.WithAttributes(
		attribute.String("user_id", p.UserID),
		attribute.String("kind", string(p.Kind)),
	))
	defer func() { endSpan(span, err) }()

	if p.Kind.Type() != EntryDebit {
		return nil, errutil.InvalidInput("posting kind is not a debit")
	}
	if !p.Amount.IsPositive() {
		return nil, errutil.InvalidInput("debit amount must be positive")
	}
	if !FitsScale(p.Amount, AmountScale) {
		return nil, errutil.InvalidInput("debit amount has more than 4 decimal places")
	}

	res := tx.WithContext(ctx).Model(&account.Account{}).
		Where("id = ? AND balance >= ?", p.UserID, p.Amount).
		Update("balance", gorm.Expr("balance - ?", p.Amount))
	if res.Error != nil {
		postingsTotal.WithLabelValues(string(p.Kind), "error").Inc()
		logger.FromContext(ctx).Error("failed to debit account", zap.String("user_id", p.UserID), zap.Error(res.Error))
		return nil, db.Classify(res.Error, "failed to debit account")
	}

	if res.RowsAffected == 0 {
		exists, err := account.Exists(ctx, tx, p.UserID)
		if err != nil {
			return nil, err
		}
		if !exists {
			postingsTotal.WithLabelValues(string(p.Kind), "not_found").Inc()
			return nil, errutil.NotFound("account not found", nil)
		}
		postingsTotal.WithLabelValues(string(p.Kind), "insufficient_funds").Inc()
		return nil, errutil.InsufficientFunds("balance does not cover the requested amount",
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: p.Amount.String()}))
	}

	entry, err = s.appendEntry(ctx, tx, p)
	if err != nil {
		return nil, err
	}

	postingsTotal.WithLabelValues(string(p.Kind), "applied").Inc()
	return entry, nil
}

// appendEntry must run after the account row was updated in tx so the row
// lock orders concurrent appends for the same user.
func (s *Service) appendEntry(ctx context.Context, tx *gorm.DB, p Posting) (*LedgerEntry, error) {
	var last LedgerEntry
	res := tx.WithContext(ctx).
		Where("user_id = ?", p.UserID).
		Order("sequence DESC").
		Limit(1).
		Find(&last)
	if res.Error != nil {
		return nil, db.Classify(res.Error, "failed to read last ledger entry")
	}

	previousHash := GenesisHash
	sequence := int64(1)
	if res.RowsAffected > 0 {
		previousHash = last.Hash
		sequence = last.Sequence + 1
	}

	var balanceAfter decimal.Decimal
	if err := tx.WithContext(ctx).Model(&account.Account{}).
		Select("balance").
		Where("id = ?", p.UserID).
		Row().Scan(&balanceAfter); err != nil {
		return nil, db.Classify(err, "failed to read balance")
	}

	now := s.now()
	transactionID, err := GenerateTransactionID(now)
	if err != nil {
		return nil, errutil.Internal("failed to generate transaction id", err)
	}

	entry := NewLedgerEntry(LedgerParams{
		LedgerID:      s.node.Generate().String(),
		UserID:        p.UserID,
		Sequence:      sequence,
		Kind:          p.Kind,
		Amount:        p.Amount,
		BalanceAfter:  balanceAfter,
		ReferenceID:   p.ReferenceID,
		TransactionID: transactionID,
		Description:   p.Description,
		PreviousHash:  previousHash,
		Metadata:      p.Metadata,
		CreatedAt:     now,
	})

	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		logger.FromContext(ctx).Error("failed to append ledger entry", zap.String("user_id", p.UserID), zap.Error(err))
		return nil, db.Classify(err, "failed to append ledger entry")
	}

	return entry, nil
}

// Entries returns the newest entries for userID.
func (s *Service) Entries(ctx context.Context, userID string, limit int) ([]*LedgerEntry, error) {
	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var out []*LedgerEntry
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("sequence DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, db.Classify(err, "failed to list ledger entries")
	}
	return out, nil
}

// VerifyChain walks the entries of userID from the genesis link, checking
// sequence continuity, hash links and that the last balance matches the
// account.
func (s *Service) VerifyChain(ctx context.Context, userID string) (report *ChainReport, err error) {
	ctx, span := tracer.Start(ctx, "ledger.VerifyChain", trace.WithAttributes(attribute.String("user_id", userID)))
	defer func() { endSpan(span, err) }()

	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	log := logger.FromContext(ctx).With(zap.String("user_id", userID))

	acc, err := s.accounts.GetTx(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	var entries []*LedgerEntry
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("sequence ASC").
		Find(&entries).Error; err != nil {
		log.Error("failed to load ledger entries", zap.Error(err))
		return nil, db.Classify(err, "failed to load ledger entries")
	}

	report = &ChainReport{
		UserID:         userID,
		Valid:          true,
		Entries:        len(entries),
		LedgerBalance:  decimal.Zero,
		AccountBalance: acc.Balance,
	}

	previousHash := GenesisHash
	for i, e := range entries {
		if e.Sequence != int64(i+1) || e.PreviousHash != previousHash || e.GenerateHash() != e.Hash {
			report.Valid = false
			report.BrokenAt = e.ID
			break
		}
		previousHash = e.Hash
		report.LedgerBalance = e.BalanceAfter
	}

	report.BalanceMatches = report.LedgerBalance.Equal(acc.Balance)

	result := "valid"
	if !report.Valid || !report.BalanceMatches {
		result = "invalid"
		log.Warn("ledger chain verification failed",
			zap.String("broken_at", report.BrokenAt),
			zap.Bool("balance_matches", report.BalanceMatches),
			zap.String("ledger_balance", report.LedgerBalance.String()),
			zap.String("account_balance", acc.Balance.String()),
		)
	}
	chainChecksTotal.WithLabelValues(result).Inc()

	return report, nil
}
