package withdrawal

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"watchearn/pkg/config"
	"watchearn/pkg/db"
	"watchearn/pkg/db/pagination"
	"watchearn/pkg/errutil"
	"watchearn/pkg/logger"
	"watchearn/pkg/rediskey"
	"watchearn/pkg/sequence"
	"watchearn/pkg/task"
	"watchearn/services/account"
	"watchearn/services/ledger"

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

var tracer = otel.Tracer("watchearn/services/withdrawal")

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawal_requests_total",
		Help: "Withdrawal requests by outcome reason.",
	}, []string{"outcome"})
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawal_transitions_total",
		Help: "Applied withdrawal status transitions.",
	}, []string{"to"})
)

const (
	maxIdempotencyKeyLength = 128
	// Withdrawals are requested in whole cents.
	amountScale int32 = 2
	// referenceAttempts bounds retries after a reference code collision.
	referenceAttempts = 2
)

var errDuplicateKey = errors.New("withdrawal: duplicate key")

type Service struct {
	db       *gorm.DB
	cfg      *config.Config
	node     *snowflake.Node
	ledger   *ledger.Service
	sequence sequence.Generator
	enqueuer task.Enqueuer
	now      func() time.Time
	// randomCode backs the sequence and replaces a colliding code.
	randomCode func(prefix string, now time.Time) (string, error)
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Config   *config.Config
	Node     *snowflake.Node
	Ledger   *ledger.Service
	Sequence sequence.Generator `optional:"true"`
	Enqueuer task.Enqueuer      `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		cfg:      p.Config,
		node:     p.Node,
		ledger:   p.Ledger,
		sequence: p.Sequence,
		enqueuer: p.Enqueuer,
		now:      time.Now,

		randomCode: sequence.RandomCode,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) validate(in Input) error {
	if err := account.ValidateUserID(in.UserID); err != nil {
		return err
	}

	if in.Amount.LessThan(s.cfg.MinimumWithdrawal) {
		return errutil.BelowMinimum("amount is below the minimum withdrawal",
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "minimum is " + s.cfg.MinimumWithdrawal.String()}))
	}

	if !ledger.FitsScale(in.Amount, amountScale) {
		return errutil.InvalidInput("amount must not have more than 2 decimal places",
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: in.Amount.String()}))
	}

	method := strings.TrimSpace(in.PaymentMethod)
	if method == "" {
		return errutil.InvalidInput("payment method is required",
			errutil.WithDetails(errutil.Detail{Field: "paymentMethod", Message: "required"}))
	}
	if len(s.cfg.PaymentMethods) > 0 && !slices.Contains(s.cfg.PaymentMethods, method) {
		return errutil.InvalidInput("payment method is not supported",
			errutil.WithDetails(errutil.Detail{Field: "paymentMethod", Message: "one of " + strings.Join(s.cfg.PaymentMethods, ", ")}))
	}

	var details map[string]any
	if err := json.Unmarshal(in.PaymentDetails, &details); err != nil || len(details) == 0 {
		return errutil.InvalidInput("payment details must be a non-empty object",
			errutil.WithDetails(errutil.Detail{Field: "paymentDetails", Message: "required"}))
	}

	if len(in.IdempotencyKey) > maxIdempotencyKeyLength {
		return errutil.InvalidInput("idempotency key is too long")
	}
	return nil
}

// Request debits the amount and records a PENDING withdrawal in one
// transaction. A repeated idempotency key returns the first request.
func (s *Service) Request(ctx context.Context, in Input) (req *WithdrawalRequest, err error) {
	in.PaymentMethod = strings.TrimSpace(in.PaymentMethod)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)

	if err := s.validate(in); err != nil {
		requestsTotal.WithLabelValues(string(errutil.ReasonOf(err))).Inc()
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "withdrawal.Request", trace.WithAttributes(
		attribute.String("user_id", in.UserID),
		attribute.String("amount", in.Amount.String()),
	))
	defer func() { endSpan(span, err) }()

	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	log := logger.FromContext(ctx).With(zap.String("user_id", in.UserID))

	if in.IdempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, in.UserID, in.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			requestsTotal.WithLabelValues("REPLAYED").Inc()
			return existing, nil
		}
	}

	now := s.now().UTC()
	code, err := s.referenceCode(ctx, now)
	if err != nil {
		return nil, errutil.Internal("failed to generate reference code", err)
	}

	req = &WithdrawalRequest{
		ID:              s.node.Generate().String(),
		ReferenceCode:   code,
		UserID:          in.UserID,
		AmountRequested: in.Amount,
		AmountPayout:    in.Amount.Mul(s.cfg.ExchangeRate).Round(4),
		ExchangeRate:    s.cfg.ExchangeRate,
		PayoutCurrency:  s.cfg.PayoutCurrency,
		Status:          StatusPending,
		PaymentMethod:   in.PaymentMethod,
		PaymentDetails:  datatypes.JSON(in.PaymentDetails),
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		req.IdempotencyKey = &key
	}

	for attempt := 1; ; attempt++ {
		err = s.create(ctx, req)
		if !errors.Is(err, errDuplicateKey) {
			break
		}

		if req.IdempotencyKey != nil {
			existing, ferr := s.findByIdempotencyKey(ctx, in.UserID, in.IdempotencyKey)
			if ferr != nil {
				return nil, ferr
			}
			if existing != nil {
				requestsTotal.WithLabelValues("REPLAYED").Inc()
				return existing, nil
			}
		}

		// Nothing replays this request, so the reference code collided.
		if attempt >= referenceAttempts {
			err = errutil.Transient("withdrawal reference code collided, retry the request", err)
			break
		}
		log.Warn("reference code collided, retrying with a random code", zap.String("reference_code", req.ReferenceCode))
		if req.ReferenceCode, err = s.randomCode(rediskey.WithdrawalCode, now); err != nil {
			return nil, errutil.Internal("failed to generate reference code", err)
		}
		req.DebitEntryID = ""
	}
	if err != nil {
		err = db.Classify(err, "failed to request withdrawal")
		requestsTotal.WithLabelValues(string(errutil.ReasonOf(err))).Inc()
		log.Info("withdrawal rejected", zap.Error(err))
		return nil, err
	}

	requestsTotal.WithLabelValues("ACCEPTED").Inc()
	log.Info("withdrawal requested",
		zap.String("withdrawal_id", req.ID),
		zap.String("reference_code", req.ReferenceCode),
		zap.String("amount", req.AmountRequested.String()),
		zap.String("payout", req.AmountPayout.String()),
	)

	s.notifyCreated(ctx, req)
	return req, nil
}

// create debits the amount and inserts req in one transaction. A unique
// violation on the row comes back as errDuplicateKey with nothing committed.
func (s *Service) create(ctx context.Context, req *WithdrawalRequest) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.ledger.DebitTx(ctx, tx, ledger.Posting{
			UserID:      req.UserID,
			Amount:      req.AmountRequested,
			Kind:        ledger.KindWithdrawal,
			ReferenceID: req.ID,
			Description: "withdrawal " + req.ReferenceCode,
		})
		if err != nil {
			return err
		}
		req.DebitEntryID = entry.ID

		if err := tx.WithContext(ctx).Create(req).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return errDuplicateKey
			}
			return db.Classify(err, "failed to create withdrawal request")
		}
		return nil
	})
}

func (s *Service) referenceCode(ctx context.Context, now time.Time) (string, error) {
	if s.sequence != nil {
		code, err := s.sequence.NextWithdrawalCode(ctx)
		if err == nil {
			return code, nil
		}
		logger.FromContext(ctx).Warn("sequence unavailable, using random reference code", zap.Error(err))
	}
	return s.randomCode(rediskey.WithdrawalCode, now)
}

func (s *Service) notifyCreated(ctx context.Context, req *WithdrawalRequest) {
	if s.enqueuer == nil {
		return
	}

	t, err := NewCreatedTask(CreatedPayload{WithdrawalID: req.ID, UserID: req.UserID})
	if err == nil {
		_, err = s.enqueuer.Enqueue(context.WithoutCancel(ctx), t)
	}
	if err != nil {
		logger.FromContext(ctx).Warn("failed to enqueue withdrawal created task",
			zap.String("withdrawal_id", req.ID), zap.Error(err))
	}
}

func (s *Service) findByIdempotencyKey(ctx context.Context, userID, key string) (*WithdrawalRequest, error) {
	var req WithdrawalRequest
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		Limit(1).
		Find(&req)
	if res.Error != nil {
		return nil, db.Classify(res.Error, "failed to look up withdrawal request")
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &req, nil
}

func (s *Service) Get(ctx context.Context, id string) (*WithdrawalRequest, error) {
	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	var req WithdrawalRequest
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, db.Classify(err, "withdrawal request not found")
	}
	return &req, nil
}

// Transition moves a request along PENDING -> PROCESSING -> COMPLETED, with
// REJECTED reachable from both non-terminal states. Rejection refunds the
// requested amount in the same transaction.
func (s *Service) Transition(ctx context.Context, id string, to Status, note string) (req *WithdrawalRequest, err error) {
	if _, ok := ParseStatus(string(to)); !ok {
		return nil, errutil.InvalidInput("unknown withdrawal status",
			errutil.WithDetails(errutil.Detail{Field: "status", Message: string(to)}))
	}

	ctx, span := tracer.Start(ctx, "withdrawal.Transition", trace.WithAttributes(
		attribute.String("withdrawal_id", id),
		attribute.String("to", string(to)),
	))
	defer func() { endSpan(span, err) }()

	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current WithdrawalRequest
		if err := tx.WithContext(ctx).Where("id = ?", id).First(&current).Error; err != nil {
			return db.Classify(err, "withdrawal request not found")
		}

		from := current.Status
		if !CanTransition(from, to) {
			return errutil.InvalidTransition("withdrawal status cannot change from "+string(from)+" to "+string(to),
				errutil.WithDetails(errutil.Detail{Field: "status", Message: string(from) + " -> " + string(to)}))
		}

		now := s.now().UTC()
		updates := map[string]any{
			"status":     to,
			"updated_at": now,
		}
		if note != "" {
			updates["note"] = note
			current.Note = note
		}
		if to.Terminal() {
			updates["processed_at"] = now
			current.ProcessedAt = &now
		}

		res := tx.WithContext(ctx).Model(&WithdrawalRequest{}).
			Where("id = ? AND status = ?", id, from).
			Updates(updates)
		if res.Error != nil {
			return db.Classify(res.Error, "failed to update withdrawal request")
		}
		if res.RowsAffected == 0 {
			return errutil.InvalidTransition("withdrawal status changed concurrently")
		}

		if to == StatusRejected {
			entry, err := s.ledger.CreditTx(ctx, tx, ledger.Posting{
				UserID:      current.UserID,
				Amount:      current.AmountRequested,
				Kind:        ledger.KindWithdrawalRefund,
				ReferenceID: current.ID,
				Description: "refund " + current.ReferenceCode,
			})
			if err != nil {
				return err
			}
			if entry != nil {
				if err := tx.WithContext(ctx).Model(&WithdrawalRequest{}).
					Where("id = ?", id).
					Update("refund_entry_id", entry.ID).Error; err != nil {
					return db.Classify(err, "failed to link refund entry")
				}
				current.RefundEntryID = entry.ID
			}
		}

		current.Status = to
		current.UpdatedAt = now
		req = &current
		return nil
	})
	if err != nil {
		return nil, db.Classify(err, "failed to transition withdrawal request")
	}

	transitionsTotal.WithLabelValues(string(to)).Inc()
	logger.FromContext(ctx).Info("withdrawal status changed",
		zap.String("withdrawal_id", id),
		zap.String("user_id", req.UserID),
		zap.String("status", string(to)),
	)
	return req, nil
}

// ListHistory returns every request of userID, newest first.
func (s *Service) ListHistory(ctx context.Context, userID string) ([]*WithdrawalRequest, error) {
	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	var out []*WithdrawalRequest
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&out).Error; err != nil {
		return nil, db.Classify(err, "failed to list withdrawal history")
	}
	return out, nil
}

func (s *Service) ListHistoryPage(ctx context.Context, userID string, p pagination.Pagination) ([]*WithdrawalRequest, *pagination.PageInfo, error) {
	p = p.Normalize()

	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if p.Cursor != "" {
		cursor, err := pagination.DecodeCursor(p.Cursor)
		if err != nil {
			return nil, nil, errutil.InvalidInput("invalid cursor",
				errutil.WithDetails(errutil.Detail{Field: "cursor", Message: "malformed"}))
		}
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []*WithdrawalRequest
	if err := q.Order("created_at DESC").Order("id DESC").Limit(p.Limit + 1).Find(&rows).Error; err != nil {
		return nil, nil, db.Classify(err, "failed to list withdrawal history")
	}

	page, info, err := pagination.BuildCursorPageInfo(rows, p.Limit, func(r *WithdrawalRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	if err != nil {
		return nil, nil, errutil.Internal("failed to build page", err)
	}
	return page, info, nil
}

// ComputeStats aggregates the requests of userID. PROCESSING counts as
// pending.
func (s *Service) ComputeStats(ctx context.Context, userID string) (*Stats, error) {
	ctx, cancel := db.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	var rows []*WithdrawalRequest
	if err := s.db.WithContext(ctx).
		Select("status", "amount_requested").
		Where("user_id = ?", userID).
		Find(&rows).Error; err != nil {
		return nil, db.Classify(err, "failed to compute withdrawal stats")
	}

	stats := &Stats{TotalWithdrawn: decimal.Zero, PendingAmount: decimal.Zero}
	for _, r := range rows {
		switch {
		case r.Status == StatusCompleted:
			stats.TotalWithdrawn = stats.TotalWithdrawn.Add(r.AmountRequested)
			stats.CompletedCount++
		case r.Status.Pending():
			stats.PendingAmount = stats.PendingAmount.Add(r.AmountRequested)
			stats.PendingCount++
		}
	}
	return stats, nil
}
