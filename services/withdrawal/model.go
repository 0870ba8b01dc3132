package withdrawal

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusRejected},
	StatusProcessing: {StatusCompleted, StatusRejected},
}

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusRejected:
		return st, true
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Pending reports whether funds are still on their way out.
func (s Status) Pending() bool {
	return s == StatusPending || s == StatusProcessing
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type WithdrawalRequest struct {
	ID              string          `gorm:"column:id;primaryKey;size:32" json:"id"`
	ReferenceCode   string          `gorm:"column:reference_code;size:32;not null;uniqueIndex" json:"referenceCode"`
	UserID          string          `gorm:"column:user_id;size:64;not null;index:idx_withdrawal_user_created,priority:1;uniqueIndex:idx_withdrawal_user_idempotency,priority:1" json:"userId"`
	AmountRequested decimal.Decimal `gorm:"column:amount_requested;type:numeric(20,4);not null" json:"amountUsd"`
	AmountPayout    decimal.Decimal `gorm:"column:amount_payout;type:numeric(20,4);not null" json:"amountPayout"`
	ExchangeRate    decimal.Decimal `gorm:"column:exchange_rate;type:numeric(20,6);not null" json:"exchangeRate"`
	PayoutCurrency  string          `gorm:"column:payout_currency;size:8;not null" json:"payoutCurrency"`
	Status          Status          `gorm:"column:status;size:16;not null;index" json:"status"`
	PaymentMethod   string          `gorm:"column:payment_method;size:32;not null" json:"paymentMethod"`
	PaymentDetails  datatypes.JSON  `gorm:"column:payment_details" json:"paymentDetails"`
	IdempotencyKey  *string         `gorm:"column:idempotency_key;size:128;uniqueIndex:idx_withdrawal_user_idempotency,priority:2" json:"-"`
	Note            string          `gorm:"column:note;size:255" json:"note,omitempty"`
	DebitEntryID    string          `gorm:"column:debit_entry_id;size:32" json:"-"`
	RefundEntryID   string          `gorm:"column:refund_entry_id;size:32" json:"-"`
	CreatedAt       time.Time       `gorm:"column:created_at;index:idx_withdrawal_user_created,priority:2" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updatedAt"`
	ProcessedAt     *time.Time      `gorm:"column:processed_at" json:"processedAt,omitempty"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}

type Input struct {
	UserID         string
	Amount         decimal.Decimal
	PaymentMethod  string
	PaymentDetails json.RawMessage
	IdempotencyKey string
}

type Stats struct {
	TotalWithdrawn decimal.Decimal `json:"totalWithdrawn"`
	CompletedCount int             `json:"completedCount"`
	PendingAmount  decimal.Decimal `json:"pendingAmount"`
	PendingCount   int             `json:"pendingCount"`
}
