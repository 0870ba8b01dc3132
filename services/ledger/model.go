package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const GenesisHash = "GENESIS"

// AmountScale is the number of decimal places the money columns store.
const AmountScale int32 = 4

// FitsScale reports whether d has no digits beyond places decimal places.
func FitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

type EntryType string

const (
	EntryCredit EntryType = "CREDIT"
	EntryDebit  EntryType = "DEBIT"
)

type EntryKind string

const (
	KindWatchEarning     EntryKind = "WATCH_EARNING"
	KindWithdrawal       EntryKind = "WITHDRAWAL"
	KindWithdrawalRefund EntryKind = "WITHDRAWAL_REFUND"
	KindAdjustment       EntryKind = "ADJUSTMENT"
)

// Type returns the direction a kind moves the balance in.
func (k EntryKind) Type() EntryType {
	if k == KindWithdrawal {
		return EntryDebit
	}
	return EntryCredit
}

// CountsAsEarning reports whether a credit of this kind adds to total_earned.
func (k EntryKind) CountsAsEarning() bool {
	return k == KindWatchEarning
}

type LedgerEntry struct {
	ID            string          `gorm:"column:id;primaryKey;size:32" json:"id"`
	UserID        string          `gorm:"column:user_id;size:64;not null;uniqueIndex:idx_ledger_user_sequence,priority:1" json:"user_id"`
	Sequence      int64           `gorm:"column:sequence;not null;uniqueIndex:idx_ledger_user_sequence,priority:2" json:"sequence"`
	Type          EntryType       `gorm:"column:type;size:16;not null" json:"type"`
	Kind          EntryKind       `gorm:"column:kind;size:32;not null" json:"kind"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(20,4);not null" json:"amount"`
	BalanceAfter  decimal.Decimal `gorm:"column:balance_after;type:numeric(20,4);not null" json:"balance_after"`
	ReferenceID   string          `gorm:"column:reference_id;size:64;index" json:"reference_id"`
	TransactionID string          `gorm:"column:transaction_id;size:32" json:"transaction_id"`
	Description   string          `gorm:"column:description;size:255" json:"description"`
	PreviousHash  string          `gorm:"column:previous_hash;size:64;not null" json:"previous_hash"`
	Hash          string          `gorm:"column:hash;size:64;not null" json:"hash"`
	Metadata      datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime:false" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

type LedgerParams struct {
	LedgerID      string
	UserID        string
	Sequence      int64
	Kind          EntryKind
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReferenceID   string
	TransactionID string
	Description   string
	PreviousHash  string
	Metadata      datatypes.JSON
	CreatedAt     time.Time
}

// NewLedgerEntry builds a sealed entry; the hash covers every field in
// HashFields.
func NewLedgerEntry(p LedgerParams) *LedgerEntry {
	e := &LedgerEntry{
		ID:            p.LedgerID,
		UserID:        p.UserID,
		Sequence:      p.Sequence,
		Type:          p.Kind.Type(),
		Kind:          p.Kind,
		Amount:        p.Amount,
		BalanceAfter:  p.BalanceAfter,
		TransactionID: p.TransactionID,
		ReferenceID:   p.ReferenceID,
		Description:   p.Description,
		PreviousHash:  p.PreviousHash,
		Metadata:      p.Metadata,
		CreatedAt:     p.CreatedAt.UTC().Truncate(time.Millisecond),
	}
	e.Hash = e.GenerateHash()
	return e
}

func (m *LedgerEntry) HashFields() map[string]string {
	return map[string]string{
		"id":             m.ID,
		"user_id":        m.UserID,
		"sequence":       fmt.Sprintf("%d", m.Sequence),
		"type":           string(m.Type),
		"kind":           string(m.Kind),
		"amount":         m.Amount.StringFixed(4),
		"balance_after":  m.BalanceAfter.StringFixed(4),
		"transaction_id": m.TransactionID,
		"reference_id":   m.ReferenceID,
		"description":    m.Description,
		"created_at":     m.CreatedAt.UTC().Truncate(time.Millisecond).Format(time.RFC3339Nano),
		"previous_hash":  m.PreviousHash,
	}
}

func (l *LedgerEntry) GenerateHash() string {
	fields := l.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

func GenerateTransactionID(now time.Time) (string, error) {
	datePart := now.UTC().Format("20060102")

	r := make([]byte, 3)
	if _, err := rand.Read(r); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s", datePart, strings.ToUpper(hex.EncodeToString(r))), nil
}

// Posting describes one balance movement requested by another component.
type Posting struct {
	UserID      string
	Amount      decimal.Decimal
	Kind        EntryKind
	ReferenceID string
	Description string
	Metadata    datatypes.JSON
}

type ChainReport struct {
	UserID         string          `json:"user_id"`
	Valid          bool            `json:"valid"`
	Entries        int             `json:"entries"`
	BrokenAt       string          `json:"broken_at,omitempty"`
	BalanceMatches bool            `json:"balance_matches"`
	LedgerBalance  decimal.Decimal `json:"ledger_balance"`
	AccountBalance decimal.Decimal `json:"account_balance"`
}
