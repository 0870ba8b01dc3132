package account

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID                 string          `gorm:"column:id;primaryKey;size:64" json:"id"`
	Balance            decimal.Decimal `gorm:"column:balance;type:numeric(20,4);not null;default:0" json:"balance"`
	TotalEarned        decimal.Decimal `gorm:"column:total_earned;type:numeric(20,4);not null;default:0" json:"total_earned"`
	VideosWatchedToday int             `gorm:"column:videos_watched_today;not null;default:0" json:"videos_watched_today"`
	LastQuotaDay       string          `gorm:"column:last_quota_day;size:10;not null;default:''" json:"last_quota_day"`
	CreatedAt          time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// WatchedOn returns the counter as seen on dayKey; a stale counter reads as zero.
func (a *Account) WatchedOn(dayKey string) int {
	if a.LastQuotaDay != dayKey {
		return 0
	}
	return a.VideosWatchedToday
}
