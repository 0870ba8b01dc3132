package watch

import (
	"time"

	"watchearn/services/quota"
	"watchearn/services/video"

	"github.com/shopspring/decimal"
)

type WatchEvent struct {
	ID            string          `gorm:"column:id;primaryKey;size:32" json:"id"`
	UserID        string          `gorm:"column:user_id;size:64;not null;uniqueIndex:idx_watch_user_video_day,priority:1;index:idx_watch_user_day,priority:1" json:"userId"`
	VideoID       string          `gorm:"column:video_id;size:32;not null;uniqueIndex:idx_watch_user_video_day,priority:2" json:"videoId"`
	DayKey        string          `gorm:"column:day_key;size:10;not null;uniqueIndex:idx_watch_user_video_day,priority:3;index:idx_watch_user_day,priority:2" json:"dayKey"`
	WatchedAt     time.Time       `gorm:"column:watched_at;not null" json:"watchedAt"`
	WatchDuration decimal.Decimal `gorm:"column:watch_duration;type:numeric(12,3);not null" json:"watchDuration"`
	Completed     bool            `gorm:"column:completed;not null" json:"completed"`
	EarningAmount decimal.Decimal `gorm:"column:earning_amount;type:numeric(20,4);not null" json:"earningAmount"`
	LedgerEntryID string          `gorm:"column:ledger_entry_id;size:32" json:"ledgerEntryId,omitempty"`
	Channel       string          `gorm:"column:channel;size:32" json:"channel,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"createdAt"`
}

func (WatchEvent) TableName() string {
	return "watch_events"
}

type Request struct {
	UserID        string
	VideoID       string
	WatchDuration decimal.Decimal // seconds, fractional allowed
	Completed     bool
	Channel       string
}

type Result struct {
	Accepted      bool            `json:"accepted"`
	EarningAmount decimal.Decimal `json:"earningAmount"`
	EventID       string          `json:"eventId"`
	LedgerEntryID string          `json:"ledgerEntryId,omitempty"`
	Quota         quota.Status    `json:"quotaStatus"`
}

type Available struct {
	Videos []*video.Video `json:"videos"`
	Quota  quota.Status   `json:"quotaStatus"`
}
