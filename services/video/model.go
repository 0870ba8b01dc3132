package video

import (
	"time"

	"github.com/shopspring/decimal"
)

type Video struct {
	ID              string          `gorm:"column:id;primaryKey;size:32" json:"id"`
	Title           string          `gorm:"column:title;size:255;not null" json:"title"`
	Description     string          `gorm:"column:description;type:text" json:"description"`
	URL             string          `gorm:"column:url;size:512;not null" json:"url"`
	ThumbnailURL    string          `gorm:"column:thumbnail_url;size:512" json:"thumbnailUrl"`
	Category        string          `gorm:"column:category;size:64;index" json:"category"`
	DurationSeconds int             `gorm:"column:duration_seconds;not null" json:"duration"`
	EarningAmount   decimal.Decimal `gorm:"column:earning_amount;type:numeric(20,4);not null" json:"earningAmount"`
	Active          bool            `gorm:"column:active;not null;index" json:"-"`
	CreatedAt       time.Time       `gorm:"column:created_at;index" json:"createdAt"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"-"`
}

func (Video) TableName() string {
	return "videos"
}
