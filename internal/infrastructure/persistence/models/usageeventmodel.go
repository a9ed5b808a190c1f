package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// UsageEventModel represents the database persistence model for usage
// events. The unique idempotence key index is the authoritative dedup
// point for retried deliveries.
type UsageEventModel struct {
	ID             uint            `gorm:"primarykey"`
	SID            string          `gorm:"uniqueIndex;not null;size:50;comment:Stripe-style ID: evt_xxx"`
	CustomerID     string          `gorm:"not null;size:50;index:idx_usage_window,priority:1"`
	FeatureSlug    string          `gorm:"not null;size:100;index:idx_usage_window,priority:2"`
	Usage          decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	IdempotenceKey string          `gorm:"uniqueIndex;not null;size:100"`
	Timestamp      time.Time       `gorm:"not null;index:idx_usage_window,priority:3"`
	Metadata       datatypes.JSON
	CreatedAt      time.Time `gorm:"index:idx_usage_created"`
}

// TableName specifies the table name for GORM
func (UsageEventModel) TableName() string {
	return "usage_events"
}

// UsageDailyStatModel is one rolled-up day of usage per customer and feature.
type UsageDailyStatModel struct {
	ID          uint            `gorm:"primarykey"`
	CustomerID  string          `gorm:"not null;size:50;uniqueIndex:idx_daily_stat,priority:1"`
	FeatureSlug string          `gorm:"not null;size:100;uniqueIndex:idx_daily_stat,priority:2"`
	Day         time.Time       `gorm:"not null;uniqueIndex:idx_daily_stat,priority:3"`
	Total       decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	EventCount  int64           `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName specifies the table name for GORM
func (UsageDailyStatModel) TableName() string {
	return "usage_daily_stats"
}
