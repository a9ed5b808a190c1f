package models

import (
	"time"
)

// SubscriptionItemModel represents the database persistence model for
// subscription items
type SubscriptionItemModel struct {
	ID             uint   `gorm:"primarykey"`
	SubscriptionID uint   `gorm:"not null;index:idx_subscription_item"`
	FeatureSlug    string `gorm:"not null;size:100;index:idx_item_feature"`
	Aggregation    string `gorm:"not null;size:20"`
	PeriodClosedAt *time.Time
	CreatedAt      time.Time
}

// TableName specifies the table name for GORM
func (SubscriptionItemModel) TableName() string {
	return "subscription_items"
}
