package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubscriptionModel represents the database persistence model for subscriptions
// This is the anti-corruption layer between domain and database
type SubscriptionModel struct {
	ID                     uint      `gorm:"primarykey"`
	SID                    string    `gorm:"uniqueIndex;not null;size:50;comment:Stripe-style ID: sub_xxx"`
	CustomerID             string    `gorm:"not null;size:50;index:idx_customer_subscription"`
	PlanVersionID          uint      `gorm:"not null;index:idx_plan_subscription"`
	Status                 string    `gorm:"not null;size:20;index:idx_status"`
	BillingCycleStartAt    time.Time `gorm:"not null"`
	BillingCycleEndAt      time.Time `gorm:"not null"`
	NextBillingAt          time.Time `gorm:"not null;index:idx_next_billing"`
	LastBilledAt           *time.Time
	TrialEndsAt            *time.Time `gorm:"index:idx_trial_ends"`
	PastDueAt              *time.Time `gorm:"index:idx_past_due"`
	GracePeriodDays        int        `gorm:"not null;default:0"`
	WhenToBill             string     `gorm:"not null;size:20"`
	CollectionMethod       string     `gorm:"not null;size:30"`
	DefaultPaymentMethodID *string    `gorm:"size:100"`
	Metadata               datatypes.JSON
	Version                int `gorm:"not null;default:1"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
	DeletedAt              gorm.DeletedAt `gorm:"index"`
}

// TableName specifies the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// BeforeCreate hook for GORM
func (s *SubscriptionModel) BeforeCreate(tx *gorm.DB) error {
	if s.Version == 0 {
		s.Version = 1
	}
	return nil
}
