package models

import (
	"time"

	"gorm.io/datatypes"
)

// InvoiceModel represents the database persistence model for invoices. The
// unique (subscription, period start) index is the at-most-once guard for
// invoice generation; lines are stored as a JSON document because they are
// never queried individually.
type InvoiceModel struct {
	ID             uint      `gorm:"primarykey"`
	SID            string    `gorm:"uniqueIndex;not null;size:50;comment:Stripe-style ID: inv_xxx"`
	SubscriptionID uint      `gorm:"not null;uniqueIndex:idx_subscription_period,priority:1"`
	CustomerID     string    `gorm:"not null;size:50;index:idx_customer_invoice"`
	PeriodStart    time.Time `gorm:"not null;uniqueIndex:idx_subscription_period,priority:2"`
	PeriodEnd      time.Time `gorm:"not null"`
	Currency       string    `gorm:"not null;size:3"`
	Status         string    `gorm:"not null;size:10;index:idx_invoice_status"`
	Lines          datatypes.JSON
	ProviderRef    *string `gorm:"size:100;index:idx_provider_ref"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName specifies the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}
