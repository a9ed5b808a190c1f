package models

import (
	"time"

	"gorm.io/datatypes"
)

// PlanVersionModel represents the database persistence model for plan
// versions. Features are stored as a JSON document; versions are immutable
// after creation except for deactivation.
type PlanVersionModel struct {
	ID                    uint   `gorm:"primarykey"`
	SID                   string `gorm:"uniqueIndex;not null;size:50;comment:Stripe-style ID: plan_xxx"`
	PlanName              string `gorm:"not null;size:100;uniqueIndex:idx_plan_version,priority:1"`
	VersionNumber         int    `gorm:"not null;uniqueIndex:idx_plan_version,priority:2"`
	Currency              string `gorm:"not null;size:3"`
	PeriodUnit            string `gorm:"not null;size:10"`
	IntervalCount         int    `gorm:"not null;default:1"`
	AnchorPolicy          string `gorm:"not null;size:20"`
	AnchorDay             int    `gorm:"not null;default:0"`
	WhenToBill            string `gorm:"not null;size:20"`
	CollectionMethod      string `gorm:"not null;size:30"`
	RequiresPaymentMethod bool   `gorm:"not null;default:false"`
	GracePeriodDays       int    `gorm:"not null;default:0"`
	TrialDays             int    `gorm:"not null;default:0"`
	Features              datatypes.JSON
	Active                bool `gorm:"not null;default:true;index:idx_plan_active"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TableName specifies the table name for GORM
func (PlanVersionModel) TableName() string {
	return "plan_versions"
}
