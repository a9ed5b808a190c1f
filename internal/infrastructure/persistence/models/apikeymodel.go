package models

import (
	"time"
)

// APIKeyModel represents the database persistence model for API keys. Only
// the HMAC hash of the key is stored; lookup is by hash.
type APIKeyModel struct {
	ID          uint   `gorm:"primarykey"`
	SID         string `gorm:"uniqueIndex;not null;size:50;comment:Stripe-style ID: key_xxx"`
	ProjectID   string `gorm:"not null;size:50;index:idx_project_key"`
	WorkspaceID string `gorm:"not null;size:50;index:idx_workspace_key"`
	KeyHash     string `gorm:"uniqueIndex;not null;size:64"`
	ExpiresAt   *time.Time
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

// TableName specifies the table name for GORM
func (APIKeyModel) TableName() string {
	return "api_keys"
}

// ProjectModel holds tenant-level enablement for projects.
type ProjectModel struct {
	ID          uint   `gorm:"primarykey"`
	ProjectID   string `gorm:"uniqueIndex;not null;size:50"`
	WorkspaceID string `gorm:"not null;size:50;index:idx_project_workspace"`
	Name        string `gorm:"not null;size:100"`
	Enabled     bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName specifies the table name for GORM
func (ProjectModel) TableName() string {
	return "projects"
}

// WorkspaceModel holds tenant-level enablement for workspaces.
type WorkspaceModel struct {
	ID          uint   `gorm:"primarykey"`
	WorkspaceID string `gorm:"uniqueIndex;not null;size:50"`
	Name        string `gorm:"not null;size:100"`
	Enabled     bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName specifies the table name for GORM
func (WorkspaceModel) TableName() string {
	return "workspaces"
}
