package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/meterline/meterline/internal/domain/credential"
	"github.com/meterline/meterline/internal/infrastructure/persistence/models"
	"github.com/meterline/meterline/internal/shared/logger"
)

// apiKeyRow is the joined lookup row: the key plus tenant enablement flags.
type apiKeyRow struct {
	models.APIKeyModel
	ProjectEnabled   *bool
	WorkspaceEnabled *bool
}

type APIKeyRepositoryImpl struct {
	db     *gorm.DB
	logger logger.Interface
}

func NewAPIKeyRepository(
	db *gorm.DB,
	logger logger.Interface,
) credential.APIKeyRepository {
	return &APIKeyRepositoryImpl{db: db, logger: logger}
}

func (r *APIKeyRepositoryImpl) Create(ctx context.Context, key *credential.APIKey) error {
	model := &models.APIKeyModel{
		SID:         key.SID(),
		ProjectID:   key.ProjectID(),
		WorkspaceID: key.WorkspaceID(),
		KeyHash:     key.KeyHash(),
		ExpiresAt:   key.ExpiresAt(),
		RevokedAt:   key.RevokedAt(),
		CreatedAt:   key.CreatedAt(),
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		r.logger.Errorw("failed to create API key", "error", err)
		return fmt.Errorf("failed to create API key: %w", err)
	}

	if err := key.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set API key ID: %w", err)
	}

	r.logger.Infow("API key created successfully",
		"id", model.ID, "sid", model.SID, "project_id", model.ProjectID)
	return nil
}

// GetByHash joins the tenant enablement flags so verification needs a
// single query. A missing project or workspace row counts as disabled.
func (r *APIKeyRepositoryImpl) GetByHash(ctx context.Context, keyHash string) (*credential.APIKey, error) {
	var row apiKeyRow

	err := r.db.WithContext(ctx).
		Table("api_keys").
		Select("api_keys.*, projects.enabled AS project_enabled, workspaces.enabled AS workspace_enabled").
		Joins("LEFT JOIN projects ON projects.project_id = api_keys.project_id").
		Joins("LEFT JOIN workspaces ON workspaces.workspace_id = api_keys.workspace_id").
		Where("api_keys.key_hash = ?", keyHash).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, credential.ErrAPIKeyNotFound
		}
		r.logger.Errorw("failed to get API key by hash", "error", err)
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	projectEnabled := row.ProjectEnabled != nil && *row.ProjectEnabled
	workspaceEnabled := row.WorkspaceEnabled != nil && *row.WorkspaceEnabled

	return credential.ReconstructAPIKey(
		row.ID,
		row.SID,
		row.ProjectID,
		row.WorkspaceID,
		row.KeyHash,
		row.ExpiresAt,
		row.RevokedAt,
		projectEnabled,
		workspaceEnabled,
		row.CreatedAt,
	)
}

func (r *APIKeyRepositoryImpl) Revoke(ctx context.Context, sid string) error {
	result := r.db.WithContext(ctx).
		Model(&models.APIKeyModel{}).
		Where("sid = ? AND revoked_at IS NULL", sid).
		Update("revoked_at", time.Now().UTC())
	if result.Error != nil {
		r.logger.Errorw("failed to revoke API key", "sid", sid, "error", result.Error)
		return fmt.Errorf("failed to revoke API key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Either unknown or already revoked; distinguish for the caller.
		var count int64
		if err := r.db.WithContext(ctx).
			Model(&models.APIKeyModel{}).
			Where("sid = ?", sid).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check API key existence: %w", err)
		}
		if count == 0 {
			return credential.ErrAPIKeyNotFound
		}
	}

	return nil
}
