package usecases

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/meterline/meterline/internal/domain/credential"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
	"github.com/meterline/meterline/internal/shared/id"
	"github.com/meterline/meterline/internal/shared/logger"
)

// CreateAPIKeyCommand mints a key for a project.
type CreateAPIKeyCommand struct {
	ProjectID   string     `json:"project_id" binding:"required"`
	WorkspaceID string     `json:"workspace_id" binding:"required"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// CreateAPIKeyResult carries the plaintext key. It is shown exactly once;
// only the hash is stored.
type CreateAPIKeyResult struct {
	KeySID       string     `json:"key_sid"`
	PlaintextKey string     `json:"plaintext_key"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// CreateAPIKeyUseCase mints API keys.
type CreateAPIKeyUseCase struct {
	repo       credential.APIKeyRepository
	hashSecret string
	logger     logger.Interface
}

// NewCreateAPIKeyUseCase creates a new CreateAPIKeyUseCase.
func NewCreateAPIKeyUseCase(repo credential.APIKeyRepository, hashSecret string, logger logger.Interface) *CreateAPIKeyUseCase {
	return &CreateAPIKeyUseCase{repo: repo, hashSecret: hashSecret, logger: logger}
}

// Execute generates, hashes and stores a new key.
func (uc *CreateAPIKeyUseCase) Execute(ctx context.Context, cmd CreateAPIKeyCommand) (*CreateAPIKeyResult, error) {
	if cmd.ExpiresAt != nil && cmd.ExpiresAt.Before(time.Now().UTC()) {
		return nil, apperrors.NewValidationError("expires_at must be in the future")
	}

	plaintext, err := generateKeyMaterial()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}

	sid := id.MustGenerateWithPrefix(id.PrefixAPIKey, id.DefaultLength)
	key, err := credential.NewAPIKey(
		sid,
		cmd.ProjectID,
		cmd.WorkspaceID,
		credential.HashKey(uc.hashSecret, plaintext),
		cmd.ExpiresAt,
	)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	if err := uc.repo.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to store API key: %w", err)
	}

	uc.logger.Infow("API key created",
		"key_sid", sid,
		"project_id", cmd.ProjectID,
		"workspace_id", cmd.WorkspaceID,
	)
	return &CreateAPIKeyResult{
		KeySID:       sid,
		PlaintextKey: plaintext,
		ExpiresAt:    cmd.ExpiresAt,
	}, nil
}

// generateKeyMaterial returns a 256-bit random key in the mk_ prefix form
// callers present on the wire.
func generateKeyMaterial() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "mk_" + hex.EncodeToString(buf), nil
}
