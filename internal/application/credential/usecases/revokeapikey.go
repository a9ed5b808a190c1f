package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/meterline/meterline/internal/domain/credential"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
	"github.com/meterline/meterline/internal/shared/logger"
)

// RevokeAPIKeyCommand permanently disables a key by SID.
type RevokeAPIKeyCommand struct {
	KeySID string
}

// RevokeAPIKeyUseCase revokes API keys. Revocation is permanent; the cached
// verification result ages out within the stale TTL, after which every node
// rejects the key.
type RevokeAPIKeyUseCase struct {
	repo   credential.APIKeyRepository
	logger logger.Interface
}

// NewRevokeAPIKeyUseCase creates a new RevokeAPIKeyUseCase.
func NewRevokeAPIKeyUseCase(repo credential.APIKeyRepository, logger logger.Interface) *RevokeAPIKeyUseCase {
	return &RevokeAPIKeyUseCase{repo: repo, logger: logger}
}

// Execute revokes the key.
func (uc *RevokeAPIKeyUseCase) Execute(ctx context.Context, cmd RevokeAPIKeyCommand) error {
	if cmd.KeySID == "" {
		return apperrors.NewValidationError("key SID is required")
	}
	if err := uc.repo.Revoke(ctx, cmd.KeySID); err != nil {
		if errors.Is(err, credential.ErrAPIKeyNotFound) {
			return apperrors.NewNotFoundError("API key not found")
		}
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	uc.logger.Infow("API key revoked", "key_sid", cmd.KeySID)
	return nil
}
