package credential

import (
	"context"
	"errors"
)

// ErrAPIKeyNotFound signals an absent or unknown key hash.
var ErrAPIKeyNotFound = errors.New("API key not found")

// APIKeyRepository is the backing store for credential records. Lookup is by
// hash only; the plaintext key never reaches this layer.
type APIKeyRepository interface {
	Create(ctx context.Context, key *APIKey) error
	// GetByHash returns the record joined with project/workspace enablement
	// flags, ErrAPIKeyNotFound when absent.
	GetByHash(ctx context.Context, keyHash string) (*APIKey, error)
	Revoke(ctx context.Context, sid string) error
}
