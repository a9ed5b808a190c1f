package usecases

import (
	"context"
	"errors"

	"github.com/meterline/meterline/internal/domain/credential"
)

// ErrCacheMiss signals an absent cache entry; the caller falls through to
// the backing store.
var ErrCacheMiss = errors.New("cache miss")

// APIKeyCache is the stale-while-revalidate cache in front of the credential
// store. Get reports staleness so the caller can serve the cached record
// while refreshing in the background. A cached not-found marker surfaces as
// credential.ErrAPIKeyNotFound so unknown keys do not hammer the store.
type APIKeyCache interface {
	Get(ctx context.Context, keyHash string) (key *credential.APIKey, stale bool, err error)
	Set(ctx context.Context, keyHash string, key *credential.APIKey) error
	SetNotFound(ctx context.Context, keyHash string) error
	Purge(ctx context.Context, keyHash string) error
}
