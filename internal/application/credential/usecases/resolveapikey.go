package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/meterline/meterline/internal/domain/credential"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
	"github.com/meterline/meterline/internal/shared/logger"
)

const (
	// fetchAttempts bounds store lookups for one resolution.
	fetchAttempts = 3
	fetchBaseWait = 50 * time.Millisecond
)

// ResolveAPIKeyCommand authenticates one metered call by plaintext key.
type ResolveAPIKeyCommand struct {
	PlaintextKey string
}

// ResolveAPIKeyResult is the tenant identity attached to the request.
type ResolveAPIKeyResult struct {
	KeySID      string
	ProjectID   string
	WorkspaceID string
}

// ResolveAPIKeyUseCase verifies API keys on the hot path. Lookups go through
// a stale-while-revalidate cache keyed by the key hash; a stale hit is
// served immediately and refreshed in the background. Store lookups retry a
// bounded number of times, and a verification failure against a cached
// record purges the entry and re-resolves once against the store, so a key
// re-enabled upstream recovers without waiting out the TTL.
type ResolveAPIKeyUseCase struct {
	repo       credential.APIKeyRepository
	cache      APIKeyCache
	hashSecret string
	logger     logger.Interface
}

// NewResolveAPIKeyUseCase creates a new ResolveAPIKeyUseCase.
func NewResolveAPIKeyUseCase(
	repo credential.APIKeyRepository,
	cache APIKeyCache,
	hashSecret string,
	logger logger.Interface,
) *ResolveAPIKeyUseCase {
	return &ResolveAPIKeyUseCase{
		repo:       repo,
		cache:      cache,
		hashSecret: hashSecret,
		logger:     logger,
	}
}

// Execute resolves and verifies the key. Every failure is an AppError from
// the credential taxonomy; unexpected panics surface as unhandled errors
// rather than crashing the caller.
func (uc *ResolveAPIKeyUseCase) Execute(ctx context.Context, cmd ResolveAPIKeyCommand) (result *ResolveAPIKeyResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Errorw("panic during API key resolution", "panic", r)
			result = nil
			err = apperrors.NewUnhandledError(fmt.Errorf("panic: %v", r))
		}
	}()

	if cmd.PlaintextKey == "" {
		return nil, apperrors.NewUnauthorizedError("API key is required")
	}

	// The hash is computed once and reused as cache key and store lookup.
	keyHash := credential.HashKey(uc.hashSecret, cmd.PlaintextKey)
	return uc.resolveHash(ctx, keyHash, false)
}

func (uc *ResolveAPIKeyUseCase) resolveHash(ctx context.Context, keyHash string, skipCache bool) (*ResolveAPIKeyResult, error) {
	fromCache := false
	var key *credential.APIKey

	if uc.cache != nil && !skipCache {
		cached, stale, cacheErr := uc.cache.Get(ctx, keyHash)
		switch {
		case cacheErr == nil:
			key = cached
			fromCache = true
			if stale {
				uc.refreshAsync(keyHash)
			}
		case errors.Is(cacheErr, credential.ErrAPIKeyNotFound):
			return nil, apperrors.NewUnauthorizedError("invalid API key")
		case errors.Is(cacheErr, ErrCacheMiss):
			// fall through to the store
		default:
			uc.logger.Warnw("API key cache read failed", "error", cacheErr)
		}
	}

	if key == nil {
		fetched, fetchErr := uc.fetch(ctx, keyHash)
		if fetchErr != nil {
			if errors.Is(fetchErr, credential.ErrAPIKeyNotFound) {
				uc.cacheNotFound(ctx, keyHash)
				return nil, apperrors.NewUnauthorizedError("invalid API key")
			}
			return nil, fetchErr
		}
		key = fetched
		uc.cacheKey(ctx, keyHash, key)
	}

	if verifyErr := key.Verify(time.Now().UTC()); verifyErr != nil {
		if fromCache {
			// The cached snapshot may predate an upstream fix, for example
			// a re-enabled project. Re-resolve once against the store.
			uc.purge(ctx, keyHash)
			return uc.resolveHash(ctx, keyHash, true)
		}
		uc.logger.Infow("API key failed verification",
			"key_sid", key.SID(), "error", verifyErr)
		return nil, verifyErr
	}

	return &ResolveAPIKeyResult{
		KeySID:      key.SID(),
		ProjectID:   key.ProjectID(),
		WorkspaceID: key.WorkspaceID(),
	}, nil
}

// fetch looks the hash up in the store with bounded retries. Not-found is
// terminal; transient store errors back off and retry, each attempt logged.
func (uc *ResolveAPIKeyUseCase) fetch(ctx context.Context, keyHash string) (*credential.APIKey, error) {
	backoff := retry.WithMaxRetries(fetchAttempts-1, retry.NewExponential(fetchBaseWait))

	var key *credential.APIKey
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		fetched, err := uc.repo.GetByHash(ctx, keyHash)
		if err != nil {
			if errors.Is(err, credential.ErrAPIKeyNotFound) {
				return err
			}
			uc.logger.Warnw("API key store lookup failed",
				"attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		key = fetched
		return nil
	})
	if err != nil {
		if errors.Is(err, credential.ErrAPIKeyNotFound) {
			return nil, err
		}
		return nil, apperrors.NewFetchError(
			fmt.Sprintf("credential store unavailable after %d attempts", attempt), true)
	}
	return key, nil
}

// refreshAsync re-fetches a stale entry off the request path.
func (uc *ResolveAPIKeyUseCase) refreshAsync(keyHash string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		key, err := uc.fetch(ctx, keyHash)
		if err != nil {
			if errors.Is(err, credential.ErrAPIKeyNotFound) {
				// Key deleted upstream, drop the stale entry.
				uc.purge(ctx, keyHash)
				uc.cacheNotFound(ctx, keyHash)
				return
			}
			uc.logger.Warnw("background API key refresh failed", "error", err)
			return
		}
		uc.cacheKey(ctx, keyHash, key)
	}()
}

func (uc *ResolveAPIKeyUseCase) cacheKey(ctx context.Context, keyHash string, key *credential.APIKey) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Set(ctx, keyHash, key); err != nil {
		uc.logger.Warnw("API key cache write failed", "error", err)
	}
}

func (uc *ResolveAPIKeyUseCase) cacheNotFound(ctx context.Context, keyHash string) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.SetNotFound(ctx, keyHash); err != nil {
		uc.logger.Warnw("API key cache write failed", "error", err)
	}
}

func (uc *ResolveAPIKeyUseCase) purge(ctx context.Context, keyHash string) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Purge(ctx, keyHash); err != nil {
		uc.logger.Warnw("API key cache purge failed", "error", err)
	}
}
