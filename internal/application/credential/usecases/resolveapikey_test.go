package usecases

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meterline/meterline/internal/domain/credential"
	apperrors "github.com/meterline/meterline/internal/shared/errors"
	"github.com/meterline/meterline/internal/shared/logger"
)

const testHashSecret = "test-hash-secret"

func quietLogger() logger.Interface {
	return logger.NewLoggerWithSlog(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeKeyStore serves a scripted sequence of responses; the last response
// repeats once the script runs out. Safe for the background refresh goroutine.
type fakeKeyStore struct {
	mu        sync.Mutex
	responses []keyStoreResponse
	calls     int
}

type keyStoreResponse struct {
	key *credential.APIKey
	err error
}

func (s *fakeKeyStore) Create(_ context.Context, _ *credential.APIKey) error { return nil }
func (s *fakeKeyStore) Revoke(_ context.Context, _ string) error             { return nil }

func (s *fakeKeyStore) GetByHash(_ context.Context, _ string) (*credential.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		return nil, credential.ErrAPIKeyNotFound
	}
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	r := s.responses[idx]
	return r.key, r.err
}

func (s *fakeKeyStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type cachedKey struct {
	key   *credential.APIKey
	stale bool
}

// fakeKeyCache is an in-memory stand-in for the redis-backed cache.
type fakeKeyCache struct {
	mu       sync.Mutex
	entries  map[string]cachedKey
	notFound map[string]bool
	getErr   error
	sets     int
	purges   int
}

func newFakeKeyCache() *fakeKeyCache {
	return &fakeKeyCache{
		entries:  make(map[string]cachedKey),
		notFound: make(map[string]bool),
	}
}

func (c *fakeKeyCache) Get(_ context.Context, keyHash string) (*credential.APIKey, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	if c.notFound[keyHash] {
		return nil, false, credential.ErrAPIKeyNotFound
	}
	entry, ok := c.entries[keyHash]
	if !ok {
		return nil, false, ErrCacheMiss
	}
	return entry.key, entry.stale, nil
}

func (c *fakeKeyCache) Set(_ context.Context, keyHash string, key *credential.APIKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[keyHash] = cachedKey{key: key}
	delete(c.notFound, keyHash)
	c.sets++
	return nil
}

func (c *fakeKeyCache) SetNotFound(_ context.Context, keyHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notFound[keyHash] = true
	return nil
}

func (c *fakeKeyCache) Purge(_ context.Context, keyHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, keyHash)
	delete(c.notFound, keyHash)
	c.purges++
	return nil
}

func (c *fakeKeyCache) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func (c *fakeKeyCache) seed(keyHash string, key *credential.APIKey, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[keyHash] = cachedKey{key: key, stale: stale}
}

type keyOption func(*keyParams)

type keyParams struct {
	revokedAt        *time.Time
	expiresAt        *time.Time
	projectEnabled   bool
	workspaceEnabled bool
}

func revoked(at time.Time) keyOption   { return func(p *keyParams) { p.revokedAt = &at } }
func expiresAt(at time.Time) keyOption { return func(p *keyParams) { p.expiresAt = &at } }
func projectDisabled() keyOption       { return func(p *keyParams) { p.projectEnabled = false } }

func testAPIKey(t *testing.T, plaintext string, opts ...keyOption) *credential.APIKey {
	t.Helper()
	p := keyParams{projectEnabled: true, workspaceEnabled: true}
	for _, opt := range opts {
		opt(&p)
	}
	key, err := credential.ReconstructAPIKey(
		1, "key_test1", "proj_1", "ws_1",
		credential.HashKey(testHashSecret, plaintext),
		p.expiresAt, p.revokedAt,
		p.projectEnabled, p.workspaceEnabled,
		time.Now().UTC(),
	)
	require.NoError(t, err)
	return key
}

func newResolver(store *fakeKeyStore, cache *fakeKeyCache) *ResolveAPIKeyUseCase {
	return NewResolveAPIKeyUseCase(store, cache, testHashSecret, quietLogger())
}

func TestResolveAPIKey_StoreFetchOnCacheMiss(t *testing.T) {
	key := testAPIKey(t, "mk_live_abc")
	store := &fakeKeyStore{responses: []keyStoreResponse{{key: key}}}
	cache := newFakeKeyCache()
	uc := newResolver(store, cache)

	result, err := uc.Execute(context.Background(), ResolveAPIKeyCommand{PlaintextKey: "mk_live_abc"})
	require.NoError(t, err)
	assert.Equal(t, "key_test1", result.KeySID)
	assert.Equal(t, "proj_1", result.ProjectID)
	assert.Equal(t, "ws_1", result.WorkspaceID)

	assert.Equal(t, 1, store.callCount())
	assert.Equal(t, 1, cache.setCount(), "resolved key is cached for the next call")
}

func TestResolveAPIKey_EmptyKeyRejectedWithoutLookup(t *testing.T) {
	store := &fakeKeyStore{}
	uc := newResolver(store, newFakeKeyCache())

	_, err := uc.Execute(context.Background(), ResolveAPIKeyCommand{})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorizedError(err))
	assert.Equal(t, 0, store.callCount())
}

func TestResolveAPIKey_UnknownKeyCachesNegativeMarker(t *testing.T) {
	store := &fakeKeyStore{responses: []keyStoreResponse{{err: credential.ErrAPIKeyNotFound}}}
	cache := newFakeKeyCache()
	uc := newResolver(store, cache)

	_, err := uc.Execute(context.Background(), ResolveAPIKeyCommand{PlaintextKey: "mk_live_nope"})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorizedError(err))
	assert.Equal(t, 1, store.callCount())

	// The second miss is answered by the negative marker, not the store.
	_, err = uc.Execute(context.Background(), ResolveAPIKeyCommand{PlaintextKey: "mk_live_nope"})
	require.Error(t, err)
	assert.Equal(t, 1, store.callCount())
}

func TestResolveAPIKey_StaleHitServedAndRefreshed(t *testing.T) {
	key := testAPIKey(t, "mk_live_abc")
	store := &fakeKeyStore{responses: []keyStoreResponse{{key: key}}}
	cache := newFakeKeyCache()
	cache.seed(key.KeyHash(), key, true)
	uc := newResolver(store, cache)

	result, err := uc.Execute(context.Background(), ResolveAPIKeyCommand{PlaintextKey: "mk_live_abc"})
	require.NoError(t, err)
	assert.Equal(t, "key_test1", result.KeySID)

	// The stale entry was served without waiting for the store; the refresh
	// lands in the background.
	require.Eventually(t, func() bool {
		return store.callCount() == 1 && cache.setCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestResolveAPIKey_TransientStoreErrorsExhaustRetries(t *testing.T) {
	store := &fakeKeyStore{responses: []keyStoreResponse{{err: errors.New("store down")}}}
	uc := newResolver(store, newFakeKeyCache())

	_, err := uc.Execute(context.Background(), ResolveAPIKeyCommand{PlaintextKey: "mk_live_abc"})
	require.Error(t, err)
	assert.True(t, apperrors.IsFetchError(err))
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, 3, store.callCount())
}

func TestResolveAPIKey_RevokedKeyNeverResolves(t *testing.T) {
	key := testAPIKey(t, "mk_live_abc", revoked(time.Now().UTC().Add(-time.Hour)))
	store := &fakeKeyStore{responses: []keyStoreResponse{{key: key}}}
	uc := newResolver(store, newFakeKeyCache())

	_, err := uc.Execute(context.Background(), ResolveAPIKeyCommand{PlaintextKey: "mk_live_abc"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCredentialError(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestResolveAPIKey_ExpiredKeyRejected(t *testing.T) {
	key := testAPIKey(t, "mk_live_abc", expiresAt(time.Now().UTC().Add(-time.Minute)))
	store := &fakeKeyStore{responses: []keyStoreResponse{{key: key}}}
	uc := newResolver(store, newFakeKeyCache())

	_, err := uc.Execute(context.Background(), ResolveAPIKeyCommand{PlaintextKey: "mk_live_abc"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCredentialError(err))
}

func TestResolveAPIKey_StaleDisabledEntryReResolvesOnce(t *testing.T) {
	// The cached snapshot predates the project being re-enabled; verification
	// failure on a cached record purges it and retries against the store.
	disabled := testAPIKey(t, "mk_live_abc", projectDisabled())
	enabled := testAPIKey(t, "mk_live_abc")
	store := &fakeKeyStore{responses: []keyStoreResponse{{key: enabled}}}
	cache := newFakeKeyCache()
	cache.seed(disabled.KeyHash(), disabled, false)
	uc := newResolver(store, cache)

	result, err := uc.Execute(context.Background(), ResolveAPIKeyCommand{PlaintextKey: "mk_live_abc"})
	require.NoError(t, err)
	assert.Equal(t, "key_test1", result.KeySID)
	assert.Equal(t, 1, store.callCount())
	assert.Equal(t, 1, cache.purges)
}

func TestResolveAPIKey_CachedRevokedKeyRetriesOnceThenFails(t *testing.T) {
	key := testAPIKey(t, "mk_live_abc", revoked(time.Now().UTC().Add(-time.Hour)))
	store := &fakeKeyStore{responses: []keyStoreResponse{{key: key}}}
	cache := newFakeKeyCache()
	cache.seed(key.KeyHash(), key, false)
	uc := newResolver(store, cache)

	_, err := uc.Execute(context.Background(), ResolveAPIKeyCommand{PlaintextKey: "mk_live_abc"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCredentialError(err))
	assert.Equal(t, 1, store.callCount(), "exactly one store re-resolution after the purge")
	assert.Equal(t, 1, cache.purges)
}

func TestResolveAPIKey_CacheReadFailureFallsThrough(t *testing.T) {
	key := testAPIKey(t, "mk_live_abc")
	store := &fakeKeyStore{responses: []keyStoreResponse{{key: key}}}
	cache := newFakeKeyCache()
	cache.getErr = errors.New("redis timeout")
	uc := newResolver(store, cache)

	result, err := uc.Execute(context.Background(), ResolveAPIKeyCommand{PlaintextKey: "mk_live_abc"})
	require.NoError(t, err)
	assert.Equal(t, "key_test1", result.KeySID)
	assert.Equal(t, 1, store.callCount())
}
