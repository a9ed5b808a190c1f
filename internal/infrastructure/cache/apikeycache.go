package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meterline/meterline/internal/application/credential/usecases"
	"github.com/meterline/meterline/internal/domain/credential"
)

const (
	apiKeyCachePrefix = "meterline:apikey:"
	// apiKeyNotFoundMarker is the short-lived negative entry that keeps
	// unknown keys from hammering the store.
	apiKeyNotFoundMarker = "__notfound__"
	apiKeyNotFoundTTL    = 30 * time.Second
	// apiKeyTTLJitter spreads expirations so a burst of entries cached
	// together does not expire together.
	apiKeyTTLJitter = 0.1
)

// apiKeyDoc is the cached snapshot of a credential record.
type apiKeyDoc struct {
	ID               uint       `json:"id"`
	SID              string     `json:"sid"`
	ProjectID        string     `json:"project_id"`
	WorkspaceID      string     `json:"workspace_id"`
	KeyHash          string     `json:"key_hash"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	ProjectEnabled   bool       `json:"project_enabled"`
	WorkspaceEnabled bool       `json:"workspace_enabled"`
	CreatedAt        time.Time  `json:"created_at"`
	CachedAt         time.Time  `json:"cached_at"`
}

// APIKeyCache is the redis stale-while-revalidate cache for API key
// verification. Entries live for the stale TTL; past the fresh TTL they are
// still served but reported stale so the caller refreshes in the background.
type APIKeyCache struct {
	client   *redis.Client
	freshTTL time.Duration
	staleTTL time.Duration
}

// NewAPIKeyCache creates a new APIKeyCache.
func NewAPIKeyCache(client *redis.Client, freshTTL, staleTTL time.Duration) *APIKeyCache {
	if staleTTL < freshTTL {
		staleTTL = freshTTL
	}
	return &APIKeyCache{client: client, freshTTL: freshTTL, staleTTL: staleTTL}
}

func (c *APIKeyCache) Get(ctx context.Context, keyHash string) (*credential.APIKey, bool, error) {
	raw, err := c.client.Get(ctx, apiKeyCachePrefix+keyHash).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, usecases.ErrCacheMiss
		}
		return nil, false, fmt.Errorf("failed to read API key cache: %w", err)
	}
	if raw == apiKeyNotFoundMarker {
		return nil, false, credential.ErrAPIKeyNotFound
	}

	var doc apiKeyDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		// Corrupt entry, treat as a miss and let the caller overwrite it.
		return nil, false, usecases.ErrCacheMiss
	}

	key, err := credential.ReconstructAPIKey(
		doc.ID,
		doc.SID,
		doc.ProjectID,
		doc.WorkspaceID,
		doc.KeyHash,
		doc.ExpiresAt,
		doc.RevokedAt,
		doc.ProjectEnabled,
		doc.WorkspaceEnabled,
		doc.CreatedAt,
	)
	if err != nil {
		return nil, false, usecases.ErrCacheMiss
	}

	stale := time.Since(doc.CachedAt) > c.freshTTL
	return key, stale, nil
}

func (c *APIKeyCache) Set(ctx context.Context, keyHash string, key *credential.APIKey) error {
	doc := apiKeyDoc{
		ID:               key.ID(),
		SID:              key.SID(),
		ProjectID:        key.ProjectID(),
		WorkspaceID:      key.WorkspaceID(),
		KeyHash:          key.KeyHash(),
		ExpiresAt:        key.ExpiresAt(),
		RevokedAt:        key.RevokedAt(),
		ProjectEnabled:   key.ProjectEnabled(),
		WorkspaceEnabled: key.WorkspaceEnabled(),
		CreatedAt:        key.CreatedAt(),
		CachedAt:         time.Now().UTC(),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal API key cache entry: %w", err)
	}

	if err := c.client.Set(ctx, apiKeyCachePrefix+keyHash, raw, jitterTTL(c.staleTTL, apiKeyTTLJitter)).Err(); err != nil {
		return fmt.Errorf("failed to write API key cache: %w", err)
	}
	return nil
}

func (c *APIKeyCache) SetNotFound(ctx context.Context, keyHash string) error {
	if err := c.client.Set(ctx, apiKeyCachePrefix+keyHash, apiKeyNotFoundMarker, apiKeyNotFoundTTL).Err(); err != nil {
		return fmt.Errorf("failed to write API key not-found marker: %w", err)
	}
	return nil
}

func (c *APIKeyCache) Purge(ctx context.Context, keyHash string) error {
	if err := c.client.Del(ctx, apiKeyCachePrefix+keyHash).Err(); err != nil {
		return fmt.Errorf("failed to purge API key cache: %w", err)
	}
	return nil
}

// jitterTTL spreads a TTL by up to +/-fraction.
func jitterTTL(ttl time.Duration, fraction float64) time.Duration {
	if ttl <= 0 || fraction <= 0 {
		return ttl
	}
	spread := float64(ttl) * fraction
	return ttl + time.Duration((rand.Float64()*2-1)*spread)
}
