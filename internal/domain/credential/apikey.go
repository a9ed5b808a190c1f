package credential

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/meterline/meterline/internal/shared/errors"
)

// APIKey is the credential record gating every metered call. It is looked up
// by hash, never by plaintext, and is immutable except for revocation. The
// joined project/workspace enablement flags let verification short-circuit
// tenant-level gating without extra lookups.
type APIKey struct {
	id               uint
	sid              string // key_...
	projectID        string
	workspaceID      string
	keyHash          string
	expiresAt        *time.Time
	revokedAt        *time.Time
	projectEnabled   bool
	workspaceEnabled bool
	createdAt        time.Time
}

// NewAPIKey creates a key record from an already-hashed secret.
func NewAPIKey(sid, projectID, workspaceID, keyHash string, expiresAt *time.Time) (*APIKey, error) {
	if sid == "" {
		return nil, fmt.Errorf("API key SID is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}
	if workspaceID == "" {
		return nil, fmt.Errorf("workspace ID is required")
	}
	if keyHash == "" {
		return nil, fmt.Errorf("key hash is required")
	}
	return &APIKey{
		sid:              sid,
		projectID:        projectID,
		workspaceID:      workspaceID,
		keyHash:          keyHash,
		expiresAt:        expiresAt,
		projectEnabled:   true,
		workspaceEnabled: true,
		createdAt:        time.Now().UTC(),
	}, nil
}

// ReconstructAPIKey rebuilds a key record from persistence, including the
// joined tenant enablement flags.
func ReconstructAPIKey(
	id uint,
	sid, projectID, workspaceID, keyHash string,
	expiresAt, revokedAt *time.Time,
	projectEnabled, workspaceEnabled bool,
	createdAt time.Time,
) (*APIKey, error) {
	if id == 0 {
		return nil, fmt.Errorf("API key ID cannot be zero")
	}
	key, err := NewAPIKey(sid, projectID, workspaceID, keyHash, expiresAt)
	if err != nil {
		return nil, err
	}
	key.id = id
	key.revokedAt = revokedAt
	key.projectEnabled = projectEnabled
	key.workspaceEnabled = workspaceEnabled
	key.createdAt = createdAt
	return key, nil
}

func (k *APIKey) ID() uint               { return k.id }
func (k *APIKey) SID() string            { return k.sid }
func (k *APIKey) ProjectID() string      { return k.projectID }
func (k *APIKey) WorkspaceID() string    { return k.workspaceID }
func (k *APIKey) KeyHash() string        { return k.keyHash }
func (k *APIKey) ExpiresAt() *time.Time  { return k.expiresAt }
func (k *APIKey) RevokedAt() *time.Time  { return k.revokedAt }
func (k *APIKey) ProjectEnabled() bool   { return k.projectEnabled }
func (k *APIKey) WorkspaceEnabled() bool { return k.workspaceEnabled }
func (k *APIKey) CreatedAt() time.Time   { return k.createdAt }

// SetID sets the key ID (persistence layer only).
func (k *APIKey) SetID(id uint) error {
	if k.id != 0 {
		return fmt.Errorf("API key ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("API key ID cannot be zero")
	}
	k.id = id
	return nil
}

// Revoke permanently disables the key.
func (k *APIKey) Revoke(at time.Time) {
	if k.revokedAt != nil {
		return
	}
	k.revokedAt = &at
}

// Verify applies the verification policy in order, short-circuiting:
// revoked, expired, project disabled, workspace disabled. A revoked key
// never verifies regardless of any other state.
func (k *APIKey) Verify(now time.Time) error {
	if k.revokedAt != nil {
		return errors.NewRevokedError("API key has been revoked")
	}
	if k.expiresAt != nil && k.expiresAt.Before(now) {
		return errors.NewExpiredError("API key has expired")
	}
	if !k.projectEnabled {
		return errors.NewProjectDisabledError("project is disabled")
	}
	if !k.workspaceEnabled {
		return errors.NewWorkspaceDisabledError("workspace is disabled")
	}
	return nil
}

// HashKey computes the stable HMAC-SHA256 hash of a plaintext key under the
// configured secret. The hash is the only form the key exists in at rest or
// in cache keys.
func HashKey(secret, plaintext string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}
