// Package auth contains the domain types and logic for authentication.
package auth

import (
	"time"

	"github.com/celestine-app/celestine/internal/domain/content"
)

// Identity represents an authenticated user.
type Identity struct {
	// ID is the unique identifier for this identity. It doubles as the
	// user ID that cache keys and rate-limit subjects are derived from.
	ID string
	// Name is the display name for this identity.
	Name string
	// Tier is the subscription tier access rules and budgets apply to.
	Tier content.Tier
}

// APIKey represents a stored API key that authenticates as an identity.
type APIKey struct {
	// Key is the stored hash of the raw key: bare SHA-256 hex,
	// "sha256:<hex>", or an Argon2id PHC string.
	Key string
	// IdentityID references the identity this key authenticates as.
	IdentityID string
	// Revoked disables the key without deleting it.
	Revoked bool
	// ExpiresAt is the optional expiry time. Zero means no expiry.
	ExpiresAt time.Time
}

// IsExpired reports whether the key has an expiry in the past.
func (k *APIKey) IsExpired() bool {
	return !k.ExpiresAt.IsZero() && time.Now().After(k.ExpiresAt)
}
