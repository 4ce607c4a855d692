package auth

import (
	"context"
	"errors"
)

// Sentinel errors for store lookups.
var (
	// ErrKeyNotFound is returned when an API key hash is not stored.
	ErrKeyNotFound = errors.New("api key not found")
	// ErrIdentityNotFound is returned when an identity is not stored.
	ErrIdentityNotFound = errors.New("identity not found")
)

// Store provides credential lookup for authentication.
// Defined in the domain to avoid circular imports; the in-memory
// implementation lives in adapter/outbound/memory.
type Store interface {
	// GetAPIKey retrieves an API key by its hash.
	// Returns ErrKeyNotFound if the key doesn't exist.
	GetAPIKey(ctx context.Context, keyHash string) (*APIKey, error)

	// GetIdentity retrieves an identity by ID.
	// Returns ErrIdentityNotFound if the identity doesn't exist.
	GetIdentity(ctx context.Context, id string) (*Identity, error)

	// ListAPIKeys returns all stored API keys for iteration-based verification.
	ListAPIKeys(ctx context.Context) ([]*APIKey, error)
}
