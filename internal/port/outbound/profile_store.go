package outbound

import (
	"context"
	"errors"

	"github.com/celestine-app/celestine/internal/domain/profile"
)

// ErrProfileNotFound is returned when no profile row exists for a user.
var ErrProfileNotFound = errors.New("profile not found")

// ErrContentNotFound is returned when no stored content exists for a key.
var ErrContentNotFound = errors.New("content not found")

// ProfileStore persists user profiles and generated content. The cache is
// authoritative for serving; these writes are best-effort durability so
// generated artifacts survive restarts.
type ProfileStore interface {
	// LoadProfile returns the stored profile for a user.
	// Returns ErrProfileNotFound when none exists.
	LoadProfile(ctx context.Context, userID string) (*profile.Profile, error)

	// SaveProfile inserts or replaces the profile row.
	SaveProfile(ctx context.Context, p *profile.Profile) error

	// SaveContent inserts or replaces one generated-content row.
	SaveContent(ctx context.Context, gc *profile.GeneratedContent) error

	// LoadContent returns the stored payload for a content key, if any.
	LoadContent(ctx context.Context, userID, key string) (*profile.GeneratedContent, error)

	// Close releases the underlying storage handle.
	Close() error
}
