// Package profile defines the durable user profile and generated-content
// records persisted through the ProfileStore port.
package profile

import (
	"encoding/json"
	"time"

	"github.com/celestine-app/celestine/internal/domain/content"
)

// Profile is the durable record for one user. Natal-chart arithmetic and
// rendering happen upstream; this core only carries the fields it needs
// for gating, key derivation, and prompting.
type Profile struct {
	// UserID is the unique identifier, shared with auth.Identity.ID.
	UserID string

	// Name is the display name used in prompts.
	Name string

	// Tier is the subscription tier at last save.
	Tier content.Tier

	// Timezone is the user's IANA timezone name. Forecast periods are
	// computed in this zone.
	Timezone string

	// BirthData is the opaque natal data blob computed upstream.
	BirthData json.RawMessage

	// UpdatedAt is when the profile row was last written.
	UpdatedAt time.Time
}

// GeneratedContent is one persisted generation result. Persistence is
// best-effort: the in-memory cache is authoritative for serving, these
// rows only survive restarts.
type GeneratedContent struct {
	// UserID is the owner of the artifact.
	UserID string

	// Key is the string form of the content cache key.
	Key string

	// Type is the content type, denormalized for querying.
	Type content.Type

	// Payload is the generated text.
	Payload string

	// GeneratedAt is when the generator produced the payload.
	GeneratedAt time.Time
}
