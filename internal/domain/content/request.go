package content

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Tier is the subscription tier of the requesting user.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Valid reports whether t is a recognized tier.
func (t Tier) Valid() bool {
	return t == TierFree || t == TierPremium
}

// GenerationRequest describes one get-or-generate call. It is a closed,
// validated shape: DeriveKey rejects requests whose fields do not match
// their content type before any cache or quota work happens.
type GenerationRequest struct {
	// UserID identifies the requesting user.
	UserID string

	// Tier is the user's subscription tier, resolved from their identity.
	Tier Tier

	// Type selects the kind of content to produce.
	Type Type

	// Topic is required for deep dives and ignored otherwise.
	Topic string

	// Mode is required for synastry reports and ignored otherwise.
	Mode SynastryMode

	// Timezone is the user's IANA timezone name (e.g. "America/New_York").
	// Forecast period keys are computed in this zone. Empty means UTC.
	Timezone string

	// ForceRegenerate bypasses a fresh cache entry and replaces it.
	ForceRegenerate bool

	// Profile is the rendered user profile handed to the generator.
	Profile json.RawMessage

	// ChartData is the user's natal chart positions, precomputed upstream.
	ChartData json.RawMessage

	// PartnerChart is the partner's chart for synastry reports.
	PartnerChart json.RawMessage
}

// Location resolves the request's timezone. Unknown or empty names
// fall back to UTC rather than failing the request.
func (r *GenerationRequest) Location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DeriveKey computes the cache key for the request at instant now.
// A mismatch between the content type and its discriminator fields is a
// programming error at the call site and returns a *KeyError.
func DeriveKey(r *GenerationRequest, now time.Time) (CacheKey, error) {
	if r.UserID == "" {
		return CacheKey{}, &KeyError{Reason: "empty user id"}
	}
	if !r.Type.Valid() {
		return CacheKey{}, &KeyError{Reason: fmt.Sprintf("unknown content type %q", r.Type)}
	}

	key := CacheKey{UserID: r.UserID, Type: r.Type}

	switch r.Type {
	case TypeDeepDive:
		if r.Topic == "" {
			return CacheKey{}, &KeyError{Reason: "deep dive requires a topic"}
		}
		key.Topic = r.Topic

	case TypeSynastryReport:
		if len(r.PartnerChart) == 0 {
			return CacheKey{}, &KeyError{Reason: "synastry report requires a partner chart"}
		}
		if r.Mode != SynastryBrief && r.Mode != SynastryFull {
			return CacheKey{}, &KeyError{Reason: fmt.Sprintf("unknown synastry mode %q", r.Mode)}
		}
		key.PartnerFingerprint = Fingerprint(r.PartnerChart)
		key.Mode = r.Mode

	default:
		key.Period = r.Type.PeriodFor(now, r.Location())
	}

	return key, nil
}

// Fingerprint returns a short stable fingerprint of raw chart data,
// used to key synastry reports by partner without storing the chart.
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
