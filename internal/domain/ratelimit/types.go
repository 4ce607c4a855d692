// Package ratelimit provides rate limiting domain types.
package ratelimit

import (
	"fmt"
	"time"
)

// Config defines the parameters of one fixed rate-limit window.
type Config struct {
	// Window is the length of the fixed window.
	Window time.Duration

	// MaxRequests is the number of requests allowed per window.
	MaxRequests int
}

// Result contains the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// Limit echoes the configured per-window maximum.
	Limit int

	// ResetAt is when the current window ends and the count resets.
	ResetAt time.Time

	// RetryAfter is the duration until the next request will be allowed.
	// Only meaningful when Allowed is false.
	RetryAfter time.Duration
}

// Class identifies the operation class a window tracks. General covers
// ordinary API traffic; Generation covers calls that reach the generator.
type Class string

const (
	ClassGeneral    Class = "general"
	ClassGeneration Class = "generation"
)

// keyPrefix is the base prefix for all rate limit subject keys.
const keyPrefix = "ratelimit"

// SubjectKey returns the structured key a window is tracked against.
// Format: "ratelimit:{class}:{tier}:{userID}", so the same user consumes
// independent budgets per operation class and tier.
func SubjectKey(class Class, tier, userID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, class, tier, userID)
}
