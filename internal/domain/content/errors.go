package content

import (
	"errors"
	"fmt"
	"time"
)

// ErrPremiumRequired is returned when a free-tier user requests gated
// content. It always surfaces to the caller; a stale cache entry never
// masks it.
var ErrPremiumRequired = errors.New("premium subscription required")

// ErrGenerationTimeout is returned when the generator does not answer
// within the orchestrator's deadline. Retryable.
var ErrGenerationTimeout = errors.New("generation timed out")

// RateLimitedError is returned when the generation quota for the
// requesting subject is exhausted. Retryable after ResetAt.
type RateLimitedError struct {
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter)
}

// GenerationError wraps an upstream generator failure. Retryable; may
// indicate an upstream outage.
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// KeyError indicates a malformed cache key derivation: a request whose
// fields do not match its content type. This is a programming error at
// the call site, not a runtime condition to retry.
type KeyError struct {
	Reason string
}

func (e *KeyError) Error() string {
	return "invalid cache key: " + e.Reason
}
