package ratelimit

import (
	"context"
	"time"

	"github.com/celestine-app/celestine/internal/domain/content"
)

// Limiter is the interface for rate limiting operations.
//
// Implementations use a fixed window per subject key: the first check for
// a subject (or the first check after the window expired) opens a fresh
// window anchored at now, and each allowed check consumes one unit.
// Rejected checks never extend or reset the window.
//
// The interface is storage-agnostic; the in-memory implementation lives
// in adapter/outbound/memory.
type Limiter interface {
	// Allow atomically checks and consumes one unit of the subject's
	// budget under the given config. When the budget is exhausted it
	// returns Allowed=false without consuming, and ResetAt/RetryAfter
	// indicate when the window rolls over.
	Allow(ctx context.Context, subjectKey string, config Config) (Result, error)
}

// TierLimits holds the recognized per-tier, per-class configurations.
// Lookup of a combination that was never configured is a programming
// error: ConfigFor panics rather than returning a runtime error.
type TierLimits struct {
	configs map[Class]map[content.Tier]Config
}

// NewTierLimits builds the config table from per-tier settings.
func NewTierLimits(generalFree, generalPremium, generationFree, generationPremium Config) *TierLimits {
	return &TierLimits{
		configs: map[Class]map[content.Tier]Config{
			ClassGeneral: {
				content.TierFree:    generalFree,
				content.TierPremium: generalPremium,
			},
			ClassGeneration: {
				content.TierFree:    generationFree,
				content.TierPremium: generationPremium,
			},
		},
	}
}

// DefaultTierLimits returns the stock budgets: 10/60 general and 5/30
// generation requests per minute for free/premium respectively.
func DefaultTierLimits() *TierLimits {
	return NewTierLimits(
		Config{Window: time.Minute, MaxRequests: 10},
		Config{Window: time.Minute, MaxRequests: 60},
		Config{Window: time.Minute, MaxRequests: 5},
		Config{Window: time.Minute, MaxRequests: 30},
	)
}

// ConfigFor returns the config for the given class and tier.
// Panics on an unknown combination (fail fast on programmer error).
func (t *TierLimits) ConfigFor(class Class, tier content.Tier) Config {
	byTier, ok := t.configs[class]
	if !ok {
		panic("ratelimit: unknown operation class " + string(class))
	}
	cfg, ok := byTier[tier]
	if !ok {
		panic("ratelimit: no config for tier " + string(tier))
	}
	return cfg
}
