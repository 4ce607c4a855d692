// Package service contains the generation orchestration service.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/celestine-app/celestine/internal/adapter/outbound/memory"
	"github.com/celestine-app/celestine/internal/ctxkey"
	"github.com/celestine-app/celestine/internal/domain/access"
	"github.com/celestine-app/celestine/internal/domain/content"
	"github.com/celestine-app/celestine/internal/domain/profile"
	"github.com/celestine-app/celestine/internal/domain/ratelimit"
	"github.com/celestine-app/celestine/internal/port/outbound"
)

// DefaultGenerationTimeout bounds a single generator call.
const DefaultGenerationTimeout = 30 * time.Second

// persistTimeout bounds one best-effort persistence attempt.
const persistTimeout = 10 * time.Second

// Source records where a served payload came from.
type Source string

const (
	// SourceCache means the payload was served from a fresh cache entry.
	SourceCache Source = "cache"
	// SourceGenerated means the payload was produced by this request's
	// flight (or a concurrent flight the request joined).
	SourceGenerated Source = "generated"
	// SourceStale means generation failed and a stale entry was served.
	SourceStale Source = "stale"
)

// GenerationResult is the successful outcome of a get-or-generate call.
type GenerationResult struct {
	Payload     string
	Key         content.CacheKey
	GeneratedAt time.Time
	Source      Source

	// RateLimit carries the generation budget state when the limiter was
	// consulted on this path. Nil on cache hits, which are free to probe.
	RateLimit *ratelimit.Result
}

// flightOutcome is what one generation flight hands to its joiners.
type flightOutcome struct {
	entry *content.CacheEntry
	rate  *ratelimit.Result
}

// GenerationService is the orchestrator for get-or-generate requests.
// It composes the tier gate, content cache, rate limiter, single-flight
// registry, generator and profile store into one contract, so freshness
// policy and flight collapsing are enforced in exactly one place.
type GenerationService struct {
	gate      *access.Gate
	cache     *memory.ContentCache
	limiter   ratelimit.Limiter
	limits    *ratelimit.TierLimits
	flights   *FlightRegistry
	generator outbound.Generator
	profiles  outbound.ProfileStore

	timeout time.Duration
	now     func() time.Time
	tracer  trace.Tracer
	logger  *slog.Logger

	persistWG sync.WaitGroup
}

// GenerationOption configures a GenerationService.
type GenerationOption func(*GenerationService)

// WithGenerationTimeout overrides the per-call generator deadline.
func WithGenerationTimeout(d time.Duration) GenerationOption {
	return func(s *GenerationService) {
		s.timeout = d
	}
}

// WithNow overrides the service's time source.
func WithNow(now func() time.Time) GenerationOption {
	return func(s *GenerationService) {
		s.now = now
	}
}

// WithTracer sets the tracer for generation spans.
func WithTracer(tracer trace.Tracer) GenerationOption {
	return func(s *GenerationService) {
		s.tracer = tracer
	}
}

// NewGenerationService creates the orchestrator with its collaborators.
// profiles may be nil, which disables durable persistence.
func NewGenerationService(
	gate *access.Gate,
	cache *memory.ContentCache,
	limiter ratelimit.Limiter,
	limits *ratelimit.TierLimits,
	generator outbound.Generator,
	profiles outbound.ProfileStore,
	logger *slog.Logger,
	opts ...GenerationOption,
) *GenerationService {
	s := &GenerationService{
		gate:      gate,
		cache:     cache,
		limiter:   limiter,
		limits:    limits,
		flights:   NewFlightRegistry(),
		generator: generator,
		profiles:  profiles,
		timeout:   DefaultGenerationTimeout,
		now:       time.Now,
		tracer:    noop.NewTracerProvider().Tracer("celestine"),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrGenerate answers one content request.
//
// Order of checks: tier gate, then cache, then single-flight with the
// rate limiter and generator inside. A cache hit never touches the
// limiter or the generator. When the flight fails with a retryable error
// and a stale entry occupies the key's slot, the stale entry is served
// instead; ErrPremiumRequired is never masked this way.
func (s *GenerationService) GetOrGenerate(ctx context.Context, req *content.GenerationRequest) (*GenerationResult, error) {
	logger := s.requestLogger(ctx)

	if err := s.gate.Check(req); err != nil {
		return nil, err
	}

	key, err := content.DeriveKey(req, s.now())
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "content.get_or_generate",
		trace.WithAttributes(
			attribute.String("content.type", string(req.Type)),
			attribute.Bool("content.force_regenerate", req.ForceRegenerate),
		))
	defer span.End()

	if req.ForceRegenerate {
		// Do not join a flight that predates the force request.
		s.flights.Forget(key.String())
	} else if entry, ok := s.cache.Get(key); ok {
		span.SetAttributes(attribute.String("content.source", string(SourceCache)))
		return &GenerationResult{
			Payload:     entry.Payload,
			Key:         entry.Key,
			GeneratedAt: entry.GeneratedAt,
			Source:      SourceCache,
		}, nil
	}

	outcome, shared, err := s.flights.Do(ctx, key.String(), func() (*flightOutcome, error) {
		return s.runGeneration(ctx, req, key)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			// The caller left while waiting on the flight; the flight
			// itself keeps running and will cache its result.
			return nil, err
		}
		if stale, ok := s.staleFallback(key, err); ok {
			logger.Warn("serving stale content after generation failure",
				"key", key.String(),
				"error", err,
			)
			span.SetAttributes(attribute.String("content.source", string(SourceStale)))
			return &GenerationResult{
				Payload:     stale.Payload,
				Key:         stale.Key,
				GeneratedAt: stale.GeneratedAt,
				Source:      SourceStale,
			}, nil
		}
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("content.source", string(SourceGenerated)),
		attribute.Bool("content.flight_shared", shared),
	)
	return &GenerationResult{
		Payload:     outcome.entry.Payload,
		Key:         outcome.entry.Key,
		GeneratedAt: outcome.entry.GeneratedAt,
		Source:      SourceGenerated,
		RateLimit:   outcome.rate,
	}, nil
}

// Invalidate drops the cached entry for the request's key, forcing the
// next read to regenerate. Deep dives stay fresh until invalidated.
func (s *GenerationService) Invalidate(req *content.GenerationRequest) error {
	key, err := content.DeriveKey(req, s.now())
	if err != nil {
		return err
	}
	s.cache.Invalidate(key)
	return nil
}

// runGeneration is the body of one flight: rate limit, generate with a
// bounded timeout, cache the result, dispatch persistence. It runs once
// per key regardless of how many requests joined.
func (s *GenerationService) runGeneration(ctx context.Context, req *content.GenerationRequest, key content.CacheKey) (*flightOutcome, error) {
	// Detach from the joiner's context: a joiner leaving must not cancel
	// the flight other joiners are waiting on. The generator deadline is
	// the only bound.
	genCtx := context.WithoutCancel(ctx)

	var rate *ratelimit.Result
	subject := ratelimit.SubjectKey(ratelimit.ClassGeneration, string(req.Tier), req.UserID)
	cfg := s.limits.ConfigFor(ratelimit.ClassGeneration, req.Tier)

	res, err := s.limiter.Allow(genCtx, subject, cfg)
	switch {
	case err != nil:
		// Fail open: a broken limiter must not block generation.
		s.logger.Error("generation rate limit check failed",
			"subject", subject,
			"error", err,
		)
	case !res.Allowed:
		return nil, &content.RateLimitedError{
			ResetAt:    res.ResetAt,
			RetryAfter: res.RetryAfter,
		}
	default:
		rate = &res
	}

	genCtx, cancel := context.WithTimeout(genCtx, s.timeout)
	defer cancel()

	text, err := s.generator.Generate(genCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, content.ErrGenerationTimeout
		}
		return nil, &content.GenerationError{Cause: err}
	}

	entry := s.cache.Put(key, text, s.now())
	s.persistAsync(entry)

	return &flightOutcome{entry: entry, rate: rate}, nil
}

// staleFallback decides whether a flight error may be masked by a stale
// entry. Only retryable generation-path errors qualify.
func (s *GenerationService) staleFallback(key content.CacheKey, err error) (*content.CacheEntry, bool) {
	var rateErr *content.RateLimitedError
	var genErr *content.GenerationError
	if !errors.Is(err, content.ErrGenerationTimeout) &&
		!errors.As(err, &rateErr) &&
		!errors.As(err, &genErr) {
		return nil, false
	}
	return s.cache.GetStale(key)
}

// persistAsync writes the generated entry through the profile store on a
// separate goroutine, after the flight has completed, so storage latency
// never extends the single-flight critical section. Best-effort: failure
// is logged and retried once, never surfaced to the caller.
func (s *GenerationService) persistAsync(entry *content.CacheEntry) {
	if s.profiles == nil {
		return
	}

	record := &profile.GeneratedContent{
		UserID:      entry.Key.UserID,
		Key:         entry.Key.String(),
		Type:        entry.Key.Type,
		Payload:     entry.Payload,
		GeneratedAt: entry.GeneratedAt,
	}

	s.persistWG.Add(1)
	go func() {
		defer s.persistWG.Done()

		for attempt := 0; attempt < 2; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			err := s.profiles.SaveContent(ctx, record)
			cancel()
			if err == nil {
				return
			}
			s.logger.Warn("failed to persist generated content",
				"user_id", record.UserID,
				"key", record.Key,
				"attempt", attempt+1,
				"error", err,
			)
		}
	}()
}

// Flush waits for outstanding persistence writes. Called on shutdown and
// by tests.
func (s *GenerationService) Flush() {
	s.persistWG.Wait()
}

// CacheSize exposes the resident entry count for the cache gauge.
func (s *GenerationService) CacheSize() int {
	return s.cache.Size()
}

// requestLogger returns the request-scoped logger from ctx, falling back
// to the service logger.
func (s *GenerationService) requestLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return s.logger
}
