// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/celestine-app/celestine/internal/domain/ratelimit"
)

// rateLimiterShards is the number of lock shards. Keys are spread across
// shards by hash so unrelated subjects do not contend on one mutex.
const rateLimiterShards = 32

// DefaultSweepInterval is how often expired windows are removed.
const DefaultSweepInterval = 5 * time.Minute

// window is one fixed rate-limit window for a subject.
type window struct {
	count   int
	start   time.Time
	resetAt time.Time
}

type limiterShard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// RateLimiter implements ratelimit.Limiter with sharded fixed windows.
// Thread-safe for concurrent access. Windows are created lazily on first
// check and removed by a background sweep once expired, bounding memory
// to active subjects. The clock is injectable for tests.
type RateLimiter struct {
	shards        [rateLimiterShards]limiterShard
	now           func() time.Time
	stopChan      chan struct{}
	wg            sync.WaitGroup
	once          sync.Once
	sweepInterval time.Duration
	logger        *slog.Logger
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithSweepInterval overrides how often the background sweep runs.
func WithSweepInterval(d time.Duration) RateLimiterOption {
	return func(l *RateLimiter) {
		l.sweepInterval = d
	}
}

// WithClock overrides the limiter's time source.
func WithClock(now func() time.Time) RateLimiterOption {
	return func(l *RateLimiter) {
		l.now = now
	}
}

// WithLimiterLogger sets the logger for sweep events.
func WithLimiterLogger(logger *slog.Logger) RateLimiterOption {
	return func(l *RateLimiter) {
		l.logger = logger
	}
}

// NewRateLimiter creates a new in-memory fixed-window rate limiter.
func NewRateLimiter(opts ...RateLimiterOption) *RateLimiter {
	l := &RateLimiter{
		now:           time.Now,
		stopChan:      make(chan struct{}),
		sweepInterval: DefaultSweepInterval,
		logger:        slog.Default(),
	}
	for i := range l.shards {
		l.shards[i].windows = make(map[string]*window)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RateLimiter) shardFor(key string) *limiterShard {
	return &l.shards[xxhash.Sum64String(key)%rateLimiterShards]
}

// Allow checks and consumes one unit of the subject's budget.
//
// If no window exists for the subject, or the existing window has
// expired, a fresh window anchored at now is opened. A rejected check
// consumes nothing and never extends or resets the window.
func (l *RateLimiter) Allow(ctx context.Context, subjectKey string, config ratelimit.Config) (ratelimit.Result, error) {
	now := l.now()
	shard := l.shardFor(subjectKey)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	w, ok := shard.windows[subjectKey]
	if !ok || !now.Before(w.resetAt) {
		w = &window{start: now, resetAt: now.Add(config.Window)}
		shard.windows[subjectKey] = w
	}

	if w.count < config.MaxRequests {
		w.count++
		return ratelimit.Result{
			Allowed:   true,
			Remaining: config.MaxRequests - w.count,
			Limit:     config.MaxRequests,
			ResetAt:   w.resetAt,
		}, nil
	}

	return ratelimit.Result{
		Allowed:    false,
		Remaining:  0,
		Limit:      config.MaxRequests,
		ResetAt:    w.resetAt,
		RetryAfter: w.resetAt.Sub(now),
	}, nil
}

// StartSweep starts the background sweep goroutine. It periodically
// removes windows whose reset time has passed and stops when ctx is
// cancelled or Stop is called.
func (l *RateLimiter) StartSweep(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopChan:
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}

// sweep removes expired windows shard by shard. Holding one shard lock at
// a time keeps concurrent Allow calls on other shards unblocked.
func (l *RateLimiter) sweep() {
	now := l.now()
	swept := 0
	remaining := 0

	for i := range l.shards {
		shard := &l.shards[i]
		shard.mu.Lock()
		for key, w := range shard.windows {
			if !now.Before(w.resetAt) {
				delete(shard.windows, key)
				swept++
			}
		}
		remaining += len(shard.windows)
		shard.mu.Unlock()
	}

	if swept > 0 {
		l.logger.Debug("rate limiter sweep completed",
			"swept_windows", swept,
			"remaining_windows", remaining,
		)
	}
}

// Stop gracefully stops the sweep goroutine and waits for it to exit.
// Safe to call multiple times.
func (l *RateLimiter) Stop() {
	l.once.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()
}

// Size returns the current number of tracked windows.
// Useful for tests and the active-window gauge.
func (l *RateLimiter) Size() int {
	total := 0
	for i := range l.shards {
		l.shards[i].mu.Lock()
		total += len(l.shards[i].windows)
		l.shards[i].mu.Unlock()
	}
	return total
}

// Compile-time interface verification.
var _ ratelimit.Limiter = (*RateLimiter)(nil)
