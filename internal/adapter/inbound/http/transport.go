package http

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/celestine-app/celestine/internal/domain/auth"
	"github.com/celestine-app/celestine/internal/domain/ratelimit"
	"github.com/celestine-app/celestine/internal/service"
)

// Transport is the inbound adapter that serves the content API over HTTP.
type Transport struct {
	svc         *service.GenerationService
	keys        *auth.APIKeyService
	limiter     ratelimit.Limiter
	limits      *ratelimit.TierLimits
	server      *http.Server
	addr        string
	certFile    string
	keyFile     string
	logger      *slog.Logger
	metrics     *Metrics
	windowCount func() int
}

// Option is a functional option for configuring Transport.
type Option func(*Transport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(t *Transport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *Transport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithWindowCount supplies the live rate limit window counter exported
// as a gauge on /metrics.
func WithWindowCount(fn func() int) Option {
	return func(t *Transport) {
		t.windowCount = fn
	}
}

// NewTransport creates an HTTP transport wrapping the generation service.
func NewTransport(svc *service.GenerationService, keys *auth.APIKeyService, limiter ratelimit.Limiter, limits *ratelimit.TierLimits, opts ...Option) *Transport {
	t := &Transport{
		svc:     svc,
		keys:    keys,
		limiter: limiter,
		limits:  limits,
		addr:    "127.0.0.1:8080",
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Start begins accepting HTTP connections.
// It blocks until the context is cancelled or an error occurs.
func (t *Transport) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	windowCount := t.windowCount
	if windowCount == nil {
		windowCount = func() int { return 0 }
	}
	t.metrics = NewMetrics(reg, t.svc.CacheSize, windowCount)

	// Middleware order (outermost first):
	// 1. Metrics - record duration and status for the full chain
	// 2. RequestID - extract/generate request ID and enrich logger
	// 3. RealIP - extract client IP from X-Forwarded-For
	// 4. APIKey - authenticate and resolve identity
	// 5. RateLimit - general per-user request budget
	// 6. Handler - content generation
	var handler http.Handler = NewContentHandler(t.svc, t.metrics, t.logger)
	handler = RateLimitMiddleware(t.limiter, t.limits, t.metrics)(handler)
	handler = APIKeyMiddleware(t.keys)(handler)
	handler = RealIPMiddleware(handler)
	handler = RequestIDMiddleware(t.logger)(handler)
	handler = MetricsMiddleware(t.metrics)(handler)

	mux := http.NewServeMux()
	mux.Handle("/v1/content", handler)
	mux.Handle("/healthz", healthHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	}))
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)

	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	// Let in-flight persistence writes land before exit.
	t.svc.Flush()

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
