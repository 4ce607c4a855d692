package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/celestine-app/celestine/internal/ctxkey"
	"github.com/celestine-app/celestine/internal/domain/auth"
	"github.com/celestine-app/celestine/internal/domain/ratelimit"
)

// requestIDContextKey is the type for the request ID context key.
type requestIDContextKey struct{}

// RequestIDKey is the context key for the request ID.
var RequestIDKey = requestIDContextKey{}

// LoggerKey is the context key for the enriched logger.
// Uses the shared key type from ctxkey to allow cross-package access
// without import cycles.
var LoggerKey = ctxkey.LoggerKey{}

// RequestIDMiddleware extracts or generates a request ID and enriches the logger.
// The request ID is stored in context using RequestIDKey.
// An enriched logger with a request_id field is stored using LoggerKey.
func RequestIDMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			enriched := logger.With("request_id", requestID)

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, enriched)

			// Set response header for correlation
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext retrieves the enriched logger from context.
// Returns slog.Default() if no logger is in context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// IdentityFromContext retrieves the authenticated identity from context.
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := ctx.Value(ctxkey.IdentityKey{}).(*auth.Identity)
	return identity, ok
}

// RealIPMiddleware extracts the client's real IP address.
// It checks X-Forwarded-For and X-Real-IP headers (for reverse proxy
// support), falling back to r.RemoteAddr. Only the first IP in
// X-Forwarded-For is trusted to avoid spoofing.
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.RemoteAddr = extractRealIP(r)
		next.ServeHTTP(w, r)
	})
}

// extractRealIP extracts the client's real IP address from the request.
func extractRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Format: client, proxy1, proxy2 — trust only the first entry.
		ips := strings.Split(xff, ",")
		if ip := strings.TrimSpace(ips[0]); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// APIKeyMiddleware authenticates the Bearer API key and stores the
// resolved identity in context. Requests without a valid key are
// rejected with 401 before any cache or quota work.
func APIKeyMiddleware(keys *auth.APIKeyService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			rawKey, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || rawKey == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key")
				return
			}

			identity, err := keys.Validate(r.Context(), rawKey)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), ctxkey.IdentityKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware enforces the general per-user request budget and
// stamps X-RateLimit-* headers on every gated response. On a limiter
// internal error the gate fails open: availability over strictness.
func RateLimitMiddleware(limiter ratelimit.Limiter, limits *ratelimit.TierLimits, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				// APIKeyMiddleware runs first; no identity means the
				// chain is miswired, let the request through ungated.
				next.ServeHTTP(w, r)
				return
			}

			subject := ratelimit.SubjectKey(ratelimit.ClassGeneral, string(identity.Tier), identity.ID)
			cfg := limits.ConfigFor(ratelimit.ClassGeneral, identity.Tier)

			result, err := limiter.Allow(r.Context(), subject, cfg)
			if err != nil {
				LoggerFromContext(r.Context()).Error("rate limit check failed, failing open",
					"subject", subject,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, &result)

			if !result.Allowed {
				if metrics != nil {
					metrics.RateLimitRejections.WithLabelValues(string(ratelimit.ClassGeneral)).Inc()
				}
				writeRateLimited(w, result.ResetAt, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
