// Package http provides the inbound HTTP transport for Celestine.
//
// It exposes the content generation API and observability endpoints.
//
// # Usage
//
// Create and start a transport:
//
//	transport := http.NewTransport(svc, keys, limiter, limits,
//	    http.WithAddr(":8080"),
//	    http.WithTLS("cert.pem", "key.pem"),
//	    http.WithLogger(logger),
//	)
//	err := transport.Start(ctx)
//
// # Endpoints
//
//	POST   /v1/content - Generate or fetch cached content
//	DELETE /v1/content - Invalidate a cached entry
//	GET    /healthz    - Liveness check
//	GET    /metrics    - Prometheus metrics
//
// # Request Headers
//
//	Authorization: Bearer <api-key>  - API key for authentication
//	Content-Type: application/json   - Required for POST requests
//
// # Response Headers
//
//	X-RateLimit-Limit:     window request budget
//	X-RateLimit-Remaining: requests left in the current window
//	X-RateLimit-Reset:     RFC 3339 timestamp when the window resets
//	Retry-After:           seconds until retry (429 responses only)
//
// # Middleware Chain
//
// Requests pass through middleware in this order:
//
//  1. MetricsMiddleware - records duration and status
//  2. RequestIDMiddleware - extracts/generates request ID, enriches logger
//  3. RealIPMiddleware - extracts client IP from proxy headers
//  4. APIKeyMiddleware - authenticates and resolves the identity
//  5. RateLimitMiddleware - general per-user request budget
//  6. ContentHandler - cache lookup and generation
package http
