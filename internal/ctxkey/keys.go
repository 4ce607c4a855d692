// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// LoggerKey is the context key type for the enriched logger.
// Used by HTTP middleware to store and retrieve the logger with the request_id field.
type LoggerKey struct{}

// IdentityKey is the context key type for the authenticated identity.
// Set by the API-key middleware once the key has been validated.
type IdentityKey struct{}
