// Package config provides configuration types for Celestine.
//
// Configuration is file-based (YAML) with environment variable
// overrides. It intentionally stays small: a single binary, an
// in-memory cache and rate limiter, and a local SQLite file for
// persistence.
package config

import (
	"github.com/spf13/viper"
)

// Config is the top-level configuration for Celestine.
type Config struct {
	// Server configures the HTTP server listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Generator configures the upstream text generation backend.
	Generator GeneratorConfig `yaml:"generator" mapstructure:"generator"`

	// RateLimit configures the per-user request budgets.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Store configures the SQLite persistence layer.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Auth configures file-based identities and API keys.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Access defines the content access rules.
	// Optional: when empty, premium content types require the premium tier.
	Access AccessConfig `yaml:"access" mapstructure:"access"`

	// Tracing configures trace export.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// DevMode enables development features (verbose logging, seeded identities).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `yaml:"tls_cert" mapstructure:"tls_cert"`
	TLSKey  string `yaml:"tls_key" mapstructure:"tls_key"`
}

// GeneratorConfig configures the upstream generation backend.
type GeneratorConfig struct {
	// APIKey authenticates against the backend. Usually supplied via
	// the CELESTINE_GENERATOR_API_KEY environment variable.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// Host is the backend base URL. Defaults to "https://api.anthropic.com".
	Host string `yaml:"host" mapstructure:"host" validate:"omitempty,url"`

	// Model is the model identifier to request.
	Model string `yaml:"model" mapstructure:"model"`

	// MaxTokens caps the response length. Defaults to 2048.
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens" validate:"omitempty,min=1"`

	// Timeout bounds a single generation call (e.g., "30s", "1m").
	// Defaults to "30s".
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`
}

// RateLimitConfig configures the fixed-window request budgets.
// All windows are per user; generation budgets gate only requests
// that reach the expensive backend.
type RateLimitConfig struct {
	// Window is the budget window duration (e.g., "1m").
	// Defaults to "1m".
	Window string `yaml:"window" mapstructure:"window" validate:"omitempty"`

	// FreeGeneral is the general request budget for free users.
	// Defaults to 10.
	FreeGeneral int `yaml:"free_general" mapstructure:"free_general" validate:"omitempty,min=1"`

	// PremiumGeneral is the general request budget for premium users.
	// Defaults to 60.
	PremiumGeneral int `yaml:"premium_general" mapstructure:"premium_general" validate:"omitempty,min=1"`

	// FreeGeneration is the generation budget for free users.
	// Defaults to 5.
	FreeGeneration int `yaml:"free_generation" mapstructure:"free_generation" validate:"omitempty,min=1"`

	// PremiumGeneration is the generation budget for premium users.
	// Defaults to 30.
	PremiumGeneration int `yaml:"premium_generation" mapstructure:"premium_generation" validate:"omitempty,min=1"`

	// SweepInterval is how often expired windows are removed (e.g., "5m").
	// Defaults to "5m".
	SweepInterval string `yaml:"sweep_interval" mapstructure:"sweep_interval" validate:"omitempty"`
}

// StoreConfig configures SQLite persistence.
type StoreConfig struct {
	// Path is the SQLite database file. Empty disables persistence;
	// profiles and generated content then live only in memory.
	Path string `yaml:"path" mapstructure:"path"`
}

// AuthConfig configures file-based authentication.
// All identities and API keys are defined in the configuration file.
type AuthConfig struct {
	// Identities defines the known users.
	Identities []IdentityConfig `yaml:"identities" mapstructure:"identities" validate:"omitempty,dive"`

	// APIKeys defines the API keys that map to identities.
	APIKeys []APIKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// IdentityConfig defines a file-based identity.
type IdentityConfig struct {
	// ID is the unique identifier for this identity.
	ID string `yaml:"id" mapstructure:"id" validate:"required"`

	// Name is the human-readable name for this identity.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Tier is the subscription tier ("free" or "premium").
	Tier string `yaml:"tier" mapstructure:"tier" validate:"required,oneof=free premium"`
}

// APIKeyConfig defines an API key that authenticates as an identity.
type APIKeyConfig struct {
	// KeyHash is the hash of the API key, prefixed with "sha256:" or
	// "argon2id:". Generate sha256 hashes with:
	// echo -n "your-api-key" | sha256sum | cut -d' ' -f1
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required,key_hash"`

	// IdentityID references the identity this key authenticates as.
	// Must match an ID in Auth.Identities.
	IdentityID string `yaml:"identity_id" mapstructure:"identity_id" validate:"required"`
}

// AccessConfig defines the content access rules.
type AccessConfig struct {
	// Rules are evaluated in order; first match wins. When no rule
	// matches, the builtin tier check applies.
	Rules []RuleConfig `yaml:"rules" mapstructure:"rules" validate:"omitempty,dive"`
}

// RuleConfig defines a single access rule.
type RuleConfig struct {
	// Name is a human-readable identifier for this rule.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Condition is a CEL expression over the request context
	// (user.tier, content.type, content.mode).
	Condition string `yaml:"condition" mapstructure:"condition" validate:"required"`

	// Action is what to do when the condition matches: "allow" or "deny".
	Action string `yaml:"action" mapstructure:"action" validate:"required,oneof=allow deny"`
}

// TracingConfig configures trace export.
type TracingConfig struct {
	// Enabled turns stdout trace export on. Default: false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDevDefaults applies permissive defaults for development mode.
// These defaults are applied BEFORE validation so required fields are
// satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	// Provide a default dev identity if none configured
	if len(c.Auth.Identities) == 0 {
		c.Auth.Identities = []IdentityConfig{
			{
				ID:   "dev-user",
				Name: "Development User",
				Tier: "premium",
			},
		}
	}

	// Provide a default dev API key if none configured
	// SHA256 of "dev-api-key"
	if len(c.Auth.APIKeys) == 0 {
		c.Auth.APIKeys = []APIKeyConfig{
			{
				KeyHash:    "sha256:6e1e4e1b8f8b36d08901cdb51b97841dfe20f5efd2fd2fd00768971408c46274",
				IdentityID: "dev-user",
			},
		}
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Server defaults — bind to localhost only.
	// Users who need network access must explicitly set http_addr.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	// Generator defaults
	if c.Generator.Host == "" {
		c.Generator.Host = "https://api.anthropic.com"
	}
	if c.Generator.Model == "" {
		c.Generator.Model = "claude-sonnet-4-20250514"
	}
	if c.Generator.MaxTokens == 0 {
		c.Generator.MaxTokens = 2048
	}
	if c.Generator.Timeout == "" {
		c.Generator.Timeout = "30s"
	}

	// Rate limit defaults
	if c.RateLimit.Window == "" {
		c.RateLimit.Window = "1m"
	}
	if c.RateLimit.FreeGeneral == 0 {
		c.RateLimit.FreeGeneral = 10
	}
	if c.RateLimit.PremiumGeneral == 0 {
		c.RateLimit.PremiumGeneral = 60
	}
	if c.RateLimit.FreeGeneration == 0 {
		c.RateLimit.FreeGeneration = 5
	}
	if c.RateLimit.PremiumGeneration == 0 {
		c.RateLimit.PremiumGeneration = 30
	}
	if c.RateLimit.SweepInterval == "" {
		c.RateLimit.SweepInterval = "5m"
	}

	// Tracing stays off unless asked for.
	if !viper.IsSet("tracing.enabled") {
		c.Tracing.Enabled = false
	}
}
