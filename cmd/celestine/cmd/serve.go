package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httptransport "github.com/celestine-app/celestine/internal/adapter/inbound/http"
	"github.com/celestine-app/celestine/internal/adapter/outbound/anthropic"
	"github.com/celestine-app/celestine/internal/adapter/outbound/cel"
	"github.com/celestine-app/celestine/internal/adapter/outbound/memory"
	"github.com/celestine-app/celestine/internal/adapter/outbound/sqlite"
	"github.com/celestine-app/celestine/internal/config"
	"github.com/celestine-app/celestine/internal/domain/access"
	"github.com/celestine-app/celestine/internal/domain/auth"
	"github.com/celestine-app/celestine/internal/domain/content"
	"github.com/celestine-app/celestine/internal/domain/ratelimit"
	"github.com/celestine-app/celestine/internal/observability"
	"github.com/celestine-app/celestine/internal/port/outbound"
	"github.com/celestine-app/celestine/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the content service",
	Long: `Start the Celestine content service.

The service exposes POST and DELETE /v1/content plus /healthz and
/metrics.
The generator API key is read from generator.api_key, usually supplied
via the CELESTINE_GENERATOR_API_KEY environment variable.

Examples:
  # Start with config file settings
  celestine serve

  # Start with a specific config file
  celestine --config /path/to/config.yaml serve`,
	RunE: runServe,
}

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, seeded identities)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so CLI flags can override first)
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("celestine stopped")
	return nil
}

// run wires all components together and blocks until shutdown.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DevMode {
		logger.Warn("development mode enabled, do not use in production")
	}

	// Tracing
	tp, shutdownTracing, err := observability.InitTracing(ctx, observability.TracerConfig{
		Enabled: cfg.Tracing.Enabled,
		Writer:  os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	// Auth store seeded from config
	authStore := memory.NewAuthStore()
	if err := seedAuthFromConfig(cfg, authStore); err != nil {
		return fmt.Errorf("failed to seed auth: %w", err)
	}
	logger.Debug("seeded auth from config",
		"identities", len(cfg.Auth.Identities),
		"api_keys", len(cfg.Auth.APIKeys),
	)
	apiKeyService := auth.NewAPIKeyService(authStore)

	// Rate limiter with background sweep
	sweepInterval, err := time.ParseDuration(cfg.RateLimit.SweepInterval)
	if err != nil {
		sweepInterval = 5 * time.Minute
		logger.Warn("invalid sweep_interval, using default",
			"value", cfg.RateLimit.SweepInterval, "default", "5m")
	}
	limiter := memory.NewRateLimiter(
		memory.WithSweepInterval(sweepInterval),
		memory.WithLimiterLogger(logger),
	)
	limiter.StartSweep(ctx)
	defer limiter.Stop()

	limits, err := tierLimitsFromConfig(cfg)
	if err != nil {
		return err
	}

	// Content cache
	cache := memory.NewContentCache()

	// Access rules
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create rule evaluator: %w", err)
	}
	gate, err := access.NewGate(evaluator, rulesFromConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("failed to compile access rules: %w", err)
	}

	// Persistence (optional)
	var profiles outbound.ProfileStore
	if cfg.Store.Path != "" {
		store, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = store.Close() }()
		profiles = store
		logger.Info("persistence enabled", "path", cfg.Store.Path)
	} else {
		logger.Info("persistence disabled, content lives in memory only")
	}

	// Generator backend
	generator, err := anthropic.NewClient(anthropic.Config{
		APIKey:    cfg.Generator.APIKey,
		Host:      cfg.Generator.Host,
		Model:     cfg.Generator.Model,
		MaxTokens: cfg.Generator.MaxTokens,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	generationTimeout, err := time.ParseDuration(cfg.Generator.Timeout)
	if err != nil {
		generationTimeout = service.DefaultGenerationTimeout
		logger.Warn("invalid generator timeout, using default",
			"value", cfg.Generator.Timeout, "default", service.DefaultGenerationTimeout.String())
	}

	svc := service.NewGenerationService(gate, cache, limiter, limits, generator, profiles, logger,
		service.WithGenerationTimeout(generationTimeout),
		service.WithTracer(tp.Tracer("celestine")),
	)
	defer svc.Flush()

	// HTTP transport
	opts := []httptransport.Option{
		httptransport.WithAddr(cfg.Server.HTTPAddr),
		httptransport.WithLogger(logger),
		httptransport.WithWindowCount(limiter.Size),
	}
	if cfg.Server.TLSCert != "" && cfg.Server.TLSKey != "" {
		opts = append(opts, httptransport.WithTLS(cfg.Server.TLSCert, cfg.Server.TLSKey))
	}
	transport := httptransport.NewTransport(svc, apiKeyService, limiter, limits, opts...)

	logger.Info("celestine starting",
		"addr", cfg.Server.HTTPAddr,
		"model", cfg.Generator.Model,
		"dev_mode", cfg.DevMode,
	)

	return transport.Start(ctx)
}

// seedAuthFromConfig loads identities and API keys from YAML into the store.
func seedAuthFromConfig(cfg *config.Config, store *memory.AuthStore) error {
	for _, ic := range cfg.Auth.Identities {
		tier := content.Tier(ic.Tier)
		if tier != content.TierFree && tier != content.TierPremium {
			return fmt.Errorf("identity %s: unknown tier %q", ic.ID, ic.Tier)
		}
		store.AddIdentity(&auth.Identity{
			ID:   ic.ID,
			Name: ic.Name,
			Tier: tier,
		})
	}
	for _, kc := range cfg.Auth.APIKeys {
		// Stored form is bare SHA-256 hex (fast lookup path) or an
		// Argon2id PHC string.
		hash := strings.TrimPrefix(kc.KeyHash, "argon2id:")
		hash = strings.TrimPrefix(hash, "sha256:")
		store.AddKey(&auth.APIKey{
			Key:        hash,
			IdentityID: kc.IdentityID,
		})
	}
	return nil
}

// rulesFromConfig converts configured access rules to domain rules.
func rulesFromConfig(cfg *config.Config) []access.Rule {
	rules := make([]access.Rule, 0, len(cfg.Access.Rules))
	for _, rc := range cfg.Access.Rules {
		rules = append(rules, access.Rule{
			Name:      rc.Name,
			Condition: rc.Condition,
			Action:    access.Action(rc.Action),
		})
	}
	return rules
}

// tierLimitsFromConfig builds the per-tier budgets from config.
func tierLimitsFromConfig(cfg *config.Config) (*ratelimit.TierLimits, error) {
	window, err := time.ParseDuration(cfg.RateLimit.Window)
	if err != nil {
		return nil, fmt.Errorf("rate_limit.window: invalid duration %q", cfg.RateLimit.Window)
	}
	return ratelimit.NewTierLimits(
		ratelimit.Config{Window: window, MaxRequests: cfg.RateLimit.FreeGeneral},
		ratelimit.Config{Window: window, MaxRequests: cfg.RateLimit.PremiumGeneral},
		ratelimit.Config{Window: window, MaxRequests: cfg.RateLimit.FreeGeneration},
		ratelimit.Config{Window: window, MaxRequests: cfg.RateLimit.PremiumGeneration},
	), nil
}

// parseLogLevel converts a config log level string to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
