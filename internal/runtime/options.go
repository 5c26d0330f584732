package runtime

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/promptlink-gateway/internal/adapters/config/file"
	"github.com/tjfontaine/promptlink-gateway/internal/adapters/policy/basic"
	"github.com/tjfontaine/promptlink-gateway/internal/adapters/policy/ratelimit"
	"github.com/tjfontaine/promptlink-gateway/internal/checkout"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
	"github.com/tjfontaine/promptlink-gateway/internal/storage/sqldb"
)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(g *Gateway) error {
		provider, err := file.NewProvider(path, g.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		g.config = provider
		return nil
	}
}

// WithSQLite uses SQLite storage (default for single-instance deployments).
func WithSQLite(path string) Option {
	return func(g *Gateway) error {
		store, err := sqldb.NewSQLite(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		g.storage = store
		return nil
	}
}

// WithPostgres uses PostgreSQL storage.
func WithPostgres(dsn string) Option {
	return func(g *Gateway) error {
		store, err := sqldb.NewPostgres(dsn)
		if err != nil {
			return fmt.Errorf("create postgres storage: %w", err)
		}
		g.storage = store
		return nil
	}
}

// WithBasicPolicy admits every request.
func WithBasicPolicy() Option {
	return func(g *Gateway) error {
		g.policy = basic.NewPolicy()
		return nil
	}
}

// WithRateLimitPolicy limits each user to rps requests per second with the
// given burst. It takes precedence over the ratelimit config section.
func WithRateLimitPolicy(rps float64, burst int) Option {
	return func(g *Gateway) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rate limit needs positive rps and burst, got %v/%d", rps, burst)
		}
		g.policy = ratelimit.New(rps, burst)
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		g.logger = logger
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
// For advanced use cases where you need full control over config loading.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(g *Gateway) error {
		g.config = provider
		return nil
	}
}

// WithStorageProvider sets a custom storage provider.
func WithStorageProvider(provider ports.StorageProvider) Option {
	return func(g *Gateway) error {
		g.storage = provider
		return nil
	}
}

// WithSessionStore overrides the session store selected by config.
func WithSessionStore(store ports.SessionStore) Option {
	return func(g *Gateway) error {
		g.sessions = store
		return nil
	}
}

// WithQualityPolicy sets a custom quality policy.
func WithQualityPolicy(policy ports.QualityPolicy) Option {
	return func(g *Gateway) error {
		g.policy = policy
		return nil
	}
}

// WithChatCompleter replaces the OpenRouter client for both orchestration
// and chat calls.
func WithChatCompleter(client ports.ChatCompleter) Option {
	return func(g *Gateway) error {
		g.client = client
		g.chat = client
		return nil
	}
}

// WithCheckoutProvider sets the payment provider. Without one, and without
// a Stripe key in config, checkout runs in demo mode.
func WithCheckoutProvider(provider checkout.Provider) Option {
	return func(g *Gateway) error {
		g.payments = provider
		return nil
	}
}
