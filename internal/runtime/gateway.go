// Package runtime provides the core Gateway struct and lifecycle management
// for the PromptLink gateway.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tjfontaine/promptlink-gateway/internal/adapters/policy/basic"
	"github.com/tjfontaine/promptlink-gateway/internal/adapters/policy/ratelimit"
	"github.com/tjfontaine/promptlink-gateway/internal/api/controlplane"
	"github.com/tjfontaine/promptlink-gateway/internal/checkout"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
	"github.com/tjfontaine/promptlink-gateway/internal/frontdoor"
	"github.com/tjfontaine/promptlink-gateway/internal/ledger"
	"github.com/tjfontaine/promptlink-gateway/internal/orchestrator"
	"github.com/tjfontaine/promptlink-gateway/internal/pkg/config"
	"github.com/tjfontaine/promptlink-gateway/internal/registry"
	"github.com/tjfontaine/promptlink-gateway/internal/server"
	"github.com/tjfontaine/promptlink-gateway/internal/simulator"
	"github.com/tjfontaine/promptlink-gateway/internal/storage/memory"
	"github.com/tjfontaine/promptlink-gateway/internal/storage/sqldb"
	"github.com/tjfontaine/promptlink-gateway/internal/synthesis"
	"github.com/tjfontaine/promptlink-gateway/internal/tokens"
)

// Gateway is the main entry point for running the PromptLink gateway.
// It manages configuration, storage, the orchestration engine and the HTTP
// server lifecycle. Gateway can be embedded in larger applications or run
// standalone.
type Gateway struct {
	// Dependencies (injected via options)
	config   ports.ConfigProvider
	storage  ports.StorageProvider
	sessions ports.SessionStore
	policy   ports.QualityPolicy
	client   ports.ChatCompleter
	chat     ports.ChatCompleter
	payments checkout.Provider
	logger   *slog.Logger

	// Built on Start
	ledger   *ledger.Ledger
	engine   *orchestrator.Engine
	server   *server.Server
	serveErr chan error

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
}

// New creates a new Gateway with the given options. Storage defaults to the
// database named in config when no storage option is given.
func New(opts ...Option) (*Gateway, error) {
	gw := &Gateway{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(gw); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if gw.config == nil {
		return nil, fmt.Errorf("config provider required (use WithFileConfig or WithConfigProvider)")
	}

	return gw, nil
}

// Start loads configuration, wires every component and starts serving.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ctx, g.cancel = context.WithCancel(ctx)

	cfg, err := g.config.Load(g.ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := g.initStorage(cfg); err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	g.initPolicy(cfg)
	g.initUpstream(cfg)

	handler, err := g.initServices(cfg)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	g.startServer(cfg, handler)

	go g.watchConfig()

	g.logger.Info("gateway started",
		slog.Int("port", cfg.Server.Port),
		slog.String("database", cfg.Storage.Database.Driver),
		slog.Bool("demo_checkout", g.payments == nil))

	return nil
}

// Handler returns the HTTP handler serving every route. It is nil until
// Start succeeds.
func (g *Gateway) Handler() http.Handler {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.server == nil {
		return nil
	}
	return g.server.Router
}

// Shutdown gracefully stops the gateway: the HTTP server drains, running
// sessions are cancelled, then storage and config watchers are closed.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("shutting down gateway")

	if g.cancel != nil {
		g.cancel()
	}

	if g.server != nil {
		if err := g.server.Shutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			return err
		}
	}

	if g.engine != nil {
		if err := g.engine.Shutdown(ctx); err != nil {
			g.logger.Error("failed to stop orchestration workers", slog.String("error", err.Error()))
			return err
		}
	}

	if g.storage != nil {
		if err := g.storage.Close(); err != nil {
			g.logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}

	if g.config != nil {
		if err := g.config.Close(); err != nil {
			g.logger.Error("failed to close config", slog.String("error", err.Error()))
		}
	}

	g.logger.Info("gateway shutdown complete")
	return nil
}

// Err returns a channel that receives the server's terminal error, if any.
func (g *Gateway) Err() <-chan error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.serveErr
}

// watchConfig watches for config changes and reloads.
func (g *Gateway) watchConfig() {
	onChange := func(newCfg *config.Config) {
		g.logger.Info("config changed, reloading")
		if err := g.reload(newCfg); err != nil {
			g.logger.Error("failed to reload", slog.String("error", err.Error()))
		}
	}

	if err := g.config.Watch(g.ctx, onChange); err != nil {
		if !errors.Is(err, context.Canceled) {
			g.logger.Error("config watch failed", slog.String("error", err.Error()))
		}
	}
}

// reload applies the settings that can change without a restart: the plan
// table and the rate limits.
func (g *Gateway) reload(cfg *config.Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ledger != nil {
		if err := g.ledger.UpdatePlans(plansFromConfig(cfg.Ledger.Plans), cfg.Ledger.DefaultPlan); err != nil {
			return fmt.Errorf("reload plans: %w", err)
		}
	}

	if rl, ok := g.policy.(*ratelimit.Policy); ok && cfg.RateLimit.Enabled {
		rl.Update(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	g.logger.Info("reload complete",
		slog.Int("plans", len(cfg.Ledger.Plans)),
		slog.Float64("requests_per_second", cfg.RateLimit.RequestsPerSecond))

	return nil
}

func (g *Gateway) initStorage(cfg *config.Config) error {
	if g.storage == nil {
		store, err := sqldb.New(sqldb.Config{
			Driver: cfg.Storage.Database.Driver,
			DSN:    cfg.Storage.Database.DSN,
		})
		if err != nil {
			return err
		}
		g.storage = store
	}

	if g.sessions != nil {
		return nil
	}
	switch cfg.Storage.Sessions {
	case "", "memory":
		g.sessions = memory.New()
	case "sql":
		store, ok := g.storage.(ports.SessionStore)
		if !ok {
			return fmt.Errorf("storage provider %T cannot store sessions", g.storage)
		}
		g.sessions = store
	default:
		return fmt.Errorf("unknown session store %q", cfg.Storage.Sessions)
	}
	return nil
}

func (g *Gateway) initPolicy(cfg *config.Config) {
	if g.policy != nil {
		return
	}
	if cfg.RateLimit.Enabled {
		g.logger.Info("rate limiting enabled",
			slog.Float64("requests_per_second", cfg.RateLimit.RequestsPerSecond),
			slog.Int("burst", cfg.RateLimit.Burst))
		g.policy = ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		return
	}
	g.logger.Info("no quality policy specified, using basic policy (no rate limiting)")
	g.policy = basic.NewPolicy()
}

func (g *Gateway) initUpstream(cfg *config.Config) {
	if g.client == nil {
		g.client = newUpstreamClient(cfg.Upstream, cfg.Upstream.Timeout, g.logger)
	}
	if g.chat == nil {
		g.chat = newUpstreamClient(cfg.Upstream, cfg.Upstream.ChatTimeout, g.logger)
	}
	if g.payments == nil && cfg.Checkout.StripeSecretKey != "" {
		g.payments = checkout.NewStripeProvider(cfg.Checkout.StripeSecretKey, cfg.Checkout.WebhookSecret, nil)
	}
}

// initServices builds the domain services and the API handler over them.
func (g *Gateway) initServices(cfg *config.Config) (*frontdoor.Handler, error) {
	reg, err := registry.FromConfig(cfg.Agents)
	if err != nil {
		return nil, fmt.Errorf("agent registry: %w", err)
	}

	g.ledger, err = ledger.New(g.storage, plansFromConfig(cfg.Ledger.Plans), cfg.Ledger.DefaultPlan,
		ledger.WithLogger(g.logger))
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	counter := tokens.NewCounter()
	o := cfg.Orchestration
	g.engine = orchestrator.New(reg, g.client, g.sessions,
		orchestrator.WithConfig(orchestrator.Config{
			PanelPairs:         o.PanelPairs,
			ChainDefaultAgents: o.ChainDefaultAgents,
			MaxTokens:          o.MaxTokens,
			Temperature:        o.Temperature,
			CostPerStep:        o.CostPerStep,
		}),
		orchestrator.WithCharger(g.ledger),
		orchestrator.WithTokenCounter(counter),
		orchestrator.WithLogger(g.logger))

	synth, err := synthesis.New(g.sessions, g.client,
		synthesis.WithCacheSize(cfg.Synthesis.CacheSize),
		synthesis.WithSampling(cfg.Synthesis.MaxTokens, cfg.Synthesis.Temperature),
		synthesis.WithLogger(g.logger))
	if err != nil {
		return nil, fmt.Errorf("synthesizer: %w", err)
	}

	checkoutOpts := []checkout.Option{
		checkout.WithRedirects(cfg.Checkout.SuccessURL, cfg.Checkout.CancelURL),
		checkout.WithLogger(g.logger),
	}
	if g.payments != nil {
		checkoutOpts = append(checkoutOpts, checkout.WithProvider(g.payments))
	}

	sim := simulator.New(reg, g.ledger, g.storage,
		simulator.WithConfig(simulator.Config{
			BaseCost:      cfg.Simulator.BaseCost,
			RoundCost:     cfg.Simulator.RoundCost,
			DefaultRounds: cfg.Simulator.DefaultRounds,
			RoundsCap:     cfg.Simulator.RoundsCap,
		}),
		simulator.WithLogger(g.logger))

	return frontdoor.NewHandler(frontdoor.Deps{
		Agents:        reg,
		Client:        g.chat,
		Ledger:        g.ledger,
		Orchestrator:  g.engine,
		Synthesizer:   synth,
		Simulator:     sim,
		Checkout:      checkout.New(g.storage, g.ledger, checkoutOpts...),
		Conversations: g.storage,
		Policy:        g.policy,
		Tokens:        counter,
		Logger:        g.logger,
	}, frontdoor.Config{
		ChatCost:       cfg.Ledger.ChatCost,
		RequestTimeout: cfg.Server.RequestTimeout,
	}), nil
}

// startServer mounts the API and control plane and serves in the background.
func (g *Gateway) startServer(cfg *config.Config, handler *frontdoor.Handler) {
	g.server = server.New(cfg.Server.Port, g.logger)
	handler.Mount(g.server.Router)

	cp := controlplane.NewServer(g.sessions, g.ledger, g.engine)
	g.server.Router.Mount("/admin", cp)
	g.logger.Info("registered control plane", slog.String("path", "/admin"))

	g.serveErr = make(chan error, 1)
	srv := g.server
	go func() {
		if err := srv.Start(); err != nil {
			g.logger.Error("server error", slog.String("error", err.Error()))
			g.serveErr <- err
		}
		close(g.serveErr)
	}()
}
