package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides. Nested keys use a double
// underscore, e.g. PROMPTLINK_SERVER__PORT.
const EnvPrefix = "PROMPTLINK_"

// DefaultPath is the config file read when PROMPTLINK_CONFIG is unset.
const DefaultPath = "config.yaml"

type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Storage       StorageConfig       `koanf:"storage"`
	Upstream      UpstreamConfig      `koanf:"upstream"`
	Orchestration OrchestrationConfig `koanf:"orchestration"`
	Synthesis     SynthesisConfig     `koanf:"synthesis"`
	Ledger        LedgerConfig        `koanf:"ledger"`
	Checkout      CheckoutConfig      `koanf:"checkout"`
	RateLimit     RateLimitConfig     `koanf:"ratelimit"`
	Simulator     SimulatorConfig     `koanf:"simulator"`
	// Agents replaces the built-in agent table when non-empty.
	Agents []AgentConfig `koanf:"agents"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type StorageConfig struct {
	Database DatabaseConfig `koanf:"database"`
	// Sessions selects the orchestration session store: memory or sql.
	Sessions string `koanf:"sessions"`
}

// DatabaseConfig is the generic database configuration supporting multiple dialects.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite, postgres
	DSN    string `koanf:"dsn"`
}

type UpstreamConfig struct {
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Referer     string        `koanf:"referer"`
	Title       string        `koanf:"title"`
	Timeout     time.Duration `koanf:"timeout"`      // per attempt, orchestration calls
	ChatTimeout time.Duration `koanf:"chat_timeout"` // per attempt, /api/chat calls
	RetryBase   time.Duration `koanf:"retry_base"`
	// BlockPrivateNetworks refuses upstream connections to loopback and private ranges.
	BlockPrivateNetworks bool `koanf:"block_private_networks"`
}

type OrchestrationConfig struct {
	PanelPairs         int     `koanf:"panel_pairs"`
	ChainDefaultAgents int     `koanf:"chain_default_agents"`
	MaxTokens          int     `koanf:"max_tokens"`
	Temperature        float64 `koanf:"temperature"`
	CostPerStep        int64   `koanf:"cost_per_step"`
}

type SynthesisConfig struct {
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
	CacheSize   int     `koanf:"cache_size"`
}

type LedgerConfig struct {
	DefaultPlan string       `koanf:"default_plan"`
	ChatCost    int64        `koanf:"chat_cost"`
	Plans       []PlanConfig `koanf:"plans"`
}

type PlanConfig struct {
	ID         string `koanf:"id"`
	Name       string `koanf:"name"`
	Price      int64  `koanf:"price"` // cents
	Currency   string `koanf:"currency"`
	Credits    int64  `koanf:"credits"`
	DailyLimit int64  `koanf:"daily_limit"`
	// HumanSimulator gates /api/simulator; MaxRounds caps a session.
	HumanSimulator bool `koanf:"human_simulator"`
	MaxRounds      int  `koanf:"max_rounds"`
}

// SimulatorConfig prices a human-simulator session at
// BaseCost + RoundCost per round.
type SimulatorConfig struct {
	BaseCost      int64 `koanf:"base_cost"`
	RoundCost     int64 `koanf:"round_cost"`
	DefaultRounds int   `koanf:"default_rounds"`
	RoundsCap     int   `koanf:"rounds_cap"`
}

type CheckoutConfig struct {
	StripeSecretKey string `koanf:"stripe_secret_key"`
	WebhookSecret   string `koanf:"webhook_secret"`
	SuccessURL      string `koanf:"success_url"`
	CancelURL       string `koanf:"cancel_url"`
}

type RateLimitConfig struct {
	Enabled           bool    `koanf:"enabled"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

type AgentConfig struct {
	ID        string  `koanf:"id"`
	Name      string  `koanf:"name"`
	Model     string  `koanf:"model"`
	Category  string  `koanf:"category"`
	Specialty string  `koanf:"specialty"`
	CostPer1K float64 `koanf:"cost_per_1k"`
	MaxTokens int     `koanf:"max_tokens"`
}

var defaults = map[string]any{
	"server.port":                        8080,
	"server.request_timeout":             "30s",
	"storage.database.driver":            "sqlite",
	"storage.database.dsn":               "promptlink.db",
	"storage.sessions":                   "memory",
	"upstream.base_url":                  "https://openrouter.ai/api/v1",
	"upstream.referer":                   "https://thepromptlink.com",
	"upstream.title":                     "PromptLink",
	"upstream.timeout":                   "60s",
	"upstream.chat_timeout":              "30s",
	"upstream.retry_base":                "1s",
	"orchestration.panel_pairs":          10,
	"orchestration.chain_default_agents": 20,
	"orchestration.max_tokens":           1500,
	"orchestration.temperature":          0.7,
	"orchestration.cost_per_step":        1,
	"synthesis.max_tokens":               2000,
	"synthesis.temperature":              0.3,
	"synthesis.cache_size":               256,
	"ledger.default_plan":                "free",
	"ledger.chat_cost":                   1,
	"checkout.success_url":               "https://thepromptlink.com/success?session_id={CHECKOUT_SESSION_ID}",
	"checkout.cancel_url":                "https://thepromptlink.com/cancel",
	"ratelimit.enabled":                  false,
	"ratelimit.requests_per_second":      5.0,
	"ratelimit.burst":                    10,
	"simulator.base_cost":                50,
	"simulator.round_cost":               10,
	"simulator.default_rounds":           15,
	"simulator.rounds_cap":               50,
}

// DefaultPlans mirrors the public pricing table.
func DefaultPlans() []PlanConfig {
	return []PlanConfig{
		{ID: "free", Name: "Free", Price: 0, Currency: "usd", Credits: 100, DailyLimit: 100, MaxRounds: 5},
		{ID: "basic", Name: "Basic", Price: 1900, Currency: "usd", Credits: 5000, DailyLimit: 500, HumanSimulator: true, MaxRounds: 15},
		{ID: "professional", Name: "Professional", Price: 9900, Currency: "usd", Credits: 25000, DailyLimit: 2000, HumanSimulator: true, MaxRounds: 30},
		{ID: "expert", Name: "Expert", Price: 49900, Currency: "usd", Credits: 150000, DailyLimit: 10000, HumanSimulator: true, MaxRounds: 50},
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the file named by PROMPTLINK_CONFIG (or config.yaml) and applies
// environment overrides.
func Load() (*Config, error) {
	path := os.Getenv(EnvPrefix + "CONFIG")
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if len(cfg.Ledger.Plans) == 0 {
		cfg.Ledger.Plans = DefaultPlans()
	}
	for i := range cfg.Ledger.Plans {
		if cfg.Ledger.Plans[i].Currency == "" {
			cfg.Ledger.Plans[i].Currency = "usd"
		}
	}

	cfg.Upstream.APIKey = substituteEnvVars(cfg.Upstream.APIKey)
	if cfg.Upstream.APIKey == "" {
		cfg.Upstream.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	cfg.Checkout.StripeSecretKey = substituteEnvVars(cfg.Checkout.StripeSecretKey)
	if cfg.Checkout.StripeSecretKey == "" {
		cfg.Checkout.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	}
	cfg.Checkout.WebhookSecret = substituteEnvVars(cfg.Checkout.WebhookSecret)
	if cfg.Checkout.WebhookSecret == "" {
		cfg.Checkout.WebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	}
	cfg.Storage.Database.DSN = substituteEnvVars(cfg.Storage.Database.DSN)

	return &cfg, nil
}

// Plan returns the plan with the given id.
func (c *Config) Plan(id string) (PlanConfig, bool) {
	for _, p := range c.Ledger.Plans {
		if p.ID == id {
			return p, true
		}
	}
	return PlanConfig{}, false
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
