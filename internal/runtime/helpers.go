package runtime

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tjfontaine/promptlink-gateway/internal/api/openrouter"
	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/pkg/config"
	"github.com/tjfontaine/promptlink-gateway/internal/pkg/safehttp"
	"github.com/tjfontaine/promptlink-gateway/internal/telemetry"
)

func plansFromConfig(cfgs []config.PlanConfig) []domain.Plan {
	plans := make([]domain.Plan, 0, len(cfgs))
	for _, c := range cfgs {
		plans = append(plans, domain.Plan{
			ID:             c.ID,
			Name:           c.Name,
			Price:          c.Price,
			Currency:       c.Currency,
			Credits:        c.Credits,
			DailyLimit:     c.DailyLimit,
			HumanSimulator: c.HumanSimulator,
			MaxRounds:      c.MaxRounds,
		})
	}
	return plans
}

// newUpstreamClient builds an OpenRouter client whose attempts are bounded
// by timeout and traced through otelhttp.
func newUpstreamClient(cfg config.UpstreamConfig, timeout time.Duration, logger *slog.Logger) *openrouter.Client {
	var base http.RoundTripper = http.DefaultTransport
	if cfg.BlockPrivateNetworks {
		base = safehttp.SafeTransport
	}

	return openrouter.NewClient(cfg.APIKey,
		openrouter.WithBaseURL(cfg.BaseURL),
		openrouter.WithHTTPClient(&http.Client{Transport: telemetry.Transport(base)}),
		openrouter.WithTimeout(timeout),
		openrouter.WithRetryBase(cfg.RetryBase),
		openrouter.WithAttribution(cfg.Referer, cfg.Title),
		openrouter.WithLogger(logger))
}
