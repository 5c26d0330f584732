package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}

		if cfg.Server.Port != 8080 {
			t.Errorf("LoadFile() port = %v, want 8080", cfg.Server.Port)
		}
		if cfg.Upstream.Timeout != 60*time.Second {
			t.Errorf("LoadFile() upstream timeout = %v, want 60s", cfg.Upstream.Timeout)
		}
		if cfg.Orchestration.PanelPairs != 10 {
			t.Errorf("LoadFile() panel pairs = %v, want 10", cfg.Orchestration.PanelPairs)
		}
		if cfg.Synthesis.Temperature != 0.3 {
			t.Errorf("LoadFile() synthesis temperature = %v, want 0.3", cfg.Synthesis.Temperature)
		}
		if len(cfg.Ledger.Plans) != 4 {
			t.Fatalf("LoadFile() plans = %d, want 4", len(cfg.Ledger.Plans))
		}
		free, ok := cfg.Plan("free")
		if !ok || free.DailyLimit != 100 || free.Credits != 100 {
			t.Errorf("LoadFile() free plan = %+v", free)
		}
		if free.HumanSimulator || free.MaxRounds != 5 {
			t.Errorf("LoadFile() free plan simulator = %v/%d, want false/5", free.HumanSimulator, free.MaxRounds)
		}
		if expert, _ := cfg.Plan("expert"); !expert.HumanSimulator || expert.MaxRounds != 50 {
			t.Errorf("LoadFile() expert plan = %+v", expert)
		}
		if cfg.Simulator.BaseCost != 50 || cfg.Simulator.RoundCost != 10 || cfg.Simulator.DefaultRounds != 15 || cfg.Simulator.RoundsCap != 50 {
			t.Errorf("LoadFile() simulator = %+v", cfg.Simulator)
		}
	})

	t.Run("env var port override", func(t *testing.T) {
		t.Setenv("PROMPTLINK_SERVER__PORT", "9000")

		cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}

		if cfg.Server.Port != 9000 {
			t.Errorf("LoadFile() port = %v, want 9000", cfg.Server.Port)
		}
	})

	t.Run("yaml file with plans and secrets", func(t *testing.T) {
		t.Setenv("TEST_OPENROUTER_KEY", "sk-or-test")
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
server:
  port: 18080
upstream:
  api_key: ${TEST_OPENROUTER_KEY}
ledger:
  default_plan: starter
  plans:
    - id: starter
      name: Starter
      credits: 10
      daily_limit: 5
      human_simulator: true
      max_rounds: 3
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}

		if cfg.Server.Port != 18080 {
			t.Errorf("LoadFile() port = %v, want 18080", cfg.Server.Port)
		}
		if cfg.Upstream.APIKey != "sk-or-test" {
			t.Errorf("LoadFile() api key = %q, want substituted value", cfg.Upstream.APIKey)
		}
		plan, ok := cfg.Plan("starter")
		if !ok {
			t.Fatal("LoadFile() starter plan missing")
		}
		if plan.Currency != "usd" || plan.DailyLimit != 5 || !plan.HumanSimulator || plan.MaxRounds != 3 {
			t.Errorf("LoadFile() starter plan = %+v", plan)
		}
		if _, ok := cfg.Plan("basic"); ok {
			t.Error("LoadFile() configured plans should replace defaults")
		}
	})
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple substitution",
			input: "${TEST_VAR}",
			want:  "test-value",
		},
		{
			name:  "substitution in string",
			input: "prefix-${TEST_VAR}-suffix",
			want:  "prefix-test-value-suffix",
		},
		{
			name:  "no substitution",
			input: "plain-string",
			want:  "plain-string",
		},
		{
			name:  "undefined var",
			input: "${UNDEFINED_VAR}",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := substituteEnvVars(tt.input)
			if got != tt.want {
				t.Errorf("substituteEnvVars() = %v, want %v", got, tt.want)
			}
		})
	}
}
