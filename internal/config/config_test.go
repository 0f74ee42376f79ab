package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
exchange:
  api_key_id: "key-1"
  private_key_content: "pem"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatal(err)
	}

	if !cfg.DryRun {
		t.Error("dry_run should default to true")
	}
	if cfg.Exchange.SeriesTicker != "KXSOL15M" {
		t.Errorf("series = %q", cfg.Exchange.SeriesTicker)
	}
	if cfg.Risk.DailyLossThreshold != 0.05 {
		t.Errorf("daily loss threshold = %v, want 0.05", cfg.Risk.DailyLossThreshold)
	}
	if cfg.Risk.Bankroll != 10000 {
		t.Errorf("bankroll = %v, want 10000", cfg.Risk.Bankroll)
	}
	if cfg.Strategy.MinProbability != 0.95 {
		t.Errorf("min probability = %v", cfg.Strategy.MinProbability)
	}
	if cfg.Spot.TimeoutSeconds != 5 {
		t.Errorf("spot timeout = %d", cfg.Spot.TimeoutSeconds)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("minimal config should validate: %v", err)
	}
}

func TestValidateRequiresCredentials(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
exchange:
  api_key_id: ""
`))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("missing api key should fail validation")
	}
}

func TestValidateRefusesConflictingLegacyThreshold(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
risk:
  daily_loss_threshold: 0.05
  circuit_breaker_loss_threshold: 0.20
`))
	if err != nil {
		t.Fatal(err)
	}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("conflicting legacy risk surface must refuse startup")
	}
	if !strings.Contains(err.Error(), "conflicting risk config") {
		t.Errorf("error = %v", err)
	}
}

func TestValidateAcceptsConsistentLegacyValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
risk:
  bankroll: 10000.0
  position_ceiling_pct: 0.02
  max_position_size: 200.0
  circuit_breaker_loss_threshold: 0.05
`))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("matching legacy values should pass: %v", err)
	}
}

func TestValidateTimeWindowOrdering(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
strategy:
  min_time_remaining: 700
  max_time_remaining: 600
`))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("inverted time window should fail validation")
	}
}

func TestEnvOverridesDryRun(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
dry_run: false
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DryRun {
		t.Error("explicit dry_run: false should stick without env override")
	}

	t.Setenv("KALSHI_DRY_RUN", "true")
	cfg, err = Load(writeConfig(t, minimalConfig+`
dry_run: false
`))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.DryRun {
		t.Error("KALSHI_DRY_RUN=true must override the file")
	}
}
