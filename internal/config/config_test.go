package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirkhalloran/oraclepm/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validPaper = `
environment:
  mode: paper
  log_level: info
broker:
  provider: schwab
sync:
  unknown_effect_policy: assume_short
  default_lookback_days: 30
analytics:
  benchmark_rate: 3.76
  account_size: 100000
dashboard:
  port: 9000
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validPaper))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.IsPaperTrading() {
		t.Error("expected paper mode")
	}
	if cfg.HasDatabase() {
		t.Error("expected no database config")
	}
	if got := cfg.UnknownEffectPolicy(); got != models.PolicyAssumeShort {
		t.Errorf("policy = %s, want assume_short", got)
	}
	if got := cfg.BenchmarkRate(); got != 3.76 {
		t.Errorf("benchmark = %v, want 3.76", got)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_ORACLE_KEY", "secret-key")

	cfg, err := Load(writeConfig(t, `
environment:
  mode: live
  log_level: info
broker:
  api_key: ${TEST_ORACLE_KEY}
  accounts: [HASH1]
database:
  host: localhost
  name: oraclepm
  user: oraclepm
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Broker.APIKey != "secret-key" {
		t.Errorf("api_key = %q, want expanded env value", cfg.Broker.APIKey)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, validPaper+`
bogus_section:
  key: value
`))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid paper", func(c *Config) {}, false},
		{"bad mode", func(c *Config) { c.Environment.Mode = "production" }, true},
		{"live without api key", func(c *Config) {
			c.Environment.Mode = "live"
			c.Database.Host = "localhost"
			c.Broker.Accounts = []string{"HASH1"}
		}, true},
		{"live without accounts", func(c *Config) {
			c.Environment.Mode = "live"
			c.Database.Host = "localhost"
			c.Broker.APIKey = "key"
		}, true},
		{"live without database", func(c *Config) {
			c.Environment.Mode = "live"
			c.Broker.APIKey = "key"
			c.Broker.Accounts = []string{"HASH1"}
		}, true},
		{"bad policy", func(c *Config) { c.Sync.UnknownEffectPolicy = "coin_flip" }, true},
		{"negative lookback", func(c *Config) { c.Sync.DefaultLookbackDays = -1 }, true},
		{"bad timeout", func(c *Config) { c.Broker.Timeout = "soon" }, true},
		{"bad request delay", func(c *Config) { c.MarketData.RequestDelay = "fast" }, true},
		{"negative account size", func(c *Config) { c.Analytics.AccountSize = -1 }, true},
		{"bad port", func(c *Config) { c.Dashboard.Port = 99999 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Environment: EnvironmentConfig{Mode: "paper", LogLevel: "info"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurationDefaults(t *testing.T) {
	cfg := &Config{}
	if got := cfg.QuoteRequestDelay(); got != 1200*time.Millisecond {
		t.Errorf("QuoteRequestDelay = %v, want 1.2s default", got)
	}
	if got := cfg.BrokerTimeout(); got != 10*time.Second {
		t.Errorf("BrokerTimeout = %v, want 10s default", got)
	}

	cfg.MarketData.RequestDelay = "2s"
	cfg.Broker.Timeout = "30s"
	if got := cfg.QuoteRequestDelay(); got != 2*time.Second {
		t.Errorf("QuoteRequestDelay = %v, want 2s", got)
	}
	if got := cfg.BrokerTimeout(); got != 30*time.Second {
		t.Errorf("BrokerTimeout = %v, want 30s", got)
	}
}
