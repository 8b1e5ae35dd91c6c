// Package config provides configuration management for the portfolio ledger.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/kirkhalloran/oraclepm/internal/models"
)

const (
	// defaultBenchmarkRate is the 3M T-bill annualized yield used for excess
	// return when analytics.benchmark_rate is unset.
	defaultBenchmarkRate = 3.76
	// defaultQuoteDelay spaces out market-data requests when
	// marketdata.request_delay is unset.
	defaultQuoteDelay = 1200 * time.Millisecond
	// defaultHTTPTimeout is used when broker.timeout is unset.
	defaultHTTPTimeout = 10 * time.Second
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Database    DatabaseConfig    `yaml:"database"`
	Sync        SyncConfig        `yaml:"sync"`
	MarketData  MarketDataConfig  `yaml:"marketdata"`
	Analytics   AnalyticsConfig   `yaml:"analytics"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker API settings for the read-only order source.
type BrokerConfig struct {
	Provider    string   `yaml:"provider"`
	APIKey      string   `yaml:"api_key"`
	APIEndpoint string   `yaml:"api_endpoint"`
	Accounts    []string `yaml:"accounts"`
	Timeout     string   `yaml:"timeout"`
}

// DatabaseConfig defines the relational store connection.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
}

// SyncConfig defines trade ingestion behavior.
type SyncConfig struct {
	// UnknownEffectPolicy selects the fallback for fills whose open/close
	// qualifier the broker omitted: assume_short | assume_long | reject.
	UnknownEffectPolicy string `yaml:"unknown_effect_policy"`
	// DefaultLookbackDays bounds the order fetch when -since is not given.
	DefaultLookbackDays int `yaml:"default_lookback_days"`
}

// MarketDataConfig defines the live quote refresh collaborator.
type MarketDataConfig struct {
	Endpoint     string `yaml:"endpoint"`
	RequestDelay string `yaml:"request_delay"`
}

// AnalyticsConfig defines portfolio analytics parameters.
type AnalyticsConfig struct {
	BenchmarkRate float64 `yaml:"benchmark_rate"` // annualized %, e.g. 3.76
	AccountSize   float64 `yaml:"account_size"`
}

// DashboardConfig defines the HTTP dashboard settings.
type DashboardConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	// Broker credentials are only required in live mode; paper mode runs on
	// the canned mock order source.
	if c.Environment.Mode == "live" {
		if c.Broker.APIKey == "" {
			return fmt.Errorf("broker.api_key is required in live mode")
		}
		if len(c.Broker.Accounts) == 0 {
			return fmt.Errorf("broker.accounts requires at least one account in live mode")
		}
	}
	if c.Broker.Timeout != "" {
		if _, err := time.ParseDuration(c.Broker.Timeout); err != nil {
			return fmt.Errorf("broker.timeout invalid: %w", err)
		}
	}

	// Paper mode falls back to the in-memory store when no database is
	// configured.
	if c.Environment.Mode == "live" && c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required in live mode")
	}
	if c.Database.MaxConns < 0 {
		return fmt.Errorf("database.max_conns must be >= 0")
	}

	if p := c.UnknownEffectPolicy(); !p.Valid() {
		return fmt.Errorf("sync.unknown_effect_policy must be one of assume_short, assume_long, reject")
	}
	if c.Sync.DefaultLookbackDays < 0 {
		return fmt.Errorf("sync.default_lookback_days must be >= 0")
	}

	if c.MarketData.RequestDelay != "" {
		if _, err := time.ParseDuration(c.MarketData.RequestDelay); err != nil {
			return fmt.Errorf("marketdata.request_delay invalid: %w", err)
		}
	}

	if c.Analytics.BenchmarkRate < 0 {
		return fmt.Errorf("analytics.benchmark_rate must be >= 0")
	}
	if c.Analytics.AccountSize < 0 {
		return fmt.Errorf("analytics.account_size must be >= 0")
	}

	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be a valid port number")
	}

	return nil
}

// HasDatabase reports whether a PostgreSQL connection is configured.
func (c *Config) HasDatabase() bool {
	return c.Database.DSN != "" || c.Database.Host != ""
}

// IsPaperTrading returns true if the ledger is configured for paper mode.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// UnknownEffectPolicy returns the configured fallback policy, defaulting to
// the short-premium assumption.
func (c *Config) UnknownEffectPolicy() models.UnknownEffectPolicy {
	if c.Sync.UnknownEffectPolicy == "" {
		return models.PolicyAssumeShort
	}
	return models.UnknownEffectPolicy(c.Sync.UnknownEffectPolicy)
}

// BenchmarkRate returns the benchmark annualized rate for excess-return
// comparison, falling back to the default T-bill yield.
func (c *Config) BenchmarkRate() float64 {
	if c.Analytics.BenchmarkRate == 0 {
		return defaultBenchmarkRate
	}
	return c.Analytics.BenchmarkRate
}

// QuoteRequestDelay returns the delay between market-data requests.
func (c *Config) QuoteRequestDelay() time.Duration {
	if c.MarketData.RequestDelay == "" {
		return defaultQuoteDelay
	}
	d, err := time.ParseDuration(c.MarketData.RequestDelay)
	if err != nil {
		return defaultQuoteDelay
	}
	return d
}

// BrokerTimeout returns the outbound HTTP timeout for the broker client.
func (c *Config) BrokerTimeout() time.Duration {
	if c.Broker.Timeout == "" {
		return defaultHTTPTimeout
	}
	d, err := time.ParseDuration(c.Broker.Timeout)
	if err != nil {
		return defaultHTTPTimeout
	}
	return d
}
