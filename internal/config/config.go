// Package config provides configuration management for the portfolio service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultRequestTimeout is used when protocol.request_timeout is unset
	defaultRequestTimeout = 10 * time.Second
	// defaultRefreshInterval is used when refresh.interval is unset
	defaultRefreshInterval = 30 * time.Second
	// defaultDashboardPort is used when dashboard.port is unset
	defaultDashboardPort = 8080
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Protocol    ProtocolConfig    `yaml:"protocol"`
	Wallet      WalletConfig      `yaml:"wallet"`
	Refresh     RefreshConfig     `yaml:"refresh"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Storage     StorageConfig     `yaml:"storage"`
	Assets      AssetsConfig      `yaml:"assets"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
	LogFile  string `yaml:"log_file"`  // empty means stderr only
}

// ProtocolConfig defines the protocol API endpoints.
type ProtocolConfig struct {
	MarketURL    string `yaml:"market_url"`
	PositionsURL string `yaml:"positions_url"`
	// PoolAnalysisURL must contain one %s verb for the UTC day (YYYY-MM-DD).
	PoolAnalysisURL string `yaml:"pool_analysis_url"`
	RequestTimeout  string `yaml:"request_timeout"` // Go duration, e.g. "10s"
}

// WalletConfig identifies whose positions are fetched.
type WalletConfig struct {
	Address string `yaml:"address"`
}

// RefreshConfig controls the periodic refresh loop.
type RefreshConfig struct {
	Interval string `yaml:"interval"` // Go duration, e.g. "30s"
}

// DashboardConfig defines the HTTP API settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
	// AuthToken, when set, is required in the X-Auth-Token header on every
	// endpoint except /health.
	AuthToken string `yaml:"auth_token"`
}

// StorageConfig defines where the latest snapshot is persisted.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// AssetsConfig maps underlying asset tickers to their on-chain size decimals.
type AssetsConfig struct {
	Decimals map[string]int `yaml:"decimals"`
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

// Validate checks that all configuration values are valid and consistent,
// and fills in defaults for optional fields.
func (c *Config) Validate() error {
	// Protocol validation
	if c.Protocol.MarketURL == "" {
		return fmt.Errorf("protocol.market_url is required")
	}
	if c.Protocol.PositionsURL == "" {
		return fmt.Errorf("protocol.positions_url is required")
	}
	if c.Protocol.PoolAnalysisURL == "" {
		return fmt.Errorf("protocol.pool_analysis_url is required")
	}
	if !strings.Contains(c.Protocol.PoolAnalysisURL, "%s") {
		return fmt.Errorf("protocol.pool_analysis_url must contain a %%s slot for the UTC day")
	}
	if c.Protocol.RequestTimeout == "" {
		c.Protocol.RequestTimeout = defaultRequestTimeout.String()
	}
	if _, err := time.ParseDuration(c.Protocol.RequestTimeout); err != nil {
		return fmt.Errorf("protocol.request_timeout: %w", err)
	}

	// Wallet validation
	if c.Wallet.Address == "" {
		return fmt.Errorf("wallet.address is required")
	}
	if !strings.HasPrefix(c.Wallet.Address, "0x") {
		return fmt.Errorf("wallet.address must be a 0x-prefixed address")
	}

	// Refresh validation
	if c.Refresh.Interval == "" {
		c.Refresh.Interval = defaultRefreshInterval.String()
	}
	interval, err := time.ParseDuration(c.Refresh.Interval)
	if err != nil {
		return fmt.Errorf("refresh.interval: %w", err)
	}
	if interval < time.Second {
		return fmt.Errorf("refresh.interval must be at least 1s")
	}

	// Dashboard validation
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be between 1 and 65535")
	}

	// Storage validation
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	// Asset decimals: default to the protocol's listed underlyings
	if len(c.Assets.Decimals) == 0 {
		c.Assets.Decimals = map[string]int{"BTC": 8, "ETH": 18}
	}
	for asset, decimals := range c.Assets.Decimals {
		if decimals < 0 || decimals > 30 {
			return fmt.Errorf("assets.decimals[%s] must be between 0 and 30", asset)
		}
	}

	return nil
}

// RequestTimeout returns the parsed protocol request timeout. Validate must
// have succeeded first.
func (c *Config) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Protocol.RequestTimeout)
	return d
}

// RefreshInterval returns the parsed refresh interval. Validate must have
// succeeded first.
func (c *Config) RefreshInterval() time.Duration {
	d, _ := time.ParseDuration(c.Refresh.Interval)
	return d
}
