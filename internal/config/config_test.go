package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
environment:
  log_level: debug

protocol:
  market_url: https://api.example.com/market
  positions_url: https://api.example.com/positions
  pool_analysis_url: https://static.example.com/analysis/%s.json.gz
  request_timeout: 5s

wallet:
  address: "0x1234abcd"

refresh:
  interval: 15s

dashboard:
  port: 9090
  auth_token: secret

storage:
  path: data/snapshot.json

assets:
  decimals:
    BTC: 8
    ETH: 18
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Environment.LogLevel)
	assert.Equal(t, "0x1234abcd", cfg.Wallet.Address)
	assert.Equal(t, 9090, cfg.Dashboard.Port)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 15*time.Second, cfg.RefreshInterval())
	assert.Equal(t, 8, cfg.Assets.Decimals["BTC"])
	assert.Equal(t, 18, cfg.Assets.Decimals["ETH"])
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("WALLET_ADDRESS", "0xfromenv")

	content := `
protocol:
  market_url: https://api.example.com/market
  positions_url: https://api.example.com/positions
  pool_analysis_url: https://static.example.com/%s.gz
wallet:
  address: "${WALLET_ADDRESS}"
storage:
  path: snapshot.json
`
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)
	assert.Equal(t, "0xfromenv", cfg.Wallet.Address)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	content := validYAML + "\nunexpected_section:\n  foo: bar\n"

	_, err := Load(writeConfig(t, content))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateDefaults(t *testing.T) {
	cfg := &Config{
		Protocol: ProtocolConfig{
			MarketURL:       "https://api.example.com/market",
			PositionsURL:    "https://api.example.com/positions",
			PoolAnalysisURL: "https://static.example.com/%s.gz",
		},
		Wallet:  WalletConfig{Address: "0xabc"},
		Storage: StorageConfig{Path: "snapshot.json"},
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval())
	assert.Equal(t, 8080, cfg.Dashboard.Port)
	assert.Equal(t, map[string]int{"BTC": 8, "ETH": 18}, cfg.Assets.Decimals)
}

func TestValidateErrors(t *testing.T) {
	base := func() *Config {
		return &Config{
			Protocol: ProtocolConfig{
				MarketURL:       "https://api.example.com/market",
				PositionsURL:    "https://api.example.com/positions",
				PoolAnalysisURL: "https://static.example.com/%s.gz",
			},
			Wallet:  WalletConfig{Address: "0xabc"},
			Storage: StorageConfig{Path: "snapshot.json"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing market url", func(c *Config) { c.Protocol.MarketURL = "" }},
		{"missing positions url", func(c *Config) { c.Protocol.PositionsURL = "" }},
		{"missing pool analysis url", func(c *Config) { c.Protocol.PoolAnalysisURL = "" }},
		{"pool analysis url without day slot", func(c *Config) { c.Protocol.PoolAnalysisURL = "https://static.example.com/latest.gz" }},
		{"bad request timeout", func(c *Config) { c.Protocol.RequestTimeout = "soon" }},
		{"missing wallet address", func(c *Config) { c.Wallet.Address = "" }},
		{"wallet address without 0x prefix", func(c *Config) { c.Wallet.Address = "1234" }},
		{"refresh interval too short", func(c *Config) { c.Refresh.Interval = "100ms" }},
		{"bad refresh interval", func(c *Config) { c.Refresh.Interval = "often" }},
		{"port out of range", func(c *Config) { c.Dashboard.Port = 70000 }},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }},
		{"negative decimals", func(c *Config) { c.Assets.Decimals = map[string]int{"BTC": -1} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
