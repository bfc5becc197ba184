package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
mode: paper
timeframe: 4h
interval: 1m
symbols_whitelist: [SOL/USDT]
risk:
  max_open_trades: 5
  atr_k: 2.0
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "4h", cfg.Timeframe)
	assert.Equal(t, []string{"SOL/USDT"}, cfg.Symbols)
	assert.Equal(t, 5, cfg.Risk.MaxOpenTrades)
	assert.Equal(t, 2.0, cfg.Risk.ATRK)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.01, cfg.Risk.RiskPerTradePct)
	assert.Equal(t, "tp-first", cfg.Exec.TieBreak)

	iv, err := cfg.TickInterval()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, iv)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "backtest" }},
		{"empty whitelist", func(c *Config) { c.Symbols = nil }},
		{"risk pct too high", func(c *Config) { c.Risk.RiskPerTradePct = 1.5 }},
		{"negative rr", func(c *Config) { c.Risk.RiskRR = -1 }},
		{"bad stop mode", func(c *Config) { c.Risk.StopMode = "fixed" }},
		{"bad tie break", func(c *Config) { c.Exec.TieBreak = "random" }},
		{"bad interval", func(c *Config) { c.Interval = "soon" }},
		{"sqlite without path", func(c *Config) {
			c.Journal = JournalConfig{Type: "sqlite"}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLiveModeRequiresCredentials(t *testing.T) {
	cfg := Default()
	cfg.Mode = "live"
	assert.Error(t, cfg.Validate())

	cfg.Binance.APIKey = "key"
	cfg.Binance.APISecret = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok-123")
	t.Setenv("TELEGRAM_CHAT_ID", "4242")
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")

	path := writeConfig(t, "mode: paper\n")
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "tok-123", cfg.Telegram.Token)
	assert.Equal(t, int64(4242), cfg.Telegram.ChatID)
}
