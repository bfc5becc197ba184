package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete bot configuration, validated once at load and
// read-only afterwards.
type Config struct {
	Mode      string         `yaml:"mode"` // "paper", "dry-run" or "live"
	Timeframe string         `yaml:"timeframe"`
	Interval  string         `yaml:"interval"` // tick interval, e.g. "30s"
	Symbols   []string       `yaml:"symbols_whitelist"`
	Account   AccountConfig  `yaml:"account"`
	Strategy  StrategyConfig `yaml:"strategy"`
	Risk      RiskConfig     `yaml:"risk"`
	Exec      ExecConfig     `yaml:"execution"`
	Journal   JournalConfig  `yaml:"journal"`
	Telegram  TelegramConfig `yaml:"telegram"`
	Binance   BinanceConfig  `yaml:"binance"`
}

// AccountConfig seeds the paper account; live mode reads the balance from the
// venue instead.
type AccountConfig struct {
	QuoteAsset string  `yaml:"quote_asset"`
	Balance    float64 `yaml:"balance"`
}

// StrategyConfig selects and parameterizes the signal source.
type StrategyConfig struct {
	Name      string  `yaml:"name"`
	EMAFast   int     `yaml:"ema_fast"`
	EMASlow   int     `yaml:"ema_slow"`
	RSIPeriod int     `yaml:"rsi_period"`
	RSIBuyMin float64 `yaml:"rsi_buy_min"`
	RSIBuyMax float64 `yaml:"rsi_buy_max"`
}

// RiskConfig carries the sizing parameters and admission caps.
type RiskConfig struct {
	RiskPerTradePct      float64 `yaml:"risk_per_trade_pct"`
	MaxDailyLossPct      float64 `yaml:"max_daily_loss_pct"`
	MaxNotionalPerTrade  float64 `yaml:"max_notional_per_trade_usdt"`
	MaxNotionalPerPair   float64 `yaml:"max_notional_usdt_per_pair"`
	MaxOpenTrades        int     `yaml:"max_open_trades"`
	MaxCorrelated        int     `yaml:"max_correlated_trades"`
	CorrelationThreshold float64 `yaml:"correlation_threshold"`
	CorrelationWindow    int     `yaml:"correlation_window"`
	StopMode             string  `yaml:"stop_mode"` // "atr" or "swing_low"
	ATRPeriod            int     `yaml:"atr_period"`
	ATRK                 float64 `yaml:"atr_k"`
	SwingLookback        int     `yaml:"swing_lookback"`
	RiskRR               float64 `yaml:"risk_rr"`
}

// ExecConfig tunes order handling.
type ExecConfig struct {
	FeeRate     float64 `yaml:"fee_rate"`     // taker fee fraction per side
	SlippageBps float64 `yaml:"slippage_bps"` // paper fills only
	TieBreak    string  `yaml:"tie_break"`    // "tp-first" or "sl-first"
}

// JournalConfig selects the trade ledger backend.
type JournalConfig struct {
	Type       string `yaml:"type"` // "csv" or "sqlite"
	TradesFile string `yaml:"trades_file,omitempty"`
	EquityFile string `yaml:"equity_file,omitempty"`
	DBPath     string `yaml:"db_path,omitempty"`
}

// TelegramConfig enables the Telegram notifier when both fields are set.
// Secrets come from the environment, not the YAML file.
type TelegramConfig struct {
	Token  string `yaml:"-"`
	ChatID int64  `yaml:"-"`
}

// BinanceConfig holds the live venue credentials, also environment-only.
type BinanceConfig struct {
	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// LoadFromFile reads a YAML config, overlays secrets from the environment
// (and a .env file if one exists next to the working directory), and
// validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadEnv pulls secrets from the process environment. A missing .env file is
// fine; explicit environment variables win either way.
func (c *Config) loadEnv() error {
	_ = godotenv.Load()

	c.Binance.APIKey = os.Getenv("BINANCE_API_KEY")
	c.Binance.APISecret = os.Getenv("BINANCE_API_SECRET")
	c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")

	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = id
	}
	return nil
}

// TickInterval parses the loop interval.
func (c *Config) TickInterval() (time.Duration, error) {
	return time.ParseDuration(c.Interval)
}

// Validate checks the configuration once at load time.
func (c *Config) Validate() error {
	switch c.Mode {
	case "paper", "dry-run", "live":
	default:
		return fmt.Errorf("mode must be 'paper', 'dry-run' or 'live', got %q", c.Mode)
	}
	if c.Timeframe == "" {
		return fmt.Errorf("timeframe is required")
	}
	if _, err := time.ParseDuration(c.Interval); err != nil {
		return fmt.Errorf("interval: %w", err)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols_whitelist must not be empty")
	}
	if c.Account.QuoteAsset == "" {
		return fmt.Errorf("account.quote_asset is required")
	}
	if c.Mode == "paper" && c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive in paper mode")
	}
	if c.Risk.RiskPerTradePct <= 0 || c.Risk.RiskPerTradePct > 1 {
		return fmt.Errorf("risk.risk_per_trade_pct must be in (0, 1]")
	}
	if c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct > 1 {
		return fmt.Errorf("risk.max_daily_loss_pct must be in (0, 1]")
	}
	if c.Risk.RiskRR < 0 {
		return fmt.Errorf("risk.risk_rr must not be negative")
	}
	switch c.Risk.StopMode {
	case "atr":
		if c.Risk.ATRPeriod <= 0 || c.Risk.ATRK <= 0 {
			return fmt.Errorf("risk.atr_period and risk.atr_k must be positive for ATR stops")
		}
	case "swing_low":
		if c.Risk.SwingLookback <= 0 {
			return fmt.Errorf("risk.swing_lookback must be positive for swing-low stops")
		}
	default:
		return fmt.Errorf("risk.stop_mode must be 'atr' or 'swing_low', got %q", c.Risk.StopMode)
	}
	if c.Risk.CorrelationWindow < 2 {
		return fmt.Errorf("risk.correlation_window must be at least 2")
	}
	switch c.Exec.TieBreak {
	case "tp-first", "sl-first":
	default:
		return fmt.Errorf("execution.tie_break must be 'tp-first' or 'sl-first', got %q", c.Exec.TieBreak)
	}
	switch c.Journal.Type {
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv' or 'sqlite'")
	}
	if c.Mode == "live" && (c.Binance.APIKey == "" || c.Binance.APISecret == "") {
		return fmt.Errorf("BINANCE_API_KEY and BINANCE_API_SECRET are required in live mode")
	}
	return nil
}

// Default returns a configuration with sensible paper-trading defaults.
func Default() *Config {
	return &Config{
		Mode:      "paper",
		Timeframe: "1h",
		Interval:  "30s",
		Symbols:   []string{"BTC/USDT", "ETH/USDT"},
		Account: AccountConfig{
			QuoteAsset: "USDT",
			Balance:    10000,
		},
		Strategy: StrategyConfig{
			Name:      "pullback",
			EMAFast:   50,
			EMASlow:   200,
			RSIPeriod: 14,
			RSIBuyMin: 45,
			RSIBuyMax: 60,
		},
		Risk: RiskConfig{
			RiskPerTradePct:      0.01,
			MaxDailyLossPct:      0.03,
			MaxNotionalPerTrade:  1000,
			MaxNotionalPerPair:   2000,
			MaxOpenTrades:        3,
			MaxCorrelated:        1,
			CorrelationThreshold: 0.85,
			CorrelationWindow:    100,
			StopMode:             "atr",
			ATRPeriod:            14,
			ATRK:                 1.5,
			SwingLookback:        10,
			RiskRR:               2.0,
		},
		Exec: ExecConfig{
			FeeRate:     0.001,
			SlippageBps: 5,
			TieBreak:    "tp-first",
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./trades.csv",
			EquityFile: "./equity.csv",
		},
	}
}
