package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/acid0ikario/trade-bot/config"
	"github.com/acid0ikario/trade-bot/engine"
	"github.com/acid0ikario/trade-bot/journal"
	"github.com/acid0ikario/trade-bot/notify"
	"github.com/acid0ikario/trade-bot/risk"
	"github.com/acid0ikario/trade-bot/strategies"
	"github.com/acid0ikario/trade-bot/venue"
	"github.com/acid0ikario/trade-bot/venue/binance"
	"github.com/acid0ikario/trade-bot/venue/dryrun"
	"github.com/acid0ikario/trade-bot/venue/paper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading loop from a config file",
	Long: `Run the trading loop using settings from a configuration file.

The mode key selects execution: "paper" simulates fills locally against live
market data, "dry-run" evaluates everything but only logs order intents, and
"live" submits real orders.

Example:
  tradebot run -f config.yaml`,
	RunE: runRun,
}

var (
	runConfigPath string
	runTestnet    bool
	runPaper      bool
	runDryRun     bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (required)")
	runCmd.Flags().BoolVar(&runTestnet, "testnet", false, "use the Binance spot testnet")
	runCmd.Flags().BoolVar(&runPaper, "paper", false, "force paper mode regardless of config")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "force dry-run mode regardless of config")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runPaper && runDryRun {
		return fmt.Errorf("--paper and --dry-run are mutually exclusive")
	}
	if runPaper {
		cfg.Mode = "paper"
	}
	if runDryRun {
		cfg.Mode = "dry-run"
	}

	log, err := buildLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	interval, err := cfg.TickInterval()
	if err != nil {
		return err
	}

	ledger, err := buildJournal(cfg)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer ledger.Close()

	v, err := buildVenue(cfg, log)
	if err != nil {
		return err
	}

	sig, err := buildStrategy(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	equity := cfg.Account.Balance
	if cfg.Mode != "paper" {
		equity, err = v.GetBalance(ctx, cfg.Account.QuoteAsset)
		if err != nil {
			return fmt.Errorf("fetch balance: %w", err)
		}
	}
	if equity <= 0 {
		return fmt.Errorf("no %s balance to trade with", cfg.Account.QuoteAsset)
	}

	tieBreak, err := engine.ParseTieBreak(cfg.Exec.TieBreak)
	if err != nil {
		return err
	}

	state := engine.NewGuardState(equity, nil)
	life := engine.NewLifecycle(v, venue.DefaultRetryPolicy(), cfg.Exec.FeeRate, tieBreak, log.Named("lifecycle"))
	eng := engine.New(engineConfig(cfg, equity), v, sig, ledger, buildNotifier(cfg, log), state, life, log.Named("engine"))

	log.Info("starting",
		zap.String("mode", cfg.Mode),
		zap.Float64("equity", equity),
		zap.String("quote", cfg.Account.QuoteAsset),
	)

	if err := eng.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildLogger() (*zap.Logger, error) {
	if debugLogging {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func buildJournal(cfg *config.Config) (journal.Journal, error) {
	if cfg.Journal.Type == "csv" {
		return journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.EquityFile)
	}
	return journal.NewSQLite(cfg.Journal.DBPath)
}

// buildVenue wires the order sink for the configured mode. Paper mode still
// uses the exchange for market data; only order submission is simulated.
func buildVenue(cfg *config.Config, log *zap.Logger) (venue.Venue, error) {
	live := binance.New(cfg.Binance.APIKey, cfg.Binance.APISecret, runTestnet)

	switch cfg.Mode {
	case "paper":
		balances := map[string]float64{cfg.Account.QuoteAsset: cfg.Account.Balance}
		return paper.New(live, cfg.Timeframe, balances,
			paper.WithSlippageBps(cfg.Exec.SlippageBps),
			paper.WithTakerFee(cfg.Exec.FeeRate),
		), nil
	case "dry-run":
		return dryrun.New(live, log), nil
	case "live":
		return live, nil
	}
	return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
}

func buildStrategy(cfg *config.Config) (strategies.SignalSource, error) {
	sig, err := strategies.ByName(cfg.Strategy.Name)
	if err != nil {
		return nil, err
	}
	if p, ok := sig.(*strategies.Pullback); ok {
		p.EMAFast = cfg.Strategy.EMAFast
		p.EMASlow = cfg.Strategy.EMASlow
		p.RSIPeriod = cfg.Strategy.RSIPeriod
		p.RSIBuyMin = cfg.Strategy.RSIBuyMin
		p.RSIBuyMax = cfg.Strategy.RSIBuyMax
		p.SlippageBps = cfg.Exec.SlippageBps
	}
	return sig, nil
}

func buildNotifier(cfg *config.Config, log *zap.Logger) notify.Notifier {
	log = log.Named("notify")
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
		if err != nil {
			log.Warn("telegram setup failed, falling back to log notifier", zap.Error(err))
		} else {
			return notify.Multi{notify.NewLog(log), tg}
		}
	}
	return notify.NewLog(log)
}

func engineConfig(cfg *config.Config, equity float64) engine.Config {
	stopMode := risk.StopATR
	if cfg.Risk.StopMode == "swing_low" {
		stopMode = risk.StopSwingLow
	}

	candleLimit := cfg.Strategy.EMASlow + 50
	if cfg.Risk.CorrelationWindow+2 > candleLimit {
		candleLimit = cfg.Risk.CorrelationWindow + 2
	}

	return engine.Config{
		Symbols:           cfg.Symbols,
		Timeframe:         cfg.Timeframe,
		CandleLimit:       candleLimit,
		CorrelationWindow: cfg.Risk.CorrelationWindow,
		RiskPct:           cfg.Risk.RiskPerTradePct,
		StopMode:          stopMode,
		ATRPeriod:         cfg.Risk.ATRPeriod,
		ATRK:              cfg.Risk.ATRK,
		SwingLookback:     cfg.Risk.SwingLookback,
		RiskRR:            cfg.Risk.RiskRR,
		Limits: risk.Limits{
			BaseEquity:           equity,
			MaxDailyLossPct:      cfg.Risk.MaxDailyLossPct,
			MaxOpenTrades:        cfg.Risk.MaxOpenTrades,
			MaxNotionalPerTrade:  cfg.Risk.MaxNotionalPerTrade,
			MaxNotionalPerPair:   cfg.Risk.MaxNotionalPerPair,
			MaxCorrelated:        cfg.Risk.MaxCorrelated,
			CorrelationThreshold: cfg.Risk.CorrelationThreshold,
		},
	}
}
