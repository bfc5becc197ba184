package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradebot",
	Short: "A risk-managed spot trading bot for Binance",
	Long: `Tradebot runs a signal-driven spot trading loop with strict risk controls.

It provides:
  - Paper, dry-run and live execution against Binance
  - ATR and swing-low stop placement with bracketed exits
  - Daily loss kill switch, correlation and notional admission guards
  - An append-only trade ledger (CSV or SQLite) with performance reports
  - Telegram notifications for entries, exits and guard trips`,

	SilenceUsage: true,
}

var debugLogging bool

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "enable debug logging")
}
