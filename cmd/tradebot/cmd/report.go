package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acid0ikario/trade-bot/journal"
	"github.com/acid0ikario/trade-bot/metrics"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize performance from a sqlite trade ledger",
	Long: `Report reads the trade ledger and equity curve written by a run and prints
summary statistics: realized PnL, win rate, profit factor, Sharpe and maximum
drawdown.

Example:
  tradebot report --db trades.db`,
	RunE: runReport,
}

var reportDBPath string

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportDBPath, "db", "", "path to the sqlite ledger (required)")
	reportCmd.MarkFlagRequired("db")
}

func runReport(cmd *cobra.Command, args []string) error {
	trades, err := journal.ListTrades(reportDBPath)
	if err != nil {
		return fmt.Errorf("read trades: %w", err)
	}
	if len(trades) == 0 {
		fmt.Println("No completed trades.")
		return nil
	}

	equity, err := journal.ListEquity(reportDBPath)
	if err != nil {
		return fmt.Errorf("read equity: %w", err)
	}

	pnls := make([]float64, len(trades))
	total := 0.0
	for i, t := range trades {
		pnls[i] = t.PnL
		total += t.PnL
	}

	fmt.Printf("Trades:        %d\n", len(trades))
	fmt.Printf("Net PnL:       %.2f\n", total)
	fmt.Printf("Win rate:      %.1f%%\n", 100*metrics.WinRate(pnls))
	fmt.Printf("Profit factor: %.2f\n", metrics.ProfitFactor(pnls))

	if len(equity) > 1 {
		curve := make([]float64, len(equity))
		returns := make([]float64, 0, len(equity)-1)
		for i, e := range equity {
			curve[i] = e.Equity
			if i > 0 && equity[i-1].Equity != 0 {
				returns = append(returns, e.Equity/equity[i-1].Equity-1)
			}
		}
		first, last := equity[0], equity[len(equity)-1]
		fmt.Printf("Sharpe:        %.2f\n", metrics.Sharpe(returns, 0))
		fmt.Printf("Max drawdown:  %.1f%%\n", 100*metrics.MaxDrawdown(curve))
		fmt.Printf("CAGR:          %.1f%%\n", 100*metrics.CAGR(first.Equity, last.Equity, first.Time, last.Time))
	}

	return nil
}
