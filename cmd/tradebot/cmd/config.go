package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/acid0ikario/trade-bot/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print a default configuration",
	Long: `Print a default configuration to stdout, or write it to a file with -o.
Edit the result and pass it to "tradebot run -f".`,
	RunE: runConfig,
}

var configOutPath string

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().StringVarP(&configOutPath, "output", "o", "", "write to a file instead of stdout")
}

func runConfig(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if configOutPath == "" {
		fmt.Print(string(data))
		return nil
	}
	if err := os.WriteFile(configOutPath, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Wrote default config to %s\n", configOutPath)
	return nil
}
