package main

import (
	"os"

	"github.com/acid0ikario/trade-bot/cmd/tradebot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
