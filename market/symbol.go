package market

import "strings"

// SplitSymbol splits a BASE/QUOTE pair such as "BTC/USDT" into its assets.
// A symbol without a separator is treated as its own base with an empty
// quote.
func SplitSymbol(symbol string) (base, quote string) {
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok {
		return symbol, ""
	}
	return base, quote
}
