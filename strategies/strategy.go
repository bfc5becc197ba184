package strategies

import (
	"fmt"
	"strings"

	"github.com/acid0ikario/trade-bot/market"
)

// Signal is an entry trigger. The engine treats it as an opaque boolean;
// only long entries exist for now.
type Signal string

const (
	SignalNone Signal = ""
	SignalBuy  Signal = "buy"
)

// SignalSource generates entry signals from candle history. Implementations
// must decide strictly from the last fully closed candle: the final bar of
// the set may still be forming and using it would look ahead.
type SignalSource interface {
	GenerateSignal(candles market.CandleSet) (Signal, error)
}

var registry = make(map[string]func() SignalSource)

// Register makes a signal source available to ByName under name.
func Register(name string, build func() SignalSource) {
	registry[name] = build
}

// ByName constructs the named signal source.
func ByName(name string) (SignalSource, error) {
	build, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return build(), nil
}
