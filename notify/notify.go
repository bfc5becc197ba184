package notify

import (
	"context"
	"fmt"
)

// Kind classifies a trading event.
type Kind string

const (
	KindOpened         Kind = "opened"
	KindClosed         Kind = "closed"
	KindGuardTriggered Kind = "guard_triggered"
)

// Event is one trading event pushed to the operator.
type Event struct {
	Kind   Kind
	Symbol string
	Text   string
}

// Notifier delivers events to an external channel. Delivery is best effort;
// implementations log failures instead of returning them, so a dead channel
// can never stall the trading loop.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Opened formats an entry event.
func Opened(symbol string, qty, entry, takeProfit, stop float64) Event {
	return Event{
		Kind:   KindOpened,
		Symbol: symbol,
		Text: fmt.Sprintf("opened %s qty=%.6f entry=%.4f tp=%.4f sl=%.4f",
			symbol, qty, entry, takeProfit, stop),
	}
}

// Closed formats an exit event.
func Closed(symbol string, qty, exit, pnl float64, reason string) Event {
	return Event{
		Kind:   KindClosed,
		Symbol: symbol,
		Text: fmt.Sprintf("closed %s qty=%.6f exit=%.4f pnl=%.2f (%s)",
			symbol, qty, exit, pnl, reason),
	}
}

// GuardTriggered formats an admission denial.
func GuardTriggered(symbol, code, msg string) Event {
	return Event{
		Kind:   KindGuardTriggered,
		Symbol: symbol,
		Text:   fmt.Sprintf("skipped %s: %s: %s", symbol, code, msg),
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m {
		n.Notify(ctx, ev)
	}
}
