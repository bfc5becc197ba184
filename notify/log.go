package notify

import (
	"context"

	"go.uber.org/zap"
)

// Log writes events to the structured log. It is the default notifier when no
// Telegram credentials are configured.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(_ context.Context, ev Event) {
	l.log.Info("trade event",
		zap.String("kind", string(ev.Kind)),
		zap.String("symbol", ev.Symbol),
		zap.String("text", ev.Text),
	)
}
