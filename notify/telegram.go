package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Telegram pushes events to a chat. Send failures are logged and dropped.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zap.Logger
}

func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: bot, chatID: chatID, log: log}, nil
}

func (t *Telegram) Notify(_ context.Context, ev Event) {
	msg := tgbotapi.NewMessage(t.chatID, ev.Text)
	if _, err := t.bot.Send(msg); err != nil {
		t.log.Warn("telegram send failed",
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
}
