package notify

import (
	"context"
	"fmt"

	"trade_core/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram — пассивный нотифайер: обычные уведомления и алерты оператору.
// Алерты — это то, что требует ручного вмешательства (consistency, незащищённая
// позиция, исчерпанные рестарты).
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Warn("telegram send: %v", err)
	}
}

func (t *Telegram) Notify(_ context.Context, format string, args ...any) {
	t.send(fmt.Sprintf(format, args...))
}

func (t *Telegram) Alert(_ context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.Critical("ALERT: %s", msg)
	t.send("🚨 " + msg)
}

// Stdout — заглушка для локального запуска без телеграма.
type Stdout struct{}

func NewStdout() *Stdout { return &Stdout{} }

func (s *Stdout) Notify(_ context.Context, format string, args ...any) {
	logger.Info(format, args...)
}

func (s *Stdout) Alert(_ context.Context, format string, args ...any) {
	logger.Critical(format, args...)
}
