package notify

import (
	"trade_core/internal/modules/config"
	"trade_core/internal/runner/sessions"
	"trade_core/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(func(cfg *config.Config) sessions.Notifier {
			if cfg.Telegram.Token == "" {
				logger.Warn("telegram token is empty, notifications go to log only")
				return NewStdout()
			}
			t, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
			if err != nil {
				logger.Error("telegram init: %v, falling back to log", err)
				return NewStdout()
			}
			return t
		}),
	)
}
