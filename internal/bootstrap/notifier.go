package bootstrap

import (
	"github.com/rs/zerolog"

	"opsvision/internal/config"
	"opsvision/internal/domain/ports/adapter"
	tele "opsvision/internal/infra/adapters/telegram"
)

// NewNotifier returns the Telegram notifier when a token is configured and
// a logging no-op otherwise.
func NewNotifier(cfg config.NotifyConfig, logger *zerolog.Logger) (adapter.Notifier, error) {
	if cfg.TelegramToken == "" {
		return tele.NewNoopNotifier(logger), nil
	}
	n, err := tele.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		return nil, err
	}
	logger.Info().Int64("chat_id", cfg.TelegramChatID).Msg("telegram notifications enabled")
	return n, nil
}
