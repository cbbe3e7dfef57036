package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// NewBot creates a new Telegram bot
func NewBot(token string, cfg Config, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot created", zap.String("bot_username", api.Self.UserName))

	b := newBot(api, cfg, logger)
	b.username = api.Self.UserName
	return b, nil
}

func newBot(api telegramAPI, cfg Config, logger *zap.Logger) *Bot {
	if cfg.SendAttempts <= 0 {
		cfg.SendAttempts = defaultSendAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	return &Bot{api: api, cfg: cfg, logger: logger}
}

// SetLifecycle attaches the controller. The controller needs the bot as its
// notifier, so the two are wired after construction.
func (b *Bot) SetLifecycle(ctrl Lifecycle) {
	b.ctrl = ctrl
}

// Username returns the bot's Telegram username
func (b *Bot) Username() string {
	return b.username
}
