package bot

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const maxRetryDelay = 10 * time.Second

// backoff returns the retry policy for one Telegram call
func (b *Bot) backoff() retry.Backoff {
	policy := retry.NewExponential(b.cfg.RetryBase)
	policy = retry.WithCappedDuration(maxRetryDelay, policy)
	return retry.WithMaxRetries(uint64(b.cfg.SendAttempts-1), policy)
}

// retryable reports whether a Telegram error may succeed on a later attempt
func retryable(err error) bool {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.Code == http.StatusTooManyRequests || tgErr.Code >= http.StatusInternalServerError
	}
	// Transport failures carry no API code
	return true
}

// notModified reports Telegram's refusal to apply an edit that changes nothing
func notModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

func noTextToEdit(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no text in the message to edit")
}

func (b *Bot) withRetry(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	return retry.Do(ctx, b.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		b.logger.Debug("Telegram call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return retry.RetryableError(err)
	})
}

// send delivers a message with retries and returns what Telegram stored
func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	var sent tgbotapi.Message
	err := b.withRetry(ctx, "send", func() error {
		m, err := b.api.Send(c)
		if err != nil {
			return err
		}
		sent = m
		return nil
	})
	return sent, err
}

// request performs a call whose result is not a message
func (b *Bot) request(ctx context.Context, c tgbotapi.Chattable) error {
	return b.withRetry(ctx, "request", func() error {
		_, err := b.api.Request(c)
		return err
	})
}

// reply sends plain text to a chat, logging failures
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.send(ctx, msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

// answerCallback clears the loading state of a pressed button
func (b *Bot) answerCallback(queryID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(queryID, text)); err != nil {
		b.logger.Debug("Failed to answer callback", zap.Error(err))
	}
}

// clearKeyboard removes the buttons from a message once they are spent
func (b *Bot) clearKeyboard(ctx context.Context, chatID int64, messageID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	if err := b.request(ctx, edit); err != nil && !notModified(err) {
		b.logger.Debug("Failed to clear keyboard", zap.Int("message_id", messageID), zap.Error(err))
	}
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return "user"
	}
	return name
}
