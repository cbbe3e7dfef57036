package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"moviebot/internal/lifecycle"
	"moviebot/internal/models"
	"moviebot/internal/shared"
	"moviebot/internal/tmdb"
)

// captionLimit is Telegram's maximum photo caption length
const captionLimit = 1024

// NotifyUser sends a notification to a user's private chat
func (b *Bot) NotifyUser(ctx context.Context, userID int64, n lifecycle.Notification) (lifecycle.MessageRef, error) {
	return b.notify(ctx, userID, n)
}

// NotifyAdmin sends a notification to the admin chat
func (b *Bot) NotifyAdmin(ctx context.Context, n lifecycle.Notification) (lifecycle.MessageRef, error) {
	return b.notify(ctx, b.cfg.AdminChatID, n)
}

func (b *Bot) notify(ctx context.Context, chatID int64, n lifecycle.Notification) (lifecycle.MessageRef, error) {
	text := renderText(n)
	keyboard := b.renderKeyboard(n.Actions)

	var c tgbotapi.Chattable
	if poster := b.posterURL(n); poster != "" && len([]rune(text)) <= captionLimit {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(poster))
		photo.Caption = text
		if keyboard != nil {
			photo.ReplyMarkup = keyboard
		}
		c = photo
	} else {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		if keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		c = msg
	}

	sent, err := b.send(ctx, c)
	if err != nil {
		b.logger.Error("Failed to send notification",
			zap.Int64("chat_id", chatID),
			zap.String("kind", string(n.Kind)),
			zap.Error(err),
		)
		return lifecycle.MessageRef{}, fmt.Errorf("send %s: %w", n.Kind, err)
	}
	return lifecycle.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// posterURL is set only for the confirmation prompt
func (b *Bot) posterURL(n lifecycle.Notification) string {
	if n.Kind != lifecycle.KindConfirmPrompt || n.Movie == nil {
		return ""
	}
	return tmdb.PosterURL(b.cfg.ImageBaseURL, n.Movie.PosterPath)
}

// EditMessage rewrites a message in place. Photo messages, such as the
// confirmation prompt, get their caption rewritten instead.
func (b *Bot) EditMessage(ctx context.Context, ref lifecycle.MessageRef, n lifecycle.Notification) error {
	if ref.MessageID == 0 {
		return fmt.Errorf("%w: no message to edit", shared.ErrNotFound)
	}

	text := renderText(n)
	keyboard := b.renderKeyboard(n.Actions)

	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	edit.DisableWebPagePreview = true
	if keyboard != nil {
		edit.ReplyMarkup = keyboard
	}

	err := b.request(ctx, edit)
	if noTextToEdit(err) && len([]rune(text)) <= captionLimit {
		captionEdit := tgbotapi.NewEditMessageCaption(ref.ChatID, ref.MessageID, text)
		if keyboard != nil {
			captionEdit.ReplyMarkup = keyboard
		}
		err = b.request(ctx, captionEdit)
	}
	if err != nil && !notModified(err) {
		return fmt.Errorf("edit message %d: %w", ref.MessageID, err)
	}
	return nil
}

// DeliverContent hands a piece of content to a user. Channel posts are
// copied, bare files resent and anything else shared as a link.
func (b *Bot) DeliverContent(ctx context.Context, userID int64, content models.ContentRef) error {
	switch {
	case content.ChatID != 0 && content.MessageID != 0:
		copyCfg := tgbotapi.NewCopyMessage(userID, content.ChatID, content.MessageID)
		err := b.withRetry(ctx, "copy", func() error {
			_, err := b.api.CopyMessage(copyCfg)
			return err
		})
		if err != nil {
			return fmt.Errorf("copy message %d: %w", content.MessageID, err)
		}
	case content.FileID != "":
		doc := tgbotapi.NewDocument(userID, tgbotapi.FileID(content.FileID))
		doc.Caption = content.Caption
		if _, err := b.send(ctx, doc); err != nil {
			return fmt.Errorf("send file: %w", err)
		}
	case content.Link != "":
		msg := tgbotapi.NewMessage(userID, "🎬 "+content.Link)
		if _, err := b.send(ctx, msg); err != nil {
			return fmt.Errorf("send link: %w", err)
		}
	default:
		return fmt.Errorf("%w: nothing to deliver", shared.ErrInvalidContent)
	}

	b.logger.Info("Content delivered",
		zap.Int64("user_id", userID),
		zap.Int("message_id", content.MessageID),
		zap.String("link", content.Link),
	)
	return nil
}
