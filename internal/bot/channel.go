package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"moviebot/internal/catalog"
	"moviebot/internal/lifecycle"
	"moviebot/internal/models"
)

// PostContent copies an admin upload into the movie channel under caption
func (b *Bot) PostContent(ctx context.Context, post lifecycle.ContentPost, caption string) (models.ContentRef, error) {
	copyCfg := tgbotapi.NewCopyMessage(b.cfg.ChannelID, post.FromChatID, post.MessageID)
	copyCfg.Caption = caption

	var posted tgbotapi.MessageID
	err := b.withRetry(ctx, "post", func() error {
		id, err := b.api.CopyMessage(copyCfg)
		if err != nil {
			return err
		}
		posted = id
		return nil
	})
	if err != nil {
		return models.ContentRef{}, fmt.Errorf("post to channel: %w", err)
	}

	b.logger.Info("Content posted to channel",
		zap.Int64("channel_id", b.cfg.ChannelID),
		zap.Int("message_id", posted.MessageID),
	)

	return models.ContentRef{
		ChatID:    b.cfg.ChannelID,
		MessageID: posted.MessageID,
		Link:      catalog.MessageLink(b.cfg.ChannelUsername, b.cfg.ChannelID, posted.MessageID),
		Caption:   caption,
		IsMedia:   post.IsMedia,
		FileID:    post.FileID,
		PostedAt:  time.Now(),
	}, nil
}

// handleChannelPost indexes posts of the movie channel
func (b *Bot) handleChannelPost(ctx context.Context, msg *tgbotapi.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleChannelPost", zap.Any("panic", r))
		}
	}()

	if msg.Chat == nil || msg.Chat.ID != b.cfg.ChannelID {
		return
	}

	entry := channelEntry(msg)
	if entry.Caption == "" && !entry.IsMedia {
		return
	}

	req, err := b.ctrl.IngestChannelPost(ctx, entry)
	if err != nil {
		b.logger.Error("Failed to ingest channel post",
			zap.Int("message_id", msg.MessageID),
			zap.Error(err),
		)
		return
	}
	if req != nil {
		b.logger.Info("Channel post fulfilled request",
			zap.Int("message_id", msg.MessageID),
			zap.Int64("request_id", req.ID),
		)
	}
}

// channelEntry converts a channel message into an index entry
func channelEntry(msg *tgbotapi.Message) models.CatalogEntry {
	entry := models.CatalogEntry{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Caption:   msg.Caption,
		PostedAt:  msg.Time(),
	}
	if entry.Caption == "" {
		entry.Caption = msg.Text
	}
	if msg.Chat.UserName != "" {
		entry.Link = catalog.MessageLink(msg.Chat.UserName, msg.Chat.ID, msg.MessageID)
	}

	fileID, fileName, isMedia := mediaOf(msg)
	entry.FileID = fileID
	entry.FileName = fileName
	entry.IsMedia = isMedia
	return entry
}

// mediaOf extracts the file carried by a message
func mediaOf(msg *tgbotapi.Message) (fileID, fileName string, ok bool) {
	switch {
	case msg.Video != nil:
		return msg.Video.FileID, msg.Video.FileName, true
	case msg.Document != nil:
		return msg.Document.FileID, msg.Document.FileName, true
	case msg.Animation != nil:
		return msg.Animation.FileID, msg.Animation.FileName, true
	}
	return "", "", false
}
