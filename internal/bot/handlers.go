package bot

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"moviebot/internal/lifecycle"
	"moviebot/internal/shared"
)

const genericErrorText = "An error occurred while processing your request. Please try again."

// handleMessage processes a single message
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage", zap.Any("panic", r))
			b.reply(ctx, message.Chat.ID, genericErrorText)
		}
	}()

	if message.From == nil || message.Chat == nil {
		return
	}
	userID := message.From.ID

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	isAdmin := b.ctrl.IsAdmin(userID)

	if _, _, isMedia := mediaOf(message); isMedia {
		if !isAdmin {
			b.reply(ctx, message.Chat.ID, "Send me a movie title to search for it.")
			return
		}
		b.handleAdminUpload(ctx, message)
		return
	}

	text := strings.TrimSpace(message.Text)
	if text == "" {
		return
	}

	if isAdmin {
		outcome, err := b.ctrl.OnAdminLink(ctx, userID, text)
		switch {
		case err == nil:
			b.reply(ctx, message.Chat.ID, submitText(outcome))
			return
		case !errors.Is(err, shared.ErrInvalidSession):
			b.replyError(ctx, message.Chat.ID, err)
			return
		}
		// Not awaiting a link, so the text is an ordinary search
	}

	// Searches only happen in private chats
	if !message.Chat.IsPrivate() {
		return
	}
	b.search(ctx, message.Chat.ID, userID, text)
}

func (b *Bot) handleAdminUpload(ctx context.Context, message *tgbotapi.Message) {
	fileID, fileName, isMedia := mediaOf(message)
	post := lifecycle.ContentPost{
		FromChatID: message.Chat.ID,
		MessageID:  message.MessageID,
		FileID:     fileID,
		FileName:   fileName,
		Caption:    message.Caption,
		IsMedia:    isMedia,
	}

	outcome, err := b.ctrl.OnAdminUpload(ctx, message.From.ID, post)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidSession) {
			b.reply(ctx, message.Chat.ID, "No request is waiting for an upload. Choose \"Upload file\" on a request first.")
			return
		}
		b.replyError(ctx, message.Chat.ID, err)
		return
	}
	b.reply(ctx, message.Chat.ID, submitText(outcome))
}

func (b *Bot) search(ctx context.Context, chatID, userID int64, query string) {
	if _, err := b.ctrl.StartSearch(ctx, userID, query); err != nil {
		b.logger.Warn("Search failed",
			zap.Int64("user_id", userID),
			zap.String("query", query),
			zap.Error(err),
		)
		b.replyError(ctx, chatID, err)
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery", zap.Any("panic", r))
		}
	}()

	if query.From == nil {
		return
	}

	action, err := decodeAction(query.Data)
	if err != nil {
		b.logger.Warn("Unknown callback data",
			zap.Int64("user_id", query.From.ID),
			zap.String("callback_data", query.Data),
		)
		b.answerCallback(query.ID, "This button is no longer supported.")
		return
	}

	notice, err := b.dispatchAction(ctx, query, action)
	if err != nil {
		b.logger.Info("Callback rejected",
			zap.Int64("user_id", query.From.ID),
			zap.String("action", string(action.Kind)),
			zap.Error(err),
		)
		b.answerCallback(query.ID, errorText(err))
		return
	}
	b.answerCallback(query.ID, notice)

	// Spent user choices lose their buttons; admin views are re-rendered by the controller
	if query.Message != nil && userAction(action.Kind) {
		b.clearKeyboard(ctx, query.Message.Chat.ID, query.Message.MessageID)
	}
}

func userAction(kind lifecycle.ActionKind) bool {
	switch kind {
	case lifecycle.ActionSelectMovie, lifecycle.ActionNoneCorrect,
		lifecycle.ActionConfirm, lifecycle.ActionCancel, lifecycle.ActionSelectQuality:
		return true
	}
	return false
}

// replyError tells the user why their input was refused
func (b *Bot) replyError(ctx context.Context, chatID int64, err error) {
	b.reply(ctx, chatID, errorText(err))
}

func errorText(err error) string {
	switch {
	case errors.Is(err, shared.ErrInvalidSession):
		return "This step has expired. Send a movie title to start again."
	case errors.Is(err, shared.ErrIndexOutOfRange):
		return "That option is not available."
	case errors.Is(err, shared.ErrInvalidContent):
		return "That input was not accepted. Send a valid link or a video file."
	case errors.Is(err, shared.ErrUnauthorized):
		return "You are not allowed to do that."
	case errors.Is(err, shared.ErrInvalidTransition):
		return "This request was already handled."
	case errors.Is(err, shared.ErrNotFound):
		return "Request not found."
	case errors.Is(err, shared.ErrExternalService):
		return "A service is unavailable right now. Please try again later."
	}
	return genericErrorText
}

func submitText(outcome lifecycle.SubmitOutcome) string {
	switch outcome {
	case lifecycle.FulfilledNow:
		return "✅ Request fulfilled and the user was notified."
	case lifecycle.ExtraAdded:
		return "➕ Added as an extra version of an already fulfilled request."
	case lifecycle.DuplicateContent:
		return "This content was already attached to the request."
	}
	return "Done."
}
