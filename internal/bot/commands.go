package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"moviebot/internal/models"
)

const helpText = `Welcome to the Movie Request Bot! 🎬

Send me a movie title and I'll look it up. If it is already in the channel you get it right away, otherwise your request goes to the admins.

Available commands:
/request <title> - Search for a movie
/myrequests - Show your latest requests
/history <id> - Show the status history of a request
/help - Show this message`

// handleCommand routes slash commands
func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start", "help":
		b.reply(ctx, message.Chat.ID, helpText)
	case "request", "search":
		b.handleRequest(ctx, message)
	case "myrequests":
		b.handleMyRequests(ctx, message)
	case "history":
		b.handleHistory(ctx, message)
	default:
		b.reply(ctx, message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleRequest(ctx context.Context, message *tgbotapi.Message) {
	query := strings.TrimSpace(message.CommandArguments())
	if query == "" {
		b.reply(ctx, message.Chat.ID, "Please add a title, for example: /request The Matrix")
		return
	}
	b.search(ctx, message.Chat.ID, message.From.ID, query)
}

// handleMyRequests lists the latest requests of the sender
func (b *Bot) handleMyRequests(ctx context.Context, message *tgbotapi.Message) {
	reqs, err := b.ctrl.ListUserRequests(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to list requests",
			zap.Int64("user_id", message.From.ID),
			zap.Error(err),
		)
		b.replyError(ctx, message.Chat.ID, err)
		return
	}
	b.reply(ctx, message.Chat.ID, formatRequests(reqs))
}

func formatRequests(reqs []models.MovieRequest) string {
	if len(reqs) == 0 {
		return "You have no requests yet. Send me a movie title to start."
	}

	var sb strings.Builder
	sb.WriteString("📋 Your requests:\n")
	for _, req := range reqs {
		title := movieTitle(models.Candidate{Title: req.TMDBTitle, ReleaseDate: req.TMDBReleaseDate})
		fmt.Fprintf(&sb, "\n#%d %s %s - %s", req.ID, statusEmoji(req.Status), title, statusName(&req))
		if req.Status == models.StatusFulfilled && req.FulfilledLink != "" {
			fmt.Fprintf(&sb, "\n    %s", req.FulfilledLink)
		}
		for _, content := range req.Contents {
			if content.Link == "" || content.Link == req.FulfilledLink {
				continue
			}
			if content.Quality != "" {
				fmt.Fprintf(&sb, "\n    + %s (%s)", content.Link, content.Quality)
			} else {
				fmt.Fprintf(&sb, "\n    + %s", content.Link)
			}
		}
	}
	return sb.String()
}

func statusEmoji(status models.RequestStatus) string {
	switch status {
	case models.StatusPending:
		return "⏳"
	case models.StatusApproved, models.StatusApprovedNoFileFound:
		return "👍"
	case models.StatusFulfilled:
		return "🍿"
	case models.StatusRejected:
		return "⛔"
	}
	return "•"
}

// handleHistory shows the audit trail of one request
func (b *Bot) handleHistory(ctx context.Context, message *tgbotapi.Message) {
	arg := strings.TrimPrefix(strings.TrimSpace(message.CommandArguments()), "#")
	requestID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || requestID <= 0 {
		b.reply(ctx, message.Chat.ID, "Usage: /history <request id>")
		return
	}

	events, err := b.ctrl.RequestHistory(ctx, message.From.ID, requestID)
	if err != nil {
		b.replyError(ctx, message.Chat.ID, err)
		return
	}
	b.reply(ctx, message.Chat.ID, formatHistory(requestID, events))
}

func formatHistory(requestID int64, events []models.TransitionEvent) string {
	if len(events) == 0 {
		return fmt.Sprintf("No history recorded for request #%d.", requestID)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🗂 History of request #%d:\n", requestID)
	for _, event := range events {
		from := string(event.From)
		if from == "" {
			from = "created"
		}
		fmt.Fprintf(&sb, "\n%s  %s → %s (%s)",
			event.OccurredAt.UTC().Format("2006-01-02 15:04"), from, event.To, event.Actor)
	}
	return sb.String()
}
