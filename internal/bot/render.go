package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"moviebot/internal/lifecycle"
	"moviebot/internal/models"
)

const overviewLimit = 300

var defaultLabels = map[lifecycle.ActionKind]string{
	lifecycle.ActionNoneCorrect:  "❌ None of these",
	lifecycle.ActionConfirm:      "✅ Yes, request it",
	lifecycle.ActionCancel:       "✖️ Cancel",
	lifecycle.ActionApprove:      "✅ Approve",
	lifecycle.ActionReject:       "⛔ Reject",
	lifecycle.ActionMethodSearch: "🔎 Search channel",
	lifecycle.ActionMethodLink:   "🔗 Send link",
	lifecycle.ActionMethodUpload: "📤 Upload file",
	lifecycle.ActionOpenLink:     "▶️ Open",
}

// renderText builds the message body for a notification
func renderText(n lifecycle.Notification) string {
	switch n.Kind {
	case lifecycle.KindSearchResults:
		var sb strings.Builder
		sb.WriteString("🎬 Select your movie:\n")
		for i, c := range n.Candidates {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, movieTitle(c))
		}
		return sb.String()
	case lifecycle.KindNoResults:
		return "Nothing found. Try another title."
	case lifecycle.KindConfirmPrompt:
		return confirmText(n.Movie)
	case lifecycle.KindSearchCancelled:
		return "Search cancelled. Send another title whenever you like."
	case lifecycle.KindAlreadyAvailable:
		return fmt.Sprintf("🎉 %s is already available!", movieName(n))
	case lifecycle.KindAlreadyRequested:
		return fmt.Sprintf("You already requested %s. Current status: %s.", movieName(n), statusName(n.Request))
	case lifecycle.KindRequestSubmitted:
		return fmt.Sprintf("📨 Your request for %s was sent to the admins.", movieName(n))
	case lifecycle.KindRequestApproved:
		return fmt.Sprintf("👍 Your request for %s was approved. We'll let you know when it is ready.", movieName(n))
	case lifecycle.KindRequestRejected:
		return fmt.Sprintf("Sorry, your request for %s was rejected.", movieName(n))
	case lifecycle.KindRequestFulfilled:
		return fmt.Sprintf("🍿 %s is ready!%s", movieName(n), contentSuffix(n.Content))
	case lifecycle.KindExtraContent:
		return fmt.Sprintf("➕ Another version of %s was added.%s", movieName(n), contentSuffix(n.Content))
	case lifecycle.KindQualityChoice:
		return fmt.Sprintf("📀 %s is available in several versions. Pick one:", movieName(n))
	case lifecycle.KindQualityUnavailable:
		return "That version could not be sent. Please pick another one."

	case lifecycle.KindAdminNewRequest:
		return adminText("🆕 New request", n)
	case lifecycle.KindAdminChooseMethod:
		return adminText("✅ Approved. How should it be fulfilled?", n)
	case lifecycle.KindAdminAwaitingLink:
		return adminText("🔗 Send the link for", n)
	case lifecycle.KindAdminAwaitingUpload:
		return adminText("📤 Send the video file for", n)
	case lifecycle.KindAdminNoFileFound:
		return adminText("🔎 Nothing found in the channel. Send a link or upload a file for", n)
	case lifecycle.KindAdminUserChoosing:
		return adminText(fmt.Sprintf("📀 %d versions found, waiting for the user to choose", len(n.Options)), n)
	case lifecycle.KindAdminFulfilled:
		return adminText("🍿 Fulfilled", n) + contentSuffix(n.Content)
	case lifecycle.KindAdminRejected:
		return adminText("⛔ Rejected", n)
	}
	return string(n.Kind)
}

func movieTitle(c models.Candidate) string {
	if year := c.Year(); year != "" {
		return fmt.Sprintf("%s (%s)", c.Title, year)
	}
	return c.Title
}

// movieName picks the best title available on a notification
func movieName(n lifecycle.Notification) string {
	if n.Movie != nil {
		return movieTitle(*n.Movie)
	}
	if n.Request != nil {
		return movieTitle(models.Candidate{Title: n.Request.TMDBTitle, ReleaseDate: n.Request.TMDBReleaseDate})
	}
	return "this movie"
}

func statusName(req *models.MovieRequest) string {
	if req == nil {
		return "unknown"
	}
	return strings.ReplaceAll(string(req.Status), "_", " ")
}

func confirmText(movie *models.Candidate) string {
	if movie == nil {
		return "Request this movie?"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎬 %s", movieTitle(*movie))
	if overview := truncate(movie.Overview, overviewLimit); overview != "" {
		sb.WriteString("\n\n")
		sb.WriteString(overview)
	}
	sb.WriteString("\n\nRequest this movie?")
	return sb.String()
}

func adminText(headline string, n lifecycle.Notification) string {
	var sb strings.Builder
	sb.WriteString(headline)
	if n.Request != nil {
		req := n.Request
		fmt.Fprintf(&sb, "\n\n#%d %s\nTMDB: %d", req.ID, movieName(n), req.TMDBID)
		fmt.Fprintf(&sb, "\nFrom: %s (%d)", req.UserName, req.UserID)
		fmt.Fprintf(&sb, "\nStatus: %s", statusName(req))
	}
	return sb.String()
}

func contentSuffix(content *models.ContentRef) string {
	if content == nil || content.Link == "" {
		return ""
	}
	return "\n" + content.Link
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

// renderKeyboard turns actions into an inline keyboard, nil when there are none
func (b *Bot) renderKeyboard(actions []lifecycle.Action) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var currentRow []tgbotapi.InlineKeyboardButton

	flush := func() {
		if len(currentRow) > 0 {
			rows = append(rows, currentRow)
			currentRow = nil
		}
	}

	for _, action := range actions {
		button, ok := b.button(action)
		if !ok {
			continue
		}
		// Choices get a row each, everything else is laid out two per row
		if choiceAction(action.Kind) {
			flush()
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(button))
			continue
		}
		currentRow = append(currentRow, button)
		if len(currentRow) == 2 {
			flush()
		}
	}
	flush()

	if len(rows) == 0 {
		return nil
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}

func choiceAction(kind lifecycle.ActionKind) bool {
	switch kind {
	case lifecycle.ActionSelectMovie, lifecycle.ActionSelectQuality, lifecycle.ActionSendVersion:
		return true
	}
	return false
}

func (b *Bot) button(action lifecycle.Action) (tgbotapi.InlineKeyboardButton, bool) {
	label := action.Label
	if label == "" {
		label = defaultLabels[action.Kind]
	}

	if action.Kind == lifecycle.ActionOpenLink {
		if action.URL == "" {
			return tgbotapi.InlineKeyboardButton{}, false
		}
		return tgbotapi.NewInlineKeyboardButtonURL(label, action.URL), true
	}

	data, err := encodeAction(action)
	if err != nil {
		b.logger.Warn("Dropping button", zap.String("action", string(action.Kind)), zap.Error(err))
		return tgbotapi.InlineKeyboardButton{}, false
	}
	return tgbotapi.NewInlineKeyboardButtonData(label, data), true
}
