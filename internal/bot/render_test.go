package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviebot/internal/lifecycle"
	"moviebot/internal/models"
)

func TestRenderText_SearchResults(t *testing.T) {
	text := renderText(lifecycle.Notification{
		Kind: lifecycle.KindSearchResults,
		Candidates: []models.Candidate{
			{ID: 603, Title: "The Matrix", ReleaseDate: "1999-03-30"},
			{ID: 604, Title: "The Matrix Reloaded"},
		},
	})
	assert.Contains(t, text, "1. The Matrix (1999)")
	assert.Contains(t, text, "2. The Matrix Reloaded")
}

func TestRenderText_UsesRequestSnapshot(t *testing.T) {
	req := &models.MovieRequest{
		ID:              5,
		UserID:          testUserID,
		UserName:        "@alice",
		TMDBID:          27205,
		TMDBTitle:       "Inception",
		TMDBReleaseDate: "2010-07-15",
		Status:          models.StatusApprovedNoFileFound,
	}

	text := renderText(lifecycle.Notification{Kind: lifecycle.KindAdminNewRequest, Request: req})
	assert.Contains(t, text, "#5 Inception (2010)")
	assert.Contains(t, text, "TMDB: 27205")
	assert.Contains(t, text, "@alice (42)")
	assert.Contains(t, text, "approved no file found")

	text = renderText(lifecycle.Notification{
		Kind:    lifecycle.KindRequestFulfilled,
		Request: req,
		Content: &models.ContentRef{Link: "https://t.me/moviechannel/10"},
	})
	assert.Contains(t, text, "Inception (2010) is ready")
	assert.True(t, strings.HasSuffix(text, "https://t.me/moviechannel/10"))
}

func TestRenderText_ConfirmPrompt(t *testing.T) {
	overview := strings.Repeat("a", overviewLimit+50)
	text := renderText(lifecycle.Notification{
		Kind:  lifecycle.KindConfirmPrompt,
		Movie: &models.Candidate{Title: "Inception", ReleaseDate: "2010-07-15", Overview: overview},
	})
	assert.Contains(t, text, "Inception (2010)")
	assert.Contains(t, text, "…")
	assert.NotContains(t, text, overview)
	assert.True(t, strings.HasSuffix(text, "Request this movie?"))
}

func TestRenderText_EveryKind(t *testing.T) {
	kinds := []lifecycle.NotificationKind{
		lifecycle.KindSearchResults, lifecycle.KindNoResults, lifecycle.KindConfirmPrompt,
		lifecycle.KindSearchCancelled, lifecycle.KindAlreadyAvailable, lifecycle.KindAlreadyRequested,
		lifecycle.KindRequestSubmitted, lifecycle.KindRequestApproved, lifecycle.KindRequestRejected,
		lifecycle.KindRequestFulfilled, lifecycle.KindExtraContent, lifecycle.KindQualityChoice,
		lifecycle.KindQualityUnavailable, lifecycle.KindAdminNewRequest, lifecycle.KindAdminChooseMethod,
		lifecycle.KindAdminAwaitingLink, lifecycle.KindAdminAwaitingUpload, lifecycle.KindAdminNoFileFound,
		lifecycle.KindAdminUserChoosing, lifecycle.KindAdminFulfilled, lifecycle.KindAdminRejected,
	}
	for _, kind := range kinds {
		text := renderText(lifecycle.Notification{Kind: kind})
		assert.NotEmpty(t, text, kind)
		assert.NotEqual(t, string(kind), text, "kind %s has a template", kind)
	}
}

func TestRenderKeyboard(t *testing.T) {
	b, _, _ := newTestBot()

	assert.Nil(t, b.renderKeyboard(nil))

	keyboard := b.renderKeyboard([]lifecycle.Action{
		{Kind: lifecycle.ActionSelectMovie, Index: 0, Label: "The Matrix (1999)"},
		{Kind: lifecycle.ActionSelectMovie, Index: 1, Label: "The Matrix Reloaded (2003)"},
		{Kind: lifecycle.ActionNoneCorrect},
	})
	require.NotNil(t, keyboard)
	rows := keyboard.InlineKeyboard
	require.Len(t, rows, 3)
	assert.Equal(t, "The Matrix (1999)", rows[0][0].Text)
	require.NotNil(t, rows[1][0].CallbackData)
	assert.Equal(t, "sm:1", *rows[1][0].CallbackData)
	assert.Equal(t, defaultLabels[lifecycle.ActionNoneCorrect], rows[2][0].Text)

	// Method buttons are laid out in pairs
	keyboard = b.renderKeyboard([]lifecycle.Action{
		{Kind: lifecycle.ActionMethodSearch, RequestID: 1},
		{Kind: lifecycle.ActionMethodLink, RequestID: 1},
		{Kind: lifecycle.ActionMethodUpload, RequestID: 1},
		{Kind: lifecycle.ActionReject, RequestID: 1},
		{Kind: lifecycle.ActionOpenLink, URL: "https://t.me/moviechannel/10"},
	})
	require.NotNil(t, keyboard)
	rows = keyboard.InlineKeyboard
	require.Len(t, rows, 3)
	assert.Len(t, rows[0], 2)
	assert.Len(t, rows[1], 2)
	require.NotNil(t, rows[2][0].URL)
	assert.Equal(t, "https://t.me/moviechannel/10", *rows[2][0].URL)

	// A link button without a URL is dropped
	assert.Nil(t, b.renderKeyboard([]lifecycle.Action{{Kind: lifecycle.ActionOpenLink}}))
}
