package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"moviebot/internal/lifecycle"
	"moviebot/internal/models"
)

// telegramAPI is the subset of *tgbotapi.BotAPI the bot uses
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	CopyMessage(config tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetWebhookInfo() (tgbotapi.WebhookInfo, error)
}

// Lifecycle is the request controller driven by incoming updates
type Lifecycle interface {
	IsAdmin(userID int64) bool

	StartSearch(ctx context.Context, userID int64, query string) ([]models.Candidate, error)
	OnSearchSelected(ctx context.Context, userID int64, index int) (models.Candidate, error)
	OnNoneCorrect(ctx context.Context, userID int64) error
	OnConfirm(ctx context.Context, user lifecycle.User, confirmed bool, userMessageID int) (lifecycle.ConfirmResult, error)

	OnAdminApprove(ctx context.Context, adminID, requestID int64) (*models.MovieRequest, error)
	OnAdminReject(ctx context.Context, adminID, requestID int64) (*models.MovieRequest, error)
	OnFulfillmentMethod(ctx context.Context, adminID, requestID int64, method lifecycle.FulfillmentMethod) (lifecycle.MethodOutcome, error)
	OnAdminLink(ctx context.Context, adminID int64, text string) (lifecycle.SubmitOutcome, error)
	OnAdminUpload(ctx context.Context, adminID int64, post lifecycle.ContentPost) (lifecycle.SubmitOutcome, error)
	OnAdminSelectVersion(ctx context.Context, adminID, requestID int64, messageID int) (lifecycle.SubmitOutcome, error)

	OnUserSelectQuality(ctx context.Context, userID, requestID int64, messageID int) (*models.MovieRequest, error)
	IngestChannelPost(ctx context.Context, entry models.CatalogEntry) (*models.MovieRequest, error)

	ListUserRequests(ctx context.Context, userID int64) ([]models.MovieRequest, error)
	RequestHistory(ctx context.Context, actorID, requestID int64) ([]models.TransitionEvent, error)
}

// Config holds transport settings
type Config struct {
	AdminChatID     int64
	ChannelID       int64
	ChannelUsername string
	ImageBaseURL    string

	// Sends are retried with exponential backoff starting at RetryBase
	SendAttempts int
	RetryBase    time.Duration
}

const (
	defaultSendAttempts = 3
	defaultRetryBase    = 500 * time.Millisecond
)

// Bot represents the Telegram bot wrapper. It is the transport in front of
// the lifecycle controller and also implements its Notifier and Channel.
type Bot struct {
	api      telegramAPI
	ctrl     Lifecycle
	cfg      Config
	username string
	logger   *zap.Logger
}

var (
	_ lifecycle.Notifier = (*Bot)(nil)
	_ lifecycle.Channel  = (*Bot)(nil)
)
