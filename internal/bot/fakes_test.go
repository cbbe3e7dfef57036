package bot

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"moviebot/internal/lifecycle"
	"moviebot/internal/models"
)

const (
	testAdminID   = int64(1000)
	testUserID    = int64(42)
	testChannelID = int64(-1001234567890)
)

// fakeAPI records every call instead of talking to Telegram
type fakeAPI struct {
	mu sync.Mutex

	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	copies   []tgbotapi.CopyMessageConfig

	// Errors are consumed one per call
	sendErrs    []error
	requestErrs []error
	copyErrs    []error

	sendCalls int
	nextID    int
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sendCalls++
	if err := pop(&f.sendErrs); err != nil {
		return tgbotapi.Message{}, err
	}
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := pop(&f.requestErrs); err != nil {
		return nil, err
	}
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) CopyMessage(config tgbotapi.CopyMessageConfig) (tgbotapi.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := pop(&f.copyErrs); err != nil {
		return tgbotapi.MessageID{}, err
	}
	f.copies = append(f.copies, config)
	f.nextID++
	return tgbotapi.MessageID{MessageID: f.nextID}, nil
}

func (f *fakeAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) GetWebhookInfo() (tgbotapi.WebhookInfo, error) {
	return tgbotapi.WebhookInfo{}, nil
}

// texts returns the text of every plain message sent
func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg.Text)
		}
	}
	return out
}

// callbackAnswers returns the toast texts of answered callbacks
func (f *fakeAPI) callbackAnswers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb.Text)
		}
	}
	return out
}

func (f *fakeAPI) keyboardEdits() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.requests {
		if _, ok := c.(tgbotapi.EditMessageReplyMarkupConfig); ok {
			n++
		}
	}
	return n
}

type call struct {
	name      string
	userID    int64
	requestID int64
	index     int
	text      string
	confirmed bool
	method    lifecycle.FulfillmentMethod
	post      lifecycle.ContentPost
	entry     models.CatalogEntry
}

// fakeLifecycle records the controller calls made by the bot
type fakeLifecycle struct {
	mu    sync.Mutex
	calls []call

	admins map[int64]bool
	err    error // returned by every operation
	// linkErr overrides err for OnAdminLink
	linkErr error

	requests []models.MovieRequest
	history  []models.TransitionEvent
}

func newFakeLifecycle() *fakeLifecycle {
	return &fakeLifecycle{admins: map[int64]bool{testAdminID: true}}
}

func (f *fakeLifecycle) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeLifecycle) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.name)
	}
	return out
}

func (f *fakeLifecycle) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeLifecycle) IsAdmin(userID int64) bool { return f.admins[userID] }

func (f *fakeLifecycle) StartSearch(ctx context.Context, userID int64, query string) ([]models.Candidate, error) {
	f.record(call{name: "StartSearch", userID: userID, text: query})
	return nil, f.err
}

func (f *fakeLifecycle) OnSearchSelected(ctx context.Context, userID int64, index int) (models.Candidate, error) {
	f.record(call{name: "OnSearchSelected", userID: userID, index: index})
	return models.Candidate{ID: 603, Title: "The Matrix"}, f.err
}

func (f *fakeLifecycle) OnNoneCorrect(ctx context.Context, userID int64) error {
	f.record(call{name: "OnNoneCorrect", userID: userID})
	return f.err
}

func (f *fakeLifecycle) OnConfirm(ctx context.Context, user lifecycle.User, confirmed bool, userMessageID int) (lifecycle.ConfirmResult, error) {
	f.record(call{name: "OnConfirm", userID: user.ID, text: user.Name, confirmed: confirmed, index: userMessageID})
	return lifecycle.ConfirmResult{Outcome: lifecycle.Submitted}, f.err
}

func (f *fakeLifecycle) OnAdminApprove(ctx context.Context, adminID, requestID int64) (*models.MovieRequest, error) {
	f.record(call{name: "OnAdminApprove", userID: adminID, requestID: requestID})
	return &models.MovieRequest{ID: requestID}, f.err
}

func (f *fakeLifecycle) OnAdminReject(ctx context.Context, adminID, requestID int64) (*models.MovieRequest, error) {
	f.record(call{name: "OnAdminReject", userID: adminID, requestID: requestID})
	return &models.MovieRequest{ID: requestID}, f.err
}

func (f *fakeLifecycle) OnFulfillmentMethod(ctx context.Context, adminID, requestID int64, method lifecycle.FulfillmentMethod) (lifecycle.MethodOutcome, error) {
	f.record(call{name: "OnFulfillmentMethod", userID: adminID, requestID: requestID, method: method})
	return lifecycle.AwaitingLink, f.err
}

func (f *fakeLifecycle) OnAdminLink(ctx context.Context, adminID int64, text string) (lifecycle.SubmitOutcome, error) {
	f.record(call{name: "OnAdminLink", userID: adminID, text: text})
	if f.linkErr != nil {
		return 0, f.linkErr
	}
	return lifecycle.FulfilledNow, f.err
}

func (f *fakeLifecycle) OnAdminUpload(ctx context.Context, adminID int64, post lifecycle.ContentPost) (lifecycle.SubmitOutcome, error) {
	f.record(call{name: "OnAdminUpload", userID: adminID, post: post})
	return lifecycle.FulfilledNow, f.err
}

func (f *fakeLifecycle) OnAdminSelectVersion(ctx context.Context, adminID, requestID int64, messageID int) (lifecycle.SubmitOutcome, error) {
	f.record(call{name: "OnAdminSelectVersion", userID: adminID, requestID: requestID, index: messageID})
	return lifecycle.FulfilledNow, f.err
}

func (f *fakeLifecycle) OnUserSelectQuality(ctx context.Context, userID, requestID int64, messageID int) (*models.MovieRequest, error) {
	f.record(call{name: "OnUserSelectQuality", userID: userID, requestID: requestID, index: messageID})
	return &models.MovieRequest{ID: requestID}, f.err
}

func (f *fakeLifecycle) IngestChannelPost(ctx context.Context, entry models.CatalogEntry) (*models.MovieRequest, error) {
	f.record(call{name: "IngestChannelPost", entry: entry})
	return nil, f.err
}

func (f *fakeLifecycle) ListUserRequests(ctx context.Context, userID int64) ([]models.MovieRequest, error) {
	f.record(call{name: "ListUserRequests", userID: userID})
	return f.requests, f.err
}

func (f *fakeLifecycle) RequestHistory(ctx context.Context, actorID, requestID int64) ([]models.TransitionEvent, error) {
	f.record(call{name: "RequestHistory", userID: actorID, requestID: requestID})
	return f.history, f.err
}

func newTestBot() (*Bot, *fakeAPI, *fakeLifecycle) {
	api := &fakeAPI{}
	ctrl := newFakeLifecycle()
	b := newBot(api, Config{
		AdminChatID:     testAdminID,
		ChannelID:       testChannelID,
		ChannelUsername: "moviechannel",
		SendAttempts:    3,
		RetryBase:       time.Millisecond,
	}, zap.NewNop())
	b.SetLifecycle(ctrl)
	return b, api, ctrl
}

func privateMessage(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, FirstName: "Alice", UserName: "alice"},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
	}
}

func commandMessage(userID int64, text string) *tgbotapi.Message {
	msg := privateMessage(userID, text)
	length := len(text)
	for i, r := range text {
		if r == ' ' {
			length = i
			break
		}
	}
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
	return msg
}
