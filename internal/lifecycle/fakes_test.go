package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"moviebot/internal/catalog"
	"moviebot/internal/matcher"
	"moviebot/internal/models"
	"moviebot/internal/session"
	"moviebot/internal/storage/stubs"
)

const (
	testAdminID   = int64(1000)
	testUserID    = int64(42)
	testChannelID = int64(-1001234567890)
	testChannel   = "moviechannel"
	inceptionID   = int64(27205)
)

var errUnavailable = errors.New("service unavailable")

type userNotification struct {
	UserID int64
	Notification
}

type editedMessage struct {
	Ref MessageRef
	Notification
}

type delivery struct {
	UserID  int64
	Content models.ContentRef
}

type fakeNotifier struct {
	mu        sync.Mutex
	nextID    int
	user      []userNotification
	admin     []Notification
	edits     []editedMessage
	delivered []delivery

	notifyErr  error
	editErr    error
	deliverErr error
}

func (n *fakeNotifier) NotifyUser(ctx context.Context, userID int64, note Notification) (MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.notifyErr != nil {
		return MessageRef{}, n.notifyErr
	}
	n.nextID++
	n.user = append(n.user, userNotification{UserID: userID, Notification: note})
	return MessageRef{ChatID: userID, MessageID: n.nextID}, nil
}

func (n *fakeNotifier) NotifyAdmin(ctx context.Context, note Notification) (MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.notifyErr != nil {
		return MessageRef{}, n.notifyErr
	}
	n.nextID++
	n.admin = append(n.admin, note)
	return MessageRef{ChatID: testAdminID, MessageID: n.nextID}, nil
}

func (n *fakeNotifier) EditMessage(ctx context.Context, ref MessageRef, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.editErr != nil {
		return n.editErr
	}
	n.edits = append(n.edits, editedMessage{Ref: ref, Notification: note})
	return nil
}

func (n *fakeNotifier) DeliverContent(ctx context.Context, userID int64, content models.ContentRef) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.deliverErr != nil {
		return n.deliverErr
	}
	n.delivered = append(n.delivered, delivery{UserID: userID, Content: content})
	return nil
}

// userKinds lists what a user was told, sent or edited into their chat
func (n *fakeNotifier) userKinds(userID int64) []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var kinds []NotificationKind
	for _, note := range n.user {
		if note.UserID == userID {
			kinds = append(kinds, note.Kind)
		}
	}
	for _, edit := range n.edits {
		if edit.Ref.ChatID == userID {
			kinds = append(kinds, edit.Kind)
		}
	}
	return kinds
}

// sentToUser lists only the fresh messages a user received
func (n *fakeNotifier) sentToUser(userID int64) []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var kinds []NotificationKind
	for _, note := range n.user {
		if note.UserID == userID {
			kinds = append(kinds, note.Kind)
		}
	}
	return kinds
}

func (n *fakeNotifier) editsIn(chatID int64) []editedMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []editedMessage
	for _, edit := range n.edits {
		if edit.Ref.ChatID == chatID {
			out = append(out, edit)
		}
	}
	return out
}

func (n *fakeNotifier) adminKinds() []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var kinds []NotificationKind
	for _, note := range n.admin {
		kinds = append(kinds, note.Kind)
	}
	for _, edit := range n.edits {
		if edit.Ref.ChatID == testAdminID {
			kinds = append(kinds, edit.Kind)
		}
	}
	return kinds
}

type fakeMetadata struct {
	results   []models.Candidate
	details   map[int64]models.Candidate
	searchErr error
}

func (m *fakeMetadata) SearchTitle(ctx context.Context, query string) ([]models.Candidate, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.results, nil
}

func (m *fakeMetadata) GetDetails(ctx context.Context, tmdbID int64) (models.Candidate, error) {
	details, ok := m.details[tmdbID]
	if !ok {
		return models.Candidate{}, errUnavailable
	}
	return details, nil
}

type fakeChannel struct {
	mu       sync.Mutex
	nextID   int
	captions []string
	err      error
}

func (c *fakeChannel) PostContent(ctx context.Context, post ContentPost, caption string) (models.ContentRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return models.ContentRef{}, c.err
	}
	c.nextID++
	c.captions = append(c.captions, caption)
	return models.ContentRef{
		ChatID:    testChannelID,
		MessageID: 9000 + c.nextID,
		Caption:   caption,
		IsMedia:   true,
		FileID:    post.FileID,
	}, nil
}

// failingCatalog wraps a catalog and fails every lookup
type failingCatalog struct {
	Catalog
}

func (failingCatalog) FindExisting(ctx context.Context, tmdbID int64, title string) (models.CatalogEntry, bool, error) {
	return models.CatalogEntry{}, false, errUnavailable
}

func (failingCatalog) SearchVersions(ctx context.Context, tmdbID int64, title string) ([]models.ContentRef, error) {
	return nil, errUnavailable
}

type harness struct {
	ctrl     *Controller
	db       *stubs.MockDB
	index    *stubs.MockIndex
	journal  *stubs.MockJournal
	sessions *session.Store
	notifier *fakeNotifier
	metadata *fakeMetadata
	channel  *fakeChannel
	now      time.Time
}

func (h *harness) clock() time.Time { return h.now }

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func inception() models.Candidate {
	return models.Candidate{
		ID:          inceptionID,
		Title:       "Inception",
		ReleaseDate: "2010-07-15",
		Overview:    "A thief who steals corporate secrets through dream-sharing technology.",
		PosterPath:  "/inception.jpg",
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		db:       stubs.NewMockDB(),
		index:    stubs.NewMockIndex(),
		journal:  stubs.NewMockJournal(),
		notifier: &fakeNotifier{},
		channel:  &fakeChannel{},
		metadata: &fakeMetadata{
			results: []models.Candidate{
				inception(),
				{ID: 64956, Title: "Inception: The Cobol Job", ReleaseDate: "2010-12-07"},
			},
			details: map[int64]models.Candidate{inceptionID: inception()},
		},
		now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	h.db.SetClock(h.clock)

	logger := zap.NewNop()
	h.sessions = session.NewStore(h.db, time.Hour, logger).WithClock(h.clock)
	searcher := catalog.NewSearcher(h.db, h.index, matcher.New(matcher.DefaultThreshold, false), 0, logger)

	h.ctrl = New(Config{
		AdminChatID:     testAdminID,
		ChannelID:       testChannelID,
		ChannelUsername: testChannel,
	}, Deps{
		Requests: h.db,
		Sessions: h.sessions,
		Journal:  h.journal,
		Index:    h.index,
		Catalog:  searcher,
		Metadata: h.metadata,
		Notifier: h.notifier,
		Channel:  h.channel,
	}, logger).WithClock(h.clock)
	return h
}

// confirmInception drives a user through search, selection and confirmation
func (h *harness) confirmInception(t *testing.T, userID int64) ConfirmResult {
	t.Helper()
	ctx := context.Background()

	_, err := h.ctrl.StartSearch(ctx, userID, "Inception")
	if err != nil {
		t.Fatalf("StartSearch failed: %v", err)
	}
	if _, err := h.ctrl.OnSearchSelected(ctx, userID, 0); err != nil {
		t.Fatalf("OnSearchSelected failed: %v", err)
	}
	result, err := h.ctrl.OnConfirm(ctx, User{ID: userID, Name: "alice"}, true, 77)
	if err != nil {
		t.Fatalf("OnConfirm failed: %v", err)
	}
	return result
}

func (h *harness) seed(status models.RequestStatus, userID int64, at time.Time) int64 {
	return h.db.SeedRequest(models.MovieRequest{
		UserID:           userID,
		TMDBID:           inceptionID,
		TMDBTitle:        "Inception",
		Status:           status,
		RequestTimestamp: at,
		UpdatedAt:        at,
	})
}

// indexVersions posts one untagged Inception version per quality to the
// channel index, with message ids from 900
func (h *harness) indexVersions(t *testing.T, qualities ...string) {
	t.Helper()
	for i, quality := range qualities {
		err := h.index.UpsertEntry(context.Background(), models.CatalogEntry{
			ChatID:    testChannelID,
			MessageID: 900 + i,
			Caption:   fmt.Sprintf("Inception (2010) [%s]", quality),
			Link:      fmt.Sprintf("https://t.me/%s/%d", testChannel, 900+i),
			IsMedia:   true,
			Quality:   quality,
			PostedAt:  h.now,
		})
		if err != nil {
			t.Fatalf("UpsertEntry failed: %v", err)
		}
	}
}
