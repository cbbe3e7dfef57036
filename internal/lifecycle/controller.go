package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"moviebot/internal/catalog"
	"moviebot/internal/models"
	"moviebot/internal/session"
	"moviebot/internal/shared"
	"moviebot/internal/storage"
)

const (
	DefaultExternalTimeout   = 10 * time.Second
	DefaultSearchResultLimit = 5
	DefaultHistoryLimit      = 10
)

// Config holds controller settings
type Config struct {
	AdminChatID       int64
	AdminUserIDs      []int64
	ChannelID         int64
	ChannelUsername   string
	ExternalTimeout   time.Duration
	SearchResultLimit int
	HistoryLimit      int
}

// Deps are the stores and collaborators the controller drives
type Deps struct {
	Requests storage.RequestStore
	Sessions *session.Store
	Journal  storage.Journal
	Index    storage.ContentIndex
	Catalog  Catalog
	Metadata MetadataProvider
	Notifier Notifier
	Channel  Channel
}

// Controller owns the movie request lifecycle. It is the only writer of
// request status.
type Controller struct {
	cfg      Config
	requests storage.RequestStore
	sessions *session.Store
	journal  storage.Journal
	index    storage.ContentIndex
	catalog  Catalog
	metadata MetadataProvider
	notifier Notifier
	channel  Channel
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a lifecycle controller
func New(cfg Config, deps Deps, logger *zap.Logger) *Controller {
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = DefaultExternalTimeout
	}
	if cfg.SearchResultLimit <= 0 {
		cfg.SearchResultLimit = DefaultSearchResultLimit
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}

	return &Controller{
		cfg:      cfg,
		requests: deps.Requests,
		sessions: deps.Sessions,
		journal:  deps.Journal,
		index:    deps.Index,
		catalog:  deps.Catalog,
		metadata: deps.Metadata,
		notifier: deps.Notifier,
		channel:  deps.Channel,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// IsAdmin reports whether userID may act on requests
func (c *Controller) IsAdmin(userID int64) bool {
	if userID == c.cfg.AdminChatID {
		return true
	}
	for _, id := range c.cfg.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Controller) requireAdmin(userID int64) error {
	if !c.IsAdmin(userID) {
		return fmt.Errorf("%w: user %d is not an admin", shared.ErrUnauthorized, userID)
	}
	return nil
}

// external bounds a collaborator call
func (c *Controller) external(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.ExternalTimeout)
}

func externalErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", shared.ErrExternalService, op, err)
}

func (c *Controller) notifyUser(ctx context.Context, userID int64, n Notification) (MessageRef, bool) {
	ctx, cancel := c.external(ctx)
	defer cancel()

	ref, err := c.notifier.NotifyUser(ctx, userID, n)
	if err != nil {
		c.logger.Warn("Failed to notify user",
			zap.Int64("user_id", userID),
			zap.String("kind", string(n.Kind)),
			zap.Error(err),
		)
		return MessageRef{}, false
	}
	return ref, true
}

func (c *Controller) notifyAdmin(ctx context.Context, n Notification) (MessageRef, bool) {
	ctx, cancel := c.external(ctx)
	defer cancel()

	ref, err := c.notifier.NotifyAdmin(ctx, n)
	if err != nil {
		c.logger.Warn("Failed to notify admin",
			zap.String("kind", string(n.Kind)),
			zap.Error(err),
		)
		return MessageRef{}, false
	}
	return ref, true
}

// updateAdminView edits the admin message of req, or sends a new one when
// the request has none or the edit fails
func (c *Controller) updateAdminView(ctx context.Context, req *models.MovieRequest, n Notification) {
	if req.AdminMessageID != 0 {
		ectx, cancel := c.external(ctx)
		err := c.notifier.EditMessage(ectx, MessageRef{ChatID: c.cfg.AdminChatID, MessageID: req.AdminMessageID}, n)
		cancel()
		if err == nil {
			return
		}
		c.logger.Warn("Failed to edit admin message, sending a new one",
			zap.Int64("request_id", req.ID),
			zap.Int("admin_message_id", req.AdminMessageID),
			zap.Error(err),
		)
	}
	c.notifyAdmin(ctx, n)
}

// notifyRequester rewrites the user's confirmation message with the outcome of
// req, or sends a new message when there is none or the edit fails
func (c *Controller) notifyRequester(ctx context.Context, req *models.MovieRequest, n Notification) {
	if req.OriginalRequestMessageID != 0 {
		ectx, cancel := c.external(ctx)
		err := c.notifier.EditMessage(ectx, MessageRef{ChatID: req.UserID, MessageID: req.OriginalRequestMessageID}, n)
		cancel()
		if err == nil {
			return
		}
		c.logger.Warn("Failed to edit request message, sending a new one",
			zap.Int64("request_id", req.ID),
			zap.Int("message_id", req.OriginalRequestMessageID),
			zap.Error(err),
		)
	}
	c.notifyUser(ctx, req.UserID, n)
}

func (c *Controller) record(ctx context.Context, req *models.MovieRequest, from, to models.RequestStatus, actor string) {
	if c.journal == nil {
		return
	}
	// Version 7 ids sort by creation time, so events sharing a timestamp keep their order
	eventID, err := uuid.NewV7()
	if err != nil {
		eventID = uuid.New()
	}
	event := models.TransitionEvent{
		EventID:    eventID.String(),
		RequestID:  req.ID,
		TMDBID:     req.TMDBID,
		From:       from,
		To:         to,
		Actor:      actor,
		OccurredAt: c.now(),
	}
	if err := c.journal.RecordTransition(ctx, event); err != nil {
		c.logger.Warn("Failed to record transition",
			zap.Int64("request_id", req.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
	}
}

// transition applies a compare-and-set status change and journals it
func (c *Controller) transition(ctx context.Context, req *models.MovieRequest, to models.RequestStatus, fulfillment *storage.Fulfillment, actor string) error {
	from := req.Status
	if err := c.requests.UpdateStatus(ctx, req.ID, from, to, fulfillment); err != nil {
		return fmt.Errorf("request %d %s -> %s: %w", req.ID, from, to, err)
	}

	req.Status = to
	req.UpdatedAt = c.now()
	if fulfillment != nil {
		at := fulfillment.At
		req.FulfilledTimestamp = &at
		req.FulfilledLink = fulfillment.Link
		req.ChannelMessageID = fulfillment.ChannelMessageID
	}

	c.logger.Info("Request status changed",
		zap.Int64("request_id", req.ID),
		zap.Int64("tmdb_id", req.TMDBID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor),
	)
	c.record(ctx, req, from, to, actor)
	return nil
}

// fulfill moves req to fulfilled with content and tells everyone involved.
// delivered skips sending the content to the requester again.
func (c *Controller) fulfill(ctx context.Context, req *models.MovieRequest, content models.ContentRef, actor string, delivered bool) error {
	fulfillment := &storage.Fulfillment{
		Link:             content.Link,
		ChannelMessageID: c.channelMessageID(content),
		At:               c.now(),
	}
	if err := c.transition(ctx, req, models.StatusFulfilled, fulfillment, actor); err != nil {
		return err
	}

	if _, err := c.requests.AddContent(ctx, req.ID, content); err != nil {
		c.logger.Warn("Failed to record fulfilled content",
			zap.Int64("request_id", req.ID),
			zap.Error(err),
		)
	}

	if !delivered {
		dctx, cancel := c.external(ctx)
		if err := c.notifier.DeliverContent(dctx, req.UserID, content); err != nil {
			c.logger.Warn("Failed to deliver content",
				zap.Int64("request_id", req.ID),
				zap.Int64("user_id", req.UserID),
				zap.Error(err),
			)
		}
		cancel()
	}

	c.notifyRequester(ctx, req, Notification{
		Kind:    KindRequestFulfilled,
		Request: req,
		Content: &content,
		Actions: linkActions(content),
	})
	c.updateAdminView(ctx, req, Notification{
		Kind:    KindAdminFulfilled,
		Request: req,
		Content: &content,
	})
	return nil
}

// channelMessageID returns the channel post id of content, or 0 when the
// content does not live in the movie channel
func (c *Controller) channelMessageID(content models.ContentRef) int {
	if content.MessageID == 0 {
		return 0
	}
	if content.ChatID == 0 || content.ChatID == c.cfg.ChannelID {
		return content.MessageID
	}
	return 0
}

// refreshRequest reloads req to see what a concurrent writer did
func (c *Controller) refreshRequest(ctx context.Context, id int64) (*models.MovieRequest, error) {
	req, err := c.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload request %d: %w", id, err)
	}
	return req, nil
}

// clearScopedSession clears the user's session if it belongs to requestID
func (c *Controller) clearScopedSession(ctx context.Context, userID, requestID int64) {
	sess, err := c.sessions.Get(ctx, userID)
	if err != nil {
		c.logger.Warn("Failed to read session", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	scoped, ok := sess.Payload.(models.RequestScoped)
	if !ok || scoped.ScopedRequestID() != requestID {
		return
	}
	if err := c.sessions.Clear(ctx, userID); err != nil {
		c.logger.Warn("Failed to clear session", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (c *Controller) messageLink(messageID int) string {
	return catalog.MessageLink(c.cfg.ChannelUsername, c.cfg.ChannelID, messageID)
}

func linkActions(content models.ContentRef) []Action {
	if content.Link == "" {
		return nil
	}
	return []Action{{Kind: ActionOpenLink, URL: content.Link}}
}

func userActor(id int64) string  { return fmt.Sprintf("user:%d", id) }
func adminActor(id int64) string { return fmt.Sprintf("admin:%d", id) }

const channelActor = "channel"

// isInvalidTransition reports whether err came from a lost compare-and-set
func isInvalidTransition(err error) bool {
	return errors.Is(err, shared.ErrInvalidTransition)
}
