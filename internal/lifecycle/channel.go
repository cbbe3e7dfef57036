package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"moviebot/internal/matcher"
	"moviebot/internal/models"
	"moviebot/internal/shared"
)

// tagMatchOrder is the order in which waiting requests claim tagged content
var tagMatchOrder = []models.RequestStatus{
	models.StatusPending,
	models.StatusApproved,
	models.StatusApprovedNoFileFound,
}

// IngestChannelPost indexes a post seen in the movie channel. A post tagged
// with a TMDB id is offered to the request waiting for it.
func (c *Controller) IngestChannelPost(ctx context.Context, entry models.CatalogEntry) (*models.MovieRequest, error) {
	text := entry.Caption
	if text == "" {
		text = entry.FileName
	}
	if entry.TMDBID == 0 {
		if id, ok := matcher.ExtractTMDBTag(text); ok {
			entry.TMDBID = id
		}
	}
	if entry.Title == "" {
		entry.Title = matcher.Normalize(matcher.StripTags(text))
	}
	if entry.Quality == "" {
		entry.Quality = matcher.DetectQuality(text)
	}
	if entry.Link == "" {
		entry.Link = c.messageLink(entry.MessageID)
	}
	if entry.PostedAt.IsZero() {
		entry.PostedAt = c.now()
	}

	if err := c.index.UpsertEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to index channel post %d: %w", entry.MessageID, err)
	}
	c.logger.Debug("Channel post indexed",
		zap.Int64("chat_id", entry.ChatID),
		zap.Int("message_id", entry.MessageID),
		zap.Int64("tmdb_id", entry.TMDBID),
		zap.String("quality", entry.Quality),
	)

	if entry.TMDBID == 0 {
		return nil, nil
	}
	return c.OnChannelContentTagged(ctx, entry.TMDBID, entry.Ref())
}

// OnChannelContentTagged fulfills the oldest request waiting for tmdbID.
// It returns nil without error when nobody is waiting.
func (c *Controller) OnChannelContentTagged(ctx context.Context, tmdbID int64, content models.ContentRef) (*models.MovieRequest, error) {
	for _, status := range tagMatchOrder {
		req, err := c.requests.GetRequestByTMDB(ctx, tmdbID, status)
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find %s request for tmdb %d: %w", status, tmdbID, err)
		}

		if err := c.fulfill(ctx, req, content, channelActor, false); err != nil {
			return nil, err
		}
		c.clearScopedSession(ctx, req.UserID, req.ID)
		return req, nil
	}

	c.logger.Debug("Tagged content matches no waiting request", zap.Int64("tmdb_id", tmdbID))
	return nil, nil
}

// OnUserSelectQuality delivers the version the requester picked and fulfills
// the request with it. A failed delivery keeps the choice open.
func (c *Controller) OnUserSelectQuality(ctx context.Context, userID, requestID int64, messageID int) (*models.MovieRequest, error) {
	payload, err := c.sessions.Expect(ctx, userID, models.StateAwaitingMovieQualitySelection)
	if err != nil {
		return nil, err
	}
	selection := payload.(models.QualitySelection)
	if selection.RequestID != requestID {
		return nil, fmt.Errorf("%w: quality choice is for request %d, not %d",
			shared.ErrInvalidSession, selection.RequestID, requestID)
	}

	var option *models.ContentRef
	for i := range selection.Options {
		if selection.Options[i].MessageID == messageID {
			option = &selection.Options[i]
			break
		}
	}
	if option == nil {
		return nil, fmt.Errorf("%w: message %d is not one of the offered versions", shared.ErrIndexOutOfRange, messageID)
	}

	cctx, cancel := c.external(ctx)
	content, found, err := c.catalog.ContentRef(cctx, option.ChatID, messageID)
	cancel()
	if err != nil {
		return nil, externalErr("catalog lookup", err)
	}
	if !found {
		c.logger.Warn("Offered version left the index, using stored copy",
			zap.Int64("request_id", requestID),
			zap.Int("message_id", messageID),
		)
		content = *option
	}

	dctx, cancel := c.external(ctx)
	err = c.notifier.DeliverContent(dctx, userID, content)
	cancel()
	if err != nil {
		c.notifyUser(ctx, userID, Notification{Kind: KindQualityUnavailable, Options: selection.Options})
		return nil, externalErr("deliver content", err)
	}

	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request %d: %w", requestID, err)
	}
	if req.UserID != userID {
		return nil, fmt.Errorf("%w: request %d belongs to another user", shared.ErrUnauthorized, requestID)
	}

	switch {
	case req.Status.AwaitsContent():
		err = c.fulfill(ctx, req, content, userActor(userID), true)
		if !isInvalidTransition(err) {
			break
		}
		if req, err = c.refreshRequest(ctx, requestID); err != nil {
			break
		}
		if req.Status != models.StatusFulfilled {
			err = fmt.Errorf("%w: request %d is %s", shared.ErrInvalidTransition, requestID, req.Status)
			break
		}
		_, err = c.addExtraContent(ctx, req, content)
	case req.Status == models.StatusFulfilled:
		_, err = c.addExtraContent(ctx, req, content)
	default:
		err = fmt.Errorf("%w: request %d is %s", shared.ErrInvalidTransition, requestID, req.Status)
	}
	if err != nil {
		return nil, err
	}

	c.clearSession(ctx, userID)
	return req, nil
}

func (c *Controller) indexPost(ctx context.Context, entry models.CatalogEntry) {
	if entry.MessageID == 0 {
		return
	}
	if err := c.index.UpsertEntry(ctx, entry); err != nil {
		c.logger.Warn("Failed to index published post",
			zap.Int("message_id", entry.MessageID),
			zap.Error(err),
		)
	}
}
