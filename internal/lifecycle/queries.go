package lifecycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"moviebot/internal/models"
	"moviebot/internal/shared"
)

// ListUserRequests returns the user's latest requests, newest first
func (c *Controller) ListUserRequests(ctx context.Context, userID int64) ([]models.MovieRequest, error) {
	reqs, err := c.requests.ListUserRequests(ctx, userID, c.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests of user %d: %w", userID, err)
	}

	for i := range reqs {
		if reqs[i].Status != models.StatusFulfilled {
			continue
		}
		contents, err := c.requests.ListContent(ctx, reqs[i].ID)
		if err != nil {
			c.logger.Warn("Failed to list request content",
				zap.Int64("request_id", reqs[i].ID),
				zap.Error(err),
			)
			continue
		}
		reqs[i].Contents = contents
	}
	return reqs, nil
}

// RequestHistory returns the journaled transitions of a request. Only admins
// and the requester may read it.
func (c *Controller) RequestHistory(ctx context.Context, actorID, requestID int64) ([]models.TransitionEvent, error) {
	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request %d: %w", requestID, err)
	}
	if req.UserID != actorID && !c.IsAdmin(actorID) {
		return nil, fmt.Errorf("%w: user %d cannot read request %d", shared.ErrUnauthorized, actorID, requestID)
	}
	if c.journal == nil {
		return nil, nil
	}

	events, err := c.journal.ListTransitions(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history of request %d: %w", requestID, err)
	}
	return events, nil
}
