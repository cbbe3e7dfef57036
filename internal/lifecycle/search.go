package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"moviebot/internal/models"
	"moviebot/internal/shared"
)

// StartSearch looks the query up and offers the candidates to the user
func (c *Controller) StartSearch(ctx context.Context, userID int64, query string) ([]models.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidContent)
	}

	sctx, cancel := c.external(ctx)
	candidates, err := c.metadata.SearchTitle(sctx, query)
	cancel()
	if err != nil {
		return nil, externalErr("search title", err)
	}

	if len(candidates) > c.cfg.SearchResultLimit {
		candidates = candidates[:c.cfg.SearchResultLimit]
	}

	if len(candidates) == 0 {
		if err := c.sessions.Clear(ctx, userID); err != nil {
			return nil, err
		}
		c.notifyUser(ctx, userID, Notification{Kind: KindNoResults})
		return nil, nil
	}

	if err := c.sessions.Set(ctx, userID, models.TMDBSelection{Query: query, Candidates: candidates}); err != nil {
		return nil, err
	}

	actions := make([]Action, 0, len(candidates)+1)
	for i, candidate := range candidates {
		label := candidate.Title
		if year := candidate.Year(); year != "" {
			label = fmt.Sprintf("%s (%s)", candidate.Title, year)
		}
		actions = append(actions, Action{Kind: ActionSelectMovie, Index: i, Label: label})
	}
	actions = append(actions, Action{Kind: ActionNoneCorrect})

	c.notifyUser(ctx, userID, Notification{
		Kind:       KindSearchResults,
		Candidates: candidates,
		Actions:    actions,
	})
	return candidates, nil
}

// OnSearchSelected moves the user from candidate selection to confirmation
func (c *Controller) OnSearchSelected(ctx context.Context, userID int64, index int) (models.Candidate, error) {
	payload, err := c.sessions.Expect(ctx, userID, models.StateAwaitingTMDBSelection)
	if err != nil {
		return models.Candidate{}, err
	}
	selection := payload.(models.TMDBSelection)

	if index < 0 || index >= len(selection.Candidates) {
		return models.Candidate{}, fmt.Errorf("%w: %d of %d candidates",
			shared.ErrIndexOutOfRange, index, len(selection.Candidates))
	}
	movie := selection.Candidates[index]

	dctx, cancel := c.external(ctx)
	details, err := c.metadata.GetDetails(dctx, movie.ID)
	cancel()
	if err != nil {
		c.logger.Warn("Failed to fetch movie details, using search snapshot",
			zap.Int64("tmdb_id", movie.ID),
			zap.Error(err),
		)
	} else {
		movie = mergeDetails(movie, details)
	}

	if err := c.sessions.Set(ctx, userID, models.Confirmation{Movie: movie}); err != nil {
		return models.Candidate{}, err
	}

	c.notifyUser(ctx, userID, Notification{
		Kind:  KindConfirmPrompt,
		Movie: &movie,
		Actions: []Action{
			{Kind: ActionConfirm},
			{Kind: ActionCancel},
		},
	})
	return movie, nil
}

// OnNoneCorrect drops the search when no candidate fits
func (c *Controller) OnNoneCorrect(ctx context.Context, userID int64) error {
	if err := c.sessions.Clear(ctx, userID); err != nil {
		return err
	}
	c.notifyUser(ctx, userID, Notification{Kind: KindSearchCancelled})
	return nil
}

// OnConfirm finishes the search dialog. A confirmed movie is either delivered
// from the catalog, reported as already requested, or filed as a new request.
func (c *Controller) OnConfirm(ctx context.Context, user User, confirmed bool, userMessageID int) (ConfirmResult, error) {
	payload, err := c.sessions.Consume(ctx, user.ID, models.StateAwaitingConfirmation)
	if err != nil {
		return ConfirmResult{}, err
	}
	confirmation := payload.(models.Confirmation)
	movie := confirmation.Movie

	if !confirmed {
		c.notifyUser(ctx, user.ID, Notification{Kind: KindSearchCancelled, Movie: &movie})
		return ConfirmResult{Outcome: Cancelled}, nil
	}

	// Nothing has changed yet, so a failure hands the step back to the user
	restore := func() {
		if err := c.sessions.Set(ctx, user.ID, confirmation); err != nil {
			c.logger.Error("Failed to restore confirmation session",
				zap.Int64("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	fctx, cancel := c.external(ctx)
	entry, found, err := c.catalog.FindExisting(fctx, movie.ID, movie.Title)
	cancel()
	if err != nil {
		restore()
		return ConfirmResult{}, externalErr("catalog search", err)
	}

	if found {
		content := entry.Ref()
		dctx, cancel := c.external(ctx)
		err := c.notifier.DeliverContent(dctx, user.ID, content)
		cancel()
		if err != nil {
			restore()
			return ConfirmResult{}, externalErr("deliver content", err)
		}

		c.notifyUser(ctx, user.ID, Notification{
			Kind:    KindAlreadyAvailable,
			Movie:   &movie,
			Content: &content,
			Actions: linkActions(content),
		})
		c.logger.Info("Movie already available",
			zap.Int64("user_id", user.ID),
			zap.Int64("tmdb_id", movie.ID),
			zap.String("link", content.Link),
		)
		return ConfirmResult{Outcome: AlreadyAvailable, Content: &content}, nil
	}

	existing, err := c.activeRequest(ctx, user.ID, movie.ID)
	if err != nil {
		restore()
		return ConfirmResult{}, externalErr("active request lookup", err)
	}
	if existing != nil {
		c.notifyUser(ctx, user.ID, Notification{Kind: KindAlreadyRequested, Request: existing, Movie: &movie})
		return ConfirmResult{Outcome: AlreadyRequested, Request: existing}, nil
	}

	req := &models.MovieRequest{
		UserID:                   user.ID,
		UserName:                 user.Name,
		TMDBID:                   movie.ID,
		TMDBTitle:                movie.Title,
		TMDBOverview:             movie.Overview,
		TMDBPosterPath:           movie.PosterPath,
		TMDBReleaseDate:          movie.ReleaseDate,
		Status:                   models.StatusPending,
		RequestTimestamp:         c.now(),
		OriginalRequestMessageID: userMessageID,
	}
	id, err := c.requests.CreateRequest(ctx, req)
	if errors.Is(err, shared.ErrDataIntegrity) {
		// Lost a race with a concurrent confirm of the same movie
		existing, lookupErr := c.activeRequest(ctx, user.ID, movie.ID)
		if lookupErr == nil && existing != nil {
			c.notifyUser(ctx, user.ID, Notification{Kind: KindAlreadyRequested, Request: existing, Movie: &movie})
			return ConfirmResult{Outcome: AlreadyRequested, Request: existing}, nil
		}
	}
	if err != nil {
		restore()
		return ConfirmResult{}, externalErr("create request", err)
	}
	req.ID = id
	req.UpdatedAt = req.RequestTimestamp

	c.logger.Info("Movie request created",
		zap.Int64("request_id", id),
		zap.Int64("user_id", user.ID),
		zap.Int64("tmdb_id", movie.ID),
		zap.String("title", movie.Title),
	)
	c.record(ctx, req, "", models.StatusPending, userActor(user.ID))

	adminRef, ok := c.notifyAdmin(ctx, Notification{
		Kind:    KindAdminNewRequest,
		Request: req,
		Movie:   &movie,
		Actions: []Action{
			{Kind: ActionApprove, RequestID: id},
			{Kind: ActionReject, RequestID: id},
		},
	})
	if ok && adminRef.MessageID != 0 {
		if err := c.requests.AttachAdminMessageReference(ctx, id, adminRef.MessageID); err != nil {
			c.logger.Warn("Failed to attach admin message",
				zap.Int64("request_id", id),
				zap.Error(err),
			)
		} else {
			req.AdminMessageID = adminRef.MessageID
		}
	}

	c.notifyUser(ctx, user.ID, Notification{Kind: KindRequestSubmitted, Request: req, Movie: &movie})
	return ConfirmResult{Outcome: Submitted, Request: req}, nil
}

// activeRequest returns the user's live request for a movie, or nil.
// More than one is an integrity anomaly; the newest wins.
func (c *Controller) activeRequest(ctx context.Context, userID, tmdbID int64) (*models.MovieRequest, error) {
	active, err := c.requests.ListActiveForUser(ctx, userID, tmdbID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}
	if len(active) > 1 {
		c.logger.Warn("Multiple active requests for one movie",
			zap.Int64("user_id", userID),
			zap.Int64("tmdb_id", tmdbID),
			zap.Int("count", len(active)),
			zap.Error(shared.ErrDataIntegrity),
		)
	}
	newest := active[0]
	return &newest, nil
}

// mergeDetails fills the candidate with the detail lookup, keeping
// snapshot values the lookup left empty
func mergeDetails(candidate, details models.Candidate) models.Candidate {
	if details.Title != "" {
		candidate.Title = details.Title
	}
	if details.Overview != "" {
		candidate.Overview = details.Overview
	}
	if details.ReleaseDate != "" {
		candidate.ReleaseDate = details.ReleaseDate
	}
	if details.PosterPath != "" {
		candidate.PosterPath = details.PosterPath
	}
	return candidate
}
