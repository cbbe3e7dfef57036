package lifecycle

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"moviebot/internal/catalog"
	"moviebot/internal/matcher"
	"moviebot/internal/models"
	"moviebot/internal/shared"
)

// OnAdminApprove approves a pending request and asks the admin how to fulfill it
func (c *Controller) OnAdminApprove(ctx context.Context, adminID, requestID int64) (*models.MovieRequest, error) {
	if err := c.requireAdmin(adminID); err != nil {
		return nil, err
	}

	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request %d: %w", requestID, err)
	}
	if req.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: request %d is %s", shared.ErrInvalidTransition, requestID, req.Status)
	}
	if err := c.transition(ctx, req, models.StatusApproved, nil, adminActor(adminID)); err != nil {
		return nil, err
	}

	if err := c.sessions.Set(ctx, adminID, models.FulfillmentMethod{RequestID: requestID}); err != nil {
		return req, err
	}

	c.updateAdminView(ctx, req, Notification{
		Kind:    KindAdminChooseMethod,
		Request: req,
		Actions: methodActions(requestID),
	})
	c.notifyUser(ctx, req.UserID, Notification{Kind: KindRequestApproved, Request: req})
	return req, nil
}

// OnFulfillmentMethod carries out the admin's choice for an approved request
func (c *Controller) OnFulfillmentMethod(ctx context.Context, adminID, requestID int64, method FulfillmentMethod) (MethodOutcome, error) {
	if err := c.requireAdmin(adminID); err != nil {
		return 0, err
	}

	// The buttons stay valid for as long as the request waits for content,
	// whatever the admin did in between
	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return 0, fmt.Errorf("failed to load request %d: %w", requestID, err)
	}
	if !req.Status.AwaitsContent() {
		return 0, fmt.Errorf("%w: request %d is %s", shared.ErrInvalidTransition, requestID, req.Status)
	}

	switch method {
	case MethodLink:
		if err := c.sessions.Set(ctx, adminID, models.ManualLink{RequestID: requestID}); err != nil {
			return 0, err
		}
		c.notifyAdmin(ctx, Notification{Kind: KindAdminAwaitingLink, Request: req})
		return AwaitingLink, nil

	case MethodUpload:
		if err := c.sessions.Set(ctx, adminID, models.AdminUpload{RequestID: requestID}); err != nil {
			return 0, err
		}
		c.notifyAdmin(ctx, Notification{Kind: KindAdminAwaitingUpload, Request: req})
		return AwaitingUpload, nil

	case MethodSearch:
		return c.fulfillFromCatalog(ctx, adminID, req)
	}

	return 0, fmt.Errorf("%w: unknown fulfillment method %q", shared.ErrInvalidContent, method)
}

func (c *Controller) fulfillFromCatalog(ctx context.Context, adminID int64, req *models.MovieRequest) (MethodOutcome, error) {
	sctx, cancel := c.external(ctx)
	versions, err := c.catalog.SearchVersions(sctx, req.TMDBID, req.TMDBTitle)
	cancel()
	if err != nil {
		return 0, externalErr("catalog search", err)
	}

	switch len(versions) {
	case 0:
		if req.Status == models.StatusApproved {
			if err := c.transition(ctx, req, models.StatusApprovedNoFileFound, nil, adminActor(adminID)); err != nil {
				return 0, err
			}
		}
		if err := c.sessions.Set(ctx, adminID, models.ManualLink{RequestID: req.ID}); err != nil {
			return NoFileFound, err
		}
		c.updateAdminView(ctx, req, Notification{
			Kind:    KindAdminNoFileFound,
			Request: req,
			Actions: methodActions(req.ID),
		})
		return NoFileFound, nil

	case 1:
		if err := c.fulfill(ctx, req, versions[0], adminActor(adminID), false); err != nil {
			return 0, err
		}
		c.clearScopedSession(ctx, adminID, req.ID)
		return Fulfilled, nil
	}

	// Several versions: the requester picks one, or the admin picks for them
	if err := c.sessions.Set(ctx, req.UserID, models.QualitySelection{RequestID: req.ID, Options: versions}); err != nil {
		return 0, err
	}
	if err := c.sessions.Set(ctx, adminID, models.ChannelSelection{RequestID: req.ID, Options: versions}); err != nil {
		c.logger.Warn("Failed to remember versions shown to admin",
			zap.Int64("request_id", req.ID),
			zap.Error(err),
		)
	}

	c.notifyUser(ctx, req.UserID, Notification{
		Kind:    KindQualityChoice,
		Request: req,
		Options: versions,
		Actions: versionActions(ActionSelectQuality, req.ID, versions, ""),
	})
	// The requester may never pick, so the admin keeps every way out
	c.updateAdminView(ctx, req, Notification{
		Kind:    KindAdminUserChoosing,
		Request: req,
		Options: versions,
		Actions: append(versionActions(ActionSendVersion, req.ID, versions, "📤 "), methodActions(req.ID)...),
	})
	return AwaitingUserChoice, nil
}

// OnAdminSelectVersion fulfills a request with one of the channel versions
// found for it, picked by the admin instead of the requester
func (c *Controller) OnAdminSelectVersion(ctx context.Context, adminID, requestID int64, messageID int) (SubmitOutcome, error) {
	if err := c.requireAdmin(adminID); err != nil {
		return 0, err
	}

	content, err := c.channelVersion(ctx, adminID, requestID, messageID)
	if err != nil {
		return 0, err
	}

	outcome, err := c.OnAdminContentSubmitted(ctx, requestID, content, adminActor(adminID))
	if err != nil {
		return 0, err
	}
	c.clearScopedSession(ctx, adminID, requestID)
	return outcome, nil
}

// channelVersion resolves the post the admin picked. The index copy wins,
// the versions remembered in the admin session cover posts it dropped.
func (c *Controller) channelVersion(ctx context.Context, adminID, requestID int64, messageID int) (models.ContentRef, error) {
	var shown *models.ContentRef
	sess, err := c.sessions.Get(ctx, adminID)
	if err != nil {
		return models.ContentRef{}, err
	}
	if selection, ok := sess.Payload.(models.ChannelSelection); ok && selection.RequestID == requestID {
		for i := range selection.Options {
			if selection.Options[i].MessageID == messageID {
				shown = &selection.Options[i]
				break
			}
		}
	}

	chatID := c.cfg.ChannelID
	if shown != nil && shown.ChatID != 0 {
		chatID = shown.ChatID
	}
	cctx, cancel := c.external(ctx)
	content, found, err := c.catalog.ContentRef(cctx, chatID, messageID)
	cancel()

	switch {
	case err == nil && found:
		return content, nil
	case shown != nil:
		c.logger.Warn("Picked version not in the index, using stored copy",
			zap.Int64("request_id", requestID),
			zap.Int("message_id", messageID),
			zap.Error(err),
		)
		return *shown, nil
	case err != nil:
		return models.ContentRef{}, externalErr("catalog lookup", err)
	}
	return models.ContentRef{}, fmt.Errorf("%w: channel post %d is not indexed", shared.ErrIndexOutOfRange, messageID)
}

// OnAdminLink takes a link the admin typed for the request they are fulfilling
func (c *Controller) OnAdminLink(ctx context.Context, adminID int64, text string) (SubmitOutcome, error) {
	if err := c.requireAdmin(adminID); err != nil {
		return 0, err
	}
	payload, err := c.sessions.Expect(ctx, adminID, models.StateAwaitingManualLink)
	if err != nil {
		return 0, err
	}
	requestID := payload.(models.ManualLink).RequestID

	content, err := c.parseLink(text)
	if err != nil {
		return 0, err
	}

	outcome, err := c.OnAdminContentSubmitted(ctx, requestID, content, adminActor(adminID))
	if err != nil {
		return 0, err
	}
	c.clearSession(ctx, adminID)
	return outcome, nil
}

// OnAdminUpload publishes a file the admin sent, tagged for the request, and
// fulfills the request with the channel post
func (c *Controller) OnAdminUpload(ctx context.Context, adminID int64, post ContentPost) (SubmitOutcome, error) {
	if err := c.requireAdmin(adminID); err != nil {
		return 0, err
	}
	payload, err := c.sessions.Expect(ctx, adminID, models.StateAwaitingAdminUpload)
	if err != nil {
		return 0, err
	}
	requestID := payload.(models.AdminUpload).RequestID
	if !post.IsMedia || post.FileID == "" {
		return 0, fmt.Errorf("%w: upload carries no file", shared.ErrInvalidContent)
	}

	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return 0, fmt.Errorf("failed to load request %d: %w", requestID, err)
	}
	if req.Status.IsTerminal() && req.Status != models.StatusFulfilled {
		return 0, fmt.Errorf("%w: request %d is %s", shared.ErrInvalidTransition, requestID, req.Status)
	}

	caption := channelCaption(req, post)
	pctx, cancel := c.external(ctx)
	content, err := c.channel.PostContent(pctx, post, caption)
	cancel()
	if err != nil {
		return 0, externalErr("post to channel", err)
	}
	if content.Link == "" && content.MessageID != 0 {
		content.Link = c.messageLink(content.MessageID)
	}
	if content.Quality == "" {
		content.Quality = matcher.DetectQuality(post.FileName + " " + post.Caption)
	}

	// Bots do not receive their own channel posts, so index it here
	c.indexPost(ctx, models.CatalogEntry{
		ChatID:    content.ChatID,
		MessageID: content.MessageID,
		TMDBID:    req.TMDBID,
		Title:     matcher.Normalize(req.TMDBTitle),
		Caption:   caption,
		Link:      content.Link,
		IsMedia:   true,
		FileID:    content.FileID,
		FileName:  post.FileName,
		Quality:   content.Quality,
		PostedAt:  c.now(),
	})

	outcome, err := c.OnAdminContentSubmitted(ctx, requestID, content, adminActor(adminID))
	if err != nil {
		return 0, err
	}
	c.clearSession(ctx, adminID)
	return outcome, nil
}

// OnAdminReject rejects any non-terminal request
func (c *Controller) OnAdminReject(ctx context.Context, adminID, requestID int64) (*models.MovieRequest, error) {
	if err := c.requireAdmin(adminID); err != nil {
		return nil, err
	}

	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request %d: %w", requestID, err)
	}
	if req.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: request %d is %s", shared.ErrInvalidTransition, requestID, req.Status)
	}
	if err := c.transition(ctx, req, models.StatusRejected, nil, adminActor(adminID)); err != nil {
		return nil, err
	}

	c.clearScopedSession(ctx, adminID, requestID)
	c.clearScopedSession(ctx, req.UserID, requestID)

	c.notifyRequester(ctx, req, Notification{Kind: KindRequestRejected, Request: req})
	c.updateAdminView(ctx, req, Notification{Kind: KindAdminRejected, Request: req})
	return req, nil
}

// OnAdminContentSubmitted hands content to a request. The first accepted item
// fulfills it; later items are appended to the fulfilled request.
func (c *Controller) OnAdminContentSubmitted(ctx context.Context, requestID int64, content models.ContentRef, actor string) (SubmitOutcome, error) {
	if strings.TrimSpace(content.Link) == "" {
		return 0, fmt.Errorf("%w: content has no link", shared.ErrInvalidContent)
	}

	req, err := c.requests.GetRequest(ctx, requestID)
	if err != nil {
		return 0, fmt.Errorf("failed to load request %d: %w", requestID, err)
	}

	if req.Status.AwaitsContent() {
		err := c.fulfill(ctx, req, content, actor, false)
		if err == nil {
			return FulfilledNow, nil
		}
		if !isInvalidTransition(err) {
			return 0, err
		}
		// Someone else changed the request first
		if req, err = c.refreshRequest(ctx, requestID); err != nil {
			return 0, err
		}
	}

	if req.Status != models.StatusFulfilled {
		return 0, fmt.Errorf("%w: cannot add content to %s request %d", shared.ErrInvalidTransition, req.Status, requestID)
	}
	return c.addExtraContent(ctx, req, content)
}

func (c *Controller) addExtraContent(ctx context.Context, req *models.MovieRequest, content models.ContentRef) (SubmitOutcome, error) {
	added, err := c.requests.AddContent(ctx, req.ID, content)
	if err != nil {
		return 0, fmt.Errorf("failed to add content to request %d: %w", req.ID, err)
	}
	if !added {
		c.logger.Debug("Duplicate content ignored",
			zap.Int64("request_id", req.ID),
			zap.String("link", content.Link),
		)
		return DuplicateContent, nil
	}

	c.logger.Info("Extra content added to fulfilled request",
		zap.Int64("request_id", req.ID),
		zap.String("link", content.Link),
	)

	// A request fulfilled from outside the channel adopts its first channel post
	if messageID := c.channelMessageID(content); req.ChannelMessageID == 0 && messageID != 0 {
		if err := c.requests.AttachChannelReference(ctx, req.ID, messageID); err != nil {
			c.logger.Warn("Failed to attach channel post",
				zap.Int64("request_id", req.ID),
				zap.Int("message_id", messageID),
				zap.Error(err),
			)
		} else {
			req.ChannelMessageID = messageID
		}
	}
	c.notifyUser(ctx, req.UserID, Notification{
		Kind:    KindExtraContent,
		Request: req,
		Content: &content,
		Actions: linkActions(content),
	})
	return ExtraAdded, nil
}

func (c *Controller) clearSession(ctx context.Context, userID int64) {
	if err := c.sessions.Clear(ctx, userID); err != nil {
		c.logger.Warn("Failed to clear session", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// parseLink validates an admin supplied link. Links into the movie channel
// keep their message id.
func (c *Controller) parseLink(text string) (models.ContentRef, error) {
	text = strings.TrimSpace(text)
	u, err := url.Parse(text)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.ContentRef{}, fmt.Errorf("%w: %q is not a link", shared.ErrInvalidContent, text)
	}

	content := models.ContentRef{Link: text}
	if messageID, ok := catalog.ParseMessageLink(text, c.cfg.ChannelUsername, c.cfg.ChannelID); ok {
		content.ChatID = c.cfg.ChannelID
		content.MessageID = messageID
	}
	return content, nil
}

func channelCaption(req *models.MovieRequest, post ContentPost) string {
	title := req.TMDBTitle
	if year := (models.Candidate{ReleaseDate: req.TMDBReleaseDate}).Year(); year != "" {
		title = fmt.Sprintf("%s (%s)", title, year)
	}
	caption := fmt.Sprintf("%s\n%s", title, matcher.TMDBTag(req.TMDBID))
	if extra := strings.TrimSpace(post.Caption); extra != "" {
		caption = fmt.Sprintf("%s\n\n%s", caption, extra)
	}
	return caption
}

// versionActions offers one button per channel version, labelled by quality
func versionActions(kind ActionKind, requestID int64, versions []models.ContentRef, prefix string) []Action {
	actions := make([]Action, 0, len(versions))
	for _, version := range versions {
		label := version.Quality
		if label == "" || label == matcher.QualityUnknown {
			label = fmt.Sprintf("#%d", version.MessageID)
		}
		actions = append(actions, Action{
			Kind:      kind,
			RequestID: requestID,
			MessageID: version.MessageID,
			Label:     prefix + label,
		})
	}
	return actions
}

func methodActions(requestID int64) []Action {
	return []Action{
		{Kind: ActionMethodSearch, RequestID: requestID},
		{Kind: ActionMethodLink, RequestID: requestID},
		{Kind: ActionMethodUpload, RequestID: requestID},
		{Kind: ActionReject, RequestID: requestID},
	}
}
