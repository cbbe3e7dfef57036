package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviebot/internal/models"
	"moviebot/internal/shared"
)

func TestController_InceptionRequestFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Search offers every candidate plus "none correct"
	candidates, err := h.ctrl.StartSearch(ctx, testUserID, "Inception")
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	sess, err := h.sessions.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingTMDBSelection, sess.State)

	movie, err := h.ctrl.OnSearchSelected(ctx, testUserID, 0)
	require.NoError(t, err)
	assert.Equal(t, inceptionID, movie.ID)

	result, err := h.ctrl.OnConfirm(ctx, User{ID: testUserID, Name: "alice"}, true, 77)
	require.NoError(t, err)
	require.Equal(t, Submitted, result.Outcome)
	require.NotNil(t, result.Request)

	req, err := h.db.GetRequest(ctx, result.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Equal(t, "Inception", req.TMDBTitle)
	assert.Equal(t, "2010-07-15", req.TMDBReleaseDate)
	assert.Equal(t, 77, req.OriginalRequestMessageID)
	assert.NotZero(t, req.AdminMessageID, "admin message should be attached")
	assert.Contains(t, h.notifier.adminKinds(), KindAdminNewRequest)
	assert.Contains(t, h.notifier.userKinds(testUserID), KindRequestSubmitted)

	// Admin approves and chooses a manual link
	approved, err := h.ctrl.OnAdminApprove(ctx, testAdminID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)

	outcome, err := h.ctrl.OnFulfillmentMethod(ctx, testAdminID, req.ID, MethodLink)
	require.NoError(t, err)
	assert.Equal(t, AwaitingLink, outcome)

	submitted, err := h.ctrl.OnAdminLink(ctx, testAdminID, "https://t.me/moviechannel/555")
	require.NoError(t, err)
	assert.Equal(t, FulfilledNow, submitted)

	req, err = h.db.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFulfilled, req.Status)
	assert.Equal(t, "https://t.me/moviechannel/555", req.FulfilledLink)
	assert.Equal(t, 555, req.ChannelMessageID)
	require.NotNil(t, req.FulfilledTimestamp)

	adminSess, err := h.sessions.Get(ctx, testAdminID)
	require.NoError(t, err)
	assert.Equal(t, models.StateNone, adminSess.State)

	assert.Contains(t, h.notifier.userKinds(testUserID), KindRequestFulfilled)
	assert.Contains(t, h.notifier.adminKinds(), KindAdminFulfilled)
	require.Len(t, h.notifier.delivered, 1)
	assert.Equal(t, "https://t.me/moviechannel/555", h.notifier.delivered[0].Content.Link)

	events, err := h.ctrl.RequestHistory(ctx, testUserID, req.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.StatusPending, events[0].To)
	assert.Equal(t, models.StatusApproved, events[1].To)
	assert.Equal(t, models.StatusFulfilled, events[2].To)
	assert.Equal(t, "admin:1000", events[2].Actor)

	// The clock never moved, ids alone keep the events in order
	for i, event := range events {
		id, err := uuid.Parse(event.EventID)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), id.Version())
		if i > 0 {
			assert.Less(t, events[i-1].EventID, event.EventID)
		}
	}
}

func TestController_OnConfirm_DuplicateDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.confirmInception(t, testUserID)
	require.Equal(t, Submitted, first.Outcome)

	// The same button press delivered twice
	_, err := h.ctrl.OnConfirm(ctx, User{ID: testUserID}, true, 77)
	assert.ErrorIs(t, err, shared.ErrInvalidSession)

	reqs, err := h.db.ListUserRequests(ctx, testUserID, 0)
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func TestController_OnConfirm_Cancelled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ctrl.StartSearch(ctx, testUserID, "Inception")
	require.NoError(t, err)
	_, err = h.ctrl.OnSearchSelected(ctx, testUserID, 0)
	require.NoError(t, err)

	result, err := h.ctrl.OnConfirm(ctx, User{ID: testUserID}, false, 0)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, result.Outcome)

	reqs, err := h.db.ListUserRequests(ctx, testUserID, 0)
	require.NoError(t, err)
	assert.Empty(t, reqs)

	sess, err := h.sessions.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, models.StateNone, sess.State)
}

func TestController_OnConfirm_AlreadyAvailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ctrl.IngestChannelPost(ctx, models.CatalogEntry{
		ChatID:    testChannelID,
		MessageID: 321,
		Caption:   "Inception (2010) 1080p #TMDB27205",
		IsMedia:   true,
		FileID:    "file-321",
	})
	require.NoError(t, err)

	result := h.confirmInception(t, testUserID)
	assert.Equal(t, AlreadyAvailable, result.Outcome)
	require.NotNil(t, result.Content)
	assert.Equal(t, 321, result.Content.MessageID)
	assert.Equal(t, "https://t.me/moviechannel/321", result.Content.Link)

	reqs, err := h.db.ListUserRequests(ctx, testUserID, 0)
	require.NoError(t, err)
	assert.Empty(t, reqs, "no request should be created for available content")
	require.Len(t, h.notifier.delivered, 1)
}

func TestController_OnConfirm_AlreadyAvailableByTitle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ctrl.IngestChannelPost(ctx, models.CatalogEntry{
		ChatID:    testChannelID,
		MessageID: 400,
		Caption:   "Inception (2010) [BluRay 1080p]",
		IsMedia:   true,
	})
	require.NoError(t, err)

	result := h.confirmInception(t, testUserID)
	assert.Equal(t, AlreadyAvailable, result.Outcome)
}

func TestController_OnConfirm_AlreadyRequested(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	existing := h.seed(models.StatusApproved, testUserID, h.now.Add(-time.Hour))

	result := h.confirmInception(t, testUserID)
	assert.Equal(t, AlreadyRequested, result.Outcome)
	require.NotNil(t, result.Request)
	assert.Equal(t, existing, result.Request.ID)

	reqs, err := h.db.ListUserRequests(ctx, testUserID, 0)
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func TestController_OnConfirm_OtherUsersRequestDoesNotBlock(t *testing.T) {
	h := newHarness(t)

	h.seed(models.StatusPending, 7, h.now.Add(-time.Hour))

	result := h.confirmInception(t, testUserID)
	assert.Equal(t, Submitted, result.Outcome)
}

func TestController_OnConfirm_CatalogFailureRestoresSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ctrl.catalog = failingCatalog{Catalog: h.ctrl.catalog}

	_, err := h.ctrl.StartSearch(ctx, testUserID, "Inception")
	require.NoError(t, err)
	_, err = h.ctrl.OnSearchSelected(ctx, testUserID, 0)
	require.NoError(t, err)

	_, err = h.ctrl.OnConfirm(ctx, User{ID: testUserID}, true, 0)
	assert.ErrorIs(t, err, shared.ErrExternalService)

	sess, err := h.sessions.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingConfirmation, sess.State, "user can retry the confirmation")

	reqs, err := h.db.ListUserRequests(ctx, testUserID, 0)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestController_StartSearch(t *testing.T) {
	t.Run("empty query", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.ctrl.StartSearch(context.Background(), testUserID, "   ")
		assert.ErrorIs(t, err, shared.ErrInvalidContent)
	})

	t.Run("no results clears session", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		require.NoError(t, h.sessions.Set(ctx, testUserID, models.Confirmation{Movie: inception()}))
		h.metadata.results = nil

		candidates, err := h.ctrl.StartSearch(ctx, testUserID, "zzzz")
		require.NoError(t, err)
		assert.Empty(t, candidates)

		sess, err := h.sessions.Get(ctx, testUserID)
		require.NoError(t, err)
		assert.Equal(t, models.StateNone, sess.State)
		assert.Contains(t, h.notifier.userKinds(testUserID), KindNoResults)
	})

	t.Run("metadata failure", func(t *testing.T) {
		h := newHarness(t)
		h.metadata.searchErr = errUnavailable
		_, err := h.ctrl.StartSearch(context.Background(), testUserID, "Inception")
		assert.ErrorIs(t, err, shared.ErrExternalService)
	})

	t.Run("results are capped", func(t *testing.T) {
		h := newHarness(t)
		h.metadata.results = nil
		for i := 1; i <= 8; i++ {
			h.metadata.results = append(h.metadata.results, models.Candidate{ID: int64(i), Title: "Movie"})
		}
		candidates, err := h.ctrl.StartSearch(context.Background(), testUserID, "Movie")
		require.NoError(t, err)
		assert.Len(t, candidates, DefaultSearchResultLimit)
	})
}

func TestController_OnSearchSelected_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ctrl.OnSearchSelected(ctx, testUserID, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidSession)

	_, err = h.ctrl.StartSearch(ctx, testUserID, "Inception")
	require.NoError(t, err)

	_, err = h.ctrl.OnSearchSelected(ctx, testUserID, 5)
	assert.ErrorIs(t, err, shared.ErrIndexOutOfRange)

	_, err = h.ctrl.OnSearchSelected(ctx, testUserID, -1)
	assert.ErrorIs(t, err, shared.ErrIndexOutOfRange)

	// Validation failures leave the session as it was
	sess, err := h.sessions.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingTMDBSelection, sess.State)

	// Details failure falls back to the search snapshot
	movie, err := h.ctrl.OnSearchSelected(ctx, testUserID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Inception: The Cobol Job", movie.Title)
}

func TestController_SessionExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ctrl.StartSearch(ctx, testUserID, "Inception")
	require.NoError(t, err)

	h.advance(time.Hour + time.Second)

	_, err = h.ctrl.OnSearchSelected(ctx, testUserID, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidSession)
}

func TestController_OnNoneCorrect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ctrl.StartSearch(ctx, testUserID, "Inception")
	require.NoError(t, err)
	require.NoError(t, h.ctrl.OnNoneCorrect(ctx, testUserID))

	sess, err := h.sessions.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, models.StateNone, sess.State)
}

func TestController_RejectThenApprove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result := h.confirmInception(t, testUserID)
	id := result.Request.ID

	rejected, err := h.ctrl.OnAdminReject(ctx, testAdminID, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Contains(t, h.notifier.userKinds(testUserID), KindRequestRejected)

	_, err = h.ctrl.OnAdminApprove(ctx, testAdminID, id)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = h.ctrl.OnAdminReject(ctx, testAdminID, id)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	req, err := h.db.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, req.Status)
}

func TestController_RejectClearsAdminSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result := h.confirmInception(t, testUserID)
	_, err := h.ctrl.OnAdminApprove(ctx, testAdminID, result.Request.ID)
	require.NoError(t, err)

	_, err = h.ctrl.OnAdminReject(ctx, testAdminID, result.Request.ID)
	require.NoError(t, err)

	sess, err := h.sessions.Get(ctx, testAdminID)
	require.NoError(t, err)
	assert.Equal(t, models.StateNone, sess.State)
}

func TestController_AdminChecks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result := h.confirmInception(t, testUserID)

	_, err := h.ctrl.OnAdminApprove(ctx, testUserID, result.Request.ID)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = h.ctrl.OnAdminReject(ctx, testUserID, result.Request.ID)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = h.ctrl.OnAdminApprove(ctx, testAdminID, 9999)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = h.ctrl.RequestHistory(ctx, 7, result.Request.ID)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestController_NotificationFailureDoesNotUndoTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result := h.confirmInception(t, testUserID)
	h.notifier.notifyErr = errUnavailable
	h.notifier.editErr = errUnavailable

	req, err := h.ctrl.OnAdminApprove(ctx, testAdminID, result.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, req.Status)

	stored, err := h.db.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
}

func TestController_ChannelTagFulfillsPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result := h.confirmInception(t, testUserID)

	// A longer id sharing the prefix must not match
	matched, err := h.ctrl.IngestChannelPost(ctx, models.CatalogEntry{
		ChatID:    testChannelID,
		MessageID: 600,
		Caption:   "Something else #TMDB272050",
		IsMedia:   true,
	})
	require.NoError(t, err)
	assert.Nil(t, matched)

	matched, err = h.ctrl.IngestChannelPost(ctx, models.CatalogEntry{
		ChatID:    testChannelID,
		MessageID: 601,
		Caption:   "Inception 1080p #TMDB27205",
		IsMedia:   true,
		FileID:    "file-601",
	})
	require.NoError(t, err)
	require.NotNil(t, matched)
	assert.Equal(t, result.Request.ID, matched.ID)

	req, err := h.db.GetRequest(ctx, result.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFulfilled, req.Status)
	assert.Equal(t, 601, req.ChannelMessageID)
	assert.Equal(t, "https://t.me/moviechannel/601", req.FulfilledLink)

	contents, err := h.db.ListContent(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "1080p", contents[0].Quality)

	events, err := h.journal.ListTransitions(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.StatusPending, events[1].From)
	assert.Equal(t, models.StatusFulfilled, events[1].To)
	assert.Equal(t, channelActor, events[1].Actor)
}

func TestController_ChannelTagMatchOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	approved := h.seed(models.StatusApproved, 7, h.now.Add(-2*time.Hour))
	pending := h.seed(models.StatusPending, 8, h.now.Add(-time.Hour))

	matched, err := h.ctrl.OnChannelContentTagged(ctx, inceptionID, models.ContentRef{
		ChatID:    testChannelID,
		MessageID: 700,
		Link:      "https://t.me/moviechannel/700",
	})
	require.NoError(t, err)
	require.NotNil(t, matched)
	assert.Equal(t, pending, matched.ID)

	// Only one request is fulfilled per event
	req, err := h.db.GetRequest(ctx, approved)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, req.Status)
}

func TestController_ChannelTagWithoutWaitingRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	matched, err := h.ctrl.IngestChannelPost(ctx, models.CatalogEntry{
		ChatID:    testChannelID,
		MessageID: 800,
		Caption:   "Inception #TMDB27205",
	})
	require.NoError(t, err)
	assert.Nil(t, matched)

	entry, err := h.index.GetEntry(ctx, testChannelID, 800)
	require.NoError(t, err)
	assert.Equal(t, inceptionID, entry.TMDBID)
	assert.Equal(t, "inception", entry.Title)
}

func TestController_QualitySelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result := h.confirmInception(t, testUserID)
	id := result.Request.ID

	_, err := h.ctrl.OnAdminApprove(ctx, testAdminID, id)
	require.NoError(t, err)

	// Two versions appear in the channel without a tag
	for i, caption := range []string{"Inception (2010) [720p WEB]", "Inception (2010) [2160p UHD]"} {
		require.NoError(t, h.index.UpsertEntry(ctx, models.CatalogEntry{
			ChatID:    testChannelID,
			MessageID: 900 + i,
			Caption:   caption,
			Link:      "https://t.me/moviechannel/" + []string{"900", "901"}[i],
			IsMedia:   true,
			Quality:   []string{"720p", "4K"}[i],
			PostedAt:  h.now.Add(time.Duration(i) * time.Minute),
		}))
	}

	outcome, err := h.ctrl.OnFulfillmentMethod(ctx, testAdminID, id, MethodSearch)
	require.NoError(t, err)
	assert.Equal(t, AwaitingUserChoice, outcome)

	sess, err := h.sessions.Get(ctx, testUserID)
	require.NoError(t, err)
	require.Equal(t, models.StateAwaitingMovieQualitySelection, sess.State)
	selection := sess.Payload.(models.QualitySelection)
	assert.Equal(t, id, selection.RequestID)
	assert.Len(t, selection.Options, 2)
	assert.Contains(t, h.notifier.userKinds(testUserID), KindQualityChoice)

	_, err = h.ctrl.OnUserSelectQuality(ctx, testUserID, id, 12345)
	assert.ErrorIs(t, err, shared.ErrIndexOutOfRange)

	_, err = h.ctrl.OnUserSelectQuality(ctx, testUserID, id+1, 901)
	assert.ErrorIs(t, err, shared.ErrInvalidSession)

	req, err := h.ctrl.OnUserSelectQuality(ctx, testUserID, id, 901)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFulfilled, req.Status)
	assert.Equal(t, 901, req.ChannelMessageID)

	require.Len(t, h.notifier.delivered, 1, "content is delivered once")
	assert.Equal(t, 901, h.notifier.delivered[0].Content.MessageID)

	sess, err = h.sessions.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, models.StateNone, sess.State)
}

func TestController_QualitySelection_DeliveryFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.seed(models.StatusApproved, testUserID, h.now)
	require.NoError(t, h.sessions.Set(ctx, testUserID, models.QualitySelection{
		RequestID: id,
		Options: []models.ContentRef{
			{ChatID: testChannelID, MessageID: 10, Link: "https://t.me/moviechannel/10"},
			{ChatID: testChannelID, MessageID: 11, Link: "https://t.me/moviechannel/11"},
		},
	}))
	h.notifier.deliverErr = errUnavailable

	_, err := h.ctrl.OnUserSelectQuality(ctx, testUserID, id, 10)
	assert.ErrorIs(t, err, shared.ErrExternalService)

	sess, err := h.sessions.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingMovieQualitySelection, sess.State)

	req, err := h.db.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, req.Status)

	// Retrying after the outage succeeds with the stored option
	h.notifier.deliverErr = nil
	req, err = h.ctrl.OnUserSelectQuality(ctx, testUserID, id, 10)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFulfilled, req.Status)
}

func TestController_SearchNoFileFoundThenUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result := h.confirmInception(t, testUserID)
	id := result.Request.ID
	_, err := h.ctrl.OnAdminApprove(ctx, testAdminID, id)
	require.NoError(t, err)

	outcome, err := h.ctrl.OnFulfillmentMethod(ctx, testAdminID, id, MethodSearch)
	require.NoError(t, err)
	assert.Equal(t, NoFileFound, outcome)

	req, err := h.db.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApprovedNoFileFound, req.Status)

	sess, err := h.sessions.Get(ctx, testAdminID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingManualLink, sess.State)

	// The admin switches to uploading a file instead
	outcome, err = h.ctrl.OnFulfillmentMethod(ctx, testAdminID, id, MethodUpload)
	require.NoError(t, err)
	assert.Equal(t, AwaitingUpload, outcome)

	_, err = h.ctrl.OnAdminUpload(ctx, testAdminID, ContentPost{FromChatID: testAdminID, MessageID: 5})
	assert.ErrorIs(t, err, shared.ErrInvalidContent)

	submitted, err := h.ctrl.OnAdminUpload(ctx, testAdminID, ContentPost{
		FromChatID: testAdminID,
		MessageID:  5,
		FileID:     "file-abc",
		FileName:   "Inception.2010.1080p.mkv",
		IsMedia:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, FulfilledNow, submitted)

	require.Len(t, h.channel.captions, 1)
	assert.Contains(t, h.channel.captions[0], "#TMDB27205")
	assert.Contains(t, h.channel.captions[0], "Inception (2010)")

	req, err = h.db.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFulfilled, req.Status)
	assert.Equal(t, 9001, req.ChannelMessageID)
	assert.Equal(t, "https://t.me/moviechannel/9001", req.FulfilledLink)

	// The published post is now findable in the catalog
	entry, err := h.index.GetEntry(ctx, testChannelID, 9001)
	require.NoError(t, err)
	assert.Equal(t, inceptionID, entry.TMDBID)
	assert.Equal(t, "1080p", entry.Quality)
}

func TestController_OnAdminLink_RejectsNonLinks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.seed(models.StatusApproved, testUserID, h.now)
	require.NoError(t, h.sessions.Set(ctx, testAdminID, models.ManualLink{RequestID: id}))

	_, err := h.ctrl.OnAdminLink(ctx, testAdminID, "not a link")
	assert.ErrorIs(t, err, shared.ErrInvalidContent)

	sess, err := h.sessions.Get(ctx, testAdminID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingManualLink, sess.State)

	// Links outside the channel are accepted without a message id
	outcome, err := h.ctrl.OnAdminLink(ctx, testAdminID, "https://example.com/inception")
	require.NoError(t, err)
	assert.Equal(t, FulfilledNow, outcome)

	req, err := h.db.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, req.ChannelMessageID)
	assert.Equal(t, "https://example.com/inception", req.FulfilledLink)
}

func TestController_OnAdminContentSubmitted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending := h.seed(models.StatusPending, testUserID, h.now)
	_, err := h.ctrl.OnAdminContentSubmitted(ctx, pending, models.ContentRef{Link: "https://t.me/moviechannel/1"}, "admin:1000")
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	approved := h.seed(models.StatusApproved, 7, h.now)
	first := models.ContentRef{Link: "https://t.me/moviechannel/1", MessageID: 1}
	second := models.ContentRef{Link: "https://t.me/moviechannel/2", MessageID: 2}

	outcome, err := h.ctrl.OnAdminContentSubmitted(ctx, approved, first, "admin:1000")
	require.NoError(t, err)
	assert.Equal(t, FulfilledNow, outcome)

	outcome, err = h.ctrl.OnAdminContentSubmitted(ctx, approved, second, "admin:1000")
	require.NoError(t, err)
	assert.Equal(t, ExtraAdded, outcome)
	assert.Contains(t, h.notifier.userKinds(7), KindExtraContent)

	outcome, err = h.ctrl.OnAdminContentSubmitted(ctx, approved, second, "admin:1000")
	require.NoError(t, err)
	assert.Equal(t, DuplicateContent, outcome)

	// The fulfillment itself keeps pointing at the first item
	req, err := h.db.GetRequest(ctx, approved)
	require.NoError(t, err)
	assert.Equal(t, 1, req.ChannelMessageID)

	contents, err := h.db.ListContent(ctx, approved)
	require.NoError(t, err)
	assert.Len(t, contents, 2)

	_, err = h.ctrl.OnAdminContentSubmitted(ctx, approved, models.ContentRef{}, "admin:1000")
	assert.ErrorIs(t, err, shared.ErrInvalidContent)
}

func TestController_OnFulfillmentMethod_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// No admin session is needed while the request waits for content
	id := h.seed(models.StatusApproved, testUserID, h.now)
	outcome, err := h.ctrl.OnFulfillmentMethod(ctx, testAdminID, id, MethodLink)
	require.NoError(t, err)
	assert.Equal(t, AwaitingLink, outcome)

	sess, err := h.sessions.Get(ctx, testAdminID)
	require.NoError(t, err)
	require.Equal(t, models.StateAwaitingManualLink, sess.State)
	assert.Equal(t, id, sess.Payload.(models.ManualLink).RequestID)

	_, err = h.ctrl.OnFulfillmentMethod(ctx, testUserID, id, MethodLink)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = h.ctrl.OnFulfillmentMethod(ctx, testAdminID, id, FulfillmentMethod("carrier-pigeon"))
	assert.ErrorIs(t, err, shared.ErrInvalidContent)

	for _, status := range []models.RequestStatus{models.StatusPending, models.StatusRejected, models.StatusFulfilled} {
		other := h.seed(status, testUserID, h.now)
		_, err = h.ctrl.OnFulfillmentMethod(ctx, testAdminID, other, MethodUpload)
		assert.ErrorIs(t, err, shared.ErrInvalidTransition, status)
	}
}

func TestController_OnFulfillmentMethod_AfterApprovingAnother(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.confirmInception(t, testUserID).Request.ID
	second := h.confirmInception(t, 43).Request.ID

	_, err := h.ctrl.OnAdminApprove(ctx, testAdminID, first)
	require.NoError(t, err)
	_, err = h.ctrl.OnAdminApprove(ctx, testAdminID, second)
	require.NoError(t, err)

	// The first request's buttons still work
	outcome, err := h.ctrl.OnFulfillmentMethod(ctx, testAdminID, first, MethodLink)
	require.NoError(t, err)
	assert.Equal(t, AwaitingLink, outcome)

	submitted, err := h.ctrl.OnAdminLink(ctx, testAdminID, "https://t.me/moviechannel/555")
	require.NoError(t, err)
	assert.Equal(t, FulfilledNow, submitted)

	req, err := h.db.GetRequest(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFulfilled, req.Status)

	req, err = h.db.GetRequest(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, req.Status)
}

func TestController_OnFulfillmentMethod_AfterSessionExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.confirmInception(t, testUserID).Request.ID
	_, err := h.ctrl.OnAdminApprove(ctx, testAdminID, id)
	require.NoError(t, err)

	h.advance(2 * time.Hour)

	sess, err := h.sessions.Get(ctx, testAdminID)
	require.NoError(t, err)
	require.Equal(t, models.StateNone, sess.State)

	outcome, err := h.ctrl.OnFulfillmentMethod(ctx, testAdminID, id, MethodUpload)
	require.NoError(t, err)
	assert.Equal(t, AwaitingUpload, outcome)

	sess, err = h.sessions.Get(ctx, testAdminID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingAdminUpload, sess.State)
}

func TestController_AbandonedQualityChoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.confirmInception(t, testUserID).Request.ID
	_, err := h.ctrl.OnAdminApprove(ctx, testAdminID, id)
	require.NoError(t, err)

	h.indexVersions(t, "720p", "1080p")

	outcome, err := h.ctrl.OnFulfillmentMethod(ctx, testAdminID, id, MethodSearch)
	require.NoError(t, err)
	require.Equal(t, AwaitingUserChoice, outcome)

	edits := h.notifier.editsIn(testAdminID)
	require.NotEmpty(t, edits)
	view := edits[len(edits)-1]
	assert.Equal(t, KindAdminUserChoosing, view.Kind)
	var kinds []ActionKind
	for _, action := range view.Actions {
		assert.Equal(t, id, action.RequestID)
		kinds = append(kinds, action.Kind)
	}
	assert.Contains(t, kinds, ActionMethodLink)
	assert.Contains(t, kinds, ActionMethodUpload)
	assert.Contains(t, kinds, ActionReject)

	// The user wanders off into a new search instead of picking
	_, err = h.ctrl.StartSearch(ctx, testUserID, "Inception")
	require.NoError(t, err)
	_, err = h.ctrl.OnUserSelectQuality(ctx, testUserID, id, 900)
	assert.ErrorIs(t, err, shared.ErrInvalidSession)

	outcome, err = h.ctrl.OnFulfillmentMethod(ctx, testAdminID, id, MethodLink)
	require.NoError(t, err)
	assert.Equal(t, AwaitingLink, outcome)

	submitted, err := h.ctrl.OnAdminLink(ctx, testAdminID, "https://t.me/moviechannel/901")
	require.NoError(t, err)
	assert.Equal(t, FulfilledNow, submitted)

	req, err := h.db.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFulfilled, req.Status)
	assert.Equal(t, 901, req.ChannelMessageID)

	// The new search survives the fulfillment
	sess, err := h.sessions.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingTMDBSelection, sess.State)
}

func TestController_AbandonedQualityChoice_Reject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.confirmInception(t, testUserID).Request.ID
	_, err := h.ctrl.OnAdminApprove(ctx, testAdminID, id)
	require.NoError(t, err)
	h.indexVersions(t, "720p", "1080p")

	outcome, err := h.ctrl.OnFulfillmentMethod(ctx, testAdminID, id, MethodSearch)
	require.NoError(t, err)
	require.Equal(t, AwaitingUserChoice, outcome)

	_, err = h.ctrl.StartSearch(ctx, testUserID, "Inception")
	require.NoError(t, err)

	req, err := h.ctrl.OnAdminReject(ctx, testAdminID, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, req.Status)

	// Only sessions bound to the request are cleared
	sess, err := h.sessions.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingTMDBSelection, sess.State)

	_, err = h.ctrl.OnFulfillmentMethod(ctx, testAdminID, id, MethodLink)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestController_OnAdminSelectVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.confirmInception(t, testUserID).Request.ID
	_, err := h.ctrl.OnAdminApprove(ctx, testAdminID, id)
	require.NoError(t, err)
	h.indexVersions(t, "720p", "1080p")

	_, err = h.ctrl.OnFulfillmentMethod(ctx, testAdminID, id, MethodSearch)
	require.NoError(t, err)

	sess, err := h.sessions.Get(ctx, testAdminID)
	require.NoError(t, err)
	require.Equal(t, models.StateAwaitingChannelSelection, sess.State)
	assert.Len(t, sess.Payload.(models.ChannelSelection).Options, 2)

	_, err = h.ctrl.OnAdminSelectVersion(ctx, testUserID, id, 901)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = h.ctrl.OnAdminSelectVersion(ctx, testAdminID, id, 12345)
	assert.ErrorIs(t, err, shared.ErrIndexOutOfRange)

	// The buttons outlive the session, the index still knows the post
	h.advance(2 * time.Hour)
	outcome, err := h.ctrl.OnAdminSelectVersion(ctx, testAdminID, id, 901)
	require.NoError(t, err)
	assert.Equal(t, FulfilledNow, outcome)

	req, err := h.db.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFulfilled, req.Status)
	assert.Equal(t, 901, req.ChannelMessageID)
	require.Len(t, h.notifier.delivered, 1)
	assert.Equal(t, 901, h.notifier.delivered[0].Content.MessageID)

	events, err := h.ctrl.RequestHistory(ctx, testUserID, id)
	require.NoError(t, err)
	assert.Equal(t, "admin:1000", events[len(events)-1].Actor)
}

func TestController_OnAdminSelectVersion_StoredCopy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.seed(models.StatusApproved, testUserID, h.now)
	require.NoError(t, h.sessions.Set(ctx, testAdminID, models.ChannelSelection{
		RequestID: id,
		Options:   []models.ContentRef{{ChatID: testChannelID, MessageID: 10, Link: "https://t.me/moviechannel/10"}},
	}))

	// The post is gone from the index, the shown copy is used
	outcome, err := h.ctrl.OnAdminSelectVersion(ctx, testAdminID, id, 10)
	require.NoError(t, err)
	assert.Equal(t, FulfilledNow, outcome)

	req, err := h.db.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/moviechannel/10", req.FulfilledLink)

	sess, err := h.sessions.Get(ctx, testAdminID)
	require.NoError(t, err)
	assert.Equal(t, models.StateNone, sess.State)
}

func TestController_OutcomeEditsConfirmationMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	fulfilled := h.confirmInception(t, testUserID).Request.ID
	_, err := h.ctrl.OnAdminApprove(ctx, testAdminID, fulfilled)
	require.NoError(t, err)
	_, err = h.ctrl.OnAdminContentSubmitted(ctx, fulfilled, models.ContentRef{Link: "https://t.me/moviechannel/555", MessageID: 555}, adminActor(testAdminID))
	require.NoError(t, err)

	edits := h.notifier.editsIn(testUserID)
	require.Len(t, edits, 1)
	assert.Equal(t, MessageRef{ChatID: testUserID, MessageID: 77}, edits[0].Ref)
	assert.Equal(t, KindRequestFulfilled, edits[0].Kind)
	require.Len(t, edits[0].Actions, 1)
	assert.Equal(t, "https://t.me/moviechannel/555", edits[0].Actions[0].URL)
	assert.NotContains(t, h.notifier.sentToUser(testUserID), KindRequestFulfilled)

	rejected := h.confirmInception(t, 43).Request.ID
	_, err = h.ctrl.OnAdminReject(ctx, testAdminID, rejected)
	require.NoError(t, err)

	edits = h.notifier.editsIn(43)
	require.Len(t, edits, 1)
	assert.Equal(t, MessageRef{ChatID: 43, MessageID: 77}, edits[0].Ref)
	assert.Equal(t, KindRequestRejected, edits[0].Kind)
	assert.NotContains(t, h.notifier.sentToUser(43), KindRequestRejected)
}

func TestController_OutcomeFallsBackToNewMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.confirmInception(t, testUserID).Request.ID
	h.notifier.editErr = errUnavailable

	_, err := h.ctrl.OnAdminReject(ctx, testAdminID, id)
	require.NoError(t, err)
	assert.Empty(t, h.notifier.editsIn(testUserID))
	assert.Contains(t, h.notifier.sentToUser(testUserID), KindRequestRejected)

	// Requests without a confirmation message are told with a new one too
	h.notifier.editErr = nil
	seeded := h.seed(models.StatusApproved, 7, h.now)
	_, err = h.ctrl.OnAdminContentSubmitted(ctx, seeded, models.ContentRef{Link: "https://example.com/inception"}, adminActor(testAdminID))
	require.NoError(t, err)
	assert.Empty(t, h.notifier.editsIn(7))
	assert.Contains(t, h.notifier.sentToUser(7), KindRequestFulfilled)
}

func TestController_ExtraChannelPostBecomesChannelReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.seed(models.StatusApproved, 7, h.now)
	outcome, err := h.ctrl.OnAdminContentSubmitted(ctx, id, models.ContentRef{Link: "https://example.com/inception"}, adminActor(testAdminID))
	require.NoError(t, err)
	require.Equal(t, FulfilledNow, outcome)

	req, err := h.db.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Zero(t, req.ChannelMessageID)

	for _, messageID := range []int{12, 13} {
		content := models.ContentRef{ChatID: testChannelID, MessageID: messageID, Link: fmt.Sprintf("https://t.me/moviechannel/%d", messageID)}
		outcome, err = h.ctrl.OnAdminContentSubmitted(ctx, id, content, adminActor(testAdminID))
		require.NoError(t, err)
		assert.Equal(t, ExtraAdded, outcome)
	}

	// Only the first channel post is adopted, the fulfillment link stays
	req, err = h.db.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 12, req.ChannelMessageID)
	assert.Equal(t, "https://example.com/inception", req.FulfilledLink)
}

func TestController_ListUserRequests(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < DefaultHistoryLimit+3; i++ {
		h.seed(models.StatusRejected, testUserID, h.now)
	}
	h.seed(models.StatusPending, 7, h.now)

	reqs, err := h.ctrl.ListUserRequests(ctx, testUserID)
	require.NoError(t, err)
	assert.Len(t, reqs, DefaultHistoryLimit)
	for _, req := range reqs {
		assert.Equal(t, testUserID, req.UserID)
	}
	// Fulfilled requests come with every version handed to them
	fulfilled := h.seed(models.StatusApproved, 7, h.now)
	for _, link := range []string{"https://t.me/moviechannel/1", "https://t.me/moviechannel/2"} {
		_, err := h.ctrl.OnAdminContentSubmitted(ctx, fulfilled, models.ContentRef{Link: link}, adminActor(testAdminID))
		require.NoError(t, err)
	}

	reqs, err = h.ctrl.ListUserRequests(ctx, 7)
	require.NoError(t, err)
	for _, req := range reqs {
		if req.ID != fulfilled {
			assert.Empty(t, req.Contents, "pending requests carry no content")
			continue
		}
		require.Len(t, req.Contents, 2)
		assert.Equal(t, "https://t.me/moviechannel/1", req.Contents[0].Link)
		assert.Equal(t, "https://t.me/moviechannel/2", req.Contents[1].Link)
	}
}
