package stubs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"moviebot/internal/models"
	"moviebot/internal/shared"
	"moviebot/internal/storage"
)

// MockDB is an in-memory implementation of storage.Storage for testing
type MockDB struct {
	mu       sync.RWMutex
	nextID   int64
	requests map[int64]models.MovieRequest
	contents map[int64][]models.ContentRef
	sessions map[int64]storage.SessionRow
	now      func() time.Time
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		requests: make(map[int64]models.MovieRequest),
		contents: make(map[int64][]models.ContentRef),
		sessions: make(map[int64]storage.SessionRow),
		now:      time.Now,
	}
}

// Initialize is a no-op for the mock
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// CreateRequest stores a new pending request
func (m *MockDB) CreateRequest(ctx context.Context, req *models.MovieRequest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.requests {
		if existing.UserID == req.UserID && existing.TMDBID == req.TMDBID && !existing.Status.IsTerminal() {
			return 0, fmt.Errorf("%w: user %d already has an active request for tmdb %d",
				shared.ErrDataIntegrity, req.UserID, req.TMDBID)
		}
	}

	m.nextID++
	stored := *req
	stored.ID = m.nextID
	stored.Status = models.StatusPending
	if stored.RequestTimestamp.IsZero() {
		stored.RequestTimestamp = m.now()
	}
	stored.UpdatedAt = stored.RequestTimestamp
	stored.FulfilledTimestamp = nil
	stored.FulfilledLink = ""
	stored.ChannelMessageID = 0
	m.requests[stored.ID] = stored
	return stored.ID, nil
}

// GetRequest returns a copy of the request
func (m *MockDB) GetRequest(ctx context.Context, id int64) (*models.MovieRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &req, nil
}

// GetRequestByTMDB returns the oldest request with the given TMDB id and status
func (m *MockDB) GetRequestByTMDB(ctx context.Context, tmdbID int64, status models.RequestStatus) (*models.MovieRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *models.MovieRequest
	for _, req := range m.requests {
		if req.TMDBID != tmdbID || req.Status != status {
			continue
		}
		if found == nil || req.ID < found.ID {
			r := req
			found = &r
		}
	}
	if found == nil {
		return nil, shared.ErrNotFound
	}
	return found, nil
}

// ListActiveForUser returns non-terminal requests for a user and movie, newest first
func (m *MockDB) ListActiveForUser(ctx context.Context, userID, tmdbID int64) ([]models.MovieRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.MovieRequest
	for _, req := range m.requests {
		if req.UserID == userID && req.TMDBID == tmdbID && !req.Status.IsTerminal() {
			result = append(result, req)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

// ListUserRequests returns the latest requests of a user
func (m *MockDB) ListUserRequests(ctx context.Context, userID int64, limit int) ([]models.MovieRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.MovieRequest
	for _, req := range m.requests {
		if req.UserID == userID {
			result = append(result, req)
		}
	}
	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// UpdateStatus applies a compare-and-set status transition
func (m *MockDB) UpdateStatus(ctx context.Context, id int64, from, to models.RequestStatus, fulfillment *storage.Fulfillment) error {
	if err := storage.ValidateTransition(from, to, fulfillment); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return shared.ErrNotFound
	}
	if req.Status != from {
		return fmt.Errorf("%w: request %d is %s, expected %s", shared.ErrInvalidTransition, id, req.Status, from)
	}

	req.Status = to
	req.UpdatedAt = m.now()
	if fulfillment != nil {
		at := fulfillment.At
		req.FulfilledTimestamp = &at
		req.FulfilledLink = fulfillment.Link
		req.ChannelMessageID = fulfillment.ChannelMessageID
	}
	m.requests[id] = req
	return nil
}

// AttachChannelReference sets the channel message of a fulfilled request
func (m *MockDB) AttachChannelReference(ctx context.Context, id int64, channelMessageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return shared.ErrNotFound
	}
	if req.Status != models.StatusFulfilled {
		return fmt.Errorf("%w: channel reference on %s request %d", shared.ErrInvalidTransition, req.Status, id)
	}
	req.ChannelMessageID = channelMessageID
	req.UpdatedAt = m.now()
	m.requests[id] = req
	return nil
}

// AttachAdminMessageReference stores the admin notification message id
func (m *MockDB) AttachAdminMessageReference(ctx context.Context, id int64, adminMessageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return shared.ErrNotFound
	}
	req.AdminMessageID = adminMessageID
	req.UpdatedAt = m.now()
	m.requests[id] = req
	return nil
}

// AddContent appends a content reference unless its link is already stored
func (m *MockDB) AddContent(ctx context.Context, id int64, ref models.ContentRef) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[id]; !ok {
		return false, shared.ErrNotFound
	}
	for _, existing := range m.contents[id] {
		if existing.Link == ref.Link {
			return false, nil
		}
	}
	m.contents[id] = append(m.contents[id], ref)
	return true, nil
}

// ListContent returns content references in insertion order
func (m *MockDB) ListContent(ctx context.Context, id int64) ([]models.ContentRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	refs := make([]models.ContentRef, len(m.contents[id]))
	copy(refs, m.contents[id])
	return refs, nil
}

// UpsertSession replaces the session row of a user
func (m *MockDB) UpsertSession(ctx context.Context, row storage.SessionRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	payload := make([]byte, len(row.Payload))
	copy(payload, row.Payload)
	row.Payload = payload
	m.sessions[row.UserID] = row
	return nil
}

// GetSession returns the session row of a user
func (m *MockDB) GetSession(ctx context.Context, userID int64) (*storage.SessionRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.sessions[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &row, nil
}

// DeleteSession removes the session row of a user
func (m *MockDB) DeleteSession(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, userID)
	return nil
}

// DeleteSessionAt removes the session row of a user if it was written at updatedAt
func (m *MockDB) DeleteSessionAt(ctx context.Context, userID int64, updatedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.sessions[userID]
	if !ok || !row.UpdatedAt.Equal(updatedAt) {
		return false, nil
	}
	delete(m.sessions, userID)
	return true, nil
}

// TakeSession deletes and returns the row if it is in the given state
func (m *MockDB) TakeSession(ctx context.Context, userID int64, state models.SessionState) (*storage.SessionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.sessions[userID]
	if !ok || row.State != state {
		return nil, shared.ErrNotFound
	}
	delete(m.sessions, userID)
	return &row, nil
}

// DeleteSessionsBefore removes rows older than cutoff
func (m *MockDB) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for userID, row := range m.sessions {
		if row.UpdatedAt.Before(cutoff) {
			delete(m.sessions, userID)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the mock
func (m *MockDB) Close() error {
	return nil
}

// SetClock overrides the time source used for timestamps
func (m *MockDB) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func sortNewestFirst(reqs []models.MovieRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].ID > reqs[j].ID
	})
}

// SeedRequest stores req as-is, bypassing creation checks. Tests use it to
// build states the stores normally refuse.
func (m *MockDB) SeedRequest(req models.MovieRequest) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	req.ID = m.nextID
	m.requests[req.ID] = req
	return req.ID
}
