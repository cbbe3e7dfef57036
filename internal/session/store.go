package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"moviebot/internal/models"
	"moviebot/internal/shared"
	"moviebot/internal/storage"
)

// Store keeps one dialog state per user with lazy expiry
type Store struct {
	repo    storage.SessionRepository
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewStore creates a session store; sessions older than timeout are treated as absent
func NewStore(repo storage.SessionRepository, timeout time.Duration, logger *zap.Logger) *Store {
	return &Store{
		repo:    repo,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
}

// WithClock replaces the time source, for tests
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Set overwrites the user's session with payload
func (s *Store) Set(ctx context.Context, userID int64, payload models.SessionPayload) error {
	data, err := models.EncodePayload(payload)
	if err != nil {
		return err
	}

	row := storage.SessionRow{
		UserID:    userID,
		State:     payload.SessionState(),
		Payload:   data,
		UpdatedAt: s.now(),
	}
	if err := s.repo.UpsertSession(ctx, row); err != nil {
		return fmt.Errorf("failed to save session for user %d: %w", userID, err)
	}

	s.logger.Debug("Session state set",
		zap.Int64("user_id", userID),
		zap.String("state", string(row.State)),
	)
	return nil
}

// Get returns the user's session, or a StateNone session when absent or expired
func (s *Store) Get(ctx context.Context, userID int64) (models.Session, error) {
	none := models.Session{UserID: userID, State: models.StateNone}

	row, err := s.repo.GetSession(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return none, nil
	}
	if err != nil {
		return none, fmt.Errorf("failed to load session for user %d: %w", userID, err)
	}

	if s.expired(row) {
		s.discard(ctx, row, "expired")
		return none, nil
	}

	payload, err := models.DecodePayload(row.State, row.Payload)
	if err != nil {
		s.logger.Warn("Discarding undecodable session",
			zap.Int64("user_id", userID),
			zap.String("state", string(row.State)),
			zap.Error(err),
		)
		s.discard(ctx, row, "undecodable")
		return none, nil
	}

	return models.Session{
		UserID:     userID,
		State:      row.State,
		Payload:    payload,
		LastUpdate: row.UpdatedAt,
	}, nil
}

// Clear removes the user's session; clearing an absent session is not an error
func (s *Store) Clear(ctx context.Context, userID int64) error {
	if err := s.repo.DeleteSession(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear session for user %d: %w", userID, err)
	}
	return nil
}

// Expect returns the payload if the user is currently in state.
// The session is left untouched either way.
func (s *Store) Expect(ctx context.Context, userID int64, state models.SessionState) (models.SessionPayload, error) {
	sess, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess.State != state {
		return nil, fmt.Errorf("%w: user %d is in %s, expected %s", shared.ErrInvalidSession, userID, sess.State, state)
	}
	return sess.Payload, nil
}

// Consume atomically removes the session if it is in state and returns its payload.
// Only one of several concurrent callers can consume the same session.
func (s *Store) Consume(ctx context.Context, userID int64, state models.SessionState) (models.SessionPayload, error) {
	row, err := s.repo.TakeSession(ctx, userID, state)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %d has no %s session", shared.ErrInvalidSession, userID, state)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume session for user %d: %w", userID, err)
	}

	if s.expired(row) {
		return nil, fmt.Errorf("%w: %s session of user %d expired", shared.ErrInvalidSession, state, userID)
	}

	payload, err := models.DecodePayload(row.State, row.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidSession, err)
	}
	return payload, nil
}

// Sweep deletes every expired session and returns how many were removed
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteSessionsBefore(ctx, s.now().Add(-s.timeout))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	return removed, nil
}

// RunSweeper calls Sweep every interval until ctx is done
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("Session sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				s.logger.Info("Expired sessions removed", zap.Int64("count", removed))
			}
		}
	}
}

// discard deletes the row Get just read. A session written since then is
// kept, and a failed delete is left for the sweeper.
func (s *Store) discard(ctx context.Context, row *storage.SessionRow, reason string) {
	removed, err := s.repo.DeleteSessionAt(ctx, row.UserID, row.UpdatedAt)
	if err != nil {
		s.logger.Warn("Failed to clear session",
			zap.Int64("user_id", row.UserID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("Session cleared",
		zap.Int64("user_id", row.UserID),
		zap.String("reason", reason),
		zap.Bool("removed", removed),
	)
}

func (s *Store) expired(row *storage.SessionRow) bool {
	return s.now().Sub(row.UpdatedAt) > s.timeout
}
