package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"moviebot/internal/models"
	"moviebot/internal/shared"
	"moviebot/internal/storage"
)

// UpsertSession replaces the session row of a user
func (p *PostgresDB) UpsertSession(ctx context.Context, row storage.SessionRow) error {
	payload := string(row.Payload)
	if payload == "" {
		payload = "{}"
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO user_states (user_id, state, payload, updated_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET state = EXCLUDED.state, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		row.UserID, string(row.State), payload, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session of user %d: %w", row.UserID, err)
	}
	return nil
}

// GetSession returns the session row of a user
func (p *PostgresDB) GetSession(ctx context.Context, userID int64) (*storage.SessionRow, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT user_id, state, payload::text, updated_at
		FROM user_states WHERE user_id = $1`, userID)
	return scanSession(row)
}

// DeleteSession removes the session row of a user
func (p *PostgresDB) DeleteSession(ctx context.Context, userID int64) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM user_states WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete session of user %d: %w", userID, err)
	}
	return nil
}

// DeleteSessionAt removes the session row of a user if it is still the version read at updatedAt
func (p *PostgresDB) DeleteSessionAt(ctx context.Context, userID int64, updatedAt time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM user_states WHERE user_id = $1 AND updated_at = $2`, userID, updatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to delete session of user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete session of user %d: %w", userID, err)
	}
	return n > 0, nil
}

// TakeSession deletes and returns the row in one statement if it is in state
func (p *PostgresDB) TakeSession(ctx context.Context, userID int64, state models.SessionState) (*storage.SessionRow, error) {
	row := p.db.QueryRowContext(ctx, `
		DELETE FROM user_states
		WHERE user_id = $1 AND state = $2
		RETURNING user_id, state, payload::text, updated_at`,
		userID, string(state),
	)
	return scanSession(row)
}

// DeleteSessionsBefore removes rows last updated before cutoff
func (p *PostgresDB) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM user_states WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func scanSession(row rowScanner) (*storage.SessionRow, error) {
	var (
		session storage.SessionRow
		state   string
		payload string
	)
	err := row.Scan(&session.UserID, &state, &payload, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	session.State = models.SessionState(state)
	session.Payload = []byte(payload)
	return &session, nil
}
