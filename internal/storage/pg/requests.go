package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"moviebot/internal/models"
	"moviebot/internal/shared"
	"moviebot/internal/storage"
)

const foreignKeyViolation = "23503"

const requestColumns = `id, user_id, user_name, tmdb_id, tmdb_title, tmdb_overview, tmdb_poster_path,
	tmdb_release_date, status, request_timestamp, updated_at, fulfilled_timestamp, fulfilled_link,
	channel_message_id, admin_message_id, original_request_message_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.MovieRequest, error) {
	var (
		req             models.MovieRequest
		status          string
		fulfilledAt     sql.NullTime
		fulfilledLink   sql.NullString
		channelMsgID    sql.NullInt32
		adminMsgID      sql.NullInt32
		originalMessage sql.NullInt32
	)
	err := row.Scan(
		&req.ID, &req.UserID, &req.UserName, &req.TMDBID, &req.TMDBTitle, &req.TMDBOverview,
		&req.TMDBPosterPath, &req.TMDBReleaseDate, &status, &req.RequestTimestamp, &req.UpdatedAt,
		&fulfilledAt, &fulfilledLink, &channelMsgID, &adminMsgID, &originalMessage,
	)
	if err != nil {
		return nil, err
	}

	if req.Status, err = models.ParseRequestStatus(status); err != nil {
		return nil, fmt.Errorf("request %d: %w", req.ID, err)
	}
	if fulfilledAt.Valid {
		at := fulfilledAt.Time
		req.FulfilledTimestamp = &at
	}
	req.FulfilledLink = fulfilledLink.String
	req.ChannelMessageID = int(channelMsgID.Int32)
	req.AdminMessageID = int(adminMsgID.Int32)
	req.OriginalRequestMessageID = int(originalMessage.Int32)
	return &req, nil
}

func nullInt(v int) sql.NullInt32 {
	return sql.NullInt32{Int32: int32(v), Valid: v != 0}
}

// CreateRequest inserts a pending request
func (p *PostgresDB) CreateRequest(ctx context.Context, req *models.MovieRequest) (int64, error) {
	query := `
		INSERT INTO movie_requests (user_id, user_name, tmdb_id, tmdb_title, tmdb_overview,
			tmdb_poster_path, tmdb_release_date, status, request_timestamp, updated_at,
			admin_message_id, original_request_message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', COALESCE($8, now()), COALESCE($8, now()), $9, $10)
		RETURNING id
	`

	var requestedAt sql.NullTime
	if !req.RequestTimestamp.IsZero() {
		requestedAt = sql.NullTime{Time: req.RequestTimestamp, Valid: true}
	}

	var id int64
	err := p.db.QueryRowContext(ctx, query,
		req.UserID, req.UserName, req.TMDBID, req.TMDBTitle, req.TMDBOverview,
		req.TMDBPosterPath, req.TMDBReleaseDate, requestedAt,
		nullInt(req.AdminMessageID), nullInt(req.OriginalRequestMessageID),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: user %d already has an active request for tmdb %d",
				shared.ErrDataIntegrity, req.UserID, req.TMDBID)
		}
		return 0, fmt.Errorf("failed to insert request: %w", err)
	}
	return id, nil
}

// GetRequest returns one request by id
func (p *PostgresDB) GetRequest(ctx context.Context, id int64) (*models.MovieRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM movie_requests WHERE id = $1`

	req, err := scanRequest(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request %d: %w", id, err)
	}
	return req, nil
}

// GetRequestByTMDB returns the oldest request for a movie in status
func (p *PostgresDB) GetRequestByTMDB(ctx context.Context, tmdbID int64, status models.RequestStatus) (*models.MovieRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM movie_requests
		WHERE tmdb_id = $1 AND status = $2
		ORDER BY request_timestamp ASC, id ASC
		LIMIT 1`

	req, err := scanRequest(p.db.QueryRowContext(ctx, query, tmdbID, string(status)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s request for tmdb %d: %w", status, tmdbID, err)
	}
	return req, nil
}

// ListActiveForUser returns the live requests of a user for one movie, newest first
func (p *PostgresDB) ListActiveForUser(ctx context.Context, userID, tmdbID int64) ([]models.MovieRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM movie_requests
		WHERE user_id = $1 AND tmdb_id = $2
		  AND status IN ('pending', 'approved', 'approved_no_file_found')
		ORDER BY id DESC`

	return p.queryRequests(ctx, query, userID, tmdbID)
}

// ListUserRequests returns the latest requests of a user
func (p *PostgresDB) ListUserRequests(ctx context.Context, userID int64, limit int) ([]models.MovieRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + requestColumns + ` FROM movie_requests
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2`

	return p.queryRequests(ctx, query, userID, limit)
}

func (p *PostgresDB) queryRequests(ctx context.Context, query string, args ...any) ([]models.MovieRequest, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var reqs []models.MovieRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		reqs = append(reqs, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}
	return reqs, nil
}

// UpdateStatus moves a request from -> to in one conditional update
func (p *PostgresDB) UpdateStatus(ctx context.Context, id int64, from, to models.RequestStatus, fulfillment *storage.Fulfillment) error {
	if err := storage.ValidateTransition(from, to, fulfillment); err != nil {
		return err
	}

	var (
		res sql.Result
		err error
	)
	if fulfillment != nil {
		res, err = p.db.ExecContext(ctx, `
			UPDATE movie_requests
			SET status = $3, updated_at = now(),
				fulfilled_timestamp = $4, fulfilled_link = $5, channel_message_id = $6
			WHERE id = $1 AND status = $2`,
			id, string(from), string(to),
			fulfillment.At, fulfillment.Link, nullInt(fulfillment.ChannelMessageID),
		)
	} else {
		res, err = p.db.ExecContext(ctx, `
			UPDATE movie_requests
			SET status = $3, updated_at = now()
			WHERE id = $1 AND status = $2`,
			id, string(from), string(to),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to update request %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Nothing matched: either the request is gone or another writer moved it
	var current string
	err = p.db.QueryRowContext(ctx, `SELECT status FROM movie_requests WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return shared.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read request %d: %w", id, err)
	}
	return fmt.Errorf("%w: request %d is %s, expected %s", shared.ErrInvalidTransition, id, current, from)
}

// AttachChannelReference sets the channel post of a fulfilled request
func (p *PostgresDB) AttachChannelReference(ctx context.Context, id int64, channelMessageID int) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE movie_requests SET channel_message_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'fulfilled'`,
		id, nullInt(channelMessageID),
	)
	if err != nil {
		return fmt.Errorf("failed to attach channel message to request %d: %w", id, err)
	}
	return p.checkAttached(ctx, res, id, "channel reference")
}

// AttachAdminMessageReference stores the admin notification message id
func (p *PostgresDB) AttachAdminMessageReference(ctx context.Context, id int64, adminMessageID int) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE movie_requests SET admin_message_id = $2, updated_at = now()
		WHERE id = $1`,
		id, nullInt(adminMessageID),
	)
	if err != nil {
		return fmt.Errorf("failed to attach admin message to request %d: %w", id, err)
	}
	return p.checkAttached(ctx, res, id, "admin message")
}

func (p *PostgresDB) checkAttached(ctx context.Context, res sql.Result, id int64, what string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var status string
	err = p.db.QueryRowContext(ctx, `SELECT status FROM movie_requests WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return shared.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read request %d: %w", id, err)
	}
	return fmt.Errorf("%w: %s on %s request %d", shared.ErrInvalidTransition, what, status, id)
}

// AddContent records a content reference; repeated links are ignored
func (p *PostgresDB) AddContent(ctx context.Context, id int64, ref models.ContentRef) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO request_contents (request_id, link, chat_id, channel_message_id, caption, is_media, file_id, quality)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (request_id, link) DO NOTHING`,
		id, ref.Link, ref.ChatID, ref.MessageID, ref.Caption, ref.IsMedia, ref.FileID, ref.Quality,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return false, shared.ErrNotFound
		}
		return false, fmt.Errorf("failed to add content to request %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return affected == 1, nil
}

// ListContent returns the content of a request in insertion order
func (p *PostgresDB) ListContent(ctx context.Context, id int64) ([]models.ContentRef, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT link, chat_id, channel_message_id, caption, is_media, file_id, quality, added_at
		FROM request_contents
		WHERE request_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list content of request %d: %w", id, err)
	}
	defer rows.Close()

	var refs []models.ContentRef
	for rows.Next() {
		var ref models.ContentRef
		if err := rows.Scan(&ref.Link, &ref.ChatID, &ref.MessageID, &ref.Caption, &ref.IsMedia,
			&ref.FileID, &ref.Quality, &ref.PostedAt); err != nil {
			return nil, fmt.Errorf("failed to scan content: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content: %w", err)
	}
	return refs, nil
}
