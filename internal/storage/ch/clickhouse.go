package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"moviebot/internal/models"
)

const createEventsTable = `
	CREATE TABLE IF NOT EXISTS request_events (
		event_id String,
		request_id Int64,
		tmdb_id Int64,
		from_status LowCardinality(String),
		to_status LowCardinality(String),
		actor String,
		occurred_at DateTime64(3, 'UTC')
	) ENGINE = MergeTree()
	ORDER BY (request_id, occurred_at)
`

// ClickHouseDB implements storage.Journal on ClickHouse
type ClickHouseDB struct {
	conn clickhouse.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
		DialTimeout: 10 * time.Second,
	}

	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize creates the events table if it is missing
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	if err := db.conn.Exec(ctx, createEventsTable); err != nil {
		return fmt.Errorf("failed to create request_events: %w", err)
	}
	return nil
}

// RecordTransition appends one status change
func (db *ClickHouseDB) RecordTransition(ctx context.Context, event models.TransitionEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	err := db.conn.Exec(ctx, `
		INSERT INTO request_events (event_id, request_id, tmdb_id, from_status, to_status, actor, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.EventID, event.RequestID, event.TMDBID,
		string(event.From), string(event.To), event.Actor, event.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record transition of request %d: %w", event.RequestID, err)
	}
	return nil
}

// ListTransitions returns the events of one request, oldest first
func (db *ClickHouseDB) ListTransitions(ctx context.Context, requestID int64) ([]models.TransitionEvent, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT event_id, request_id, tmdb_id, from_status, to_status, actor, occurred_at
		FROM request_events
		WHERE request_id = ?
		ORDER BY occurred_at, event_id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions of request %d: %w", requestID, err)
	}
	defer rows.Close()

	var events []models.TransitionEvent
	for rows.Next() {
		var (
			event    models.TransitionEvent
			from, to string
		)
		if err := rows.Scan(&event.EventID, &event.RequestID, &event.TMDBID, &from, &to,
			&event.Actor, &event.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		event.From = models.RequestStatus(from)
		event.To = models.RequestStatus(to)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transitions: %w", err)
	}
	return events, nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
