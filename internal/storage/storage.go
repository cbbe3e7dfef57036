package storage

import (
	"context"
	"time"

	"moviebot/internal/models"
)

// Fulfillment carries the fields written together with StatusFulfilled
type Fulfillment struct {
	Link             string
	ChannelMessageID int
	At               time.Time
}

// RequestStore defines durable movie request operations.
// Every mutation is a single row statement.
type RequestStore interface {
	// CreateRequest stores req with StatusPending and returns the new id
	CreateRequest(ctx context.Context, req *models.MovieRequest) (int64, error)
	GetRequest(ctx context.Context, id int64) (*models.MovieRequest, error)

	// GetRequestByTMDB returns the oldest request for tmdbID in status
	GetRequestByTMDB(ctx context.Context, tmdbID int64, status models.RequestStatus) (*models.MovieRequest, error)

	// ListActiveForUser returns non-terminal requests of a user for one movie, newest first
	ListActiveForUser(ctx context.Context, userID, tmdbID int64) ([]models.MovieRequest, error)
	ListUserRequests(ctx context.Context, userID int64, limit int) ([]models.MovieRequest, error)

	// UpdateStatus moves a request from -> to if it is still in from.
	// fulfillment must be non-nil exactly when to == StatusFulfilled.
	UpdateStatus(ctx context.Context, id int64, from, to models.RequestStatus, fulfillment *Fulfillment) error

	AttachChannelReference(ctx context.Context, id int64, channelMessageID int) error
	AttachAdminMessageReference(ctx context.Context, id int64, adminMessageID int) error

	// AddContent records a delivered content reference; false when the link was already stored
	AddContent(ctx context.Context, id int64, ref models.ContentRef) (bool, error)
	ListContent(ctx context.Context, id int64) ([]models.ContentRef, error)
}

// SessionRow is the raw persisted form of a user session
type SessionRow struct {
	UserID    int64
	State     models.SessionState
	Payload   []byte
	UpdatedAt time.Time
}

// SessionRepository stores one session row per user
type SessionRepository interface {
	UpsertSession(ctx context.Context, row SessionRow) error
	GetSession(ctx context.Context, userID int64) (*SessionRow, error)
	DeleteSession(ctx context.Context, userID int64) error

	// DeleteSessionAt removes the row only if it was last written at updatedAt,
	// so a session saved after it was read survives
	DeleteSessionAt(ctx context.Context, userID int64, updatedAt time.Time) (bool, error)

	// TakeSession atomically deletes and returns the row if it is in state
	TakeSession(ctx context.Context, userID int64, state models.SessionState) (*SessionRow, error)

	// DeleteSessionsBefore removes rows last updated before cutoff
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ContentIndex stores every post seen in the movie channel
type ContentIndex interface {
	UpsertEntry(ctx context.Context, entry models.CatalogEntry) error
	GetEntry(ctx context.Context, chatID int64, messageID int) (*models.CatalogEntry, error)
	FindByTMDB(ctx context.Context, tmdbID int64) ([]models.CatalogEntry, error)
	// Recent returns the newest entries first
	Recent(ctx context.Context, limit int) ([]models.CatalogEntry, error)
}

// Journal is the append-only audit log of request transitions
type Journal interface {
	RecordTransition(ctx context.Context, event models.TransitionEvent) error
	ListTransitions(ctx context.Context, requestID int64) ([]models.TransitionEvent, error)
}

// Storage bundles the relational stores behind one connection
type Storage interface {
	RequestStore
	SessionRepository

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
