package models

import "time"

// MovieRequest represents a user's request for a movie
type MovieRequest struct {
	ID       int64
	UserID   int64
	UserName string

	// Snapshot of the TMDB entry captured at confirmation time
	TMDBID          int64
	TMDBTitle       string
	TMDBOverview    string
	TMDBPosterPath  string
	TMDBReleaseDate string

	Status           RequestStatus
	RequestTimestamp time.Time
	UpdatedAt        time.Time

	// Set only when Status == StatusFulfilled
	FulfilledTimestamp *time.Time
	FulfilledLink      string
	ChannelMessageID   int

	AdminMessageID           int
	OriginalRequestMessageID int

	// Contents lists every item handed to the request, first one first.
	// Only request listings fill it.
	Contents []ContentRef
}

// Candidate is a movie returned by the metadata provider
type Candidate struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date,omitempty"`
	Overview    string `json:"overview,omitempty"`
	PosterPath  string `json:"poster_path,omitempty"`
}

// Year returns the release year or an empty string
func (c Candidate) Year() string {
	if len(c.ReleaseDate) >= 4 {
		return c.ReleaseDate[:4]
	}
	return ""
}

// ContentRef points at a piece of content that can be delivered to a user
type ContentRef struct {
	ChatID    int64     `json:"chat_id,omitempty"`
	MessageID int       `json:"message_id,omitempty"`
	Link      string    `json:"link"`
	Caption   string    `json:"caption,omitempty"`
	IsMedia   bool      `json:"is_media,omitempty"`
	FileID    string    `json:"file_id,omitempty"`
	Quality   string    `json:"quality,omitempty"`
	PostedAt  time.Time `json:"posted_at,omitempty"`
}

// CatalogEntry is an indexed post of the movie channel
type CatalogEntry struct {
	ChatID    int64
	MessageID int
	TMDBID    int64 // 0 when the post carries no tag
	Title     string
	Caption   string
	Link      string
	IsMedia   bool
	FileID    string
	FileName  string
	Quality   string
	PostedAt  time.Time
}

// Ref converts an entry into a deliverable reference
func (e CatalogEntry) Ref() ContentRef {
	return ContentRef{
		ChatID:    e.ChatID,
		MessageID: e.MessageID,
		Link:      e.Link,
		Caption:   e.Caption,
		IsMedia:   e.IsMedia,
		FileID:    e.FileID,
		Quality:   e.Quality,
		PostedAt:  e.PostedAt,
	}
}

// TransitionEvent is one audited status change of a request
type TransitionEvent struct {
	EventID    string
	RequestID  int64
	TMDBID     int64
	From       RequestStatus
	To         RequestStatus
	Actor      string
	OccurredAt time.Time
}
