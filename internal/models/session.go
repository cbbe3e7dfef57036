package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionState is the step of a user's multi-step dialog
type SessionState string

const (
	StateNone                          SessionState = "none"
	StateAwaitingTMDBSelection         SessionState = "awaiting_tmdb_selection"
	StateAwaitingConfirmation          SessionState = "awaiting_confirmation"
	StateAwaitingAdminUpload           SessionState = "awaiting_admin_upload"
	StateAwaitingManualLink            SessionState = "awaiting_manual_link"
	StateAwaitingChannelSelection      SessionState = "awaiting_channel_selection"
	StateAwaitingMovieQualitySelection SessionState = "awaiting_movie_quality_selection"
	StateAwaitingFulfillmentMethod     SessionState = "awaiting_fulfillment_method"
)

// Session is the current dialog state of one user
type Session struct {
	UserID     int64
	State      SessionState
	Payload    SessionPayload // nil when State == StateNone
	LastUpdate time.Time
}

// SessionPayload is implemented by exactly one struct per non-none state
type SessionPayload interface {
	SessionState() SessionState
}

// TMDBSelection holds the search candidates offered to the user
type TMDBSelection struct {
	Query      string      `json:"query"`
	Candidates []Candidate `json:"candidates"`
}

// Confirmation holds the movie the user is asked to confirm
type Confirmation struct {
	Movie Candidate `json:"movie"`
}

// AdminUpload waits for the admin to send a file for a request
type AdminUpload struct {
	RequestID int64 `json:"request_id"`
}

// ManualLink waits for the admin to send a link for a request
type ManualLink struct {
	RequestID int64 `json:"request_id"`
}

// ChannelSelection waits for the admin to pick one of several channel posts
type ChannelSelection struct {
	RequestID int64        `json:"request_id"`
	Options   []ContentRef `json:"options"`
}

// QualitySelection waits for the requester to pick a version of the movie
type QualitySelection struct {
	RequestID int64        `json:"request_id"`
	Options   []ContentRef `json:"options"`
}

// FulfillmentMethod waits for the admin to choose how to fulfill a request
type FulfillmentMethod struct {
	RequestID int64 `json:"request_id"`
}

func (TMDBSelection) SessionState() SessionState     { return StateAwaitingTMDBSelection }
func (Confirmation) SessionState() SessionState      { return StateAwaitingConfirmation }
func (AdminUpload) SessionState() SessionState       { return StateAwaitingAdminUpload }
func (ManualLink) SessionState() SessionState        { return StateAwaitingManualLink }
func (ChannelSelection) SessionState() SessionState  { return StateAwaitingChannelSelection }
func (QualitySelection) SessionState() SessionState  { return StateAwaitingMovieQualitySelection }
func (FulfillmentMethod) SessionState() SessionState { return StateAwaitingFulfillmentMethod }

// RequestScoped is implemented by payloads bound to one movie request
type RequestScoped interface {
	SessionPayload
	ScopedRequestID() int64
}

func (p AdminUpload) ScopedRequestID() int64       { return p.RequestID }
func (p ManualLink) ScopedRequestID() int64        { return p.RequestID }
func (p ChannelSelection) ScopedRequestID() int64  { return p.RequestID }
func (p QualitySelection) ScopedRequestID() int64  { return p.RequestID }
func (p FulfillmentMethod) ScopedRequestID() int64 { return p.RequestID }

// EncodePayload serializes a payload for storage
func EncodePayload(p SessionPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil session payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", p.SessionState(), err)
	}
	return data, nil
}

// DecodePayload parses a stored payload into the variant owned by state
func DecodePayload(state SessionState, data []byte) (SessionPayload, error) {
	var (
		p   SessionPayload
		err error
	)
	switch state {
	case StateAwaitingTMDBSelection:
		var v TMDBSelection
		err = json.Unmarshal(data, &v)
		p = v
	case StateAwaitingConfirmation:
		var v Confirmation
		err = json.Unmarshal(data, &v)
		p = v
	case StateAwaitingAdminUpload:
		var v AdminUpload
		err = json.Unmarshal(data, &v)
		p = v
	case StateAwaitingManualLink:
		var v ManualLink
		err = json.Unmarshal(data, &v)
		p = v
	case StateAwaitingChannelSelection:
		var v ChannelSelection
		err = json.Unmarshal(data, &v)
		p = v
	case StateAwaitingMovieQualitySelection:
		var v QualitySelection
		err = json.Unmarshal(data, &v)
		p = v
	case StateAwaitingFulfillmentMethod:
		var v FulfillmentMethod
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("no payload for session state %q", state)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", state, err)
	}
	return p, nil
}
