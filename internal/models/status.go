package models

import "fmt"

// RequestStatus is the lifecycle status of a movie request
type RequestStatus string

const (
	StatusPending             RequestStatus = "pending"
	StatusApproved            RequestStatus = "approved"
	StatusApprovedNoFileFound RequestStatus = "approved_no_file_found"
	StatusFulfilled           RequestStatus = "fulfilled"
	StatusRejected            RequestStatus = "rejected"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []RequestStatus{
	StatusPending,
	StatusApproved,
	StatusApprovedNoFileFound,
	StatusFulfilled,
	StatusRejected,
}

// transitions is the lifecycle graph. A status missing from the map has no
// outgoing edges.
var transitions = map[RequestStatus][]RequestStatus{
	StatusPending:             {StatusApproved, StatusFulfilled, StatusRejected},
	StatusApproved:            {StatusFulfilled, StatusApprovedNoFileFound, StatusRejected},
	StatusApprovedNoFileFound: {StatusFulfilled, StatusRejected},
}

// ParseRequestStatus converts a stored value into a RequestStatus
func ParseRequestStatus(s string) (RequestStatus, error) {
	status := RequestStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown request status %q", s)
	}
	return status, nil
}

// Valid reports whether s is one of the known statuses
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusApprovedNoFileFound, StatusFulfilled, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s
func (s RequestStatus) IsTerminal() bool {
	return s == StatusFulfilled || s == StatusRejected
}

// AwaitsContent reports whether a request in s can be fulfilled by an admin
func (s RequestStatus) AwaitsContent() bool {
	return s == StatusApproved || s == StatusApprovedNoFileFound
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph
func CanTransition(from, to RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s RequestStatus) String() string {
	return string(s)
}
