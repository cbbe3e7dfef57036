package stubs

import (
	"context"
	"sync"

	"moviebot/internal/models"
)

// MockJournal keeps transition events in memory
type MockJournal struct {
	mu     sync.RWMutex
	events []models.TransitionEvent
}

// NewMockJournal creates an empty journal
func NewMockJournal() *MockJournal {
	return &MockJournal{}
}

// RecordTransition appends an event
func (j *MockJournal) RecordTransition(ctx context.Context, event models.TransitionEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.events = append(j.events, event)
	return nil
}

// ListTransitions returns the events of one request in recording order
func (j *MockJournal) ListTransitions(ctx context.Context, requestID int64) ([]models.TransitionEvent, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []models.TransitionEvent
	for _, event := range j.events {
		if event.RequestID == requestID {
			result = append(result, event)
		}
	}
	return result, nil
}
