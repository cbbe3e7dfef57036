package stubs

import (
	"context"
	"sort"
	"sync"

	"moviebot/internal/models"
	"moviebot/internal/shared"
)

type entryKey struct {
	chatID    int64
	messageID int
}

// MockIndex is an in-memory channel content index
type MockIndex struct {
	mu      sync.RWMutex
	entries map[entryKey]models.CatalogEntry
}

// NewMockIndex creates an empty index
func NewMockIndex() *MockIndex {
	return &MockIndex{entries: make(map[entryKey]models.CatalogEntry)}
}

// UpsertEntry stores or replaces an entry keyed by chat and message id
func (m *MockIndex) UpsertEntry(ctx context.Context, entry models.CatalogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entryKey{entry.ChatID, entry.MessageID}] = entry
	return nil
}

// GetEntry returns one indexed post
func (m *MockIndex) GetEntry(ctx context.Context, chatID int64, messageID int) (*models.CatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[entryKey{chatID, messageID}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &entry, nil
}

// FindByTMDB returns every entry tagged with tmdbID, newest first
func (m *MockIndex) FindByTMDB(ctx context.Context, tmdbID int64) ([]models.CatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.CatalogEntry
	for _, entry := range m.entries {
		if entry.TMDBID == tmdbID {
			result = append(result, entry)
		}
	}
	sortEntriesNewestFirst(result)
	return result, nil
}

// Recent returns up to limit entries, newest first
func (m *MockIndex) Recent(ctx context.Context, limit int) ([]models.CatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.CatalogEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		result = append(result, entry)
	}
	sortEntriesNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func sortEntriesNewestFirst(entries []models.CatalogEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].PostedAt.Equal(entries[j].PostedAt) {
			return entries[i].PostedAt.After(entries[j].PostedAt)
		}
		return entries[i].MessageID > entries[j].MessageID
	})
}
