package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"moviebot/internal/matcher"
	"moviebot/internal/models"
	"moviebot/internal/shared"
	"moviebot/internal/storage"
)

// DefaultScanLimit is how many recent channel posts are scanned for title matches
const DefaultScanLimit = 100

var fileNameSeparators = strings.NewReplacer(".", " ", "_", " ")

// RequestLookup is the part of the request store the catalog reads
type RequestLookup interface {
	GetRequestByTMDB(ctx context.Context, tmdbID int64, status models.RequestStatus) (*models.MovieRequest, error)
}

// Searcher finds content that already exists in the movie channel
type Searcher struct {
	requests  RequestLookup
	index     storage.ContentIndex
	matcher   *matcher.Matcher
	scanLimit int
	logger    *zap.Logger
}

// NewSearcher creates a catalog searcher
func NewSearcher(requests RequestLookup, index storage.ContentIndex, m *matcher.Matcher, scanLimit int, logger *zap.Logger) *Searcher {
	if scanLimit <= 0 {
		scanLimit = DefaultScanLimit
	}
	return &Searcher{
		requests:  requests,
		index:     index,
		matcher:   m,
		scanLimit: scanLimit,
		logger:    logger,
	}
}

// FindExisting looks for content equivalent to the movie.
// A missing movie is reported with found == false, not with an error.
func (s *Searcher) FindExisting(ctx context.Context, tmdbID int64, title string) (models.CatalogEntry, bool, error) {
	// 1. A previously fulfilled request already points at the content
	req, err := s.requests.GetRequestByTMDB(ctx, tmdbID, models.StatusFulfilled)
	switch {
	case err == nil && (req.ChannelMessageID != 0 || req.FulfilledLink != ""):
		s.logger.Debug("Catalog hit via fulfilled request",
			zap.Int64("tmdb_id", tmdbID),
			zap.Int64("request_id", req.ID),
		)
		return s.entryFromRequest(ctx, req), true, nil
	case err != nil && !errors.Is(err, shared.ErrNotFound):
		return models.CatalogEntry{}, false, fmt.Errorf("failed to look up fulfilled requests: %w", err)
	}

	// 2. A channel post tagged with the id
	tagged, err := s.index.FindByTMDB(ctx, tmdbID)
	if err != nil {
		return models.CatalogEntry{}, false, fmt.Errorf("failed to search channel index by tag: %w", err)
	}
	if len(tagged) > 0 {
		sortVersions(tagged)
		return tagged[0], true, nil
	}

	// 3. A recent post whose caption matches the title
	matches, err := s.titleMatches(ctx, tmdbID, title)
	if err != nil {
		return models.CatalogEntry{}, false, err
	}
	if len(matches) > 0 {
		sortVersions(matches)
		s.logger.Debug("Catalog hit via title match",
			zap.Int64("tmdb_id", tmdbID),
			zap.Int("message_id", matches[0].MessageID),
		)
		return matches[0], true, nil
	}

	return models.CatalogEntry{}, false, nil
}

// SearchVersions returns every indexed post of the movie, media first, then
// by quality and newest first
func (s *Searcher) SearchVersions(ctx context.Context, tmdbID int64, title string) ([]models.ContentRef, error) {
	tagged, err := s.index.FindByTMDB(ctx, tmdbID)
	if err != nil {
		return nil, fmt.Errorf("failed to search channel index by tag: %w", err)
	}
	byTitle, err := s.titleMatches(ctx, tmdbID, title)
	if err != nil {
		return nil, err
	}

	seen := make(map[entryKey]bool)
	var entries []models.CatalogEntry
	for _, entry := range append(tagged, byTitle...) {
		key := entryKey{entry.ChatID, entry.MessageID}
		if seen[key] {
			continue
		}
		seen[key] = true
		entries = append(entries, entry)
	}
	sortVersions(entries)

	refs := make([]models.ContentRef, 0, len(entries))
	for _, entry := range entries {
		refs = append(refs, entry.Ref())
	}
	return refs, nil
}

// ContentRef returns a fresh copy of one indexed post
func (s *Searcher) ContentRef(ctx context.Context, chatID int64, messageID int) (models.ContentRef, bool, error) {
	entry, err := s.index.GetEntry(ctx, chatID, messageID)
	if errors.Is(err, shared.ErrNotFound) {
		return models.ContentRef{}, false, nil
	}
	if err != nil {
		return models.ContentRef{}, false, fmt.Errorf("failed to load channel post %d: %w", messageID, err)
	}
	return entry.Ref(), true, nil
}

func (s *Searcher) titleMatches(ctx context.Context, tmdbID int64, title string) ([]models.CatalogEntry, error) {
	if matcher.Normalize(title) == "" {
		return nil, nil
	}

	recent, err := s.index.Recent(ctx, s.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent channel posts: %w", err)
	}

	var matches []models.CatalogEntry
	for _, entry := range recent {
		text := entry.Caption
		if text == "" {
			text = fileNameText(entry.FileName)
		}
		if s.matcher.IsMatch(text, title, tmdbID) {
			matches = append(matches, entry)
		}
	}
	return matches, nil
}

func (s *Searcher) entryFromRequest(ctx context.Context, req *models.MovieRequest) models.CatalogEntry {
	entry := models.CatalogEntry{
		MessageID: req.ChannelMessageID,
		TMDBID:    req.TMDBID,
		Title:     matcher.Normalize(req.TMDBTitle),
		Link:      req.FulfilledLink,
	}
	if req.FulfilledTimestamp != nil {
		entry.PostedAt = *req.FulfilledTimestamp
	}

	// Prefer the indexed post, it knows the chat and whether it is media
	if req.ChannelMessageID != 0 {
		tagged, err := s.index.FindByTMDB(ctx, req.TMDBID)
		if err != nil {
			s.logger.Warn("Failed to enrich fulfilled request from index",
				zap.Int64("request_id", req.ID),
				zap.Error(err),
			)
			return entry
		}
		for _, indexed := range tagged {
			if indexed.MessageID == req.ChannelMessageID {
				if indexed.Link == "" {
					indexed.Link = req.FulfilledLink
				}
				return indexed
			}
		}
	}
	return entry
}

// fileNameText turns "The_Matrix.1999.mkv" into "The Matrix 1999"
func fileNameText(name string) string {
	name = strings.TrimSuffix(name, path.Ext(name))
	return fileNameSeparators.Replace(name)
}

type entryKey struct {
	chatID    int64
	messageID int
}

func sortVersions(entries []models.CatalogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsMedia != entries[j].IsMedia {
			return entries[i].IsMedia
		}
		if c := matcher.CompareQuality(entries[i].Quality, entries[j].Quality); c != 0 {
			return c > 0
		}
		return entries[i].PostedAt.After(entries[j].PostedAt)
	})
}

// MessageLink builds the public permalink of a channel message
func MessageLink(channelUsername string, channelID int64, messageID int) string {
	if username := strings.TrimPrefix(channelUsername, "@"); username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", username, messageID)
	}
	// Private channels use the id without the -100 prefix
	internal := strings.TrimPrefix(strconv.FormatInt(channelID, 10), "-100")
	internal = strings.TrimPrefix(internal, "-")
	return fmt.Sprintf("https://t.me/c/%s/%d", internal, messageID)
}

// ParseMessageLink extracts the message id from a permalink into the channel
func ParseMessageLink(link, channelUsername string, channelID int64) (int, bool) {
	var prefix string
	if username := strings.TrimPrefix(channelUsername, "@"); username != "" {
		prefix = fmt.Sprintf("https://t.me/%s/", username)
	} else {
		prefix = strings.TrimSuffix(MessageLink("", channelID, 0), "0")
	}

	rest, ok := strings.CutPrefix(link, prefix)
	if !ok {
		return 0, false
	}
	if i := strings.IndexAny(rest, "?#/"); i >= 0 {
		rest = rest[:i]
	}
	messageID, err := strconv.Atoi(rest)
	if err != nil || messageID <= 0 {
		return 0, false
	}
	return messageID, true
}
