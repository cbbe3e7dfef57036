package matcher

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// TagPrefix starts the token that correlates channel content with a TMDB id
const TagPrefix = "#TMDB"

// DefaultThreshold is the minimum similarity ratio for a fuzzy title match
const DefaultThreshold = 85

var (
	bracketed  = regexp.MustCompile(`\[.*?\]|\(.*?\)`)
	nonAlnum   = regexp.MustCompile(`[^a-z0-9\s]`)
	yearToken  = regexp.MustCompile(`\b\d{4}\b`)
	whitespace = regexp.MustCompile(`\s+`)
	tagPattern = regexp.MustCompile(`#TMDB(\d+)`)
)

// Normalize cleans a free-text title for comparison.
// Normalize(Normalize(x)) == Normalize(x) for every x.
func Normalize(raw string) string {
	title := strings.ToLower(raw)
	title = bracketed.ReplaceAllString(title, "")
	title = nonAlnum.ReplaceAllString(title, "")
	title = yearToken.ReplaceAllString(title, "")
	title = whitespace.ReplaceAllString(title, " ")
	return strings.TrimSpace(title)
}

// TMDBTag formats the tag token for a TMDB id
func TMDBTag(tmdbID int64) string {
	return fmt.Sprintf("%s%d", TagPrefix, tmdbID)
}

// ExtractTMDBTag returns the id of the first tag in text
func ExtractTMDBTag(text string) (int64, bool) {
	ids := extractTags(text)
	if len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

// StripTags removes every tag token from text
func StripTags(text string) string {
	return tagPattern.ReplaceAllString(text, "")
}

func extractTags(text string) []int64 {
	var ids []int64
	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Similarity returns a 0-100 ratio of how close a and b are
func Similarity(a, b string) int {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 100
	}
	distance := levenshtein.ComputeDistance(a, b)
	return int(math.Round((1 - float64(distance)/float64(longest)) * 100))
}

// Matcher decides whether a piece of channel content belongs to a movie
type Matcher struct {
	Threshold int

	// AllowSubstring accepts captions that contain the whole canonical title
	AllowSubstring bool
}

// New creates a matcher; a non-positive threshold selects DefaultThreshold
func New(threshold int, allowSubstring bool) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{Threshold: threshold, AllowSubstring: allowSubstring}
}

// MatchKind tells how a match was established
type MatchKind int

const (
	NoMatch MatchKind = iota
	TagMatch
	TitleMatch
)

// Match classifies candidateText against a movie.
// A tag for tmdbID wins outright; a text tagged only with other ids never matches.
func (m *Matcher) Match(candidateText, canonicalTitle string, tmdbID int64) MatchKind {
	tags := extractTags(candidateText)
	for _, id := range tags {
		if id == tmdbID {
			return TagMatch
		}
	}
	if len(tags) > 0 {
		return NoMatch
	}

	candidate := Normalize(candidateText)
	canonical := Normalize(canonicalTitle)
	if candidate == "" || canonical == "" {
		return NoMatch
	}

	if Similarity(candidate, canonical) >= m.Threshold {
		return TitleMatch
	}
	if m.AllowSubstring && containsWords(candidate, canonical) {
		return TitleMatch
	}
	return NoMatch
}

// IsMatch reports whether Match found a tag or title match
func (m *Matcher) IsMatch(candidateText, canonicalTitle string, tmdbID int64) bool {
	return m.Match(candidateText, canonicalTitle, tmdbID) != NoMatch
}

// containsWords reports whether needle occurs in haystack on word boundaries
func containsWords(haystack, needle string) bool {
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}
