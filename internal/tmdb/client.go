package tmdb

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gotmdb "github.com/cyruzin/golang-tmdb"
	"go.uber.org/zap"

	"moviebot/internal/models"
	"moviebot/internal/shared"
)

// DefaultImageBaseURL serves posters at w500
const DefaultImageBaseURL = "https://image.tmdb.org/t/p/w500"

// api is the part of the TMDB client the adapter needs
type api interface {
	GetSearchMovies(query string, urlOptions map[string]string) (*gotmdb.SearchMovies, error)
	GetMovieDetails(id int, urlOptions map[string]string) (*gotmdb.MovieDetails, error)
}

// Client adapts golang-tmdb to the metadata provider contract
type Client struct {
	api      api
	language string
	logger   *zap.Logger
}

// New creates a TMDB client for apiKey
func New(apiKey, language string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("TMDB_API_KEY is required")
	}
	c, err := gotmdb.Init(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to init tmdb client: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c.SetClientConfig(http.Client{Timeout: timeout})

	return &Client{api: c, language: language, logger: logger}, nil
}

func (c *Client) options() map[string]string {
	if c.language == "" {
		return nil
	}
	return map[string]string{"language": c.language}
}

// SearchTitle returns the movies matching query in TMDB relevance order.
// The library call takes no context, so ctx is only checked before and after it.
func (c *Client) SearchTitle(ctx context.Context, query string) ([]models.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := c.api.GetSearchMovies(query, c.options())
	if err != nil {
		return nil, fmt.Errorf("%w: tmdb search %q: %v", shared.ErrExternalService, query, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res == nil || res.SearchMoviesResults == nil {
		return nil, nil
	}

	candidates := make([]models.Candidate, 0, len(res.Results))
	for _, movie := range res.Results {
		candidates = append(candidates, models.Candidate{
			ID:          movie.ID,
			Title:       movie.Title,
			ReleaseDate: movie.ReleaseDate,
			Overview:    movie.Overview,
			PosterPath:  movie.PosterPath,
		})
	}

	c.logger.Debug("TMDB search",
		zap.String("query", query),
		zap.Int("results", len(candidates)),
	)
	return candidates, nil
}

// GetDetails returns the full record of one movie
func (c *Client) GetDetails(ctx context.Context, tmdbID int64) (models.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return models.Candidate{}, err
	}

	movie, err := c.api.GetMovieDetails(int(tmdbID), c.options())
	if err != nil {
		return models.Candidate{}, fmt.Errorf("%w: tmdb details %d: %v", shared.ErrExternalService, tmdbID, err)
	}
	if movie == nil {
		return models.Candidate{}, fmt.Errorf("%w: tmdb details %d", shared.ErrNotFound, tmdbID)
	}

	return models.Candidate{
		ID:          movie.ID,
		Title:       movie.Title,
		ReleaseDate: movie.ReleaseDate,
		Overview:    movie.Overview,
		PosterPath:  movie.PosterPath,
	}, nil
}

// PosterURL joins an image base URL and a TMDB poster path
func PosterURL(base, posterPath string) string {
	if posterPath == "" {
		return ""
	}
	if strings.HasPrefix(posterPath, "http://") || strings.HasPrefix(posterPath, "https://") {
		return posterPath
	}
	if base == "" {
		base = DefaultImageBaseURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(posterPath, "/")
}
