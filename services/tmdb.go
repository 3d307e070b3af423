// Package services provides external service integrations.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"cinefav/errs"
	"cinefav/logging"
	"cinefav/metrics"
	"cinefav/models"
)

// DefaultImageSize is the poster size token used when none is given
const DefaultImageSize = "w500"

const (
	defaultBaseURL      = "https://api.themoviedb.org/3"
	defaultImageBaseURL = "https://image.tmdb.org/t/p"
)

// TMDBOptions tunes the TMDB client; zero values fall back to defaults
type TMDBOptions struct {
	BaseURL      string
	ImageBaseURL string
	Timeout      time.Duration
	RateLimit    float64 // requests per second
	RateBurst    int
	HTTPClient   *http.Client
}

// TMDBService handles interactions with The Movie Database API
type TMDBService struct {
	apiKey       string
	baseURL      string
	imageBaseURL string
	client       *http.Client
	limiter      *rate.Limiter
	log          zerolog.Logger
}

// tmdbPage is the paged list envelope shared by /movie/popular and /search/movie
type tmdbPage struct {
	Page         int            `json:"page"`
	Results      []models.Movie `json:"results"`
	TotalPages   int            `json:"total_pages"`
	TotalResults int            `json:"total_results"`
}

// NewTMDBService creates a new TMDB service instance
func NewTMDBService(apiKey string, opts TMDBOptions) *TMDBService {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.ImageBaseURL == "" {
		opts.ImageBaseURL = defaultImageBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 40
	}
	if opts.RateBurst < 1 {
		opts.RateBurst = 10
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &TMDBService{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		imageBaseURL: strings.TrimRight(opts.ImageBaseURL, "/"),
		client:       client,
		limiter:      rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		log:          logging.Component("tmdb"),
	}
}

// FetchPopular fetches one page of popular movies. Pages start at 1.
func (t *TMDBService) FetchPopular(ctx context.Context, page int) (models.PageResult, error) {
	if page < 1 {
		return models.PageResult{}, errs.Errorf(errs.EINVALID, "page must be >= 1, got %d", page)
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	return t.getPage(ctx, "popular", "/movie/popular", params)
}

// Search fetches one page of movies whose title matches query
func (t *TMDBService) Search(ctx context.Context, query string, page int) (models.PageResult, error) {
	if strings.TrimSpace(query) == "" {
		return models.PageResult{}, errs.Errorf(errs.EINVALID, "search query must not be empty")
	}
	if page < 1 {
		return models.PageResult{}, errs.Errorf(errs.EINVALID, "page must be >= 1, got %d", page)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(page))
	return t.getPage(ctx, "search", "/search/movie", params)
}

// ImageURL maps a relative poster path and size token to an absolute asset
// URL. It reports false when path is empty; callers render a placeholder.
func (t *TMDBService) ImageURL(path, size string) (string, bool) {
	if path == "" {
		return "", false
	}
	if size == "" {
		size = DefaultImageSize
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return t.imageBaseURL + "/" + size + path, true
}

// PosterURL is ImageURL for a movie's poster
func (t *TMDBService) PosterURL(movie models.Movie, size string) (string, bool) {
	path, ok := movie.Poster()
	if !ok {
		return "", false
	}
	return t.ImageURL(path, size)
}

func (t *TMDBService) getPage(ctx context.Context, endpoint, path string, params url.Values) (models.PageResult, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		metrics.CatalogRequests.WithLabelValues(endpoint, "error").Inc()
		return models.PageResult{}, errs.Wrap(errs.ENETWORK, err, "rate limiter wait aborted")
	}

	params.Set("api_key", t.apiKey)
	reqURL := t.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return models.PageResult{}, errs.Wrap(errs.EINTERNAL, err, "failed to build TMDB request")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := t.client.Do(req)
	metrics.CatalogRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CatalogRequests.WithLabelValues(endpoint, "error").Inc()
		return models.PageResult{}, errs.Wrap(errs.ENETWORK, t.redact(err), "failed to fetch movies from TMDB")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.log.Warn().Err(err).Msg("Failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		metrics.CatalogRequests.WithLabelValues(endpoint, "error").Inc()
		return models.PageResult{}, errs.Errorf(errs.ENETWORK, "TMDB API returned status %d", resp.StatusCode)
	}

	var body tmdbPage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.CatalogRequests.WithLabelValues(endpoint, "error").Inc()
		return models.PageResult{}, errs.Wrap(errs.ENETWORK, err, "failed to decode TMDB response")
	}

	metrics.CatalogRequests.WithLabelValues(endpoint, "ok").Inc()
	t.log.Debug().
		Str("endpoint", endpoint).
		Int("page", body.Page).
		Int("total_pages", body.TotalPages).
		Int("results", len(body.Results)).
		Msg("TMDB page fetched")

	results := body.Results
	if results == nil {
		results = []models.Movie{}
	}

	return models.PageResult{
		Results:    results,
		Page:       body.Page,
		TotalPages: body.TotalPages,
	}, nil
}

// redact strips the API key from transport errors, which embed the request URL.
func (t *TMDBService) redact(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) || t.apiKey == "" {
		return err
	}
	return &url.Error{
		Op:  uerr.Op,
		URL: strings.ReplaceAll(uerr.URL, t.apiKey, "REDACTED"),
		Err: uerr.Err,
	}
}

// String keeps the API key out of logs
func (t *TMDBService) String() string {
	return fmt.Sprintf("TMDBService{base=%s}", t.baseURL)
}
