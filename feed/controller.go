// Package feed drives the paginated, optionally search-filtered movie
// listing shown on the main screen.
package feed

import (
	"context"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"cinefav/errs"
	"cinefav/logging"
	"cinefav/metrics"
	"cinefav/models"
)

// MinSearchLength is the shortest text that triggers a search. Shorter,
// non-empty text only updates the held query.
const MinSearchLength = 3

// Catalog is the remote movie catalog.
type Catalog interface {
	FetchPopular(ctx context.Context, page int) (models.PageResult, error)
	Search(ctx context.Context, query string, page int) (models.PageResult, error)
}

// Notifier receives one-shot notifications and feed state changes.
type Notifier interface {
	Notify(n models.Notification)
	FeedChanged(state models.FeedState)
}

// Controller owns the feed state. At most one page load is admitted at a
// time; overlapping loads are rejected, never queued.
//
// Every fresh search or clear starts a new generation. A response that
// belongs to an older generation is discarded, so a slow request for an
// old query cannot overwrite the results of a newer one.
type Controller struct {
	catalog  Catalog
	notifier Notifier
	log      zerolog.Logger

	mu         sync.Mutex
	items      []models.Movie
	page       int
	hasMore    bool
	query      string
	loading    bool
	generation uint64
}

// ErrBusy is returned when a load is attempted while another is in flight.
var ErrBusy = errs.Errorf(errs.ENOOP, "a page load is already in flight")

// ErrSuperseded is returned by a load whose response arrived after a newer search.
var ErrSuperseded = errs.Errorf(errs.ENOOP, "response discarded for a superseded request")

// ErrNoMorePages is returned by OnReachEnd when the last page is loaded.
var ErrNoMorePages = errs.Errorf(errs.ENOOP, "no more pages")

// NewController creates a controller in browse-popular mode with no items.
func NewController(catalog Catalog, notifier Notifier) *Controller {
	return &Controller{
		catalog:  catalog,
		notifier: notifier,
		log:      logging.Component("feed"),
		items:    []models.Movie{},
		page:     1,
		hasMore:  true,
	}
}

// LoadMovies fetches pageNum for searchText (popular movies when empty).
// Page 1 replaces the items, later pages are appended in remote order.
// On failure a load-error notification is emitted and the items, page
// number and hasMore keep their previous values.
func (c *Controller) LoadMovies(ctx context.Context, pageNum int, searchText string) error {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return c.dropped(pageNum)
	}
	gen, state := c.beginLocked()
	c.mu.Unlock()

	return c.fetch(ctx, gen, state, pageNum, searchText)
}

// OnSearchTextChange reacts to the search box. Text of MinSearchLength or
// more characters starts a fresh search, empty text returns to popular
// movies, anything in between only updates the held query.
func (c *Controller) OnSearchTextChange(ctx context.Context, text string) error {
	length := utf8.RuneCountInString(text)

	c.mu.Lock()
	c.query = text
	if length > 0 && length < MinSearchLength {
		state := c.snapshotLocked()
		c.mu.Unlock()
		c.notifier.FeedChanged(state)
		return nil
	}

	// the in-flight request, if any, now belongs to an old generation
	c.generation++
	c.page = 1
	c.hasMore = true
	c.items = []models.Movie{}
	gen, state := c.beginLocked()
	c.mu.Unlock()

	return c.fetch(ctx, gen, state, 1, text)
}

// OnReachEnd loads the next page for the held query when there is one and
// nothing is loading.
func (c *Controller) OnReachEnd(ctx context.Context) error {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return c.dropped(c.page + 1)
	}
	if !c.hasMore {
		c.mu.Unlock()
		return ErrNoMorePages
	}
	next, query := c.page+1, c.query
	gen, state := c.beginLocked()
	c.mu.Unlock()

	return c.fetch(ctx, gen, state, next, query)
}

// beginLocked admits a load for the current generation. c.mu must be held
// and no load may be in flight.
func (c *Controller) beginLocked() (uint64, models.FeedState) {
	c.loading = true
	return c.generation, c.snapshotLocked()
}

func (c *Controller) dropped(pageNum int) error {
	metrics.FeedLoads.WithLabelValues(metrics.FeedDropped).Inc()
	c.log.Debug().Int("page", pageNum).Msg("Load dropped, another load is in flight")
	return ErrBusy
}

// fetch runs an admitted load and applies its result if gen is still current.
func (c *Controller) fetch(ctx context.Context, gen uint64, loadingState models.FeedState, pageNum int, searchText string) error {
	c.notifier.FeedChanged(loadingState)

	var (
		result models.PageResult
		err    error
	)
	if searchText != "" {
		result, err = c.catalog.Search(ctx, searchText, pageNum)
	} else {
		result, err = c.catalog.FetchPopular(ctx, pageNum)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		metrics.FeedLoads.WithLabelValues(metrics.FeedStale).Inc()
		c.log.Debug().Int("page", pageNum).Str("query", searchText).Msg("Discarding stale response")
		return ErrSuperseded
	}

	c.loading = false
	if err != nil {
		state := c.snapshotLocked()
		c.mu.Unlock()

		metrics.FeedLoads.WithLabelValues(metrics.FeedFailed).Inc()
		c.log.Error().Err(err).Int("page", pageNum).Str("query", searchText).Msg("Error loading movies")
		c.notifier.Notify(models.NewNotification(models.NotificationLoadError, "Error loading movies"))
		c.notifier.FeedChanged(state)
		return err
	}

	if pageNum == 1 {
		c.items = append(make([]models.Movie, 0, len(result.Results)), result.Results...)
	} else {
		c.items = append(c.items, result.Results...)
	}
	c.hasMore = result.HasMore()
	c.page = result.Page
	if c.page < 1 {
		c.page = pageNum
	}
	state := c.snapshotLocked()
	c.mu.Unlock()

	metrics.FeedLoads.WithLabelValues(metrics.FeedApplied).Inc()
	c.notifier.FeedChanged(state)
	return nil
}

// Snapshot returns a copy of the current feed state.
func (c *Controller) Snapshot() models.FeedState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() models.FeedState {
	items := make([]models.Movie, len(c.items))
	copy(items, c.items)
	return models.FeedState{
		Items:      items,
		PageNumber: c.page,
		HasMore:    c.hasMore,
		Query:      c.query,
		IsLoading:  c.loading,
	}
}
