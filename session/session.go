// Package session implements the intents the presentation layer issues
// against the core: favorites toggling, search, infinite scroll and the
// favorites panel.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"cinefav/errs"
	"cinefav/logging"
	"cinefav/models"
)

// FavoritesStore mutates the durable favorites list.
type FavoritesStore interface {
	Add(ctx context.Context, movie models.Movie) ([]models.Movie, error)
	Remove(ctx context.Context, movieID int) ([]models.Movie, error)
	IsFavorite(ctx context.Context, movieID int) (bool, error)
}

// Registry is the shared favorites snapshot.
type Registry interface {
	Refresh(ctx context.Context) error
	Current() []models.Movie
	Contains(movieID int) bool
}

// Feed is the catalog listing.
type Feed interface {
	LoadMovies(ctx context.Context, pageNum int, searchText string) error
	OnSearchTextChange(ctx context.Context, text string) error
	OnReachEnd(ctx context.Context) error
	Snapshot() models.FeedState
}

// Notifier receives one-shot notifications.
type Notifier interface {
	Notify(n models.Notification)
}

// ErrUpdatePending is returned when a favorite is toggled again before the
// previous update for the same movie finished.
var ErrUpdatePending = errs.Errorf(errs.ENOOP, "favorite update already in progress")

// ErrNotFavorite is returned when the drawer removes a movie that is no
// longer stored, e.g. one already removed from a card.
var ErrNotFavorite = errs.Errorf(errs.ENOOP, "movie is not a favorite")

// Session wires the intents to the store, registry and feed.
type Session struct {
	store    FavoritesStore
	registry Registry
	feed     Feed
	notifier Notifier
	log      zerolog.Logger

	mu      sync.Mutex
	pending map[int]struct{}
}

// New creates a session.
func New(store FavoritesStore, registry Registry, feed Feed, notifier Notifier) *Session {
	return &Session{
		store:    store,
		registry: registry,
		feed:     feed,
		notifier: notifier,
		log:      logging.Component("session"),
		pending:  make(map[int]struct{}),
	}
}

// Start loads the favorites snapshot and the first page of popular movies.
// A failed first page is reported through a notification, not returned.
func (s *Session) Start(ctx context.Context) error {
	if err := s.registry.Refresh(ctx); err != nil {
		return err
	}
	if err := s.feed.LoadMovies(ctx, 1, ""); err != nil && !errs.Is(err, errs.ENOOP) {
		s.log.Warn().Err(err).Msg("Initial page failed")
	}
	return nil
}

// ToggleFavorite removes movie from favorites if it is one, adds it
// otherwise, then refreshes the registry and emits exactly one
// notification.
func (s *Session) ToggleFavorite(ctx context.Context, movie models.Movie) (models.Notification, error) {
	if !s.begin(movie.ID) {
		return models.Notification{}, ErrUpdatePending
	}
	defer s.end(movie.ID)

	kind, text := models.NotificationAdded, "Added to favorites"
	var err error
	if s.registry.Contains(movie.ID) {
		kind, text = models.NotificationRemoved, "Removed from favorites"
		_, err = s.store.Remove(ctx, movie.ID)
	} else {
		_, err = s.store.Add(ctx, movie)
	}

	if err != nil {
		s.log.Error().Err(err).Int("movie_id", movie.ID).Msg("Error updating favorites")
		return s.emit(models.NotificationUpdateError, "Error updating favorites"), err
	}

	s.refresh(ctx)
	return s.emit(kind, text), nil
}

// RemoveFavoriteFromDrawer removes a movie from the favorites panel. A
// movie that is not stored emits no notification; the registry is still
// refreshed so a stale panel catches up.
func (s *Session) RemoveFavoriteFromDrawer(ctx context.Context, movieID int) (models.Notification, error) {
	if !s.begin(movieID) {
		return models.Notification{}, ErrUpdatePending
	}
	defer s.end(movieID)

	stored, err := s.store.IsFavorite(ctx, movieID)
	if err != nil {
		s.log.Error().Err(err).Int("movie_id", movieID).Msg("Error removing favorite")
		return s.emit(models.NotificationUpdateError, "Error removing favorite"), err
	}
	if !stored {
		s.refresh(ctx)
		return models.Notification{}, ErrNotFavorite
	}

	if _, err := s.store.Remove(ctx, movieID); err != nil {
		s.log.Error().Err(err).Int("movie_id", movieID).Msg("Error removing favorite")
		return s.emit(models.NotificationUpdateError, "Error removing favorite"), err
	}

	s.refresh(ctx)
	return s.emit(models.NotificationRemoved, "Removed from favorites"), nil
}

// Search forwards search box input to the feed.
func (s *Session) Search(ctx context.Context, text string) error {
	return s.feed.OnSearchTextChange(ctx, text)
}

// ClearSearch returns the feed to popular movies.
func (s *Session) ClearSearch(ctx context.Context) error {
	return s.feed.OnSearchTextChange(ctx, "")
}

// ReachedEnd asks the feed for the next page.
func (s *Session) ReachedEnd(ctx context.Context) error {
	return s.feed.OnReachEnd(ctx)
}

// OpenFavoritesPanel reloads the favorites so the panel shows fresh data.
// On a failed reload the last known snapshot is returned with the error.
func (s *Session) OpenFavoritesPanel(ctx context.Context) ([]models.Movie, error) {
	err := s.registry.Refresh(ctx)
	return s.registry.Current(), err
}

// Favorites returns the current favorites snapshot without reloading.
func (s *Session) Favorites() []models.Movie {
	return s.registry.Current()
}

// IsFavorite reports a movie's favorite status from the snapshot.
func (s *Session) IsFavorite(movieID int) bool {
	return s.registry.Contains(movieID)
}

// Feed returns the current feed state.
func (s *Session) Feed() models.FeedState {
	return s.feed.Snapshot()
}

// refresh republishes favorites after a successful mutation. A failed
// reload leaves the registry stale until the next refresh.
func (s *Session) refresh(ctx context.Context) {
	if err := s.registry.Refresh(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Favorites refresh after update failed")
	}
}

func (s *Session) emit(kind models.NotificationKind, text string) models.Notification {
	n := models.NewNotification(kind, text)
	s.notifier.Notify(n)
	return n
}

func (s *Session) begin(movieID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.pending[movieID]; busy {
		return false
	}
	s.pending[movieID] = struct{}{}
	return true
}

func (s *Session) end(movieID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, movieID)
}
