// Package favorites holds the process-wide, observable snapshot of the
// favorites list.
//
// The Registry never mutates the store. Callers mutate through the
// repository and then call Refresh, which reloads the whole list and
// republishes it to every subscriber:
//
//	repo.Add(ctx, movie)
//	registry.Refresh(ctx)
package favorites

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"cinefav/logging"
	"cinefav/metrics"
	"cinefav/models"
)

// Loader reads the durable favorites list.
type Loader interface {
	Load(ctx context.Context) ([]models.Movie, error)
}

// Subscriber receives every published snapshot. It runs on the goroutine
// that called Refresh and must not call Refresh itself.
type Subscriber func(movies []models.Movie)

// Registry is the single in-memory owner of the favorites snapshot.
type Registry struct {
	store Loader
	log   zerolog.Logger

	// refreshMu orders load+publish so subscribers see snapshots in replace order.
	refreshMu sync.Mutex

	mu       sync.RWMutex
	snapshot []models.Movie
	subs     map[uint64]Subscriber
	nextID   uint64
	closed   bool
}

// NewRegistry creates an empty registry over store. Call Refresh to
// populate it.
func NewRegistry(store Loader) *Registry {
	return &Registry{
		store:    store,
		log:      logging.Component("favorites-registry"),
		snapshot: []models.Movie{},
		subs:     make(map[uint64]Subscriber),
	}
}

// Refresh reloads the list from the store, replaces the snapshot and
// notifies every subscriber before returning. On a load error the previous
// snapshot is kept.
func (r *Registry) Refresh(ctx context.Context) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	movies, err := r.store.Load(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("Favorites refresh failed")
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.snapshot = movies
	subs := r.subscribersLocked()
	r.mu.Unlock()

	metrics.FavoritesCount.Set(float64(len(movies)))
	r.log.Debug().Int("count", len(movies)).Int("subscribers", len(subs)).Msg("Favorites published")

	for _, sub := range subs {
		sub(clone(movies))
	}
	return nil
}

// Current returns a copy of the latest published snapshot.
func (r *Registry) Current() []models.Movie {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.snapshot)
}

// Contains reports whether the snapshot holds a movie with the given id.
func (r *Registry) Contains(movieID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.snapshot {
		if m.ID == movieID {
			return true
		}
	}
	return false
}

// Subscribe registers fn for future snapshots and returns a function that
// removes it. The current snapshot is not replayed.
func (r *Registry) Subscribe(fn Subscriber) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return func() {}
	}

	r.nextID++
	id := r.nextID
	r.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}
}

// Close drops all subscribers. Later refreshes are no-ops.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.subs = make(map[uint64]Subscriber)
}

// subscribersLocked returns subscribers in registration order.
func (r *Registry) subscribersLocked() []Subscriber {
	ids := make([]uint64, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	subs := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, r.subs[id])
	}
	return subs
}

func clone(movies []models.Movie) []models.Movie {
	out := make([]models.Movie, len(movies))
	copy(out, movies)
	return out
}
