// Package repository provides the data access layer for the favorites list.
package repository

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"cinefav/errs"
	"cinefav/logging"
	"cinefav/metrics"
	"cinefav/models"
	"cinefav/storage"
)

// FavoritesKey is the well-known key the favorites document lives under.
const FavoritesKey = "@movie_favorites"

// FavoritesRepository persists the favorites list as a single JSON document.
// Every operation does a full read-modify-write against the medium; there is
// no in-process cache here.
type FavoritesRepository struct {
	kv  storage.KeyValue
	log zerolog.Logger
}

// NewFavoritesRepository creates a new favorites repository
func NewFavoritesRepository(kv storage.KeyValue) *FavoritesRepository {
	return &FavoritesRepository{
		kv:  kv,
		log: logging.Component("favorites-store"),
	}
}

// Load returns the persisted favorites. A missing or unparsable document
// yields an empty list; only a failing medium is reported.
func (r *FavoritesRepository) Load(ctx context.Context) ([]models.Movie, error) {
	raw, ok, err := r.kv.Get(ctx, FavoritesKey)
	if err != nil {
		return nil, errs.Wrap(errs.EPERSISTENCE, err, "failed to read favorites")
	}
	if !ok {
		return []models.Movie{}, nil
	}

	var movies []models.Movie
	if err := json.Unmarshal(raw, &movies); err != nil {
		r.log.Warn().Err(err).Int("bytes", len(raw)).Msg("Discarding unreadable favorites document")
		return []models.Movie{}, nil
	}
	if movies == nil {
		movies = []models.Movie{}
	}

	return movies, nil
}

// Add appends movie and returns the new list. A movie whose id is already
// present is not appended twice; the stored list is returned unchanged.
func (r *FavoritesRepository) Add(ctx context.Context, movie models.Movie) ([]models.Movie, error) {
	movies, err := r.Load(ctx)
	if err != nil {
		metrics.FavoritesMutations.WithLabelValues("add", "error").Inc()
		return nil, err
	}

	if indexOf(movies, movie.ID) >= 0 {
		metrics.FavoritesMutations.WithLabelValues("add", "duplicate").Inc()
		r.log.Debug().Int("movie_id", movie.ID).Msg("Movie already in favorites")
		return movies, nil
	}

	movies = append(movies, movie)
	if err := r.save(ctx, movies); err != nil {
		metrics.FavoritesMutations.WithLabelValues("add", "error").Inc()
		return nil, err
	}

	metrics.FavoritesMutations.WithLabelValues("add", "ok").Inc()
	return movies, nil
}

// Remove drops every entry with the given id and returns the new list.
func (r *FavoritesRepository) Remove(ctx context.Context, movieID int) ([]models.Movie, error) {
	movies, err := r.Load(ctx)
	if err != nil {
		metrics.FavoritesMutations.WithLabelValues("remove", "error").Inc()
		return nil, err
	}

	kept := make([]models.Movie, 0, len(movies))
	for _, m := range movies {
		if m.ID != movieID {
			kept = append(kept, m)
		}
	}

	if err := r.save(ctx, kept); err != nil {
		metrics.FavoritesMutations.WithLabelValues("remove", "error").Inc()
		return nil, err
	}

	metrics.FavoritesMutations.WithLabelValues("remove", "ok").Inc()
	return kept, nil
}

// IsFavorite reports whether a movie with the given id is stored.
func (r *FavoritesRepository) IsFavorite(ctx context.Context, movieID int) (bool, error) {
	movies, err := r.Load(ctx)
	if err != nil {
		return false, err
	}
	return indexOf(movies, movieID) >= 0, nil
}

func (r *FavoritesRepository) save(ctx context.Context, movies []models.Movie) error {
	raw, err := json.Marshal(movies)
	if err != nil {
		return errs.Wrap(errs.EINTERNAL, err, "failed to encode favorites")
	}
	if err := r.kv.Set(ctx, FavoritesKey, raw); err != nil {
		return errs.Wrap(errs.EPERSISTENCE, err, "failed to write favorites")
	}
	return nil
}

func indexOf(movies []models.Movie, movieID int) int {
	for i, m := range movies {
		if m.ID == movieID {
			return i
		}
	}
	return -1
}
