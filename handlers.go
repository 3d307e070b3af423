package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cinefav/errs"
	"cinefav/logging"
	"cinefav/models"
	"cinefav/session"
)

// App represents the application with its dependencies
type App struct {
	session *session.Session
	views   *presenter
	stream  http.Handler
}

type favoriteResponse struct {
	Notification models.Notification `json:"notification"`
	IsFavorite   bool                `json:"is_favorite"`
	Favorites    []movieView         `json:"favorites"`
}

type errorResponse struct {
	Error        string               `json:"error"`
	Code         string               `json:"code"`
	Notification *models.Notification `json:"notification,omitempty"`
}

type searchRequest struct {
	Text string `json:"text"`
}

func (app *App) routes() *mux.Router {
	r := mux.NewRouter()

	// Health check endpoint
	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Feed endpoints
	api.HandleFunc("/feed", app.getFeedHandler).Methods("GET")
	api.HandleFunc("/feed/search", app.searchFeedHandler).Methods("POST")
	api.HandleFunc("/feed/clear", app.clearFeedHandler).Methods("POST")
	api.HandleFunc("/feed/more", app.moreFeedHandler).Methods("POST")

	// Favorites endpoints
	api.HandleFunc("/favorites", app.getFavoritesHandler).Methods("GET")
	api.HandleFunc("/favorites/toggle", app.toggleFavoriteHandler).Methods("POST")
	api.HandleFunc("/favorites/{id}", app.deleteFavoriteHandler).Methods("DELETE")

	api.HandleFunc("/images", app.imageHandler).Methods("GET")
	if app.stream != nil {
		api.Handle("/stream", app.stream).Methods("GET")
	}

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		logging.Error().Err(err).Msg("Failed to write response")
	}
}

func (app *App) getFeedHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, app.views.feed(app.session.Feed()))
}

func (app *App) searchFeedHandler(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.EINVALID, err, "Invalid request body"), nil)
		return
	}

	// page loads are never cancelled by a client going away
	err := app.session.Search(context.WithoutCancel(r.Context()), req.Text)
	app.respondFeed(w, err)
}

func (app *App) clearFeedHandler(w http.ResponseWriter, r *http.Request) {
	err := app.session.ClearSearch(context.WithoutCancel(r.Context()))
	app.respondFeed(w, err)
}

func (app *App) moreFeedHandler(w http.ResponseWriter, r *http.Request) {
	err := app.session.ReachedEnd(context.WithoutCancel(r.Context()))
	app.respondFeed(w, err)
}

// respondFeed answers a feed intent with the resulting feed. Ignored
// intents (a load already in flight, no more pages) still get the feed.
func (app *App) respondFeed(w http.ResponseWriter, err error) {
	if err != nil && !errs.Is(err, errs.ENOOP) {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, app.views.feed(app.session.Feed()))
}

func (app *App) getFavoritesHandler(w http.ResponseWriter, r *http.Request) {
	movies, err := app.session.OpenFavoritesPanel(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, app.views.movies(movies))
}

func (app *App) toggleFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	var movie models.Movie
	if err := json.NewDecoder(r.Body).Decode(&movie); err != nil {
		writeError(w, errs.Wrap(errs.EINVALID, err, "Invalid request body"), nil)
		return
	}
	if movie.ID <= 0 {
		writeError(w, errs.Errorf(errs.EINVALID, "Invalid movie ID"), nil)
		return
	}

	n, err := app.session.ToggleFavorite(context.WithoutCancel(r.Context()), movie)
	app.respondFavorite(w, movie.ID, n, err)
}

func (app *App) deleteFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	movieID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, errs.Errorf(errs.EINVALID, "Invalid movie ID"), nil)
		return
	}

	n, err := app.session.RemoveFavoriteFromDrawer(context.WithoutCancel(r.Context()), movieID)
	app.respondFavorite(w, movieID, n, err)
}

func (app *App) respondFavorite(w http.ResponseWriter, movieID int, n models.Notification, err error) {
	if err != nil {
		var notification *models.Notification
		if n.ID != uuid.Nil {
			notification = &n
		}
		writeError(w, err, notification)
		return
	}

	writeJSON(w, http.StatusOK, favoriteResponse{
		Notification: n,
		IsFavorite:   app.session.IsFavorite(movieID),
		Favorites:    app.views.movies(app.session.Favorites()),
	})
}

func (app *App) imageHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	imageURL, ok := app.views.images.ImageURL(query.Get("path"), query.Get("size"))
	if !ok {
		writeError(w, errs.Errorf(errs.ENOTFOUND, "No image for this movie"), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": imageURL})
}

func httpStatus(err error) int {
	switch errs.ErrorCode(err) {
	case errs.EINVALID:
		return http.StatusBadRequest
	case errs.ENOTFOUND:
		return http.StatusNotFound
	case errs.ENOOP:
		return http.StatusConflict
	case errs.ENETWORK:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error, n *models.Notification) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		logging.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, errorResponse{
		Error:        errs.ErrorMessage(err),
		Code:         errs.ErrorCode(err),
		Notification: n,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}
