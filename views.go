package main

import (
	"cinefav/models"
	"cinefav/notify"
)

// ImageResolver builds poster URLs
type ImageResolver interface {
	ImageURL(path, size string) (string, bool)
	PosterURL(movie models.Movie, size string) (string, bool)
}

// FavoriteChecker reports a movie's favorite status
type FavoriteChecker interface {
	Contains(movieID int) bool
}

// movieView is a movie as rendered by a card or the favorites panel
type movieView struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	PosterPath  *string  `json:"poster_path,omitempty"`
	VoteAverage *float64 `json:"vote_average,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Key         string   `json:"key"`
	PosterURL   string   `json:"poster_url,omitempty"`
	RatingLabel string   `json:"rating_label"`
	Year        string   `json:"year"`
	IsFavorite  bool     `json:"is_favorite"`
}

type feedView struct {
	Items      []movieView `json:"items"`
	PageNumber int         `json:"page_number"`
	HasMore    bool        `json:"has_more"`
	Query      string      `json:"query"`
	IsLoading  bool        `json:"is_loading"`
}

// presenter renders core state for both the HTTP routes and the stream
type presenter struct {
	images    ImageResolver
	favorites FavoriteChecker
}

func (p *presenter) feed(state models.FeedState) feedView {
	return feedView{
		Items:      p.movies(state.Items),
		PageNumber: state.PageNumber,
		HasMore:    state.HasMore,
		Query:      state.Query,
		IsLoading:  state.IsLoading,
	}
}

func (p *presenter) movies(movies []models.Movie) []movieView {
	views := make([]movieView, 0, len(movies))
	for _, m := range movies {
		posterURL, _ := p.images.PosterURL(m, "")
		views = append(views, movieView{
			ID:          m.ID,
			Title:       m.Title,
			PosterPath:  m.PosterPath,
			VoteAverage: m.VoteAverage,
			ReleaseDate: m.ReleaseDate,
			Key:         m.Key(),
			PosterURL:   posterURL,
			RatingLabel: m.RatingLabel(),
			Year:        m.Year(),
			IsFavorite:  p.favorites.Contains(m.ID),
		})
	}
	return views
}

// Publisher broadcasts a typed message to stream clients
type Publisher interface {
	Publish(msgType string, data interface{})
	Notify(n models.Notification)
}

// streamNotifier pushes rendered feed and favorites snapshots to the
// stream. It serves as the feed's and the session's notifier.
type streamNotifier struct {
	hub   Publisher
	views *presenter
}

func (s *streamNotifier) Notify(n models.Notification) {
	s.hub.Notify(n)
}

func (s *streamNotifier) FeedChanged(state models.FeedState) {
	s.hub.Publish(notify.MessageTypeFeed, s.views.feed(state))
}

// FavoritesChanged matches the registry's subscriber signature.
func (s *streamNotifier) FavoritesChanged(movies []models.Movie) {
	s.hub.Publish(notify.MessageTypeFavorites, s.views.movies(movies))
}
