// Package models defines the data structures shared across the application.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Movie is a catalog record as returned by TMDB. It is copied wholesale
// into the favorites list and never mutated afterwards.
type Movie struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	PosterPath  *string  `json:"poster_path,omitempty"` // relative, e.g. /abc.jpg
	VoteAverage *float64 `json:"vote_average,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"` // YYYY-MM-DD
}

// Key returns the list key used by renderers.
func (m Movie) Key() string {
	return strconv.Itoa(m.ID)
}

// RatingLabel formats the vote average with one decimal, or "N/A".
func (m Movie) RatingLabel() string {
	if m.VoteAverage == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", *m.VoteAverage)
}

// Year returns the release year, or "TBA" when there is no release date.
func (m Movie) Year() string {
	year, _, _ := strings.Cut(m.ReleaseDate, "-")
	if year == "" {
		return "TBA"
	}
	return year
}

// Poster returns the relative poster path and whether one is set.
func (m Movie) Poster() (string, bool) {
	if m.PosterPath == nil || *m.PosterPath == "" {
		return "", false
	}
	return *m.PosterPath, true
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
