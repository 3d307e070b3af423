// Package main provides the entry point for the movie favorites service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinefav/config"
	"cinefav/favorites"
	"cinefav/feed"
	"cinefav/jobs"
	"cinefav/logging"
	"cinefav/notify"
	"cinefav/repository"
	"cinefav/services"
	"cinefav/session"
	"cinefav/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// Initialize the favorites store
	kv, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to open favorites store")
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close favorites store")
		}
	}()

	repo := repository.NewFavoritesRepository(kv)
	registry := favorites.NewRegistry(repo)
	defer registry.Close()

	tmdbService := services.NewTMDBService(cfg.TMDB.APIKey, services.TMDBOptions{
		BaseURL:      cfg.TMDB.BaseURL,
		ImageBaseURL: cfg.TMDB.ImageBaseURL,
		Timeout:      cfg.TMDB.Timeout,
		RateLimit:    cfg.TMDB.RateLimit,
		RateBurst:    cfg.TMDB.RateBurst,
	})

	views := &presenter{images: tmdbService, favorites: registry}
	hub := notify.NewHub()
	stream := &streamNotifier{hub: hub, views: views}
	registry.Subscribe(stream.FavoritesChanged)

	controller := feed.NewController(tmdbService, stream)
	sess := session.New(repo, registry, controller, stream)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Notification hub failed")
		}
	}()

	if err := sess.Start(ctx); err != nil {
		logging.Warn().Err(err).Msg("Could not load favorites on startup")
	}

	jobManager := jobs.NewJobManager(registry, cfg.RefreshInterval)
	jobManager.Start()
	defer jobManager.Stop()

	app := &App{
		session: sess,
		views:   views,
		stream:  http.HandlerFunc(hub.ServeWS),
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      app.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", server.Addr).Str("storage", cfg.Storage.Driver).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("Server failed")
			stop()
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logging.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Server shutdown failed")
	}
}
