package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/inkwell-be/internal/api"
	"github.com/isdelr/inkwell-be/internal/auth"
	"github.com/isdelr/inkwell-be/internal/config"
	"github.com/isdelr/inkwell-be/internal/database"
	"github.com/isdelr/inkwell-be/internal/logger"
	"github.com/isdelr/inkwell-be/internal/media"
	"github.com/isdelr/inkwell-be/internal/monitoring"
	"github.com/isdelr/inkwell-be/internal/services"
	"github.com/isdelr/inkwell-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel, cfg.IsProduction())

	// Set up database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}
	log.Info().Str("dialect", db.Dialect.String()).Msg("Database ready")

	// Set up media storage
	store, err := media.NewStore(cfg.MediaRoot, cfg.MediaURL, media.Options{
		MaxBytes:      cfg.MaxImageBytes,
		VerifyContent: cfg.VerifyImageContent,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize media storage")
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	eventService := services.NewEventService(db)
	tagService := services.NewTagService(db)
	userService := services.NewUserService(db, store, eventService)
	postService := services.NewPostService(db, tagService, store, eventService, hub)

	// Set up and run the media janitor
	janitor, err := monitoring.NewMediaJanitor(db, store, cfg.MediaSweepSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize media janitor")
	}
	go janitor.Run()

	// Set up router
	router := api.NewRouter(cfg, api.Dependencies{
		Users:   userService,
		Posts:   postService,
		Tags:    tagService,
		Events:  eventService,
		Issuer:  auth.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		Limiter: auth.NewLoginLimiter(cfg.LoginRatePerMinute),
		Media:   store,
		Hub:     hub,
		DB:      db,
	})

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	janitor.Stop() // Stop the media janitor
	hub.Stop()     // Disconnect feed clients

	log.Info().Msg("Server exiting")
}
