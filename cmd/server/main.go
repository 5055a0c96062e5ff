package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/villageois/garou/internal/api"
	"github.com/villageois/garou/internal/config"
	"github.com/villageois/garou/internal/database"
	"github.com/villageois/garou/internal/game"
	"github.com/villageois/garou/internal/logger"
	"github.com/villageois/garou/internal/store"
	"github.com/villageois/garou/internal/websocket"
)

func main() {
	// Ignore error in production where env vars are set directly.
	_ = godotenv.Load("../../.env")
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Server.Environment)

	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to database")

	pg := store.NewPostgres(db.PG)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pg.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	engine := game.NewEngine(cfg, pg, db.Redis)
	if err := engine.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("recovery failed")
	}
	log.Info().Msg("engine started")

	events, unsubscribe := engine.Subscribe(nil)
	defer unsubscribe()
	wsHub := websocket.NewHub(events)
	go wsHub.Run(ctx)
	log.Info().Msg("websocket hub started")

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(db, engine, wsHub)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Drains mailboxes and flushes in-flight commits before the store closes.
	engine.Shutdown()
	log.Info().Msg("server exited")
}
