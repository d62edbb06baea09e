// cmd/storenode runs a single store node: a single-shard, log-backed
// counter store with async fan-out replication to secondaries, and an
// optional reconciliation loop when configured with a primary.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/countershard/countershard/internal/config"
	"github.com/countershard/countershard/internal/httpmw"
	"github.com/countershard/countershard/internal/logging"
	"github.com/countershard/countershard/internal/store"
)

func main() {
	cfg, err := config.LoadStoreNode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: logging.Level(cfg.LogLevel)})
	logger := logging.WithNode("storenode", cfg.NodeID)

	s, err := store.New(store.Options{
		NodeID:      cfg.NodeID,
		LogPath:     cfg.LogPath,
		Secondaries: cfg.Secondaries,
		PrimaryURL:  cfg.PrimaryURL,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer s.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(httpmw.Logger(logger), httpmw.Recovery(logger))
	store.NewHandler(s).Register(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("store node listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down store node")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
}
