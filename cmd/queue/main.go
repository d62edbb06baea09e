// cmd/queue runs the queue service: admission control, back-pressure, and
// best-effort dispatch of increment jobs to the store nodes responsible
// for their keys.
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
	"github.com/countershard/countershard/internal/queue"
	"github.com/countershard/countershard/internal/ring"
)

func main() {
	cfg, err := config.LoadQueue()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: logging.Level(cfg.LogLevel)})
	logger := logging.WithComponent("queue")

	r := ring.Build(cfg.StoreNodes, ring.DefaultReplicas)

	engine := queue.New(queue.Config{
		MaxQueueSize:       cfg.MaxQueueSize,
		SpilloverQueueSize: cfg.SpilloverQueueSize,
		MaxKeyRate:         cfg.MaxKeyRate,
		StaleThreshold:     time.Duration(cfg.StaleThresholdSec) * time.Second,
		MaxStaleRetries:    cfg.MaxStaleRetries,
		WorkerCount:        cfg.WorkerCount,
		Ring:               r,
		Logger:             logger,
	})
	defer engine.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(httpmw.Logger(logger), httpmw.Recovery(logger))
	queue.NewHandler(engine).Register(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("queue service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down queue service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
}
