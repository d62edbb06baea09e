// cmd/gateway runs the HTTP front door: it proxies enqueue requests to the
// queue service and serves counter reads by routing through the
// consistent-hash ring, with a single retry against a secondary on
// transport failure. Out of the system's core scope, but shipped so the
// system is runnable end to end.
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
	"github.com/countershard/countershard/internal/gateway"
	"github.com/countershard/countershard/internal/httpmw"
	"github.com/countershard/countershard/internal/logging"
	"github.com/countershard/countershard/internal/ring"
)

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: logging.Level(cfg.LogLevel)})
	logger := logging.WithComponent("gateway")

	r := ring.Build(cfg.StoreNodes, ring.DefaultReplicas)

	secondaries := make(map[string]string, len(cfg.StoreNodes))
	for i, node := range cfg.StoreNodes {
		if i < len(cfg.StoreSecondaries) {
			secondaries[node] = cfg.StoreSecondaries[i]
		}
	}

	handler := gateway.NewHandler(gateway.Config{
		Ring:        r,
		Secondaries: secondaries,
		QueueURL:    cfg.QueueURL,
		Logger:      logger,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(httpmw.Logger(logger), httpmw.Recovery(logger))
	handler.Register(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
}
