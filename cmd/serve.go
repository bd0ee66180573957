package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"uploadqueue/internal/api"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the queue API and run the agent on its interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), ctx)
		},
	}
}

func serve(ctx context.Context, cc *commandContext) error {
	cfg := cc.config
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	baseCtx, baseCancel := context.WithCancel(ctx)
	defer baseCancel()

	a, err := openApp(baseCtx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	router := setupRouter()
	handler := api.NewAPI(a.queue, a.engine)
	handler.SetBaseContext(baseCtx)
	handler.RegisterRoutes(router)

	var workers sync.WaitGroup
	if cfg.Agent.Interval > 0 {
		workers.Add(1)
		go func() {
			defer workers.Done()
			a.engine.Loop(baseCtx, cfg.Agent.Interval)
		}()
	}

	srv := newHTTPServer(cfg.Port, router, readHeaderTimeout)
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	log.Info().Int("port", cfg.Port).Str("storage", cfg.Storage).Dur("interval", cfg.Agent.Interval).Msg("server started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		baseCancel()
		workers.Wait()
		return fmt.Errorf("http server failed: %w", err)
	}

	gracefulShutdown(srv, baseCancel, &workers, shutdownTimeout)
	return nil
}

func setupRouter() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(api.ZerologLogger())
	return r
}

func newHTTPServer(port int, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// gracefulShutdown stops agent runs first so in-flight run requests return,
// then drains the HTTP server and waits for the autopilot loop.
func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, workers *sync.WaitGroup, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cancelBase()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("server exited cleanly")
	case <-ctx.Done():
		log.Warn().Msg("background workers did not finish before timeout")
	}
}
