package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/routes/graphsync"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	hooksroute "github.com/Ramsey-B/fern/pkg/routes/hooks"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(envFile *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the lifecycle event consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply database migrations before serving")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, migrate bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, appOptions{migrate: migrate, consumer: true})
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.Stop(stopCtx)
		return fmt.Errorf("failed to start dependencies: %w", err)
	}

	checker := health.NewChecker(
		health.PingFunc(a.db.PingContext),
		health.PingFunc(a.indexer.Ping),
		redisPinger(a),
		cfg.AppVersion,
	)

	e := newServer(a, cfg, checker)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := e.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	checker.SetReady(true)

	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received")
	case err = <-serverErr:
		a.logger.WithError(err).Error("HTTP server failed")
	}
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
		a.logger.WithError(shutdownErr).Warn("HTTP server did not shut down cleanly")
	}
	if stopErr := a.Stop(shutdownCtx); stopErr != nil {
		a.logger.WithError(stopErr).Warn("Dependencies did not stop cleanly")
	}
	return err
}

func newServer(a *app, cfg *config.Config, checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Container(a.containerID))
	e.Use(middleware.Logger(a.logger))

	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	graphsync.NewHandler(nil, nil).Register(api.Group("/graph"))
	hooksroute.NewHandler(nil).Register(api.Group("/hooks"))

	return e
}

func redisPinger(a *app) health.Pinger {
	if a.redis == nil {
		return nil
	}
	return a.redis
}
