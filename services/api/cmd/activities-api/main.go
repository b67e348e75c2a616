package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"activityaudit/pkg/app"
	"activityaudit/pkg/config"
	"activityaudit/pkg/telemetry"
	"activityaudit/services/api"
)

const serviceName = "activities-api"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	logger, err := telemetry.NewLogger(serviceName, cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}

	shutdownTracing, err := telemetry.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("init tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown tracing")
		}
	}()

	deps, err := app.Build(ctx, cfg, logger, app.WithName(serviceName))
	if err != nil {
		logger.Fatal().Err(err).Msg("build dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		deps.Sweeper.Run(ctx)
	}()

	a, err := api.New(api.Services{
		Activities: deps.Activities,
		Query:      deps.Query,
		Sweeper:    deps.Sweeper,
		Gate:       deps.Gate,
		Ready:      deps.Ready,
		Gatherer:   deps.Registry,
	}, api.Config{
		ServiceName:        serviceName,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		StaticDir:          cfg.StaticDir,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init api")
	}

	handler, err := a.Routes()
	if err != nil {
		logger.Fatal().Err(err).Msg("build routes")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.Addr).
			Str("store", cfg.StoreDriver).
			Int("retention_days", cfg.RetentionDays).
			Msg("starting activities-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
	<-sweepDone
}
