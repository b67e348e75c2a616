package api

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"activityaudit/services/activities"
	"activityaudit/services/audit"
)

// Services holds the components the HTTP handlers delegate to.
type Services struct {
	Activities *activities.Service
	Query      *audit.QueryService
	Sweeper    *audit.Sweeper
	Gate       *audit.Gate
	// Ready reports whether the backing store is reachable.
	Ready func(context.Context) error
	// Gatherer backs /metrics. Defaults to the global Prometheus registry.
	Gatherer prometheus.Gatherer
}

// Config controls runtime behaviour for the HTTP layer.
type Config struct {
	ServiceName        string
	AllowedOrigins     []string
	RateLimitPerMinute int
	StaticDir          string
}

// API wires services, logger and configuration for HTTP handlers.
type API struct {
	svc    Services
	config Config
	logger zerolog.Logger
}

// New initialises the API layer with defaults applied to cfg.
func New(svc Services, cfg Config, logger zerolog.Logger) (*API, error) {
	if svc.Activities == nil {
		return nil, errors.New("activities service is required")
	}
	if svc.Query == nil || svc.Sweeper == nil || svc.Gate == nil {
		return nil, errors.New("audit query, sweeper and gate are required")
	}
	if svc.Ready == nil {
		svc.Ready = func(context.Context) error { return nil }
	}
	if svc.Gatherer == nil {
		svc.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "activities-api"
	}

	return &API{
		svc:    svc,
		config: cfg,
		logger: logger.With().Str("component", "http").Logger(),
	}, nil
}
