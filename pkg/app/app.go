package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"activityaudit/pkg/bus"
	"activityaudit/pkg/config"
	"activityaudit/pkg/db"
	"activityaudit/services/activities"
	"activityaudit/services/audit"
)

// StreamName is the JetStream stream capturing audit notifications.
const StreamName = "ACTIVITYAUDIT"

// Deps holds the wired components shared by the API server and auditctl.
type Deps struct {
	Config   config.Config
	Logger   zerolog.Logger
	Registry *prometheus.Registry

	Store      audit.Store
	Writer     *audit.Writer
	Sweeper    *audit.Sweeper
	Query      *audit.QueryService
	Gate       *audit.Gate
	Activities *activities.Service

	closers []func() error
}

// Option customises Build.
type Option func(*buildOptions)

type buildOptions struct {
	clock clockwork.Clock
	name  string
	seed  bool
}

// WithClock replaces the real clock, typically with a fake one in tests.
func WithClock(c clockwork.Clock) Option {
	return func(o *buildOptions) { o.clock = c }
}

// WithName sets the client name reported to NATS.
func WithName(name string) Option {
	return func(o *buildOptions) { o.name = name }
}

// WithoutSeed skips seeding the activity catalogue.
func WithoutSeed() Option {
	return func(o *buildOptions) { o.seed = false }
}

// Build opens the configured store and wires every component on top of it.
// The caller must Close the returned Deps.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts ...Option) (*Deps, error) {
	o := buildOptions{clock: clockwork.NewRealClock(), name: "activityaudit", seed: true}
	for _, opt := range opts {
		opt(&o)
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d := &Deps{Config: cfg, Logger: logger, Registry: registry}
	ok := false
	defer func() {
		if !ok {
			_ = d.Close()
		}
	}()

	orm, err := d.openStore(ctx, o.clock)
	if err != nil {
		return nil, err
	}

	if o.seed {
		if err := d.seed(ctx, orm); err != nil {
			return nil, err
		}
	}

	metrics := audit.NewMetrics(registry)
	writerOpts := []audit.WriterOption{audit.WithWriterMetrics(metrics)}
	if cfg.NATSURL != "" {
		b, err := bus.New(cfg.NATSURL, nats.Name(o.name))
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		d.closers = append(d.closers, func() error { b.Close(); return nil })
		if err := b.EnsureStream(StreamName, "activityaudit.audit.>"); err != nil {
			return nil, err
		}
		writerOpts = append(writerOpts, audit.WithPublisher(b))
	}

	if d.Writer, err = audit.NewWriter(d.Store, logger, writerOpts...); err != nil {
		return nil, err
	}
	d.Sweeper, err = audit.NewSweeper(d.Store, audit.SweeperConfig{
		RetentionDays: cfg.RetentionDays,
		Interval:      cfg.SweepInterval,
		Clock:         o.clock,
		Metrics:       metrics,
	}, logger)
	if err != nil {
		return nil, err
	}
	if d.Query, err = audit.NewQueryService(d.Store, cfg.RetentionDays, logger); err != nil {
		return nil, err
	}
	d.Gate = audit.NewGate(audit.GateConfig{
		Token:     cfg.AdminToken,
		JWTSecret: cfg.AdminJWTSecret,
		Clock:     o.clock,
	}, logger)
	if !cfg.AdminConfigured() {
		logger.Warn().Msg("no admin credential configured; admin endpoints will refuse every request")
	}

	if d.Activities, err = activities.NewService(orm, d.Writer, logger); err != nil {
		return nil, err
	}

	ok = true
	return d, nil
}

// openStore opens the audit store and returns the GORM handle the activity
// catalogue lives in.
func (d *Deps) openStore(ctx context.Context, clock clockwork.Clock) (*gorm.DB, error) {
	cfg := d.Config
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		orm, err := d.openORM(ctx, db.DriverSQLite, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if d.Store, err = audit.NewSQLiteStore(ctx, orm, clock); err != nil {
			return nil, err
		}
		return orm, activities.Migrate(ctx, orm)

	case config.DriverPostgres:
		pool, err := db.Open(ctx, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		d.closers = append(d.closers, func() error { pool.Close(); return nil })
		if err := db.Migrate(ctx, pool); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		if d.Store, err = audit.NewPostgresStore(pool, clock); err != nil {
			return nil, err
		}
		return d.openORM(ctx, db.DriverPostgres, cfg.DBDSN)

	case config.DriverMemory:
		d.Store = audit.NewMemoryStore(clock)
		orm, err := d.openORM(ctx, db.DriverSQLite, ":memory:")
		if err != nil {
			return nil, err
		}
		return orm, activities.Migrate(ctx, orm)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func (d *Deps) openORM(ctx context.Context, driver, dsn string) (*gorm.DB, error) {
	orm, err := db.OpenORM(ctx, driver, dsn, d.Logger)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	d.closers = append(d.closers, func() error { return db.CloseORM(orm) })
	return orm, nil
}

func (d *Deps) seed(ctx context.Context, orm *gorm.DB) error {
	seeds := activities.DefaultSeed
	if d.Config.SeedFile != "" {
		loaded, err := activities.LoadSeedFile(d.Config.SeedFile)
		if err != nil {
			return err
		}
		seeds = loaded
	}
	n, err := activities.Seed(ctx, orm, seeds)
	if err != nil {
		return err
	}
	if n > 0 {
		d.Logger.Info().Int("activities", n).Msg("seeded activity catalogue")
	}
	return nil
}

// Ready reports whether the audit store is reachable.
func (d *Deps) Ready(ctx context.Context) error {
	if d == nil || d.Store == nil {
		return errors.New("store not initialised")
	}
	return d.Store.Ping(ctx)
}

// Close releases every resource opened by Build in reverse order.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
