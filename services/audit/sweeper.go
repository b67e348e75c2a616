package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often the sweeper wakes up when no interval is
// configured.
const DefaultSweepInterval = 24 * time.Hour

// SweepState is the lifecycle state of a Sweeper.
type SweepState string

const (
	SweepIdle     SweepState = "idle"
	SweepSweeping SweepState = "sweeping"
)

// SweepResult describes one completed purge.
type SweepResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
}

// SweeperConfig holds the immutable retention settings.
type SweeperConfig struct {
	// RetentionDays is the age in days after which records are purged.
	// Zero disables purging.
	RetentionDays int
	// Interval between automatic sweeps. Defaults to DefaultSweepInterval.
	Interval time.Duration
	Clock    clockwork.Clock
	Metrics  *Metrics
}

// Sweeper purges records older than the retention window. At most one sweep
// runs at a time; a sweep requested while another is running is skipped.
type Sweeper struct {
	store     Store
	retention int
	interval  time.Duration
	clock     clockwork.Clock
	metrics   *Metrics
	logger    zerolog.Logger

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewSweeper validates cfg and returns an idle sweeper.
func NewSweeper(store Store, cfg SweeperConfig, logger zerolog.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	if cfg.RetentionDays < 0 {
		return nil, fmt.Errorf("retention days must be non-negative, got %d", cfg.RetentionDays)
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", cfg.Interval)
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Sweeper{
		store:     store,
		retention: cfg.RetentionDays,
		interval:  cfg.Interval,
		clock:     cfg.Clock,
		metrics:   cfg.Metrics,
		logger:    logger.With().Str("component", "audit_sweeper").Logger(),
	}, nil
}

// RetentionDays returns the configured retention window in days.
func (s *Sweeper) RetentionDays() int { return s.retention }

// State reports whether a sweep is currently running.
func (s *Sweeper) State() SweepState {
	if s.running.Load() {
		return SweepSweeping
	}
	return SweepIdle
}

// Run sweeps once per interval until ctx is done. The first sweep happens one
// interval after start. With retention disabled Run returns immediately.
func (s *Sweeper) Run(ctx context.Context) {
	if s.retention == 0 {
		s.logger.Info().Msg("audit retention disabled; automatic cleanup off")
		return
	}

	s.logger.Info().
		Int("retention_days", s.retention).
		Dur("interval", s.interval).
		Msg("audit retention sweeper started")

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info().Msg("audit retention sweeper stopped")
			return
		case <-ticker.Chan():
			if s.running.Load() {
				s.logger.Warn().Msg("previous sweep still running; skipping tick")
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
					s.logger.Error().Err(err).Msg("scheduled sweep")
				}
			}()
		}
	}
}

// Sweep deletes every record strictly older than now minus the retention
// window. Scheduled ticks and manual purges share this path.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	if s.retention == 0 {
		return SweepResult{}, ErrRetentionDisabled
	}
	if !s.running.CompareAndSwap(false, true) {
		return SweepResult{}, ErrSweepInProgress
	}

	start := s.clock.Now()
	cutoff := start.Add(-time.Duration(s.retention) * 24 * time.Hour).UTC()

	deleted, err := s.purge(ctx, cutoff)
	elapsed := s.clock.Since(start)
	s.metrics.recordSweep(deleted, elapsed, err)
	if err != nil {
		s.logger.Error().Err(err).Time("cutoff", cutoff).Msg("retention sweep failed")
		return SweepResult{}, fmt.Errorf("%w: %w", ErrSweepFailed, err)
	}

	s.logger.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Dur("elapsed", elapsed).
		Msg("retention sweep complete")
	return SweepResult{Cutoff: cutoff, Deleted: deleted}, nil
}

func (s *Sweeper) purge(ctx context.Context, cutoff time.Time) (int64, error) {
	defer s.running.Store(false)
	return s.store.DeleteOlderThan(ctx, cutoff)
}
