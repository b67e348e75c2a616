package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultPageSize is used when List is called with limit 0.
	DefaultPageSize = 100
	// MaxPageSize caps the limit accepted by List.
	MaxPageSize = 1000

	exportFlushEvery = 256
)

// ExportHeader is the first row of every CSV export.
var ExportHeader = []string{"id", "timestamp", "action", "user_email", "activity_name", "details", "ip_address"}

// Page is one slice of the trail, newest first.
type Page struct {
	Logs  []Record `json:"logs"`
	Total int64    `json:"total"`
}

// Stats summarises the trail.
type Stats struct {
	TotalLogs     int64            `json:"total_logs"`
	ActionCounts  map[Action]int64 `json:"action_counts"`
	RetentionDays int              `json:"retention_days"`
}

// QueryService is the read side of the trail. Every call requires an identity
// verified by a Gate.
type QueryService struct {
	store         Store
	retentionDays int
	logger        zerolog.Logger
}

// NewQueryService returns a QueryService over store. retentionDays is echoed
// in Stats.
func NewQueryService(store Store, retentionDays int, logger zerolog.Logger) (*QueryService, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	return &QueryService{
		store:         store,
		retentionDays: retentionDays,
		logger:        logger.With().Str("component", "audit_query").Logger(),
	}, nil
}

// List returns up to limit records skipping offset, newest first, together
// with the size of the whole table. A zero limit selects DefaultPageSize.
func (q *QueryService) List(ctx context.Context, id AdminIdentity, limit, offset int) (Page, error) {
	if !id.verified {
		return Page{}, ErrForbidden
	}
	if limit < 0 || offset < 0 {
		return Page{}, fmt.Errorf("%w: limit and offset must be non-negative", ErrValidation)
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	logs, total, err := q.store.List(ctx, limit, offset)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	q.logger.Info().
		Str("admin", id.Subject).
		Int("limit", limit).
		Int("offset", offset).
		Int("returned", len(logs)).
		Msg("audit logs listed")
	return Page{Logs: logs, Total: total}, nil
}

// Export writes every record as CSV in ID order and returns the number of
// data rows written. An empty trail produces the header row only.
func (q *QueryService) Export(ctx context.Context, id AdminIdentity, w io.Writer) (int64, error) {
	if !id.verified {
		return 0, ErrForbidden
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	var (
		rows     int64
		writeErr error
	)
	err := q.store.Stream(ctx, func(rec Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cw.Write(exportRow(rec)); err != nil {
			writeErr = fmt.Errorf("write csv row %d: %w", rec.ID, err)
			return writeErr
		}
		rows++
		if rows%exportFlushEvery == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				writeErr = fmt.Errorf("flush csv: %w", err)
				return writeErr
			}
		}
		return nil
	})

	// Nothing buffered is flushed on failure, so an export that fails before
	// the first batch leaves w untouched.
	switch {
	case writeErr != nil:
		return rows, fmt.Errorf("%w: %w", ErrExportWrite, writeErr)
	case err != nil && ctx.Err() != nil:
		return rows, ctx.Err()
	case err != nil:
		return rows, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("%w: flush csv: %w", ErrExportWrite, err)
	}

	q.logger.Info().Str("admin", id.Subject).Int64("rows", rows).Msg("audit logs exported")
	return rows, nil
}

// Stats returns the total record count and per-action counts for actions
// present in the trail.
func (q *QueryService) Stats(ctx context.Context, id AdminIdentity) (Stats, error) {
	if !id.verified {
		return Stats{}, ErrForbidden
	}

	counts, err := q.store.CountByAction(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	var total int64
	for _, n := range counts {
		total += n
	}

	q.logger.Info().Str("admin", id.Subject).Int64("total", total).Msg("audit stats read")
	return Stats{TotalLogs: total, ActionCounts: counts, RetentionDays: q.retentionDays}, nil
}

func exportRow(rec Record) []string {
	return []string{
		strconv.FormatInt(rec.ID, 10),
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		string(rec.Action),
		rec.UserEmail,
		deref(rec.ActivityName),
		deref(rec.Details),
		deref(rec.IPAddress),
	}
}
