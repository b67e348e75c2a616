package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SubjectRecorded is the bus subject a Writer publishes appended records on.
const SubjectRecorded = "activityaudit.audit.recorded"

const publishTimeout = 2 * time.Second

// Publisher delivers notifications to an event bus. *bus.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

// Writer validates events and appends them to a Store.
type Writer struct {
	store     Store
	publisher Publisher
	metrics   *Metrics
	logger    zerolog.Logger
}

// WriterOption customises a Writer.
type WriterOption func(*Writer)

// WithPublisher makes the writer announce every appended record on the bus.
func WithPublisher(p Publisher) WriterOption {
	return func(w *Writer) { w.publisher = p }
}

// WithWriterMetrics attaches Prometheus collectors.
func WithWriterMetrics(m *Metrics) WriterOption {
	return func(w *Writer) { w.metrics = m }
}

// NewWriter returns a Writer appending to store.
func NewWriter(store Store, logger zerolog.Logger, opts ...WriterOption) (*Writer, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	w := &Writer{store: store, logger: logger.With().Str("component", "audit_writer").Logger()}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Record appends exactly one record describing ev. Action and UserEmail are
// required; blank optional fields are stored as null.
func (w *Writer) Record(ctx context.Context, ev Event) (Record, error) {
	ev = ev.normalize()
	if ev.Action == "" {
		return Record{}, fmt.Errorf("%w: action is required", ErrValidation)
	}
	if ev.UserEmail == "" {
		return Record{}, fmt.Errorf("%w: user_email is required", ErrValidation)
	}

	rec, err := w.store.Insert(ctx, ev.toRecord())
	if err != nil {
		w.metrics.recordWriteFailure()
		w.logger.Error().Err(err).
			Str("action", string(ev.Action)).
			Str("user_email", ev.UserEmail).
			Msg("append audit record")
		return Record{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	w.metrics.recordWrite(rec.Action)
	w.logger.Debug().
		Int64("id", rec.ID).
		Str("action", string(rec.Action)).
		Str("user_email", rec.UserEmail).
		Str("activity", deref(rec.ActivityName)).
		Msg("audit record appended")

	w.publish(ctx, rec)
	return rec, nil
}

// RecordBestEffort appends ev and swallows any failure after logging it, so
// the calling business operation is never failed by the audit side channel.
func (w *Writer) RecordBestEffort(ctx context.Context, ev Event) {
	if w == nil {
		return
	}
	if _, err := w.Record(ctx, ev); err != nil && errors.Is(err, ErrValidation) {
		w.logger.Warn().Err(err).Msg("audit event dropped")
	}
}

func (w *Writer) publish(ctx context.Context, rec Record) {
	if w.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := w.publisher.Publish(ctx, SubjectRecorded, rec)
	w.metrics.recordPublish(err)
	if err != nil {
		w.logger.Warn().Err(err).Int64("id", rec.ID).Msg("publish audit notification")
	}
}
