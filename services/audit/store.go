package audit

import (
	"context"
	"time"
)

// Store is the durable append-only table behind the audit trail. It is the
// only component that touches persistent state. Implementations must be safe
// for concurrent use and assign strictly increasing IDs.
type Store interface {
	// Insert assigns ID and Timestamp and persists the record.
	Insert(ctx context.Context, rec Record) (Record, error)
	// List returns records ordered by ID descending together with the total
	// number of records in the table.
	List(ctx context.Context, limit, offset int) ([]Record, int64, error)
	// DeleteOlderThan removes every record whose timestamp is strictly
	// before cutoff and reports how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// CountByAction returns per-action counts for actions present in the table.
	CountByAction(ctx context.Context) (map[Action]int64, error)
	// Stream calls fn for every record in ID order. It stops at the first
	// error returned by fn or when ctx is done.
	Stream(ctx context.Context, fn func(Record) error) error
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}
