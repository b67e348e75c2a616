package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"activityaudit/pkg/db"
)

const recordColumns = `id, created_at, action, user_email, activity_name, details, ip_address`

// PostgresStore persists records in the audit_logs table created by the
// goose migrations in pkg/db. IDs come from the bigserial sequence.
type PostgresStore struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

// NewPostgresStore returns a store bound to pool. The pool is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool, clock clockwork.Clock) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PostgresStore{pool: pool, clock: clock}, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec Record) (Record, error) {
	rec.Timestamp = stamp(s.clock.Now())

	err := db.Get(ctx, s.pool, &rec.ID, `
INSERT INTO audit_logs (created_at, action, user_email, activity_name, details, ip_address)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`, rec.Timestamp, string(rec.Action), rec.UserEmail, rec.ActivityName, rec.Details, rec.IPAddress)
	if err != nil {
		return Record{}, fmt.Errorf("insert audit log: %w", err)
	}
	return rec, nil
}

// List reads the page and the total inside one repeatable-read transaction so
// both come from the same snapshot.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]Record, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, db.DefaultTimeout)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, fmt.Errorf("begin list: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var total int64
	if err := pgxscan.Get(ctx, tx, &total, `SELECT count(*) FROM audit_logs`); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	out := []Record{}
	if limit > 0 && int64(offset) < total {
		if err := pgxscan.Select(ctx, tx, &out, `
SELECT `+recordColumns+`
FROM audit_logs
ORDER BY id DESC
LIMIT $1 OFFSET $2
`, limit, offset); err != nil {
			return nil, 0, fmt.Errorf("list audit logs: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit list: %w", err)
	}
	for i := range out {
		out[i].Timestamp = out[i].Timestamp.UTC()
	}
	return out, total, nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Exec(ctx, s.pool, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete audit logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CountByAction(ctx context.Context) (map[Action]int64, error) {
	var rows []struct {
		Action string `db:"action"`
		Count  int64  `db:"count"`
	}
	if err := db.Select(ctx, s.pool, &rows, `
SELECT action, count(*) AS count
FROM audit_logs
GROUP BY action
`); err != nil {
		return nil, fmt.Errorf("count audit logs by action: %w", err)
	}

	counts := make(map[Action]int64, len(rows))
	for _, row := range rows {
		counts[Action(row.Action)] = row.Count
	}
	return counts, nil
}

// Stream uses a single server-side result set; it is bounded only by ctx, not
// by db.DefaultTimeout, because the table may be large.
func (s *PostgresStore) Stream(ctx context.Context, fn func(Record) error) error {
	rows, err := s.pool.Query(ctx, `SELECT `+recordColumns+` FROM audit_logs ORDER BY id ASC`)
	if err != nil {
		return fmt.Errorf("stream audit logs: %w", err)
	}
	defer rows.Close()

	scanner := pgxscan.NewRowScanner(rows)
	for rows.Next() {
		var rec Record
		if err := scanner.Scan(&rec); err != nil {
			return fmt.Errorf("scan audit log: %w", err)
		}
		rec.Timestamp = rec.Timestamp.UTC()
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate audit logs: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return db.Ping(ctx, s.pool)
}
