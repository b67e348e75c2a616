package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

const streamBatchSize = 500

type auditLogModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime:false;index:idx_audit_logs_created_at"`
	Action       string    `gorm:"not null;index:idx_audit_logs_action"`
	UserEmail    string    `gorm:"not null"`
	ActivityName *string
	Details      *string
	IPAddress    *string
}

func (auditLogModel) TableName() string { return "audit_logs" }

func (m auditLogModel) toRecord() Record {
	return Record{
		ID:           m.ID,
		Timestamp:    m.CreatedAt.UTC(),
		Action:       Action(m.Action),
		UserEmail:    m.UserEmail,
		ActivityName: m.ActivityName,
		Details:      m.Details,
		IPAddress:    m.IPAddress,
	}
}

// SQLiteStore persists records through GORM. It is meant for a single-node
// SQLite database; the GORM handle is owned by the caller.
type SQLiteStore struct {
	db    *gorm.DB
	clock clockwork.Clock
}

// NewSQLiteStore migrates the audit_logs table and returns a store bound to db.
func NewSQLiteStore(ctx context.Context, db *gorm.DB, clock clockwork.Clock) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := db.WithContext(ctx).AutoMigrate(&auditLogModel{}); err != nil {
		return nil, fmt.Errorf("migrate audit_logs: %w", err)
	}
	return &SQLiteStore{db: db, clock: clock}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec Record) (Record, error) {
	model := auditLogModel{
		CreatedAt:    stamp(s.clock.Now()),
		Action:       string(rec.Action),
		UserEmail:    rec.UserEmail,
		ActivityName: rec.ActivityName,
		Details:      rec.Details,
		IPAddress:    rec.IPAddress,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return Record{}, fmt.Errorf("insert audit log: %w", err)
	}
	return model.toRecord(), nil
}

func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]Record, int64, error) {
	var (
		models []auditLogModel
		total  int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&auditLogModel{}).Count(&total).Error; err != nil {
			return fmt.Errorf("count audit logs: %w", err)
		}
		if limit <= 0 || int64(offset) >= total {
			return nil
		}
		if err := tx.Order("id DESC").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
			return fmt.Errorf("list audit logs: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	out := make([]Record, 0, len(models))
	for _, m := range models {
		out = append(out, m.toRecord())
	}
	return out, total, nil
}

func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&auditLogModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete audit logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *SQLiteStore) CountByAction(ctx context.Context) (map[Action]int64, error) {
	var rows []struct {
		Action string
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&auditLogModel{}).
		Select("action, count(*) AS count").
		Group("action").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count audit logs by action: %w", err)
	}

	counts := make(map[Action]int64, len(rows))
	for _, row := range rows {
		counts[Action(row.Action)] = row.Count
	}
	return counts, nil
}

// Stream pages through the table by primary key so the single SQLite
// connection is released between batches and writers are not starved.
func (s *SQLiteStore) Stream(ctx context.Context, fn func(Record) error) error {
	var lastID int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var batch []auditLogModel
		err := s.db.WithContext(ctx).
			Where("id > ?", lastID).
			Order("id ASC").
			Limit(streamBatchSize).
			Find(&batch).Error
		if err != nil {
			return fmt.Errorf("stream audit logs: %w", err)
		}

		for _, m := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(m.toRecord()); err != nil {
				return err
			}
			lastID = m.ID
		}

		if len(batch) < streamBatchSize {
			return nil
		}
	}
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
