package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type AuditLog struct {
	ID           int64     `gorm:"type:bigserial;primaryKey"`
	CreatedAt    time.Time `gorm:"type:timestamptz;not null;index:idx_audit_logs_created_at"`
	Action       string    `gorm:"type:text;not null;index:idx_audit_logs_action"`
	UserEmail    string    `gorm:"type:text;not null"`
	ActivityName *string   `gorm:"type:text"`
	Details      *string   `gorm:"type:text"`
	IPAddress    *string   `gorm:"type:text"`
}

type Activity struct {
	ID              int64  `gorm:"type:bigserial;primaryKey"`
	Name            string `gorm:"type:text;uniqueIndex;not null"`
	Description     string `gorm:"type:text;not null"`
	Schedule        string `gorm:"type:text;not null"`
	MaxParticipants int    `gorm:"not null"`
}

type Participant struct {
	ID         int64    `gorm:"type:bigserial;primaryKey"`
	Email      string   `gorm:"type:text;not null;uniqueIndex:uq_participant_email_activity"`
	ActivityID int64    `gorm:"not null;index;uniqueIndex:uq_participant_email_activity"`
	Activity   Activity `gorm:"foreignKey:ActivityID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func openTx(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).AutoMigrate(
		&AuditLog{},
		&Activity{},
		&Participant{},
	)
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&Participant{},
		&Activity{},
		&AuditLog{},
	)
}
