package db

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type widget struct {
	ID   int64
	Name string
}

func openLoggedORM(t *testing.T) (*gorm.DB, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	orm, err := OpenORM(context.Background(), DriverSQLite, ":memory:", zerolog.New(&buf))
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseORM(orm) })
	require.NoError(t, orm.AutoMigrate(&widget{}))
	buf.Reset()
	return orm, &buf
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	orm, buf := openLoggedORM(t)

	var w widget
	err := orm.Where("name = ?", "missing").First(&w).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())
}

func TestGormLoggerReportsQueryErrors(t *testing.T) {
	orm, buf := openLoggedORM(t)

	var w widget
	err := orm.Table("no_such_table").First(&w).Error
	require.Error(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line), buf.String())
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "gorm", line["component"])
	assert.Equal(t, "query failed", line["message"])
	assert.Contains(t, line["sql"], "no_such_table")
}

func TestGormLoggerSilentMode(t *testing.T) {
	orm, buf := openLoggedORM(t)

	var w widget
	err := orm.Session(&gorm.Session{Logger: orm.Logger.LogMode(logger.Silent)}).Table("no_such_table").First(&w).Error
	require.Error(t, err)
	assert.Empty(t, buf.String())
}
