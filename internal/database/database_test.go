package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmylchreest/dashingest/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestNew_SQLite(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	require.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, "sqlite", db.Driver())
}

func TestNew_InvalidDriver(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver: "invalid",
		DSN:    ":memory:",
	}

	db, err := New(cfg, nil, nil)
	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestNew_MemoryDSNUsesSingleConnection(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats["max_open_connections"])
}

func TestNew_FileDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      t.TempDir() + "/dashingest.db",
		LogLevel: "silent",
	}

	db, err := New(cfg, nil, nil)
	require.NoError(t, err)
	defer db.Close()

	var journalMode string
	require.NoError(t, db.DB.Raw("PRAGMA journal_mode").Scan(&journalMode).Error)
	assert.Equal(t, "wal", journalMode)

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 6, stats["max_open_connections"])
}

func TestDB_Close(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, db.Close())
	assert.Error(t, db.Ping(context.Background()))
}

func TestDB_Stats(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	stats, err := db.Stats()
	require.NoError(t, err)

	assert.Contains(t, stats, "max_open_connections")
	assert.Contains(t, stats, "open_connections")
	assert.Contains(t, stats, "in_use")
	assert.Contains(t, stats, "idle")
}

func TestDB_Transaction(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	type TxTestItem struct {
		ID    uint   `gorm:"primarykey"`
		Value string `gorm:"not null"`
	}
	require.NoError(t, db.DB.AutoMigrate(&TxTestItem{}))

	err := db.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&TxTestItem{Value: "committed"}).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.DB.Model(&TxTestItem{}).Where("value = ?", "committed").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	testErr := fmt.Errorf("forced rollback error")
	err = db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&TxTestItem{Value: "rolled-back"}).Error; err != nil {
			return err
		}
		return testErr
	})
	assert.ErrorIs(t, err, testErr)

	require.NoError(t, db.DB.Model(&TxTestItem{}).Where("value = ?", "rolled-back").Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestDB_SQLitePragmas(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	// In-memory databases keep the "memory" journal mode regardless of the WAL pragma.
	var journalMode string
	require.NoError(t, db.DB.Raw("PRAGMA journal_mode").Scan(&journalMode).Error)
	assert.Equal(t, "memory", journalMode)

	var foreignKeys int
	require.NoError(t, db.DB.Raw("PRAGMA foreign_keys").Scan(&foreignKeys).Error)
	assert.Equal(t, 1, foreignKeys)
}

func TestGormLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected logger.LogLevel
	}{
		{"silent", logger.Silent},
		{"error", logger.Error},
		{"warn", logger.Warn},
		{"info", logger.Info},
		{"unknown", logger.Warn},
		{"", logger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, gormLogLevel(tt.level))
		})
	}
}

func TestTruncateSQL(t *testing.T) {
	short := "SELECT 1"
	assert.Equal(t, short, truncateSQL(short))

	long := fmt.Sprintf("SELECT * FROM tasks WHERE id IN (%0300d)", 0)
	truncated := truncateSQL(long)
	assert.Len(t, truncated, maxSQLLogLength+len("... (truncated)"))
}

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             ":memory:",
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		LogLevel:        "silent",
	}

	db, err := New(cfg, nil, nil)
	require.NoError(t, err)

	return db
}
