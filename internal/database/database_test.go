package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/restreamer/internal/config"
	"github.com/jmylchreest/restreamer/internal/models"
)

func memoryConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             ":memory:",
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		LogLevel:        "warn",
	}
}

func TestNew_SQLite(t *testing.T) {
	db, err := New(memoryConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()

	assert.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, "sqlite", db.Driver())

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections, "in-memory sqlite uses a single connection")
}

func TestNew_SQLiteFile(t *testing.T) {
	cfg := memoryConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "restreamer.db")

	db, err := New(cfg, nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(context.Background()))

	var mode string
	require.NoError(t, db.Raw("PRAGMA journal_mode").Scan(&mode).Error)
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, db.Raw("PRAGMA foreign_keys").Scan(&fk).Error)
	assert.Equal(t, 1, fk)
}

func TestNew_InvalidDriver(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "invalid", DSN: ":memory:"}

	db, err := New(cfg, nil)
	assert.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestDB_Migrate(t *testing.T) {
	db, err := New(memoryConfig(), nil)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))
	// Applying again is a no-op.
	require.NoError(t, db.Migrate(ctx))

	for _, table := range []string{"videos", "playlists", "playlist_items", "streams", "stream_sessions", "stream_schedules", "schema_migrations"} {
		assert.True(t, db.Migrator().HasTable(table), "table %s", table)
	}

	stream := &models.Stream{OwnerID: "user-1", Name: "s", Platform: "youtube", StreamKey: "k"}
	require.NoError(t, db.Create(stream).Error)
	assert.False(t, stream.ID.IsZero())
}

func TestGormLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected logger.LogLevel
	}{
		{"silent", logger.Silent},
		{"error", logger.Error},
		{"warn", logger.Warn},
		{"info", logger.Info},
		{"", logger.Warn},
		{"bogus", logger.Warn},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, gormLogLevel(tt.input))
		})
	}
}

func TestSlogGormLogger_Trace(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := newGormLogger("warn", log)
	ctx := context.Background()
	fc := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(ctx, time.Now(), fc, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String(), "record not found is not logged")

	l.Trace(ctx, time.Now(), fc, errors.New("disk I/O error"))
	assert.Contains(t, buf.String(), "database error")
	assert.Contains(t, buf.String(), "disk I/O error")

	buf.Reset()
	l.Trace(ctx, time.Now().Add(-time.Second), fc, nil)
	assert.Contains(t, buf.String(), "slow query")

	buf.Reset()
	l.Trace(ctx, time.Now(), fc, nil)
	assert.Empty(t, buf.String(), "fast queries are only logged at info")

	l.LogMode(logger.Info).Trace(ctx, time.Now(), fc, nil)
	assert.Contains(t, buf.String(), "database query")

	buf.Reset()
	l.LogMode(logger.Silent).Trace(ctx, time.Now(), fc, errors.New("ignored"))
	assert.Empty(t, buf.String())
}

func TestTruncateSQL(t *testing.T) {
	short := "SELECT * FROM streams"
	assert.Equal(t, short, truncateSQL(short))

	long := string(bytes.Repeat([]byte("x"), maxSQLLogLength+10))
	out := truncateSQL(long)
	assert.Len(t, out, maxSQLLogLength+len("... (truncated)"))
}

func TestDB_RunStatsMonitor(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	db, err := New(memoryConfig(), log)
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	require.NoError(t, db.RunStatsMonitor(ctx, 10*time.Millisecond))
	assert.Contains(t, buf.String(), "database connection pool stats")
}
