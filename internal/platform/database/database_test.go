package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docintell/internal/config"
)

func TestNewSQLiteAndMigrate(t *testing.T) {
	cfg := config.Default()
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "nested", "docintell.db")

	db, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, table := range []string{"documents", "chunks", "chunk_vectors", "conversations", "messages", "message_sources"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "oracle"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
