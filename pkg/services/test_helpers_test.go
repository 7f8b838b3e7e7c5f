package services

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skein-ai/skein/pkg/database"
)

// newTestDB opens a fresh on-disk SQLite database in a temp directory with the
// full schema applied.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	client, err := database.NewClient(context.Background(), database.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client.DB()
}
