package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/absmach/flcoord/pkg/storage/sqlite"
	"github.com/absmach/flcoord/pkg/storage/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sqlite.Database {
	t.Helper()
	db, err := sqlite.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	db, err := sqlite.NewDatabase(path)
	require.NoError(t, err)
	require.NoError(t, sqlite.NewProjectRepository(db).Create(ctx, testutil.TestProject("p1")))
	require.NoError(t, db.Close())

	db, err = sqlite.NewDatabase(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	got, err := sqlite.NewProjectRepository(db).Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "project-p1", got.Name)
}

func TestRoundWithoutParams(t *testing.T) {
	t.Parallel()
	repo := sqlite.NewRoundRepository(newTestDB(t))
	ctx := context.Background()

	res := testutil.TestRoundResult("s1", 1)
	res.Params = nil
	res.Participants = nil
	require.NoError(t, repo.Create(ctx, res))

	list, err := repo.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Params)
	assert.Empty(t, list[0].Participants)
}
