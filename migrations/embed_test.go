package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db_journal_migrator/internal/db"
	"db_journal_migrator/internal/migrate"
	"db_journal_migrator/internal/migration"
	"db_journal_migrator/internal/repository"
)

func TestExamplesListAndRunOnSQLite(t *testing.T) {
	repo := repository.NewFS(FS(), nil)
	migs, err := repo.List()
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, migration.LayoutCombined, migs[0].Layout)
	assert.Equal(t, migration.LayoutSplit, migs[1].Layout)

	client, err := db.Open("sqlite", filepath.Join(t.TempDir(), "examples.db"))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	svc := migrate.NewService(client, repo, "migration_journal", nil)
	states, err := svc.Apply(ctx, migration.RunConfig{Strategy: migration.StrategyAll})
	require.NoError(t, err)
	require.Len(t, states, 2)
	for _, st := range states {
		assert.Equal(t, migration.StatusApplied, st.Status)
	}

	states, err = svc.Revert(ctx, migration.RunConfig{To: "0"})
	require.NoError(t, err)
	assert.Equal(t, []migration.State{
		{MigrationID: "20240102000000", MigrationName: "create_sessions", Status: migration.StatusReverted},
		{MigrationID: "20240101000000", MigrationName: "create_accounts", Status: migration.StatusReverted},
	}, states)
}
