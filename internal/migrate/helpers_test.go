package migrate

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"db_journal_migrator/internal/db"
	"db_journal_migrator/internal/migration"
	"db_journal_migrator/internal/repository"
)

const testTable = "migration_journal"

func newSource(files map[string]string) *repository.Repository {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(body)}
	}
	return repository.NewFS(fsys, nil)
}

// sqliteFiles returns three combined migrations; the one whose id equals
// failing has SQL that errors on apply.
func sqliteFiles(failing string) map[string]string {
	files := map[string]string{
		"1.one.sql":   "CREATE TABLE one (id INTEGER);\n---\nDROP TABLE one;\n",
		"2.two.sql":   "CREATE TABLE two (id INTEGER);\nINSERT INTO two VALUES (1);\n---\nDROP TABLE two;\n",
		"3.three.sql": "CREATE TABLE three (id INTEGER);\n---\nDROP TABLE three;\n",
	}
	switch failing {
	case "2":
		files["2.two.sql"] = "INSERT INTO no_such_table VALUES (1);\n---\nSELECT 1;\n"
	}
	return files
}

func dummyFiles() map[string]string {
	return map[string]string{
		"1.one.sql":   "up 1\n---\ndown 1\n",
		"2.two.sql":   "up 2\n---\ndown 2\n",
		"3.three.sql": "up 3\n---\ndown 3\n",
	}
}

func openSQLite(t *testing.T) db.Client {
	t.Helper()
	c, err := db.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readJournal(t *testing.T, c db.Client) []migration.JournalEntry {
	t.Helper()
	ctx := context.Background()
	conn, err := c.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close(ctx)
	require.NoError(t, conn.EnsureJournal(ctx, testTable))
	entries, err := conn.ReadJournal(ctx, testTable)
	require.NoError(t, err)
	return entries
}

func tableExists(t *testing.T, c db.Client, table string) bool {
	t.Helper()
	ctx := context.Background()
	conn, err := c.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close(ctx)
	return conn.Exec(ctx, "SELECT * FROM "+table) == nil
}

func journalOps(entries []migration.JournalEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, string(e.Operation)+"("+e.MigrationID+")")
	}
	return out
}

func listAll(t *testing.T, src *repository.Repository) []migration.Migration {
	t.Helper()
	migs, err := src.List()
	require.NoError(t, err)
	return migs
}
