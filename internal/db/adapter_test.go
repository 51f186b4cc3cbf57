package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db_journal_migrator/internal/migration"
)

func TestOpenUnknownProvider(t *testing.T) {
	_, err := Open("oracle", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestProvidersIncludesBuiltins(t *testing.T) {
	assert.Subset(t, Providers(), []string{"dummy", "mysql", "postgres", "sqlite"})
}

func TestRegisterCustomProvider(t *testing.T) {
	d := NewDummy()
	Register("Custom-Test", func(string) (Client, error) { return d, nil })

	c, err := Open("custom-test", "ignored")
	require.NoError(t, err)
	assert.Same(t, d, c)
}

func TestOpenRejectsBadDSN(t *testing.T) {
	_, err := Open("mysql", "not a dsn")
	assert.Error(t, err)
	_, err = Open("postgres", "postgres://%zz")
	assert.Error(t, err)
	_, err = Open("sqlite", "")
	assert.Error(t, err)
}

func TestDummyTransactionVisibility(t *testing.T) {
	ctx := context.Background()
	d := NewDummy()
	a, err := d.Connect(ctx)
	require.NoError(t, err)
	defer a.Close(ctx)
	b, err := d.Connect(ctx)
	require.NoError(t, err)
	defer b.Close(ctx)

	require.NoError(t, a.EnsureJournal(ctx, "j"))
	require.NoError(t, a.Begin(ctx))
	require.NoError(t, a.Exec(ctx, "CREATE TABLE t"))
	require.NoError(t, a.AppendJournal(ctx, "j", JournalRecord{Operation: migration.OperationApply, MigrationID: "1", MigrationName: "init"}))

	own, err := a.ReadJournal(ctx, "j")
	require.NoError(t, err)
	assert.Len(t, own, 1)
	other, err := b.ReadJournal(ctx, "j")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, a.Commit(ctx))
	other, err = b.ReadJournal(ctx, "j")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "1", other[0].MigrationID)
	assert.Equal(t, []string{"CREATE TABLE t"}, d.Executed())
}

func TestDummyRollbackDiscards(t *testing.T) {
	ctx := context.Background()
	d := NewDummy()
	c, err := d.Connect(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Begin(ctx))
	require.NoError(t, c.EnsureJournal(ctx, "j"))
	require.NoError(t, c.AppendJournal(ctx, "j", JournalRecord{Operation: migration.OperationApply, MigrationID: "1"}))
	require.NoError(t, c.Exec(ctx, "SELECT 1"))
	require.NoError(t, c.Rollback(ctx))
	require.NoError(t, c.Close(ctx))

	assert.Empty(t, d.Executed())
	assert.Equal(t, []string{"SELECT 1"}, d.Attempted())
	assert.Empty(t, d.Journal("j"))
}

func TestDummyTransactionErrors(t *testing.T) {
	ctx := context.Background()
	c, err := NewDummy().Connect(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, c.Commit(ctx), errNoTx)
	assert.ErrorIs(t, c.Rollback(ctx), errNoTx)
	require.NoError(t, c.Begin(ctx))
	assert.ErrorIs(t, c.Begin(ctx), errTxOpen)

	require.NoError(t, c.Close(ctx))
	assert.ErrorIs(t, c.Exec(ctx, "SELECT 1"), errConnUsed)
}

func TestDummyFailOnAndConnectErr(t *testing.T) {
	ctx := context.Background()
	d := NewDummy()
	boom := errors.New("boom")
	d.FailOn = func(s string) error {
		if s == "bad" {
			return boom
		}
		return nil
	}
	c, err := d.Connect(ctx)
	require.NoError(t, err)
	assert.NoError(t, c.Exec(ctx, "good"))
	assert.ErrorIs(t, c.Exec(ctx, "bad"), boom)

	d.SetConnectErr(errors.New("refused"))
	_, err = d.Connect(ctx)
	assert.ErrorIs(t, err, migration.ErrConnection)
}

func TestDummyTimestampsIncrease(t *testing.T) {
	ctx := context.Background()
	d := NewDummy()
	c, err := d.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, c.EnsureJournal(ctx, "j"))
	for i := 0; i < 50; i++ {
		require.NoError(t, c.AppendJournal(ctx, "j", JournalRecord{Operation: migration.OperationApply, MigrationID: "1"}))
	}
	entries := d.Journal("j")
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i].Timestamp.After(entries[i-1].Timestamp))
	}
}

func TestDummyReadMissingTable(t *testing.T) {
	ctx := context.Background()
	c, err := NewDummy().Connect(ctx)
	require.NoError(t, err)
	_, err = c.ReadJournal(ctx, "nope")
	assert.Error(t, err)
}
