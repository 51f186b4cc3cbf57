package migration

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func migrations(ids ...string) []Migration {
	out := make([]Migration, 0, len(ids))
	for _, id := range ids {
		out = append(out, Migration{ID: id, Name: "m" + id, Layout: LayoutCombined})
	}
	return out
}

func entry(op Operation, id string, offset int) JournalEntry {
	return JournalEntry{
		Timestamp:     time.Date(2024, 1, 1, 0, 0, offset, 0, time.UTC),
		Operation:     op,
		MigrationID:   id,
		MigrationName: "m" + id,
	}
}

func statusByID(states []State) map[string]Status {
	out := make(map[string]Status, len(states))
	for _, s := range states {
		out[s.MigrationID] = s.Status
	}
	return out
}

func TestReconcile_AllPendingWithEmptyJournal(t *testing.T) {
	states, err := Reconcile(migrations("2", "1", "3"), nil)
	require.NoError(t, err)
	require.Len(t, states, 3)
	for i, id := range []string{"1", "2", "3"} {
		assert.Equal(t, id, states[i].MigrationID)
		assert.Equal(t, StatusPending, states[i].Status)
		assert.Equal(t, "m"+id, states[i].MigrationName)
	}
}

func TestReconcile_LastWriteWins(t *testing.T) {
	tests := []struct {
		name    string
		journal []JournalEntry
		want    Status
	}{
		{"apply", []JournalEntry{entry(OperationApply, "1", 0)}, StatusApplied},
		{"apply revert", []JournalEntry{entry(OperationApply, "1", 0), entry(OperationRevert, "1", 1)}, StatusReverted},
		{"apply revert apply", []JournalEntry{
			entry(OperationApply, "1", 0),
			entry(OperationRevert, "1", 1),
			entry(OperationApply, "1", 2),
		}, StatusApplied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			states, err := Reconcile(migrations("1"), tt.journal)
			require.NoError(t, err)
			require.Len(t, states, 1)
			assert.Equal(t, tt.want, states[0].Status)
		})
	}
}

func TestReconcile_Missing(t *testing.T) {
	journal := []JournalEntry{
		entry(OperationApply, "1", 0),
		{Timestamp: time.Now(), Operation: OperationApply, MigrationID: "0", MigrationName: "deleted"},
	}
	states, err := Reconcile(migrations("1", "2"), journal)
	require.NoError(t, err)
	require.Len(t, states, 3)

	assert.Equal(t, State{MigrationID: "0", MigrationName: "deleted", Status: StatusMissing}, states[0])
	assert.Equal(t, map[string]Status{"0": StatusMissing, "1": StatusApplied, "2": StatusPending}, statusByID(states))
}

func TestReconcile_MissingStaysMissingAfterRevert(t *testing.T) {
	journal := []JournalEntry{
		entry(OperationApply, "9", 0),
		entry(OperationRevert, "9", 1),
	}
	states, err := Reconcile(migrations("1"), journal)
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, statusByID(states)["9"])
}

func TestReconcile_InvalidOperation(t *testing.T) {
	journal := []JournalEntry{
		entry(OperationApply, "1", 0),
		{Operation: Operation("rewind"), MigrationID: "1"},
	}
	states, err := Reconcile(migrations("1", "2"), journal)
	require.Error(t, err)
	assert.Nil(t, states)
	assert.True(t, errors.Is(err, ErrInvalidJournalOperation))
	assert.Equal(t, KindInvalidJournalOperation, KindOf(err))
	assert.Contains(t, err.Error(), "rewind")
}

func TestReconcile_UnknownIDWithInvalidOperationIsMissing(t *testing.T) {
	journal := []JournalEntry{
		{Operation: Operation("squash"), MigrationID: "9", MigrationName: "gone"},
	}
	for _, ms := range [][]Migration{nil, migrations("1")} {
		states, err := Reconcile(ms, journal)
		require.NoError(t, err)
		require.Len(t, states, len(ms)+1)
		assert.Equal(t, StatusMissing, statusByID(states)["9"])
	}
}

func TestReconcile_Deterministic(t *testing.T) {
	ms := migrations("3", "1", "2", "5")
	journal := []JournalEntry{
		entry(OperationApply, "1", 0),
		entry(OperationApply, "2", 1),
		entry(OperationRevert, "2", 2),
		entry(OperationApply, "4", 3),
	}
	first, err := Reconcile(ms, journal)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Reconcile(ms, journal)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestFilterStates(t *testing.T) {
	states, err := Reconcile(migrations("1", "2"), nil)
	require.NoError(t, err)

	assert.Len(t, FilterStates(states, ""), 2)
	filtered := FilterStates(states, "2")
	require.Len(t, filtered, 1)
	assert.Equal(t, "2", filtered[0].MigrationID)
	assert.Empty(t, FilterStates(states, "7"))
}

func TestFilterMigrations(t *testing.T) {
	ms := migrations("1", "2")
	assert.Len(t, FilterMigrations(ms, ""), 2)
	filtered := FilterMigrations(ms, "2")
	require.Len(t, filtered, 1)
	assert.Equal(t, "2", filtered[0].ID)
	assert.Empty(t, FilterMigrations(ms, "7"))
}
