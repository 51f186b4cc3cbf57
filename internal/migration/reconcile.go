package migration

import (
	"fmt"
	"sort"
)

// Reconcile replays the journal over the known migrations and returns the
// state of every migration id, sorted by id. Journal entries must be in
// chronological order; the last entry for an id decides its state. Entries
// for ids that are not in migrations produce a missing state whatever their
// operation. An entry for a known id with an operation other than apply or
// revert fails the whole reconciliation.
func Reconcile(migrations []Migration, journal []JournalEntry) ([]State, error) {
	known := make(map[string]bool, len(migrations))
	states := make(map[string]State, len(migrations))
	for _, m := range migrations {
		known[m.ID] = true
		states[m.ID] = State{MigrationID: m.ID, MigrationName: m.Name, Status: StatusPending}
	}

	for i, entry := range journal {
		if !known[entry.MigrationID] {
			states[entry.MigrationID] = State{
				MigrationID:   entry.MigrationID,
				MigrationName: entry.MigrationName,
				Status:        StatusMissing,
			}
			continue
		}
		state := states[entry.MigrationID]
		switch entry.Operation {
		case OperationApply:
			state.Status = StatusApplied
		case OperationRevert:
			state.Status = StatusReverted
		default:
			return nil, &Error{
				Kind:          KindInvalidJournalOperation,
				MigrationID:   entry.MigrationID,
				MigrationName: entry.MigrationName,
				Operation:     string(entry.Operation),
				Err:           fmt.Errorf("journal entry %d", i),
			}
		}
		states[entry.MigrationID] = state
	}

	out := make([]State, 0, len(states))
	for _, s := range states {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MigrationID < out[j].MigrationID
	})
	return out, nil
}

// FilterStates keeps the states whose id is id. An empty id keeps everything.
func FilterStates(states []State, id string) []State {
	if id == "" {
		return states
	}
	var out []State
	for _, s := range states {
		if s.MigrationID == id {
			out = append(out, s)
		}
	}
	return out
}

// FilterMigrations keeps the migrations whose id is id. An empty id keeps
// everything.
func FilterMigrations(migrations []Migration, id string) []Migration {
	if id == "" {
		return migrations
	}
	out := make([]Migration, 0, 1)
	for _, m := range migrations {
		if m.ID == id {
			out = append(out, m)
		}
	}
	return out
}
