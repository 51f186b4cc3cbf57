package migration

import (
	"fmt"
	"time"
)

// Layout describes how a migration's up and down SQL are stored.
type Layout string

const (
	// LayoutCombined is a single file holding both sections.
	LayoutCombined Layout = "combined"
	// LayoutSplit is a pair of .up.sql / .down.sql files.
	LayoutSplit Layout = "split"
)

// Migration is one versioned schema change as listed by a repository.
// The SQL bodies are not held here; they are read on demand through the
// repository that produced the migration.
type Migration struct {
	ID       string
	Name     string
	Layout   Layout
	UpPath   string
	DownPath string
}

func (m Migration) String() string {
	return m.ID + "." + m.Name
}

// Operation is the kind of action recorded in the journal.
type Operation string

const (
	OperationApply  Operation = "apply"
	OperationRevert Operation = "revert"
)

func (o Operation) Valid() bool {
	return o == OperationApply || o == OperationRevert
}

// JournalEntry is one immutable journal row. Timestamp is assigned by the
// database when the row is appended.
type JournalEntry struct {
	Timestamp     time.Time
	Operation     Operation
	MigrationID   string
	MigrationName string
}

// Status is the reconciled state of a migration.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApplied  Status = "applied"
	StatusReverted Status = "reverted"
	StatusMissing  Status = "missing"
)

// State is the derived status of one migration id.
type State struct {
	MigrationID   string
	MigrationName string
	Status        Status
}

// Strategy selects how migrations in one run are grouped into transactions.
type Strategy string

const (
	// StrategyEach commits every migration in its own transaction.
	StrategyEach Strategy = "each"
	// StrategyAll runs the whole batch in one transaction.
	StrategyAll Strategy = "all"
	// StrategyDry runs the whole batch in one transaction and always rolls it back.
	StrategyDry Strategy = "dry"
)

// ParseStrategy maps a user supplied name to a Strategy. Empty means each.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyEach:
		return StrategyEach, nil
	case StrategyAll:
		return StrategyAll, nil
	case StrategyDry:
		return StrategyDry, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (want each, all or dry)", s)
	}
}

// RunConfig selects which migrations an apply or revert touches. ID, To and
// Number are mutually exclusive; with none set apply takes every pending
// migration and revert takes the most recent applied one.
type RunConfig struct {
	ID       string
	To       string
	Number   int
	Strategy Strategy
}

// Validate reports conflicting or malformed selection settings.
func (c RunConfig) Validate() error {
	set := 0
	if c.ID != "" {
		set++
	}
	if c.To != "" {
		set++
	}
	if c.Number != 0 {
		set++
	}
	if set > 1 {
		return fmt.Errorf("id, to and number are mutually exclusive")
	}
	if c.Number < 0 {
		return fmt.Errorf("number must be positive, got %d", c.Number)
	}
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	return nil
}
