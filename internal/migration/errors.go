package migration

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a migration error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidJournalOperation
	KindSplitFileMissing
	KindSplitFileConflict
	KindSQLSectionMissing
	KindSQLSectionConflict
	KindDuplicateID
	KindConnection
	KindExecution
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindInvalidJournalOperation: "invalid journal operation",
	KindSplitFileMissing:        "split file missing",
	KindSplitFileConflict:       "split file conflict",
	KindSQLSectionMissing:       "sql section missing",
	KindSQLSectionConflict:      "sql section conflict",
	KindDuplicateID:             "duplicate migration id",
	KindConnection:              "connection error",
	KindExecution:               "execution error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. Any *Error matches the sentinel of its Kind.
var (
	ErrInvalidJournalOperation = &Error{Kind: KindInvalidJournalOperation}
	ErrSplitFileMissing        = &Error{Kind: KindSplitFileMissing}
	ErrSplitFileConflict       = &Error{Kind: KindSplitFileConflict}
	ErrSQLSectionMissing       = &Error{Kind: KindSQLSectionMissing}
	ErrSQLSectionConflict      = &Error{Kind: KindSQLSectionConflict}
	ErrDuplicateID             = &Error{Kind: KindDuplicateID}
	ErrConnection              = &Error{Kind: KindConnection}
	ErrExecution               = &Error{Kind: KindExecution}
)

// Error carries the structured context of a migration failure.
type Error struct {
	Kind          Kind
	MigrationID   string
	MigrationName string
	Operation     string
	Path          string
	Err           error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.MigrationID != "" {
		b.WriteString(": migration ")
		b.WriteString(e.MigrationID)
		if e.MigrationName != "" {
			b.WriteString(".")
			b.WriteString(e.MigrationName)
		}
	}
	if e.Operation != "" {
		fmt.Fprintf(&b, " (%s)", e.Operation)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " [%s]", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.MigrationID == "" && t.Err == nil
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ConnectionError wraps a failure to reach the database.
func ConnectionError(err error) error {
	return &Error{Kind: KindConnection, Err: err}
}

// ExecutionError wraps a failure while running a migration's SQL or
// recording it in the journal.
func ExecutionError(m Migration, op Operation, err error) error {
	return &Error{
		Kind:          KindExecution,
		MigrationID:   m.ID,
		MigrationName: m.Name,
		Operation:     string(op),
		Err:           err,
	}
}
