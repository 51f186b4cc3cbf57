package db

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"db_journal_migrator/internal/migration"
)

// JournalRecord is what the runner appends; the timestamp comes from the database.
type JournalRecord struct {
	Operation     migration.Operation
	MigrationID   string
	MigrationName string
}

var (
	errTxOpen   = errors.New("transaction already open")
	errNoTx     = errors.New("no open transaction")
	errConnUsed = errors.New("connection is closed")
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidateTableName accepts plain or schema-qualified identifiers.
func ValidateTableName(name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("invalid journal table name %q", name)
	}
	return nil
}

// quoteIdent quotes each dot-separated part of name with q.
func quoteIdent(name, q string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}
