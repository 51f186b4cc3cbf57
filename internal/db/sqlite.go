package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"db_journal_migrator/internal/migration"
)

const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

func openSQLite(dsn string) (Client, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite requires a database path")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one pooled connection also keeps
	// in-memory databases alive between runs.
	db.SetMaxOpenConns(1)
	return &sqlClient{db: db, dialect: sqliteDialect}, nil
}

var sqliteDialect = dialect{
	name:  "sqlite",
	quote: func(s string) string { return quoteIdent(s, `"`) },
	createTable: `
CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at TEXT NOT NULL DEFAULT (strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ', 'now')),
	operation TEXT NOT NULL,
	migration_id TEXT NOT NULL,
	migration_name TEXT NOT NULL
)`,
	insertRow:  `INSERT INTO %s (operation, migration_id, migration_name) VALUES (?, ?, ?)`,
	selectRows: `SELECT recorded_at, operation, migration_id, migration_name FROM %s ORDER BY recorded_at ASC, id ASC`,
	scanEntry: func(rows *sql.Rows) (migration.JournalEntry, error) {
		var (
			e      migration.JournalEntry
			ts, op string
		)
		if err := rows.Scan(&ts, &op, &e.MigrationID, &e.MigrationName); err != nil {
			return e, err
		}
		parsed, err := time.Parse(sqliteTimeLayout, ts)
		if err != nil {
			return e, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		e.Timestamp = parsed
		e.Operation = migration.Operation(op)
		return e, nil
	},
	split: true,
}
