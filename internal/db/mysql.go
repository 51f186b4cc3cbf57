package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"db_journal_migrator/internal/migration"
)

// MySQL commits implicitly around most DDL statements, so the all and dry
// strategies only roll back the DML and journal rows of a batch there.
func openMySQL(dsn string) (Client, error) {
	// Validate DSN early to provide actionable errors.
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxOpenConns(5)
	return &sqlClient{db: db, dialect: mysqlDialect}, nil
}

var mysqlDialect = dialect{
	name:  "mysql",
	quote: func(s string) string { return quoteIdent(s, "`") },
	createTable: `
CREATE TABLE IF NOT EXISTS %s (
	id bigint AUTO_INCREMENT PRIMARY KEY,
	recorded_at datetime(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	operation varchar(16) NOT NULL,
	migration_id varchar(255) NOT NULL,
	migration_name varchar(255) NOT NULL,
	INDEX journal_recorded_at_idx (recorded_at, id)
) ENGINE=InnoDB`,
	insertRow:  `INSERT INTO %s (operation, migration_id, migration_name) VALUES (?, ?, ?)`,
	selectRows: `SELECT recorded_at, operation, migration_id, migration_name FROM %s ORDER BY recorded_at ASC, id ASC`,
	scanEntry: func(rows *sql.Rows) (migration.JournalEntry, error) {
		var (
			e  migration.JournalEntry
			op string
		)
		if err := rows.Scan(&e.Timestamp, &op, &e.MigrationID, &e.MigrationName); err != nil {
			return e, err
		}
		e.Operation = migration.Operation(op)
		return e, nil
	},
	split:    true,
	describe: describeMySQLError,
}

// describeMySQLError prefixes the server error number and SQLSTATE.
func describeMySQLError(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}
	state := string(myErr.SQLState[:])
	if myErr.SQLState == [5]byte{} {
		state = "-----"
	}
	return fmt.Errorf("mysql error %d (%s): %w", myErr.Number, state, err)
}
