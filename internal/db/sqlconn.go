package db

import (
	"context"
	"database/sql"
	"fmt"

	"db_journal_migrator/internal/migration"
)

// dialect holds the provider specific SQL for the database/sql backed clients.
type dialect struct {
	name        string
	quote       func(string) string
	createTable string // %s = quoted table
	insertRow   string // %s = quoted table, params: operation, id, name
	selectRows  string // %s = quoted table
	scanEntry   func(*sql.Rows) (migration.JournalEntry, error)
	split       bool
	describe    func(error) error // optional driver error detail
}

type sqlClient struct {
	db      *sql.DB
	dialect dialect
}

func (c *sqlClient) Name() string { return c.dialect.name }

func (c *sqlClient) Close() error { return c.db.Close() }

func (c *sqlClient) Connect(ctx context.Context) (Conn, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, migration.ConnectionError(fmt.Errorf("%s connect: %w", c.dialect.name, err))
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, migration.ConnectionError(fmt.Errorf("%s ping: %w", c.dialect.name, err))
	}
	return &sqlConn{conn: conn, dialect: c.dialect}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqlConn struct {
	conn    *sql.Conn
	tx      *sql.Tx
	dialect dialect
}

func (c *sqlConn) target() (execer, error) {
	if c.conn == nil {
		return nil, errConnUsed
	}
	if c.tx != nil {
		return c.tx, nil
	}
	return c.conn, nil
}

func (c *sqlConn) Begin(ctx context.Context) error {
	if c.conn == nil {
		return errConnUsed
	}
	if c.tx != nil {
		return errTxOpen
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	c.tx = tx
	return nil
}

func (c *sqlConn) Commit(context.Context) error {
	if c.tx == nil {
		return errNoTx
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (c *sqlConn) Rollback(context.Context) error {
	if c.tx == nil {
		return errNoTx
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

func (c *sqlConn) EnsureJournal(ctx context.Context, table string) error {
	ex, err := c.target()
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(c.dialect.createTable, c.dialect.quote(table))
	if _, err := ex.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create journal table %s: %w", table, err)
	}
	return nil
}

func (c *sqlConn) AppendJournal(ctx context.Context, table string, rec JournalRecord) error {
	ex, err := c.target()
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(c.dialect.insertRow, c.dialect.quote(table))
	if _, err := ex.ExecContext(ctx, stmt, string(rec.Operation), rec.MigrationID, rec.MigrationName); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

func (c *sqlConn) ReadJournal(ctx context.Context, table string) ([]migration.JournalEntry, error) {
	ex, err := c.target()
	if err != nil {
		return nil, err
	}
	rows, err := ex.QueryContext(ctx, fmt.Sprintf(c.dialect.selectRows, c.dialect.quote(table)))
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	defer rows.Close()

	var out []migration.JournalEntry
	for rows.Next() {
		e, err := c.dialect.scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c *sqlConn) Exec(ctx context.Context, script string) error {
	ex, err := c.target()
	if err != nil {
		return err
	}
	if !c.dialect.split {
		_, err := ex.ExecContext(ctx, script)
		return c.describe(err)
	}
	for _, stmt := range splitStatements(script) {
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			return c.describe(err)
		}
	}
	return nil
}

func (c *sqlConn) describe(err error) error {
	if err == nil || c.dialect.describe == nil {
		return err
	}
	return c.dialect.describe(err)
}

func (c *sqlConn) Close(context.Context) error {
	if c.conn == nil {
		return nil
	}
	var rbErr error
	if c.tx != nil {
		rbErr = c.tx.Rollback()
		c.tx = nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return err
	}
	return rbErr
}
