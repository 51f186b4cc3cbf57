package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"db_journal_migrator/internal/migration"
)

type PostgresClient struct {
	cfg *pgx.ConnConfig
}

func openPostgres(dsn string) (Client, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	return &PostgresClient{cfg: cfg}, nil
}

func (p *PostgresClient) Name() string { return "postgres" }

func (p *PostgresClient) Close() error { return nil }

func (p *PostgresClient) Connect(ctx context.Context) (Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, p.cfg)
	if err != nil {
		return nil, migration.ConnectionError(fmt.Errorf("postgres connect: %w", err))
	}
	return &postgresConn{conn: conn}, nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type postgresConn struct {
	conn *pgx.Conn
	tx   pgx.Tx
}

func (c *postgresConn) target() (pgExecer, error) {
	if c.conn == nil {
		return nil, errConnUsed
	}
	if c.tx != nil {
		return c.tx, nil
	}
	return c.conn, nil
}

func (c *postgresConn) Begin(ctx context.Context) error {
	if c.conn == nil {
		return errConnUsed
	}
	if c.tx != nil {
		return errTxOpen
	}
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	c.tx = tx
	return nil
}

func (c *postgresConn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return errNoTx
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", describePgError(err))
	}
	return nil
}

func (c *postgresConn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return errNoTx
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

func (c *postgresConn) EnsureJournal(ctx context.Context, table string) error {
	ex, err := c.target()
	if err != nil {
		return err
	}
	// clock_timestamp, not now(): entries appended in one transaction must
	// still get distinct, increasing timestamps.
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id bigserial PRIMARY KEY,
	recorded_at timestamptz NOT NULL DEFAULT clock_timestamp(),
	operation text NOT NULL,
	migration_id text NOT NULL,
	migration_name text NOT NULL
)`, quoteIdent(table, `"`))
	if _, err := ex.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create journal table %s: %w", table, describePgError(err))
	}
	return nil
}

func (c *postgresConn) AppendJournal(ctx context.Context, table string, rec JournalRecord) error {
	ex, err := c.target()
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (operation, migration_id, migration_name) VALUES ($1, $2, $3)`, quoteIdent(table, `"`))
	if _, err := ex.Exec(ctx, stmt, string(rec.Operation), rec.MigrationID, rec.MigrationName); err != nil {
		return fmt.Errorf("append journal: %w", describePgError(err))
	}
	return nil
}

func (c *postgresConn) ReadJournal(ctx context.Context, table string) ([]migration.JournalEntry, error) {
	ex, err := c.target()
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf(`SELECT recorded_at, operation, migration_id, migration_name FROM %s ORDER BY recorded_at ASC, id ASC`, quoteIdent(table, `"`))
	rows, err := ex.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", describePgError(err))
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (migration.JournalEntry, error) {
		var (
			e  migration.JournalEntry
			op string
		)
		err := row.Scan(&e.Timestamp, &op, &e.MigrationID, &e.MigrationName)
		e.Operation = migration.Operation(op)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}

// Exec sends the script as one simple-protocol request, so multi-statement
// scripts and DO blocks run unchanged.
func (c *postgresConn) Exec(ctx context.Context, script string) error {
	ex, err := c.target()
	if err != nil {
		return err
	}
	if _, err := ex.Exec(ctx, script); err != nil {
		return describePgError(err)
	}
	return nil
}

func (c *postgresConn) Close(ctx context.Context) error {
	if c.conn == nil {
		return nil
	}
	var rbErr error
	if c.tx != nil {
		rbErr = c.tx.Rollback(ctx)
		c.tx = nil
	}
	err := c.conn.Close(ctx)
	c.conn = nil
	if err != nil {
		return err
	}
	return rbErr
}

// describePgError adds the server's detail, hint and position to a PgError.
func describePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	var extra []string
	if pgErr.Detail != "" {
		extra = append(extra, "detail: "+pgErr.Detail)
	}
	if pgErr.Hint != "" {
		extra = append(extra, "hint: "+pgErr.Hint)
	}
	if pgErr.Position > 0 {
		extra = append(extra, fmt.Sprintf("position: %d", pgErr.Position))
	}
	if len(extra) == 0 {
		return err
	}
	return fmt.Errorf("%w (%s)", err, strings.Join(extra, ", "))
}
