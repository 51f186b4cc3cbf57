// Package migrate executes migrations against a database client and
// implements the status, apply, revert, journal and migrations commands.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"db_journal_migrator/internal/db"
	"db_journal_migrator/internal/migration"
)

// SQLReader resolves the SQL bodies of a migration.
type SQLReader interface {
	ReadUp(m migration.Migration) (string, error)
	ReadDown(m migration.Migration) (string, error)
}

// Runner executes an ordered batch of migrations on one connection.
type Runner struct {
	client db.Client
	reader SQLReader
	table  string
	logger *slog.Logger
}

func NewRunner(client db.Client, reader SQLReader, table string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{client: client, reader: reader, table: table, logger: logger}
}

// Report describes what a run did.
type Report struct {
	RunID     string
	Operation migration.Operation
	Strategy  migration.Strategy
	// Executed lists the migrations whose SQL and journal row ran without error.
	Executed []string
	// Committed lists the migrations whose changes are durable.
	Committed []string
}

// Run executes migrations in the given order. Each migration's SQL runs and
// its journal row is appended in the same transaction. The connection is
// always closed before Run returns.
func (r *Runner) Run(ctx context.Context, op migration.Operation, strategy migration.Strategy, migrations []migration.Migration) (rep Report, err error) {
	rep = Report{RunID: uuid.NewString(), Operation: op, Strategy: strategy}
	if !op.Valid() {
		return rep, fmt.Errorf("invalid operation %q", op)
	}
	strategy, err = migration.ParseStrategy(string(strategy))
	if err != nil {
		return rep, err
	}
	rep.Strategy = strategy
	log := r.logger.With("run_id", rep.RunID, "operation", string(op), "strategy", string(strategy))

	conn, err := r.client.Connect(ctx)
	if err != nil {
		if migration.KindOf(err) != migration.KindConnection {
			err = migration.ConnectionError(err)
		}
		return rep, err
	}
	log.Debug("connection acquired", "client", r.client.Name())
	defer func() {
		if cerr := conn.Close(context.WithoutCancel(ctx)); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close connection: %w", cerr))
		}
		log.Debug("connection released")
	}()

	if err := conn.EnsureJournal(ctx, r.table); err != nil {
		return rep, fmt.Errorf("ensure journal: %w", err)
	}

	switch strategy {
	case migration.StrategyEach:
		err = r.runEach(ctx, conn, op, migrations, &rep, log)
	case migration.StrategyAll:
		err = r.runBatch(ctx, conn, op, migrations, true, &rep, log)
	case migration.StrategyDry:
		err = r.runBatch(ctx, conn, op, migrations, false, &rep, log)
	}
	if err != nil {
		log.Error("run failed", "executed", len(rep.Executed), "committed", len(rep.Committed), "error", err)
		return rep, err
	}
	log.Info("run finished", "executed", len(rep.Executed), "committed", len(rep.Committed))
	return rep, nil
}

// runEach commits every migration in its own transaction and stops at the
// first failure. Earlier commits stay in place.
func (r *Runner) runEach(ctx context.Context, conn db.Conn, op migration.Operation, migrations []migration.Migration, rep *Report, log *slog.Logger) error {
	for _, m := range migrations {
		if err := conn.Begin(ctx); err != nil {
			return migration.ExecutionError(m, op, fmt.Errorf("begin: %w", err))
		}
		log.Debug("transaction started", "migration_id", m.ID)
		if err := r.step(ctx, conn, op, m); err != nil {
			return rollback(ctx, conn, err, log)
		}
		rep.Executed = append(rep.Executed, m.ID)
		if err := conn.Commit(ctx); err != nil {
			return migration.ExecutionError(m, op, fmt.Errorf("commit: %w", err))
		}
		rep.Committed = append(rep.Committed, m.ID)
		log.Debug("transaction committed", "migration_id", m.ID)
	}
	return nil
}

// runBatch runs every migration in one transaction. With commit false the
// transaction is always rolled back, whatever happens.
func (r *Runner) runBatch(ctx context.Context, conn db.Conn, op migration.Operation, migrations []migration.Migration, commit bool, rep *Report, log *slog.Logger) (err error) {
	if err := conn.Begin(ctx); err != nil {
		return migration.ExecutionError(migration.Migration{}, op, fmt.Errorf("begin: %w", err))
	}
	log.Debug("transaction started", "migrations", len(migrations))
	if !commit {
		defer func() {
			if rbErr := conn.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
				return
			}
			log.Debug("dry run rolled back", "executed", len(rep.Executed))
		}()
	}

	for _, m := range migrations {
		if err := r.step(ctx, conn, op, m); err != nil {
			if !commit {
				return err
			}
			return rollback(ctx, conn, err, log)
		}
		rep.Executed = append(rep.Executed, m.ID)
	}
	if !commit {
		return nil
	}
	if err := conn.Commit(ctx); err != nil {
		return migration.ExecutionError(migration.Migration{}, op, fmt.Errorf("commit: %w", err))
	}
	rep.Committed = append(rep.Committed, rep.Executed...)
	log.Debug("transaction committed", "migrations", len(rep.Committed))
	return nil
}

// step runs one migration's SQL and records it in the journal inside the
// currently open transaction.
func (r *Runner) step(ctx context.Context, conn db.Conn, op migration.Operation, m migration.Migration) error {
	script, err := r.script(op, m)
	if err != nil {
		return migration.ExecutionError(m, op, err)
	}
	log := r.logger.With("migration_id", m.ID, "migration_name", m.Name, "operation", string(op))
	log.Debug("executing migration")
	if err := conn.Exec(ctx, script); err != nil {
		return migration.ExecutionError(m, op, err)
	}
	rec := db.JournalRecord{Operation: op, MigrationID: m.ID, MigrationName: m.Name}
	if err := conn.AppendJournal(ctx, r.table, rec); err != nil {
		return migration.ExecutionError(m, op, err)
	}
	log.Info("migration executed")
	return nil
}

func (r *Runner) script(op migration.Operation, m migration.Migration) (string, error) {
	if op == migration.OperationRevert {
		return r.reader.ReadDown(m)
	}
	return r.reader.ReadUp(m)
}

// rollback aborts the open transaction. A rollback failure is joined to
// cause, never replaces it.
func rollback(ctx context.Context, conn db.Conn, cause error, log *slog.Logger) error {
	if err := conn.Rollback(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(cause, fmt.Errorf("rollback: %w", err))
	}
	log.Debug("transaction rolled back")
	return cause
}
