package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"db_journal_migrator/internal/db"
	"db_journal_migrator/internal/migration"
)

// Source lists migrations and resolves their SQL.
type Source interface {
	SQLReader
	List() ([]migration.Migration, error)
}

// Service implements the user facing commands on top of a source of
// migrations and a database client.
type Service struct {
	client db.Client
	source Source
	table  string
	logger *slog.Logger
	runner *Runner
}

func NewService(client db.Client, source Source, table string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client: client,
		source: source,
		table:  table,
		logger: logger,
		runner: NewRunner(client, source, table, logger),
	}
}

// Status reconciles every migration with the journal. A non-empty id limits
// the result to that migration.
func (s *Service) Status(ctx context.Context, id string) ([]migration.State, error) {
	states, _, err := s.reconcile(ctx)
	if err != nil {
		return nil, err
	}
	return migration.FilterStates(states, id), nil
}

// Apply runs the pending migrations selected by cfg and returns their new
// states. When the run fails the states are returned together with the error.
func (s *Service) Apply(ctx context.Context, cfg migration.RunConfig) ([]migration.State, error) {
	return s.run(ctx, migration.OperationApply, cfg)
}

// Revert undoes the applied migrations selected by cfg, newest first, and
// returns their new states. When the run fails the states are returned
// together with the error.
func (s *Service) Revert(ctx context.Context, cfg migration.RunConfig) ([]migration.State, error) {
	return s.run(ctx, migration.OperationRevert, cfg)
}

// Journal returns the journal in chronological order, optionally limited
// to one migration id.
func (s *Service) Journal(ctx context.Context, id string) ([]migration.JournalEntry, error) {
	entries, err := s.readJournal(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return entries, nil
	}
	out := make([]migration.JournalEntry, 0)
	for _, e := range entries {
		if e.MigrationID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// Migrations lists the migration files, optionally limited to one id.
func (s *Service) Migrations(ctx context.Context, id string) ([]migration.Migration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	migrations, err := s.source.List()
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	return migration.FilterMigrations(migrations, id), nil
}

func (s *Service) run(ctx context.Context, op migration.Operation, cfg migration.RunConfig) ([]migration.State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strategy, err := migration.ParseStrategy(string(cfg.Strategy))
	if err != nil {
		return nil, err
	}
	states, migrations, err := s.reconcile(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	if op == migration.OperationApply {
		ids = migration.SelectApply(states, cfg)
	} else {
		ids = migration.SelectRevert(states, cfg)
	}
	if len(ids) == 0 {
		s.logger.Info("nothing to do", "operation", string(op))
		return []migration.State{}, nil
	}

	rep, runErr := s.runner.Run(ctx, op, strategy, migration.Ordered(migrations, ids))
	s.logger.Debug("run report", "run_id", rep.RunID, "executed", rep.Executed, "committed", rep.Committed)

	// Re-read with a context that survives cancellation so partial progress
	// is still reported.
	after, _, err := s.reconcile(context.WithoutCancel(ctx))
	if err != nil {
		return nil, errors.Join(runErr, err)
	}
	return pickStates(after, ids), runErr
}

func (s *Service) reconcile(ctx context.Context) ([]migration.State, []migration.Migration, error) {
	migrations, err := s.source.List()
	if err != nil {
		return nil, nil, fmt.Errorf("list migrations: %w", err)
	}
	journal, err := s.readJournal(ctx)
	if err != nil {
		return nil, nil, err
	}
	states, err := migration.Reconcile(migrations, journal)
	if err != nil {
		return nil, nil, err
	}
	return states, migrations, nil
}

// readJournal uses its own connection, closed before returning.
func (s *Service) readJournal(ctx context.Context) (entries []migration.JournalEntry, err error) {
	conn, err := s.client.Connect(ctx)
	if err != nil {
		if migration.KindOf(err) != migration.KindConnection {
			err = migration.ConnectionError(err)
		}
		return nil, err
	}
	defer func() {
		if cerr := conn.Close(context.WithoutCancel(ctx)); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close connection: %w", cerr))
		}
	}()
	if err := conn.EnsureJournal(ctx, s.table); err != nil {
		return nil, fmt.Errorf("ensure journal: %w", err)
	}
	return conn.ReadJournal(ctx, s.table)
}

// pickStates returns the states of ids in the order of ids.
func pickStates(states []migration.State, ids []string) []migration.State {
	byID := make(map[string]migration.State, len(states))
	for _, st := range states {
		byID[st.MigrationID] = st
	}
	out := make([]migration.State, 0, len(ids))
	for _, id := range ids {
		if st, ok := byID[id]; ok {
			out = append(out, st)
		}
	}
	return out
}
