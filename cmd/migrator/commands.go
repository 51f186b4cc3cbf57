package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"db_journal_migrator/internal/config"
	httpserver "db_journal_migrator/internal/http"
	"db_journal_migrator/internal/migrate"
	"db_journal_migrator/internal/migration"
	"db_journal_migrator/internal/repository"
	"db_journal_migrator/internal/secret"
)

func statusCmd(opts *rootOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of every migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := opts.context(cmd)
			defer cancel()

			states, err := a.service.Status(ctx, id)
			if err != nil {
				return err
			}
			return a.printer.States(states)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "only show this migration")
	return cmd
}

type runFlags struct {
	id       string
	to       string
	number   int
	strategy string
}

func (f *runFlags) register(cmd *cobra.Command, toHelp string) {
	cmd.Flags().StringVar(&f.id, "id", "", "only this migration")
	cmd.Flags().StringVar(&f.to, "to", "", toHelp)
	cmd.Flags().IntVarP(&f.number, "number", "n", 0, "at most this many migrations")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "transaction strategy: each, all or dry (default from config)")
}

func (f *runFlags) runConfig(cfg config.Config) migration.RunConfig {
	strategy := f.strategy
	if strategy == "" {
		strategy = cfg.Strategy
	}
	return migration.RunConfig{
		ID:       f.id,
		To:       f.to,
		Number:   f.number,
		Strategy: migration.Strategy(strategy),
	}
}

func applyCmd(opts *rootOptions) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply pending migrations in id order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := opts.context(cmd)
			defer cancel()

			states, runErr := a.service.Apply(ctx, flags.runConfig(a.cfg))
			if err := a.printer.States(states); err != nil {
				return errors.Join(runErr, err)
			}
			return runErr
		},
	}
	flags.register(cmd, "apply pending migrations up to and including this id")
	return cmd
}

func revertCmd(opts *rootOptions) *cobra.Command {
	var (
		flags runFlags
		yes   bool
	)
	cmd := &cobra.Command{
		Use:   "revert",
		Short: "Revert applied migrations, newest first (default: the latest one)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := flags.runConfig(a.cfg)

			if !yes && cfg.Strategy != migration.StrategyDry {
				ok, err := promptYes(cmd.InOrStdin(), cmd.ErrOrStderr(), "Type YES to revert: ")
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("revert cancelled")
				}
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()
			states, runErr := a.service.Revert(ctx, cfg)
			if err := a.printer.States(states); err != nil {
				return errors.Join(runErr, err)
			}
			return runErr
		},
	}
	flags.register(cmd, "revert applied migrations newer than this id")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func journalCmd(opts *rootOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print the journal in chronological order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := opts.context(cmd)
			defer cancel()

			entries, err := a.service.Journal(ctx, id)
			if err != nil {
				return err
			}
			return a.printer.Journal(entries)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "only entries for this migration")
	return cmd
}

func migrationsCmd(opts *rootOptions) *cobra.Command {
	var (
		id      string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "migrations",
		Short: "List migration files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)
			repo := repository.New(cfg.MigrationsDir, logger)
			// Listing files needs no database connection.
			service := migrate.NewService(nil, repo, cfg.JournalTable, logger)
			ctx, cancel := opts.context(cmd)
			defer cancel()
			migs, err := service.Migrations(ctx, id)
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).Migrations(migs, verbose, repo.Path)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "only this migration")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "also print source file paths")
	return cmd
}

func newCmd(opts *rootOptions) *cobra.Command {
	var (
		id    string
		split bool
	)
	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a new migration file from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if id == "" {
				id = repository.NewID(time.Now())
			}
			repo := repository.New(cfg.MigrationsDir, newLogger(cmd, cfg))
			paths, err := repo.Create(id, args[0], split)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), "created", p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "migration id (default: current UTC time as "+repository.IDLayout+")")
	cmd.Flags().BoolVar(&split, "split", false, "write separate .up.sql and .down.sql files")
	return cmd
}

func initConfigCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExample(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sample config written to", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "migrator.yaml", "where to write the sample config")
	return cmd
}

func encryptDSNCmd(opts *rootOptions) *cobra.Command {
	var generateKey bool
	cmd := &cobra.Command{
		Use:   "encrypt-dsn [connection-string]",
		Short: "Encrypt a connection string for connection_encrypted",
		Long: "Encrypts the connection string with the base64 AES key in MIGRATOR_SECRET_KEY.\n" +
			"The string is read from stdin when no argument is given.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if generateKey {
				key, err := secret.NewKey()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			}
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			key, err := secret.ParseKey(cfg.SecretKey)
			if err != nil {
				return fmt.Errorf("MIGRATOR_SECRET_KEY: %w", err)
			}
			var dsn string
			if len(args) == 1 {
				dsn = args[0]
			} else {
				raw, err := readAll(cmd)
				if err != nil {
					return err
				}
				dsn = strings.TrimSpace(raw)
			}
			if dsn == "" {
				return errors.New("empty connection string")
			}
			sealed, err := secret.EncryptString(key, dsn)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&generateKey, "generate-key", false, "print a new random key instead")
	return cmd
}

func serveCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only JSON API over status, journal and migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.cfg.HTTPAddress
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := httpserver.New(addr, a.logger, a.client, a.service)
			return server.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, MIGRATOR_HTTP_ADDR)")
	return cmd
}
