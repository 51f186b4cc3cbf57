package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"db_journal_migrator/internal/config"
	"db_journal_migrator/internal/db"
	"db_journal_migrator/internal/logging"
	"db_journal_migrator/internal/migrate"
	"db_journal_migrator/internal/output"
	"db_journal_migrator/internal/repository"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath    string
	envFile       string
	client        string
	connection    string
	migrationsDir string
	journalTable  string
	logLevel      string
	logFormat     string
	timeout       time.Duration
	noColor       bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "migrator",
		Short:         "Journal based SQL migration runner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "migrator.yaml", "path to config file (skipped when missing)")
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	f.StringVar(&opts.client, "client", "", "database client: "+strings.Join(db.Providers(), ", "))
	f.StringVar(&opts.connection, "connection", "", "connection string (or MIGRATOR_CONNECTION)")
	f.StringVar(&opts.migrationsDir, "migrations-dir", "", "directory holding migration files")
	f.StringVar(&opts.journalTable, "journal-table", "", "journal table name")
	f.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&opts.logFormat, "log-format", "", "json or text")
	f.DurationVar(&opts.timeout, "timeout", 0, "abort database work after this long (0 = no limit)")
	f.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		statusCmd(opts),
		applyCmd(opts),
		revertCmd(opts),
		journalCmd(opts),
		migrationsCmd(opts),
		newCmd(opts),
		initConfigCmd(),
		encryptDSNCmd(opts),
		serveCmd(opts),
	)
	return root
}

// loadConfig reads the config file and environment, then applies any
// flags set on the command line.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	override := func(name string, dst *string, val string) {
		if flags.Changed(name) {
			*dst = val
		}
	}
	override("client", &cfg.Client, o.client)
	override("connection", &cfg.Connection, o.connection)
	override("migrations-dir", &cfg.MigrationsDir, o.migrationsDir)
	override("journal-table", &cfg.JournalTable, o.journalTable)
	override("log-level", &cfg.LogLevel, o.logLevel)
	override("log-format", &cfg.LogFormat, o.logFormat)
	return cfg, nil
}

type app struct {
	cfg     config.Config
	logger  *slog.Logger
	client  db.Client
	repo    *repository.Repository
	service *migrate.Service
	printer *output.Printer
}

// open builds everything a database command needs. The caller closes it.
func (o *rootOptions) open(cmd *cobra.Command) (*app, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.ResolveConnection(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cmd, cfg)

	client, err := db.Open(cfg.Client, cfg.Connection)
	if err != nil {
		return nil, err
	}
	repo := repository.New(cfg.MigrationsDir, logger)
	return &app{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		repo:    repo,
		service: migrate.NewService(client, repo, cfg.JournalTable, logger),
		printer: o.printer(cmd.OutOrStdout()),
	}, nil
}

func (a *app) Close() {
	if err := a.client.Close(); err != nil {
		a.logger.Warn("close client", "error", err)
	}
}

func (o *rootOptions) printer(w io.Writer) *output.Printer {
	return output.NewPrinter(w, !o.noColor && !color.NoColor)
}

func (o *rootOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.timeout > 0 {
		return context.WithTimeout(ctx, o.timeout)
	}
	return context.WithCancel(ctx)
}

func promptYes(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprint(out, prompt)
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(line), "YES"), nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	return logging.NewLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
}

func readAll(cmd *cobra.Command) (string, error) {
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
