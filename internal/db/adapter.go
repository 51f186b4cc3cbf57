package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"db_journal_migrator/internal/migration"
)

// Client is a database backend that hands out dedicated connections.
type Client interface {
	Name() string
	// Connect opens a connection owned exclusively by the caller until Close.
	Connect(ctx context.Context) (Conn, error)
	// Close releases the client's resources.
	Close() error
}

// Conn is a single database connection with explicit transaction control.
// While a transaction is open every other call runs inside it.
type Conn interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// EnsureJournal creates the journal table if it does not exist.
	EnsureJournal(ctx context.Context, table string) error
	AppendJournal(ctx context.Context, table string, rec JournalRecord) error
	// ReadJournal returns every journal entry ordered by timestamp ascending.
	ReadJournal(ctx context.Context, table string) ([]migration.JournalEntry, error)
	// Exec runs a SQL script that may contain several statements.
	Exec(ctx context.Context, script string) error
	// Close rolls back an open transaction and releases the connection.
	Close(ctx context.Context) error
}

// Factory builds a client from a connection string.
type Factory func(dsn string) (Client, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"postgres": openPostgres,
		"pgx":      openPostgres,
		"mysql":    openMySQL,
		"sqlite":   openSQLite,
		"dummy":    func(string) (Client, error) { return NewDummy(), nil },
	}
)

// Register adds or replaces a provider.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = f
}

// Providers lists the registered provider names.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds a client for the given provider.
func Open(provider, dsn string) (Client, error) {
	registryMu.RLock()
	f, ok := registry[strings.ToLower(provider)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported provider %s", provider)
	}
	return f(dsn)
}
