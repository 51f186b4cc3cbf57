package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db_journal_migrator/internal/db"
	"db_journal_migrator/internal/migrate"
	"db_journal_migrator/internal/migration"
	"db_journal_migrator/internal/repository"
)

func newTestServer(t *testing.T, files fstest.MapFS) (*httptest.Server, *db.Dummy, *migrate.Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := db.NewDummy()
	svc := migrate.NewService(client, repository.NewFS(files, logger), "migration_journal", logger)
	ts := httptest.NewServer(New(":0", logger, client, svc).Handler())
	t.Cleanup(ts.Close)
	return ts, client, svc
}

func fixtures() fstest.MapFS {
	return fstest.MapFS{
		"1.first.sql":       {Data: []byte("up 1\n---\ndown 1\n")},
		"2.second.up.sql":   {Data: []byte("up 2")},
		"2.second.down.sql": {Data: []byte("down 2")},
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts, client, _ := newTestServer(t, fixtures())

	var body healthResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/health", &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "dummy", body.Client)
	assert.Equal(t, "ok", body.DB)

	client.SetConnectErr(errors.New("refused"))
	var errBody errorBody
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/api/v1/health", &errBody))
	assert.Equal(t, "service_unhealthy", errBody.Error.Code)
}

// closeFailingClient hands out connections whose Close fails.
type closeFailingClient struct {
	db.Client
}

func (c closeFailingClient) Connect(ctx context.Context) (db.Conn, error) {
	conn, err := c.Client.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return closeFailingConn{conn}, nil
}

type closeFailingConn struct {
	db.Conn
}

func (c closeFailingConn) Close(ctx context.Context) error {
	_ = c.Conn.Close(ctx)
	return errors.New("connection reset")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHealthReportsCloseFailure(t *testing.T) {
	logs := &lockedBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	ts := httptest.NewServer(New(":0", logger, closeFailingClient{db.NewDummy()}, nil).Handler())
	t.Cleanup(ts.Close)

	var body healthResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/health", &body))
	assert.Equal(t, "degraded", body.DB)
	assert.Contains(t, logs.String(), "connection reset")
}

func TestStatusAndJournal(t *testing.T) {
	ts, _, svc := newTestServer(t, fixtures())
	_, err := svc.Apply(context.Background(), migration.RunConfig{Number: 1})
	require.NoError(t, err)

	var status struct {
		States []stateResponse `json:"states"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/status", &status))
	assert.Equal(t, []stateResponse{
		{ID: "1", Name: "first", Status: "applied"},
		{ID: "2", Name: "second", Status: "pending"},
	}, status.States)

	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/status?id=2", &status))
	assert.Equal(t, []stateResponse{{ID: "2", Name: "second", Status: "pending"}}, status.States)

	var journal struct {
		Journal []journalResponse `json:"journal"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/journal", &journal))
	require.Len(t, journal.Journal, 1)
	assert.Equal(t, "apply", journal.Journal[0].Operation)
	assert.Equal(t, "1", journal.Journal[0].ID)
	assert.False(t, journal.Journal[0].Timestamp.IsZero())

	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/journal?id=2", &journal))
	assert.Empty(t, journal.Journal)
}

func TestMigrations(t *testing.T) {
	ts, _, _ := newTestServer(t, fixtures())

	var body struct {
		Migrations []migrationResponse `json:"migrations"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/migrations", &body))
	require.Len(t, body.Migrations, 2)
	assert.Equal(t, "combined", body.Migrations[0].Layout)
	assert.Equal(t, "2.second.down.sql", body.Migrations[1].DownPath)

	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/migrations?id=1", &body))
	require.Len(t, body.Migrations, 1)
	assert.Equal(t, "first", body.Migrations[0].Name)
}

func TestErrorMapping(t *testing.T) {
	files := fixtures()
	files["3.broken.up.sql"] = &fstest.MapFile{Data: []byte("up 3")}
	ts, client, _ := newTestServer(t, files)

	var body errorBody
	assert.Equal(t, http.StatusUnprocessableEntity, getJSON(t, ts.URL+"/api/v1/migrations", &body))
	assert.Equal(t, "invalid_migrations", body.Error.Code)

	client.SetConnectErr(errors.New("refused"))
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/api/v1/journal", &body))
	assert.Equal(t, "database_unavailable", body.Error.Code)
}

func TestJournalCorrupt(t *testing.T) {
	ts, client, _ := newTestServer(t, fixtures())
	client.Seed("migration_journal", migration.JournalEntry{Operation: "squash", MigrationID: "1"})

	var body errorBody
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, ts.URL+"/api/v1/status", &body))
	assert.Equal(t, "journal_corrupt", body.Error.Code)
}

func TestReadOnlyRoutes(t *testing.T) {
	ts, _, _ := newTestServer(t, fixtures())

	resp, err := http.Post(ts.URL+"/api/v1/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	var body errorBody
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/apply", &body))
}
