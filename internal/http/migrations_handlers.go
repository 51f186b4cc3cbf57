package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"db_journal_migrator/internal/migration"
)

// Querier is the read side of the migration service.
type Querier interface {
	Status(ctx context.Context, id string) ([]migration.State, error)
	Journal(ctx context.Context, id string) ([]migration.JournalEntry, error)
	Migrations(ctx context.Context, id string) ([]migration.Migration, error)
}

type MigrationHandler struct {
	querier Querier
	logger  *slog.Logger
}

func NewMigrationHandler(querier Querier, logger *slog.Logger) *MigrationHandler {
	return &MigrationHandler{
		querier: querier,
		logger:  logger,
	}
}

type stateResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type journalResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
}

type migrationResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Layout   string `json:"layout"`
	UpPath   string `json:"up_path"`
	DownPath string `json:"down_path"`
}

func (h *MigrationHandler) Status(w http.ResponseWriter, r *http.Request) {
	states, err := h.querier.Status(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.logger.Error("status failed", "error", err)
		writeMigrationError(w, err)
		return
	}
	items := make([]stateResponse, 0, len(states))
	for _, st := range states {
		items = append(items, stateResponse{ID: st.MigrationID, Name: st.MigrationName, Status: string(st.Status)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"states": items})
}

func (h *MigrationHandler) Journal(w http.ResponseWriter, r *http.Request) {
	entries, err := h.querier.Journal(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.logger.Error("journal failed", "error", err)
		writeMigrationError(w, err)
		return
	}
	items := make([]journalResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, journalResponse{
			Timestamp: e.Timestamp.UTC(),
			Operation: string(e.Operation),
			ID:        e.MigrationID,
			Name:      e.MigrationName,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"journal": items})
}

func (h *MigrationHandler) Migrations(w http.ResponseWriter, r *http.Request) {
	migrations, err := h.querier.Migrations(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.logger.Error("list migrations failed", "error", err)
		writeMigrationError(w, err)
		return
	}
	items := make([]migrationResponse, 0, len(migrations))
	for _, m := range migrations {
		items = append(items, migrationResponse{
			ID:       m.ID,
			Name:     m.Name,
			Layout:   string(m.Layout),
			UpPath:   m.UpPath,
			DownPath: m.DownPath,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"migrations": items})
}
