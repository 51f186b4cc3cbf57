package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"db_journal_migrator/internal/db"
)

type HealthHandler struct {
	Client db.Client
	Logger *slog.Logger
}

type healthResponse struct {
	Status string `json:"status"`
	Client string `json:"client"`
	DB     string `json:"db"`
}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	conn, err := h.Client.Connect(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "service_unhealthy", "database unreachable")
		return
	}
	dbStatus := "ok"
	if err := conn.Close(ctx); err != nil {
		dbStatus = "degraded"
		if h.Logger != nil {
			h.Logger.Warn("health check: close connection", "client", h.Client.Name(), "error", err)
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Client: h.Client.Name(),
		DB:     dbStatus,
	})
}
