package httpserver

import (
	"encoding/json"
	"net/http"

	"db_journal_migrator/internal/migration"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	body := errorBody{}
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

// writeMigrationError maps a migration error kind to a status code.
func writeMigrationError(w http.ResponseWriter, err error) {
	switch migration.KindOf(err) {
	case migration.KindConnection:
		writeError(w, http.StatusServiceUnavailable, "database_unavailable", err.Error())
	case migration.KindInvalidJournalOperation:
		writeError(w, http.StatusInternalServerError, "journal_corrupt", err.Error())
	case migration.KindSplitFileMissing, migration.KindSplitFileConflict,
		migration.KindSQLSectionMissing, migration.KindSQLSectionConflict,
		migration.KindDuplicateID:
		writeError(w, http.StatusUnprocessableEntity, "invalid_migrations", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
