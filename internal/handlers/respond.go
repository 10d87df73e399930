// Package handlers implements the HTTP API: indexing videos, asking
// questions against them and generating summaries.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/GavinStein1/pod2chat/internal/contextutil"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	contextutil.LoggerFromContext(r.Context()).Warn("request failed",
		slog.Int("status", status),
		slog.String("error", msg))
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
