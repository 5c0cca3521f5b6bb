package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody(msg))
}

// internalError logs err under op and answers 500 without leaking it.
func internalError(w http.ResponseWriter, op string, err error) {
	slog.Error(op+" failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// readBody reads at most limit bytes of the request body. An oversized or
// broken body has already been answered with 400 when ok is false.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) (raw []byte, ok bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}
	return raw, true
}
