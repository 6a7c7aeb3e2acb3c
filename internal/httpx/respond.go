package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondData(w http.ResponseWriter, code int, v any) {
	writeJSON(w, code, map[string]any{"success": true, "data": v})
}

// respondErr maps the error kind to a status and hides internals from the
// client; the full chain goes to the log.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, map[string]any{"success": false, "message": apperr.Message(err)})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.New(apperr.KindValidation, "invalid json body")
	}
	return nil
}

// Identity is established upstream (API gateway); these headers are trusted.
const (
	headerUserID   = "X-User-Id"
	headerUserRole = "X-User-Role"
)

func callerID(r *http.Request) string { return r.Header.Get(headerUserID) }

func callerRole(r *http.Request) string {
	if role := r.Header.Get(headerUserRole); role != "" {
		return role
	}
	return "customer"
}

// requireUser short-circuits with 401 when no identity header is present.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := callerID(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "missing identity"})
		return "", false
	}
	return id, true
}
