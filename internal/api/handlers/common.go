package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/modelplane/modelplane/internal/pipeline"
	"github.com/modelplane/modelplane/internal/tenant"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleError maps pipeline error kinds to HTTP statuses.
func handleError(w http.ResponseWriter, err error) {
	var nf *pipeline.NotFoundError
	if errors.As(err, &nf) {
		writeError(w, http.StatusNotFound, nf.Error())
		return
	}
	var pc *pipeline.PreconditionError
	if errors.As(err, &pc) {
		writeError(w, http.StatusConflict, pc.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// requestScope pulls the authenticated tenant/project scope; the auth
// middleware guarantees it is set on every /api/v1 route.
func requestScope(w http.ResponseWriter, r *http.Request) (tenant.Scope, bool) {
	scope := tenant.ScopeFromContext(r.Context())
	if scope.IsZero() {
		writeError(w, http.StatusUnauthorized, "missing request scope")
		return tenant.Scope{}, false
	}
	return scope, true
}
