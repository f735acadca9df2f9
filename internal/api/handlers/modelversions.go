package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/modelplane/modelplane/internal/store"
)

type ModelVersionHandler struct {
	store *store.Store
}

func NewModelVersionHandler(st *store.Store) *ModelVersionHandler {
	return &ModelVersionHandler{store: st}
}

type registerVersionRequest struct {
	Provider        string `json:"provider"`
	ProviderModelID string `json:"provider_model_id"`
}

// Register records an externally trained model as a candidate version.
// Versions produced by the fine-tune pipeline register themselves.
func (h *ModelVersionHandler) Register(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req registerVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider == "" || req.ProviderModelID == "" {
		writeError(w, http.StatusBadRequest, "provider and provider_model_id required")
		return
	}

	mv, err := h.store.CreateModelVersion(r.Context(), scope, req.Provider, req.ProviderModelID, nil)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mv)
}

func (h *ModelVersionHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	versions, err := h.store.ListModelVersions(r.Context(), scope)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"model_versions": versions, "count": len(versions)})
}

func (h *ModelVersionHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid model version ID")
		return
	}
	mv, err := h.store.GetModelVersion(r.Context(), scope, id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mv)
}
