package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/modelplane/modelplane/internal/audit"
	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/queue"
	"github.com/modelplane/modelplane/internal/store"
)

type DatasetHandler struct {
	store  *store.Store
	queue  *queue.Client
	audit  *audit.Service
	logger *slog.Logger
}

func NewDatasetHandler(st *store.Store, qc *queue.Client, auditSvc *audit.Service, logger *slog.Logger) *DatasetHandler {
	return &DatasetHandler{store: st, queue: qc, audit: auditSvc, logger: logger}
}

type createDatasetRequest struct {
	Name      string `json:"name"`
	Format    string `json:"format"`
	Vectorize bool   `json:"vectorize"`
}

// Create registers a dataset in `building` state and enqueues the build. The
// dataset id doubles as the task id, so re-posting an id that is still in
// flight does not start a second build.
func (h *DatasetHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req createDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	switch req.Format {
	case models.DatasetFormatChat, models.DatasetFormatPromptCompletion:
	default:
		writeError(w, http.StatusBadRequest, "format must be jsonl_chat or jsonl_prompt_completion")
		return
	}

	ds, err := h.store.CreateDataset(r.Context(), scope, req.Name, req.Format, req.Vectorize)
	if err != nil {
		handleError(w, err)
		return
	}

	if err := h.queue.EnqueueDatasetBuild(r.Context(), queue.DatasetBuildPayload{
		DatasetID: ds.ID,
		TenantID:  scope.TenantID,
		ProjectID: scope.ProjectID,
	}); err != nil {
		handleError(w, err)
		return
	}

	if err := h.audit.Log(r.Context(), scope, audit.LogEntry{
		Action: "dataset.create", ResourceType: "dataset", ResourceID: &ds.ID,
		Details: map[string]any{"format": ds.Format, "vectorize": ds.Vectorize},
	}); err != nil {
		h.logger.Error("audit log", "error", err)
	}

	writeJSON(w, http.StatusAccepted, ds)
}

func (h *DatasetHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	datasets, err := h.store.ListDatasets(r.Context(), scope)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"datasets": datasets, "count": len(datasets)})
}

func (h *DatasetHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dataset ID")
		return
	}
	ds, err := h.store.GetDataset(r.Context(), scope, id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

type ingestTracesRequest struct {
	Traces []models.SourceTrace `json:"traces"`
}

// IngestTraces bulk-loads conversation traces, the raw material dataset
// builds render from.
func (h *DatasetHandler) IngestTraces(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req ingestTracesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Traces) == 0 {
		writeError(w, http.StatusBadRequest, "traces required")
		return
	}

	inserted, err := h.store.InsertSourceTraces(r.Context(), scope, req.Traces)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"inserted": inserted})
}

func (h *DatasetHandler) ListTraces(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	traces, err := h.store.ListSourceTraces(r.Context(), scope, 0)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"traces": traces, "count": len(traces)})
}
