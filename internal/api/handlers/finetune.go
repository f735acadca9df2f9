package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/modelplane/modelplane/internal/audit"
	"github.com/modelplane/modelplane/internal/finetune"
	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/queue"
	"github.com/modelplane/modelplane/internal/store"
)

type FinetuneHandler struct {
	store  *store.Store
	queue  *queue.Client
	audit  *audit.Service
	logger *slog.Logger
}

func NewFinetuneHandler(st *store.Store, qc *queue.Client, auditSvc *audit.Service, logger *slog.Logger) *FinetuneHandler {
	return &FinetuneHandler{store: st, queue: qc, audit: auditSvc, logger: logger}
}

type startJobRequest struct {
	Provider  string    `json:"provider"`
	Method    string    `json:"method"`
	BaseModel string    `json:"base_model"`
	DatasetID uuid.UUID `json:"dataset_id"`
}

// StartJob queues a fine-tune against a ready dataset. The cost estimate is
// priced here from the dataset's token estimate so callers see the number
// they will be held to before the job runs.
func (h *FinetuneHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider == "" || req.BaseModel == "" {
		writeError(w, http.StatusBadRequest, "provider and base_model required")
		return
	}
	switch req.Method {
	case models.MethodSFT, models.MethodDPO, models.MethodRFT:
	case "":
		req.Method = models.MethodSFT
	default:
		writeError(w, http.StatusBadRequest, "method must be SFT, DPO or RFT")
		return
	}

	ds, err := h.store.GetDataset(r.Context(), scope, req.DatasetID)
	if err != nil {
		handleError(w, err)
		return
	}
	if ds.Status != models.DatasetStatusReady {
		writeError(w, http.StatusConflict, "dataset is not ready")
		return
	}

	var estimate *float64
	if ds.TokenEstimate != nil {
		est := finetune.EstimateCost(req.BaseModel, *ds.TokenEstimate)
		estimate = &est
	}

	job, err := h.store.CreateFineTuneJob(r.Context(), scope, store.CreateFineTuneJobParams{
		Provider:        req.Provider,
		Method:          req.Method,
		BaseModel:       req.BaseModel,
		DatasetID:       req.DatasetID,
		CostEstimateUSD: estimate,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	if err := h.queue.EnqueueFinetuneRun(r.Context(), queue.FinetuneRunPayload{
		JobID:     job.ID,
		TenantID:  scope.TenantID,
		ProjectID: scope.ProjectID,
	}); err != nil {
		handleError(w, err)
		return
	}

	if err := h.audit.Log(r.Context(), scope, audit.LogEntry{
		Action: "finetune_job.create", ResourceType: "finetune_job", ResourceID: &job.ID,
		Details: map[string]any{"base_model": job.BaseModel, "method": job.Method, "dataset_id": job.DatasetID},
	}); err != nil {
		h.logger.Error("audit log", "error", err)
	}

	writeJSON(w, http.StatusAccepted, job)
}

func (h *FinetuneHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	jobs, err := h.store.ListFineTuneJobs(r.Context(), scope)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

func (h *FinetuneHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID")
		return
	}
	job, err := h.store.GetFineTuneJob(r.Context(), scope, id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
