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

type EvalHandler struct {
	store  *store.Store
	queue  *queue.Client
	audit  *audit.Service
	logger *slog.Logger
}

func NewEvalHandler(st *store.Store, qc *queue.Client, auditSvc *audit.Service, logger *slog.Logger) *EvalHandler {
	return &EvalHandler{store: st, queue: qc, audit: auditSvc, logger: logger}
}

type createSuiteRequest struct {
	Name              string  `json:"name"`
	SelectionStrategy string  `json:"selection_strategy"`
	KBCollection      *string `json:"kb_collection,omitempty"`
	PolicyProfile     *string `json:"policy_profile,omitempty"`
	Description       *string `json:"description,omitempty"`
}

func (h *EvalHandler) CreateSuite(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req createSuiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	switch req.SelectionStrategy {
	case models.SelectionStatic, models.SelectionVectorRetrieval:
	default:
		writeError(w, http.StatusBadRequest, "selection_strategy must be static or vector_retrieval")
		return
	}
	if req.SelectionStrategy == models.SelectionVectorRetrieval &&
		(req.KBCollection == nil || *req.KBCollection == "") {
		writeError(w, http.StatusBadRequest, "kb_collection required for vector_retrieval")
		return
	}

	suite, err := h.store.CreateEvalSuite(r.Context(), scope, store.CreateEvalSuiteParams{
		Name:              req.Name,
		SelectionStrategy: req.SelectionStrategy,
		KBCollection:      req.KBCollection,
		PolicyProfile:     req.PolicyProfile,
		Description:       req.Description,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, suite)
}

func (h *EvalHandler) GetSuite(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid suite ID")
		return
	}
	suite, err := h.store.GetEvalSuite(r.Context(), scope, id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suite)
}

type addSamplesRequest struct {
	Samples []models.EvalSample `json:"samples"`
}

func (h *EvalHandler) AddSamples(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid suite ID")
		return
	}
	if _, err := h.store.GetEvalSuite(r.Context(), scope, id); err != nil {
		handleError(w, err)
		return
	}

	var req addSamplesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, "samples required")
		return
	}
	for _, s := range req.Samples {
		if s.Input == "" || s.Expected == "" {
			writeError(w, http.StatusBadRequest, "every sample needs input and expected")
			return
		}
	}

	inserted, err := h.store.AddSuiteSamples(r.Context(), scope, id, req.Samples)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"inserted": inserted})
}

func (h *EvalHandler) ListSamples(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid suite ID")
		return
	}
	samples, err := h.store.ListSuiteSamples(r.Context(), scope, id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"samples": samples, "count": len(samples)})
}

type createRunRequest struct {
	SuiteID  uuid.UUID       `json:"suite_id"`
	ModelRef models.ModelRef `json:"model_ref"`
}

// CreateRun queues an eval run. The referenced suite must exist in scope;
// the model ref is validated up front so a typo fails fast instead of
// inside the worker.
func (h *EvalHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.ModelRef.Type {
	case models.ModelRefBaseModel, models.ModelRefFTModelVersion, models.ModelRefProviderModelID:
	default:
		writeError(w, http.StatusBadRequest, "model_ref.type must be base_model, ft_model_version or provider_model_id")
		return
	}
	if req.ModelRef.Value == "" {
		writeError(w, http.StatusBadRequest, "model_ref.value required")
		return
	}

	if _, err := h.store.GetEvalSuite(r.Context(), scope, req.SuiteID); err != nil {
		handleError(w, err)
		return
	}

	run, err := h.store.CreateEvalRun(r.Context(), scope, req.SuiteID, req.ModelRef)
	if err != nil {
		handleError(w, err)
		return
	}

	if err := h.queue.EnqueueEvalRun(r.Context(), queue.EvalRunPayload{
		EvalRunID: run.ID,
		TenantID:  scope.TenantID,
		ProjectID: scope.ProjectID,
	}); err != nil {
		handleError(w, err)
		return
	}

	if err := h.audit.Log(r.Context(), scope, audit.LogEntry{
		Action: "eval_run.create", ResourceType: "eval_run", ResourceID: &run.ID,
		Details: map[string]any{"suite_id": run.SuiteID, "model_ref": req.ModelRef},
	}); err != nil {
		h.logger.Error("audit log", "error", err)
	}

	writeJSON(w, http.StatusAccepted, run)
}

func (h *EvalHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run ID")
		return
	}
	run, err := h.store.GetEvalRun(r.Context(), scope, id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *EvalHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	suiteID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid suite ID")
		return
	}
	runs, err := h.store.ListEvalRuns(r.Context(), scope, suiteID)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}
