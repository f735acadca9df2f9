package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/modelplane/modelplane/internal/audit"
	"github.com/modelplane/modelplane/internal/cache"
	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/queue"
	"github.com/modelplane/modelplane/internal/store"
)

type PromotionHandler struct {
	store  *store.Store
	queue  *queue.Client
	cache  *cache.PointerCache
	audit  *audit.Service
	logger *slog.Logger
}

func NewPromotionHandler(st *store.Store, qc *queue.Client, pc *cache.PointerCache, auditSvc *audit.Service, logger *slog.Logger) *PromotionHandler {
	return &PromotionHandler{store: st, queue: qc, cache: pc, audit: auditSvc, logger: logger}
}

type createPromotionRequest struct {
	ModelVersionID uuid.UUID        `json:"model_version_id"`
	Target         models.TargetRef `json:"target"`
}

// Create records a promotion request in `blocked` state and hands it to the
// governance worker. The decision enum never grows: the worker settles every
// request as approved or rejected.
func (h *PromotionHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req createPromotionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Target.Type {
	case models.TargetAssistant, models.TargetProject, models.TargetGlobal:
	default:
		writeError(w, http.StatusBadRequest, "target.type must be assistant, project or global")
		return
	}
	if req.Target.Value == "" {
		writeError(w, http.StatusBadRequest, "target.value required")
		return
	}

	if _, err := h.store.GetModelVersion(r.Context(), scope, req.ModelVersionID); err != nil {
		handleError(w, err)
		return
	}

	decision, err := h.store.CreatePromotionDecision(r.Context(), scope, req.ModelVersionID, req.Target)
	if err != nil {
		handleError(w, err)
		return
	}

	if err := h.queue.EnqueuePromotionDecide(r.Context(), queue.PromotionDecidePayload{
		DecisionID: decision.ID,
		TenantID:   scope.TenantID,
		ProjectID:  scope.ProjectID,
	}); err != nil {
		handleError(w, err)
		return
	}

	if err := h.audit.Log(r.Context(), scope, audit.LogEntry{
		Action: "promotion.request", ResourceType: "promotion_decision", ResourceID: &decision.ID,
		Details: map[string]any{"model_version_id": req.ModelVersionID, "target": req.Target},
	}); err != nil {
		h.logger.Error("audit log", "error", err)
	}

	writeJSON(w, http.StatusAccepted, decision)
}

func (h *PromotionHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid decision ID")
		return
	}
	decision, err := h.store.GetPromotionDecision(r.Context(), scope, id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (h *PromotionHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	decisions, err := h.store.ListPromotionDecisions(r.Context(), scope)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decisions": decisions, "count": len(decisions)})
}

// GetPointer serves the production pointer through the short-TTL cache.
func (h *PromotionHandler) GetPointer(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	target := models.TargetRef{
		Type:  r.URL.Query().Get("target_type"),
		Value: r.URL.Query().Get("target_value"),
	}
	if target.Type == "" || target.Value == "" {
		writeError(w, http.StatusBadRequest, "target_type and target_value required")
		return
	}

	if ptr, hit := h.cache.Get(r.Context(), scope, target); hit {
		writeJSON(w, http.StatusOK, ptr)
		return
	}

	ptr, err := h.store.GetProductionPointer(r.Context(), scope, target)
	if err != nil {
		handleError(w, err)
		return
	}
	if err := h.cache.Set(r.Context(), scope, target, ptr); err != nil {
		h.logger.Warn("pointer cache set", "error", err)
	}
	writeJSON(w, http.StatusOK, ptr)
}

func (h *PromotionHandler) ListPointers(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}
	pointers, err := h.store.ListProductionPointers(r.Context(), scope)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pointers": pointers, "count": len(pointers)})
}

type rollbackRequest struct {
	Target models.TargetRef `json:"target"`
}

// RollbackPointer swaps active and previous for a target, the one-deep undo
// every promotion swap maintains.
func (h *PromotionHandler) RollbackPointer(w http.ResponseWriter, r *http.Request) {
	scope, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Target.Type == "" || req.Target.Value == "" {
		writeError(w, http.StatusBadRequest, "target.type and target.value required")
		return
	}

	ptr, err := h.store.RollbackPointer(r.Context(), scope, req.Target)
	if err != nil {
		handleError(w, err)
		return
	}

	if err := h.cache.Invalidate(r.Context(), scope, req.Target); err != nil {
		h.logger.Warn("pointer cache invalidation", "error", err)
	}

	if err := h.audit.Log(r.Context(), scope, audit.LogEntry{
		Action: "pointer.rollback", ResourceType: "production_pointer", ResourceID: &ptr.ID,
		Details: map[string]any{"target": req.Target, "active": ptr.ActiveModelVersionID},
	}); err != nil {
		h.logger.Error("audit log", "error", err)
	}

	writeJSON(w, http.StatusOK, ptr)
}
