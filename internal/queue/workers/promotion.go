package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/modelplane/modelplane/internal/evaluation"
	"github.com/modelplane/modelplane/internal/governance"
	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/pipeline"
	"github.com/modelplane/modelplane/internal/queue"
	"github.com/modelplane/modelplane/internal/tenant"
)

type PromotionStore interface {
	GetPromotionDecision(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.PromotionDecision, error)
	GetModelVersion(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.ModelVersion, error)
	GetFineTuneJob(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.FineTuneJob, error)
	LatestCompletedEvalRun(ctx context.Context, scope tenant.Scope, ref models.ModelRef) (*models.EvalRun, error)
	RejectPromotion(ctx context.Context, scope tenant.Scope, id uuid.UUID, reasons []string, safetyPass, compliancePass *bool) (bool, error)
	ApprovePromotion(ctx context.Context, scope tenant.Scope, id uuid.UUID, modelVersionID uuid.UUID, target models.TargetRef, reasons []string, safetyPass, compliancePass *bool, evalSummary, governanceSummary any) (bool, *models.ProductionPointer, error)
}

// PointerCache invalidates the cached production pointer after a swap.
type PointerCache interface {
	Invalidate(ctx context.Context, scope tenant.Scope, target models.TargetRef) error
}

// PromotionWorker settles a blocked promotion decision: it gathers the
// candidate's latest eval results, the safety scan and the training cost
// record, runs the governance gate, and either rejects with the gate's
// reasons or approves and swaps the production pointer in one transaction.
type PromotionWorker struct {
	store      PromotionStore
	cache      PointerCache
	costBudget float64
	notifier   Notifier
	logger     *slog.Logger
}

func NewPromotionWorker(store PromotionStore, cache PointerCache, costBudget float64, notifier Notifier, logger *slog.Logger) *PromotionWorker {
	return &PromotionWorker{
		store:      store,
		cache:      cache,
		costBudget: costBudget,
		notifier:   notifier,
		logger:     logger,
	}
}

func (w *PromotionWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.PromotionDecidePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("promotion: bad payload", "error", err)
		return nil
	}
	if err := payload.Validate(); err != nil {
		w.logger.Error("promotion: invalid payload", "error", err)
		return nil
	}
	scope := tenant.Scope{TenantID: payload.TenantID, ProjectID: payload.ProjectID}

	decision, err := w.store.GetPromotionDecision(ctx, scope, payload.DecisionID)
	if err != nil {
		if pipeline.Permanent(err) {
			w.logger.Warn("promotion: decision gone", "decision_id", payload.DecisionID, "error", err)
			return nil
		}
		return fmt.Errorf("load promotion decision: %w", err)
	}
	if decision.Decision != models.DecisionBlocked {
		w.logger.Info("promotion: already settled", "decision_id", decision.ID, "decision", decision.Decision)
		return nil
	}

	evalSummary, safety, compliance, rejectReason, err := w.gather(ctx, scope, decision)
	if err != nil {
		return w.settle(ctx, scope, decision.ID, err)
	}
	if rejectReason != "" {
		return w.reject(ctx, scope, decision.ID, []string{rejectReason}, nil, nil)
	}

	verdict := governance.Evaluate(evalSummary, safety, compliance)

	if verdict.Decision == governance.DecisionRejected {
		return w.reject(ctx, scope, decision.ID, verdict.Reasons, &verdict.SafetyPass, &verdict.CompliancePass)
	}

	target := models.TargetRef{Type: decision.TargetType, Value: decision.TargetValue}
	ok, ptr, err := w.store.ApprovePromotion(ctx, scope, decision.ID, decision.ModelVersionID,
		target, verdict.Reasons, &verdict.SafetyPass, &verdict.CompliancePass, evalSummary, verdict)
	if err != nil {
		return w.settle(ctx, scope, decision.ID, fmt.Errorf("approve promotion: %w", err))
	}
	if !ok {
		w.logger.Info("promotion: lost the decision race", "decision_id", decision.ID)
		return nil
	}

	if err := w.cache.Invalidate(ctx, scope, target); err != nil {
		// The cache entry carries a TTL; serving the old pointer briefly is
		// tolerable, a stuck promotion is not.
		w.logger.Warn("promotion: pointer cache invalidation failed", "decision_id", decision.ID, "error", err)
	}

	w.notifier.Emit(ctx, scope, EventPromotionDecided, map[string]any{
		"decision_id":      decision.ID,
		"model_version_id": decision.ModelVersionID,
		"decision":         models.DecisionApproved,
		"target_type":      target.Type,
		"target_value":     target.Value,
		"active_model":     ptr.ActiveModelVersionID,
	})
	w.logger.Info("promotion approved", "decision_id", decision.ID,
		"model_version_id", decision.ModelVersionID, "target", target.Type+"/"+target.Value)
	return nil
}

// gather collects the gate's three inputs. A missing model version or a
// candidate with no completed eval run is a terminal rejection, not an
// error; only infrastructure failures come back as errors.
func (w *PromotionWorker) gather(ctx context.Context, scope tenant.Scope, decision *models.PromotionDecision) (governance.EvalSummary, governance.SafetyReport, governance.ComplianceReport, string, error) {
	var (
		evalSummary governance.EvalSummary
		safety      governance.SafetyReport
		compliance  governance.ComplianceReport
	)

	mv, err := w.store.GetModelVersion(ctx, scope, decision.ModelVersionID)
	if err != nil {
		if pipeline.Permanent(err) {
			return evalSummary, safety, compliance,
				fmt.Sprintf("model version %s not found", decision.ModelVersionID), nil
		}
		return evalSummary, safety, compliance, "", fmt.Errorf("load model version: %w", err)
	}

	ref := models.ModelRef{Type: models.ModelRefFTModelVersion, Value: mv.ID.String()}
	run, err := w.store.LatestCompletedEvalRun(ctx, scope, ref)
	if err != nil {
		if pipeline.Permanent(err) {
			return evalSummary, safety, compliance,
				fmt.Sprintf("no completed eval run for model version %s", mv.ID), nil
		}
		return evalSummary, safety, compliance, "", fmt.Errorf("load eval run: %w", err)
	}

	var metrics evaluation.Metrics
	if err := json.Unmarshal(run.Metrics, &metrics); err != nil {
		return evalSummary, safety, compliance, "", fmt.Errorf("decode eval metrics: %w", err)
	}
	evalSummary = metrics.Summary(run.SuiteID.String())
	if err := json.Unmarshal(run.SafetyReport, &safety); err != nil {
		return evalSummary, safety, compliance, "", fmt.Errorf("decode safety report: %w", err)
	}

	compliance = governance.ComplianceReport{CostBudgetUSD: w.costBudget}
	if mv.FineTuneJobID != nil {
		job, err := w.store.GetFineTuneJob(ctx, scope, *mv.FineTuneJobID)
		if err != nil {
			if pipeline.Permanent(err) {
				return evalSummary, safety, compliance,
					fmt.Sprintf("finetune job %s not found", *mv.FineTuneJobID), nil
			}
			return evalSummary, safety, compliance, "", fmt.Errorf("load finetune job: %w", err)
		}
		compliance.Tracked = job.GovernanceTracked
		if job.CostActualUSD != nil {
			compliance.CostActualUSD = *job.CostActualUSD
		}
		compliance.Pass = compliance.Tracked &&
			(w.costBudget <= 0 || compliance.CostActualUSD <= w.costBudget)
	} else {
		// Externally registered versions have no training run to audit.
		compliance.Tracked = true
		compliance.Pass = true
	}

	return evalSummary, safety, compliance, "", nil
}

func (w *PromotionWorker) reject(ctx context.Context, scope tenant.Scope, id uuid.UUID, reasons []string, safetyPass, compliancePass *bool) error {
	ok, err := w.store.RejectPromotion(ctx, scope, id, reasons, safetyPass, compliancePass)
	if err != nil {
		return fmt.Errorf("reject promotion: %w", err)
	}
	if ok {
		w.notifier.Emit(ctx, scope, EventPromotionDecided, map[string]any{
			"decision_id": id,
			"decision":    models.DecisionRejected,
			"reasons":     reasons,
		})
	}
	w.logger.Info("promotion rejected", "decision_id", id, "reasons", reasons)
	return nil
}

// settle routes a transient error: retry while attempts remain; on the last
// attempt the decision settles as rejected so it cannot stay blocked forever.
func (w *PromotionWorker) settle(ctx context.Context, scope tenant.Scope, id uuid.UUID, cause error) error {
	if !lastAttempt(ctx) {
		return cause
	}
	reasons := []string{fmt.Sprintf("internal error: %v", cause)}
	if _, err := w.store.RejectPromotion(ctx, scope, id, reasons, nil, nil); err != nil {
		w.logger.Error("promotion: reject on final attempt", "decision_id", id, "error", err)
	}
	return cause
}
