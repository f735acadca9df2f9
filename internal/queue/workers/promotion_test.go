package workers

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/modelplane/modelplane/internal/governance"
	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/pipeline"
	"github.com/modelplane/modelplane/internal/queue"
	"github.com/modelplane/modelplane/internal/tenant"
)

type mockPromotionStore struct {
	decision *models.PromotionDecision
	mv       *models.ModelVersion
	job      *models.FineTuneJob
	run      *models.EvalRun

	rejectCalls    int
	rejectReasons  []string
	approveCalls   int
	approveTarget  models.TargetRef
	approveVersion uuid.UUID
}

func (m *mockPromotionStore) GetPromotionDecision(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.PromotionDecision, error) {
	if m.decision == nil || m.decision.ID != id {
		return nil, pipeline.NotFound("promotion decision", id.String())
	}
	return m.decision, nil
}

func (m *mockPromotionStore) GetModelVersion(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.ModelVersion, error) {
	if m.mv == nil || m.mv.ID != id {
		return nil, pipeline.NotFound("model version", id.String())
	}
	return m.mv, nil
}

func (m *mockPromotionStore) GetFineTuneJob(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.FineTuneJob, error) {
	if m.job == nil || m.job.ID != id {
		return nil, pipeline.NotFound("finetune job", id.String())
	}
	return m.job, nil
}

func (m *mockPromotionStore) LatestCompletedEvalRun(ctx context.Context, scope tenant.Scope, ref models.ModelRef) (*models.EvalRun, error) {
	if m.run == nil {
		return nil, pipeline.NotFound("completed eval run for model", ref.Value)
	}
	return m.run, nil
}

func (m *mockPromotionStore) RejectPromotion(ctx context.Context, scope tenant.Scope, id uuid.UUID, reasons []string, safetyPass, compliancePass *bool) (bool, error) {
	m.rejectCalls++
	m.rejectReasons = reasons
	return true, nil
}

func (m *mockPromotionStore) ApprovePromotion(ctx context.Context, scope tenant.Scope, id uuid.UUID, modelVersionID uuid.UUID, target models.TargetRef, reasons []string, safetyPass, compliancePass *bool, evalSummary, governanceSummary any) (bool, *models.ProductionPointer, error) {
	m.approveCalls++
	m.approveTarget = target
	m.approveVersion = modelVersionID
	return true, &models.ProductionPointer{
		ID: uuid.New(), TenantID: scope.TenantID, ProjectID: scope.ProjectID,
		TargetType: target.Type, TargetValue: target.Value,
		ActiveModelVersionID: modelVersionID,
	}, nil
}

type fakePointerCache struct {
	invalidations []models.TargetRef
}

func (f *fakePointerCache) Invalidate(ctx context.Context, scope tenant.Scope, target models.TargetRef) error {
	f.invalidations = append(f.invalidations, target)
	return nil
}

func promotionTaskFor(t *testing.T, scope tenant.Scope, decisionID uuid.UUID) []byte {
	t.Helper()
	b, err := json.Marshal(queue.PromotionDecidePayload{
		DecisionID: decisionID, TenantID: scope.TenantID, ProjectID: scope.ProjectID,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return b
}

// promotionFixture wires a candidate with a passing eval run and a tracked,
// in-budget training job.
func promotionFixture(t *testing.T, scope tenant.Scope) *mockPromotionStore {
	t.Helper()
	job := &models.FineTuneJob{
		ID: uuid.New(), TenantID: scope.TenantID, ProjectID: scope.ProjectID,
		Status: models.FTJobStatusCompleted, GovernanceTracked: true,
	}
	cost := 3.25
	job.CostActualUSD = &cost

	mv := &models.ModelVersion{
		ID: uuid.New(), TenantID: scope.TenantID, ProjectID: scope.ProjectID,
		Provider: "openai", ProviderModelID: "ft:gpt-4o-mini:custom",
		FineTuneJobID: &job.ID, Status: models.ModelVersionCandidate,
	}

	metrics, err := json.Marshal(map[string]any{
		"sample_count": 20, "pass_rate": 0.9, "mean_score": 0.88, "pass": true,
	})
	if err != nil {
		t.Fatalf("marshal metrics: %v", err)
	}
	safety, err := json.Marshal(governance.SafetyReport{Scanned: 20, Flagged: 0, Pass: true})
	if err != nil {
		t.Fatalf("marshal safety report: %v", err)
	}
	run := &models.EvalRun{
		ID: uuid.New(), TenantID: scope.TenantID, ProjectID: scope.ProjectID,
		SuiteID: uuid.New(), Status: models.EvalRunStatusCompleted,
		Metrics: metrics, SafetyReport: safety,
	}

	decision := &models.PromotionDecision{
		ID: uuid.New(), TenantID: scope.TenantID, ProjectID: scope.ProjectID,
		ModelVersionID: mv.ID, TargetType: models.TargetAssistant, TargetValue: "support-bot",
		Decision: models.DecisionBlocked,
	}

	return &mockPromotionStore{decision: decision, mv: mv, job: job, run: run}
}

func TestPromotionWorkerApprovesAndInvalidatesCache(t *testing.T) {
	scope := testScope()
	store := promotionFixture(t, scope)
	cache := &fakePointerCache{}
	notifier := &recordingNotifier{}
	w := NewPromotionWorker(store, cache, 10.0, notifier, testLogger())

	task := mustTask(t, queue.TypePromotionDecide, promotionTaskFor(t, scope, store.decision.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if store.approveCalls != 1 {
		t.Fatalf("approveCalls = %d, want 1", store.approveCalls)
	}
	if store.rejectCalls != 0 {
		t.Fatal("approved decision must not also be rejected")
	}
	if store.approveVersion != store.mv.ID {
		t.Fatalf("approved version = %s, want %s", store.approveVersion, store.mv.ID)
	}
	if len(cache.invalidations) != 1 {
		t.Fatalf("cache invalidations = %d, want 1", len(cache.invalidations))
	}
	if cache.invalidations[0] != (models.TargetRef{Type: models.TargetAssistant, Value: "support-bot"}) {
		t.Fatalf("invalidated target = %+v", cache.invalidations[0])
	}
	if !notifier.has(EventPromotionDecided) {
		t.Fatal("expected promotion.decided event")
	}
}

func TestPromotionWorkerRejectsOnFailedEval(t *testing.T) {
	scope := testScope()
	store := promotionFixture(t, scope)
	metrics, err := json.Marshal(map[string]any{
		"sample_count": 20, "pass_rate": 0.4, "mean_score": 0.41, "pass": false,
	})
	if err != nil {
		t.Fatalf("marshal metrics: %v", err)
	}
	store.run.Metrics = metrics
	notifier := &recordingNotifier{}
	w := NewPromotionWorker(store, &fakePointerCache{}, 10.0, notifier, testLogger())

	task := mustTask(t, queue.TypePromotionDecide, promotionTaskFor(t, scope, store.decision.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if store.rejectCalls != 1 {
		t.Fatalf("rejectCalls = %d, want 1", store.rejectCalls)
	}
	if store.approveCalls != 0 {
		t.Fatal("rejected decision must not swap the pointer")
	}
	if len(store.rejectReasons) != 1 || !strings.Contains(store.rejectReasons[0], "eval suite failed") {
		t.Fatalf("reasons = %v", store.rejectReasons)
	}
	if !notifier.has(EventPromotionDecided) {
		t.Fatal("expected promotion.decided event")
	}
}

func TestPromotionWorkerRejectsOverBudgetTraining(t *testing.T) {
	scope := testScope()
	store := promotionFixture(t, scope)
	cost := 42.0
	store.job.CostActualUSD = &cost
	w := NewPromotionWorker(store, &fakePointerCache{}, 10.0, NopNotifier{}, testLogger())

	task := mustTask(t, queue.TypePromotionDecide, promotionTaskFor(t, scope, store.decision.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if store.rejectCalls != 1 {
		t.Fatalf("rejectCalls = %d, want 1", store.rejectCalls)
	}
	if len(store.rejectReasons) != 1 || !strings.Contains(store.rejectReasons[0], "cost compliance failed") {
		t.Fatalf("reasons = %v", store.rejectReasons)
	}
}

func TestPromotionWorkerRejectsWithoutCompletedEvalRun(t *testing.T) {
	scope := testScope()
	store := promotionFixture(t, scope)
	store.run = nil
	w := NewPromotionWorker(store, &fakePointerCache{}, 10.0, NopNotifier{}, testLogger())

	task := mustTask(t, queue.TypePromotionDecide, promotionTaskFor(t, scope, store.decision.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if store.rejectCalls != 1 {
		t.Fatalf("rejectCalls = %d, want 1", store.rejectCalls)
	}
	if len(store.rejectReasons) != 1 || !strings.Contains(store.rejectReasons[0], "no completed eval run") {
		t.Fatalf("reasons = %v", store.rejectReasons)
	}
}

func TestPromotionWorkerRejectsMissingModelVersion(t *testing.T) {
	scope := testScope()
	store := promotionFixture(t, scope)
	store.mv = nil
	w := NewPromotionWorker(store, &fakePointerCache{}, 10.0, NopNotifier{}, testLogger())

	task := mustTask(t, queue.TypePromotionDecide, promotionTaskFor(t, scope, store.decision.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if store.rejectCalls != 1 {
		t.Fatalf("rejectCalls = %d, want 1", store.rejectCalls)
	}
	if len(store.rejectReasons) != 1 || !strings.Contains(store.rejectReasons[0], "not found") {
		t.Fatalf("reasons = %v", store.rejectReasons)
	}
}

func TestPromotionWorkerApprovesExternalModelWithoutTrainingJob(t *testing.T) {
	scope := testScope()
	store := promotionFixture(t, scope)
	store.mv.FineTuneJobID = nil
	store.job = nil
	w := NewPromotionWorker(store, &fakePointerCache{}, 10.0, NopNotifier{}, testLogger())

	task := mustTask(t, queue.TypePromotionDecide, promotionTaskFor(t, scope, store.decision.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if store.approveCalls != 1 {
		t.Fatalf("approveCalls = %d, want 1", store.approveCalls)
	}
}

func TestPromotionWorkerSettledDecisionIsNoOp(t *testing.T) {
	scope := testScope()
	store := promotionFixture(t, scope)
	store.decision.Decision = models.DecisionApproved
	w := NewPromotionWorker(store, &fakePointerCache{}, 10.0, NopNotifier{}, testLogger())

	task := mustTask(t, queue.TypePromotionDecide, promotionTaskFor(t, scope, store.decision.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if store.approveCalls != 0 || store.rejectCalls != 0 {
		t.Fatal("settled decision must not be re-decided")
	}
}
