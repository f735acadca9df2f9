package workers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/modelplane/modelplane/internal/dataset"
	"github.com/modelplane/modelplane/internal/finetune"
	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/pipeline"
	"github.com/modelplane/modelplane/internal/queue"
	"github.com/modelplane/modelplane/internal/tenant"
)

type mockFinetuneStore struct {
	job     *models.FineTuneJob
	dataset *models.Dataset

	providerJobID  string
	completedCalls int
	actualCost     *float64
	failedCalls    int
	failReason     string
	createdVersion *models.ModelVersion
}

func (m *mockFinetuneStore) GetFineTuneJob(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.FineTuneJob, error) {
	if m.job == nil || m.job.ID != id {
		return nil, pipeline.NotFound("finetune job", id.String())
	}
	return m.job, nil
}

func (m *mockFinetuneStore) GetDataset(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.Dataset, error) {
	if m.dataset == nil || m.dataset.ID != id {
		return nil, pipeline.NotFound("dataset", id.String())
	}
	return m.dataset, nil
}

func (m *mockFinetuneStore) SetProviderJob(ctx context.Context, scope tenant.Scope, id uuid.UUID, providerJobID string) (bool, error) {
	if m.providerJobID != "" {
		return false, nil
	}
	m.providerJobID = providerJobID
	return true, nil
}

func (m *mockFinetuneStore) CompleteFineTuneJob(ctx context.Context, scope tenant.Scope, id uuid.UUID, result any, costActualUSD *float64) (bool, error) {
	m.completedCalls++
	m.actualCost = costActualUSD
	return true, nil
}

func (m *mockFinetuneStore) FailFineTuneJob(ctx context.Context, scope tenant.Scope, id uuid.UUID, reason string) (bool, error) {
	m.failedCalls++
	m.failReason = reason
	return true, nil
}

func (m *mockFinetuneStore) CreateModelVersion(ctx context.Context, scope tenant.Scope, provider, providerModelID string, fineTuneJobID *uuid.UUID) (*models.ModelVersion, error) {
	m.createdVersion = &models.ModelVersion{
		ID: uuid.New(), TenantID: scope.TenantID, ProjectID: scope.ProjectID,
		Provider: provider, ProviderModelID: providerModelID,
		FineTuneJobID: fineTuneJobID, Status: models.ModelVersionCandidate,
	}
	return m.createdVersion, nil
}

// fakeTrainer returns scripted job statuses in order.
type fakeTrainer struct {
	submitCalls int
	lastSubmit  finetune.SubmitRequest
	jobID       string
	statuses    []*finetune.JobStatus
	statusIdx   int
}

func (f *fakeTrainer) Submit(ctx context.Context, req finetune.SubmitRequest) (string, error) {
	f.submitCalls++
	f.lastSubmit = req
	return f.jobID, nil
}

func (f *fakeTrainer) Status(ctx context.Context, providerJobID string) (*finetune.JobStatus, error) {
	s := f.statuses[f.statusIdx]
	if f.statusIdx < len(f.statuses)-1 {
		f.statusIdx++
	}
	return s, nil
}

func finetuneTaskFor(t *testing.T, scope tenant.Scope, jobID uuid.UUID) []byte {
	t.Helper()
	b, err := json.Marshal(queue.FinetuneRunPayload{
		JobID: jobID, TenantID: scope.TenantID, ProjectID: scope.ProjectID,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return b
}

func finetuneFixture(scope tenant.Scope) (*models.FineTuneJob, *models.Dataset) {
	ds := &models.Dataset{
		ID: uuid.New(), TenantID: scope.TenantID, ProjectID: scope.ProjectID,
		Format: models.DatasetFormatChat, Status: models.DatasetStatusReady,
	}
	job := &models.FineTuneJob{
		ID: uuid.New(), TenantID: scope.TenantID, ProjectID: scope.ProjectID,
		Provider: "openai", Method: models.MethodSFT, BaseModel: "gpt-4o-mini-2024-07-18",
		DatasetID: ds.ID, Status: models.FTJobStatusQueued,
	}
	return job, ds
}

func seedArtifact(t *testing.T, st *fakeStorage, scope tenant.Scope, datasetID uuid.UUID) {
	t.Helper()
	artifact := `{"messages":[{"role":"user","content":"ping"},{"role":"assistant","content":"pong"}]}` + "\n"
	st.objects["artifacts/"+dataset.ArtifactKey(scope, datasetID)] = []byte(artifact)
}

func TestFinetuneWorkerSubmitsAndCompletes(t *testing.T) {
	scope := testScope()
	job, ds := finetuneFixture(scope)
	store := &mockFinetuneStore{job: job, dataset: ds}
	trainer := &fakeTrainer{
		jobID: "ftjob-1",
		statuses: []*finetune.JobStatus{
			{State: finetune.StateRunning},
			{State: finetune.StateSucceeded, ProviderModelID: "ft:gpt-4o-mini:custom", TrainedTokens: 10_000},
		},
	}
	st := newFakeStorage()
	seedArtifact(t, st, scope, ds.ID)
	notifier := &recordingNotifier{}
	w := NewFinetuneWorker(store, trainer, st, "artifacts", time.Millisecond, time.Second, 0, notifier, testLogger())

	task := mustTask(t, queue.TypeFinetuneRun, finetuneTaskFor(t, scope, job.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if trainer.submitCalls != 1 {
		t.Fatalf("submitCalls = %d, want 1", trainer.submitCalls)
	}
	if store.providerJobID != "ftjob-1" {
		t.Fatalf("provider job id = %q", store.providerJobID)
	}
	if store.createdVersion == nil || store.createdVersion.ProviderModelID != "ft:gpt-4o-mini:custom" {
		t.Fatalf("model version = %+v", store.createdVersion)
	}
	if store.createdVersion.FineTuneJobID == nil || *store.createdVersion.FineTuneJobID != job.ID {
		t.Fatal("model version must reference the finetune job")
	}
	if store.completedCalls != 1 {
		t.Fatalf("completedCalls = %d, want 1", store.completedCalls)
	}
	if store.actualCost == nil || *store.actualCost <= 0 {
		t.Fatalf("actual cost = %v, want positive", store.actualCost)
	}
	if !notifier.has(EventFinetuneCompleted) {
		t.Fatal("expected finetune_job.completed event")
	}
}

func TestFinetuneWorkerNoSubmitWhenDatasetNotReady(t *testing.T) {
	scope := testScope()
	job, ds := finetuneFixture(scope)
	ds.Status = models.DatasetStatusBuilding
	store := &mockFinetuneStore{job: job, dataset: ds}
	trainer := &fakeTrainer{jobID: "ftjob-1", statuses: []*finetune.JobStatus{{State: finetune.StateSucceeded}}}
	notifier := &recordingNotifier{}
	w := NewFinetuneWorker(store, trainer, newFakeStorage(), "artifacts", time.Millisecond, time.Second, 0, notifier, testLogger())

	task := mustTask(t, queue.TypeFinetuneRun, finetuneTaskFor(t, scope, job.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("precondition failure should ack, got %v", err)
	}
	if trainer.submitCalls != 0 {
		t.Fatal("no provider call when the dataset is not ready")
	}
	if store.failedCalls != 1 {
		t.Fatalf("failedCalls = %d, want 1", store.failedCalls)
	}
	if !notifier.has(EventFinetuneFailed) {
		t.Fatal("expected finetune_job.failed event")
	}
}

func TestFinetuneWorkerNoSubmitWhenOverBudget(t *testing.T) {
	scope := testScope()
	job, ds := finetuneFixture(scope)
	estimate := 50.0
	job.CostEstimateUSD = &estimate
	store := &mockFinetuneStore{job: job, dataset: ds}
	trainer := &fakeTrainer{jobID: "ftjob-1", statuses: []*finetune.JobStatus{{State: finetune.StateSucceeded}}}
	w := NewFinetuneWorker(store, trainer, newFakeStorage(), "artifacts", time.Millisecond, time.Second, 10.0, NopNotifier{}, testLogger())

	task := mustTask(t, queue.TypeFinetuneRun, finetuneTaskFor(t, scope, job.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("budget rejection should ack, got %v", err)
	}
	if trainer.submitCalls != 0 {
		t.Fatal("no provider call when the estimate exceeds the budget")
	}
	if store.failedCalls != 1 {
		t.Fatalf("failedCalls = %d, want 1", store.failedCalls)
	}
}

func TestFinetuneWorkerSettledJobIsNoOp(t *testing.T) {
	scope := testScope()
	job, ds := finetuneFixture(scope)
	job.Status = models.FTJobStatusCompleted
	store := &mockFinetuneStore{job: job, dataset: ds}
	trainer := &fakeTrainer{jobID: "ftjob-1", statuses: []*finetune.JobStatus{{State: finetune.StateSucceeded}}}
	w := NewFinetuneWorker(store, trainer, newFakeStorage(), "artifacts", time.Millisecond, time.Second, 0, NopNotifier{}, testLogger())

	task := mustTask(t, queue.TypeFinetuneRun, finetuneTaskFor(t, scope, job.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if trainer.submitCalls != 0 || store.completedCalls != 0 || store.failedCalls != 0 {
		t.Fatal("settled job must not be touched")
	}
}

func TestFinetuneWorkerResumesExistingProviderJob(t *testing.T) {
	scope := testScope()
	job, ds := finetuneFixture(scope)
	job.ProviderJobID = "ftjob-existing"
	store := &mockFinetuneStore{job: job, dataset: ds, providerJobID: "ftjob-existing"}
	trainer := &fakeTrainer{
		jobID:    "ftjob-should-not-appear",
		statuses: []*finetune.JobStatus{{State: finetune.StateSucceeded, ProviderModelID: "ft:model", TrainedTokens: 5000}},
	}
	w := NewFinetuneWorker(store, trainer, newFakeStorage(), "artifacts", time.Millisecond, time.Second, 0, NopNotifier{}, testLogger())

	task := mustTask(t, queue.TypeFinetuneRun, finetuneTaskFor(t, scope, job.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if trainer.submitCalls != 0 {
		t.Fatal("redelivery must not submit a second provider job")
	}
	if store.completedCalls != 1 {
		t.Fatalf("completedCalls = %d, want 1", store.completedCalls)
	}
}

func TestFinetuneWorkerProviderFailureIsTerminal(t *testing.T) {
	scope := testScope()
	job, ds := finetuneFixture(scope)
	store := &mockFinetuneStore{job: job, dataset: ds}
	trainer := &fakeTrainer{
		jobID:    "ftjob-1",
		statuses: []*finetune.JobStatus{{State: finetune.StateFailed, Message: "training loss diverged"}},
	}
	st := newFakeStorage()
	seedArtifact(t, st, scope, ds.ID)
	notifier := &recordingNotifier{}
	w := NewFinetuneWorker(store, trainer, st, "artifacts", time.Millisecond, time.Second, 0, notifier, testLogger())

	task := mustTask(t, queue.TypeFinetuneRun, finetuneTaskFor(t, scope, job.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("provider failure should ack, got %v", err)
	}
	if store.failedCalls != 1 {
		t.Fatalf("failedCalls = %d, want 1", store.failedCalls)
	}
	if store.completedCalls != 0 {
		t.Fatal("failed job must not be completed")
	}
	if !notifier.has(EventFinetuneFailed) {
		t.Fatal("expected finetune_job.failed event")
	}
}
