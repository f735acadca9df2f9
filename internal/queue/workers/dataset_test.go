package workers

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/pipeline"
	"github.com/modelplane/modelplane/internal/queue"
	"github.com/modelplane/modelplane/internal/tenant"
)

type mockDatasetStore struct {
	dataset *models.Dataset
	traces  []models.SourceTrace

	readyCalls  int
	readyURI    string
	readyCount  int
	failedCalls int
	failReason  string
}

func (m *mockDatasetStore) GetDataset(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.Dataset, error) {
	if m.dataset == nil || m.dataset.ID != id {
		return nil, pipeline.NotFound("dataset", id.String())
	}
	return m.dataset, nil
}

func (m *mockDatasetStore) ListSourceTraces(ctx context.Context, scope tenant.Scope, limit int) ([]models.SourceTrace, error) {
	return m.traces, nil
}

func (m *mockDatasetStore) MarkDatasetReady(ctx context.Context, scope tenant.Scope, id uuid.UUID, storageURI string, recordCount, tokenEstimate int) (bool, error) {
	m.readyCalls++
	m.readyURI = storageURI
	m.readyCount = recordCount
	return true, nil
}

func (m *mockDatasetStore) MarkDatasetFailed(ctx context.Context, scope tenant.Scope, id uuid.UUID, reason string) (bool, error) {
	m.failedCalls++
	m.failReason = reason
	return true, nil
}

func datasetTaskFor(t *testing.T, scope tenant.Scope, id uuid.UUID) []byte {
	t.Helper()
	b, err := json.Marshal(queue.DatasetBuildPayload{
		DatasetID: id, TenantID: scope.TenantID, ProjectID: scope.ProjectID,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return b
}

func TestDatasetWorkerBuildsArtifact(t *testing.T) {
	scope := testScope()
	ds := &models.Dataset{
		ID: uuid.New(), TenantID: scope.TenantID, ProjectID: scope.ProjectID,
		Format: models.DatasetFormatChat, Status: models.DatasetStatusBuilding,
	}
	store := &mockDatasetStore{
		dataset: ds,
		traces: []models.SourceTrace{
			{ID: uuid.New(), Input: "ping", Output: "pong"},
			{ID: uuid.New(), Input: "2+2", Output: "4"},
		},
	}
	st := newFakeStorage()
	notifier := &recordingNotifier{}
	w := NewDatasetWorker(store, st, "artifacts", &fakeVectors{}, &fakeGateway{}, "embed-small", notifier, testLogger())

	task := mustTask(t, queue.TypeDatasetBuild, datasetTaskFor(t, scope, ds.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if store.readyCalls != 1 {
		t.Fatalf("readyCalls = %d, want 1", store.readyCalls)
	}
	if store.readyCount != 2 {
		t.Fatalf("record count = %d, want 2", store.readyCount)
	}
	if len(st.objects) != 1 {
		t.Fatalf("stored objects = %d, want 1", len(st.objects))
	}
	for _, data := range st.objects {
		if !strings.Contains(string(data), "ping") {
			t.Fatal("artifact missing trace content")
		}
	}
	if !notifier.has(EventDatasetReady) {
		t.Fatal("expected dataset.ready event")
	}
}

func TestDatasetWorkerSettledDatasetIsNoOp(t *testing.T) {
	scope := testScope()
	ds := &models.Dataset{
		ID: uuid.New(), TenantID: scope.TenantID, ProjectID: scope.ProjectID,
		Format: models.DatasetFormatChat, Status: models.DatasetStatusReady,
	}
	store := &mockDatasetStore{dataset: ds}
	notifier := &recordingNotifier{}
	w := NewDatasetWorker(store, newFakeStorage(), "artifacts", &fakeVectors{}, &fakeGateway{}, "embed-small", notifier, testLogger())

	task := mustTask(t, queue.TypeDatasetBuild, datasetTaskFor(t, scope, ds.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if store.readyCalls != 0 || store.failedCalls != 0 {
		t.Fatal("settled dataset must not be written again")
	}
	if len(notifier.events) != 0 {
		t.Fatalf("events = %v, want none", notifier.events)
	}
}

func TestDatasetWorkerMissingDatasetAcks(t *testing.T) {
	scope := testScope()
	store := &mockDatasetStore{}
	w := NewDatasetWorker(store, newFakeStorage(), "artifacts", &fakeVectors{}, &fakeGateway{}, "embed-small", NopNotifier{}, testLogger())

	task := mustTask(t, queue.TypeDatasetBuild, datasetTaskFor(t, scope, uuid.New()))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("missing dataset should ack, got %v", err)
	}
	if store.failedCalls != 0 {
		t.Fatal("nothing to fail when the dataset is gone")
	}
}

func TestDatasetWorkerNoUsableTracesFailsTerminally(t *testing.T) {
	scope := testScope()
	ds := &models.Dataset{
		ID: uuid.New(), TenantID: scope.TenantID, ProjectID: scope.ProjectID,
		Format: models.DatasetFormatChat, Status: models.DatasetStatusBuilding,
	}
	store := &mockDatasetStore{
		dataset: ds,
		traces:  []models.SourceTrace{{ID: uuid.New(), Input: "", Output: ""}},
	}
	notifier := &recordingNotifier{}
	w := NewDatasetWorker(store, newFakeStorage(), "artifacts", &fakeVectors{}, &fakeGateway{}, "embed-small", notifier, testLogger())

	task := mustTask(t, queue.TypeDatasetBuild, datasetTaskFor(t, scope, ds.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("permanent failure should ack, got %v", err)
	}
	if store.failedCalls != 1 {
		t.Fatalf("failedCalls = %d, want 1", store.failedCalls)
	}
	if !notifier.has(EventDatasetFailed) {
		t.Fatal("expected dataset.failed event")
	}
}

func TestDatasetWorkerVectorizeUsesDatasetCollection(t *testing.T) {
	scope := testScope()
	ds := &models.Dataset{
		ID: uuid.New(), TenantID: scope.TenantID, ProjectID: scope.ProjectID,
		Format: models.DatasetFormatChat, Status: models.DatasetStatusBuilding,
		Vectorize: true,
	}
	store := &mockDatasetStore{
		dataset: ds,
		traces: []models.SourceTrace{
			{ID: uuid.New(), Input: "ping", Output: "pong"},
			{ID: uuid.New(), Input: "", Output: "dropped"},
		},
	}
	vectors := &fakeVectors{}
	w := NewDatasetWorker(store, newFakeStorage(), "artifacts", vectors, &fakeGateway{}, "embed-small", NopNotifier{}, testLogger())

	task := mustTask(t, queue.TypeDatasetBuild, datasetTaskFor(t, scope, ds.ID))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if len(vectors.records) != 1 {
		t.Fatalf("upserted records = %d, want 1", len(vectors.records))
	}
	if vectors.records[0].Collection != ds.ID.String() {
		t.Fatalf("collection = %q, want dataset id", vectors.records[0].Collection)
	}
}

func TestDatasetWorkerBadPayloadAcks(t *testing.T) {
	w := NewDatasetWorker(&mockDatasetStore{}, newFakeStorage(), "artifacts", &fakeVectors{}, &fakeGateway{}, "embed-small", NopNotifier{}, testLogger())
	task := mustTask(t, queue.TypeDatasetBuild, []byte("not json"))
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("bad payload should ack, got %v", err)
	}
}
