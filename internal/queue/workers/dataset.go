package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/modelplane/modelplane/internal/dataset"
	"github.com/modelplane/modelplane/internal/governance"
	"github.com/modelplane/modelplane/internal/llm"
	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/pipeline"
	"github.com/modelplane/modelplane/internal/queue"
	"github.com/modelplane/modelplane/internal/storage"
	"github.com/modelplane/modelplane/internal/tenant"
	"github.com/modelplane/modelplane/internal/vectorstore"
	"github.com/modelplane/modelplane/pkg/tokenizer"
)

type DatasetStore interface {
	GetDataset(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.Dataset, error)
	ListSourceTraces(ctx context.Context, scope tenant.Scope, limit int) ([]models.SourceTrace, error)
	MarkDatasetReady(ctx context.Context, scope tenant.Scope, id uuid.UUID, storageURI string, recordCount, tokenEstimate int) (bool, error)
	MarkDatasetFailed(ctx context.Context, scope tenant.Scope, id uuid.UUID, reason string) (bool, error)
}

type VectorUpserter interface {
	Upsert(ctx context.Context, records []vectorstore.Record) error
}

// DatasetWorker builds a sanitized JSONL training artifact from the
// project's source traces and, when requested, embeds the traces into the
// dataset's vector collection.
type DatasetWorker struct {
	store          DatasetStore
	storage        storage.Storage
	bucket         string
	scanner        *governance.Scanner
	vectors        VectorUpserter
	gateway        llm.Gateway
	embeddingModel string
	notifier       Notifier
	logger         *slog.Logger
}

func NewDatasetWorker(store DatasetStore, st storage.Storage, bucket string, vectors VectorUpserter, gw llm.Gateway, embeddingModel string, notifier Notifier, logger *slog.Logger) *DatasetWorker {
	return &DatasetWorker{
		store:          store,
		storage:        st,
		bucket:         bucket,
		scanner:        governance.NewScanner(),
		vectors:        vectors,
		gateway:        gw,
		embeddingModel: embeddingModel,
		notifier:       notifier,
		logger:         logger,
	}
}

func (w *DatasetWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DatasetBuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("dataset build: bad payload", "error", err)
		return nil
	}
	if err := payload.Validate(); err != nil {
		w.logger.Error("dataset build: invalid payload", "error", err)
		return nil
	}
	scope := tenant.Scope{TenantID: payload.TenantID, ProjectID: payload.ProjectID}

	ds, err := w.store.GetDataset(ctx, scope, payload.DatasetID)
	if err != nil {
		if pipeline.Permanent(err) {
			w.logger.Warn("dataset build: dataset gone", "dataset_id", payload.DatasetID, "error", err)
			return nil
		}
		return fmt.Errorf("load dataset: %w", err)
	}
	if ds.Status != models.DatasetStatusBuilding {
		w.logger.Info("dataset build: already settled", "dataset_id", ds.ID, "status", ds.Status)
		return nil
	}

	w.logger.Info("building dataset", "dataset_id", ds.ID, "format", ds.Format)

	traces, err := w.store.ListSourceTraces(ctx, scope, 0)
	if err != nil {
		return w.settle(ctx, scope, ds.ID, fmt.Errorf("list source traces: %w", err))
	}

	result, err := dataset.Render(ds.Format, traces, w.scanner)
	if err != nil {
		// An empty or malformed trace set will never succeed; fail the
		// dataset instead of retrying.
		return w.fail(ctx, scope, ds.ID, err.Error())
	}

	key := dataset.ArtifactKey(scope, ds.ID)
	uri, err := w.storage.Put(ctx, w.bucket, key, bytes.NewReader(result.Data), "application/jsonl")
	if err != nil {
		return w.settle(ctx, scope, ds.ID, fmt.Errorf("store artifact: %w", err))
	}

	if ds.Vectorize {
		if err := w.vectorize(ctx, scope, ds.ID, traces); err != nil {
			return w.settle(ctx, scope, ds.ID, fmt.Errorf("vectorize traces: %w", err))
		}
	}

	ok, err := w.store.MarkDatasetReady(ctx, scope, ds.ID, uri, result.RecordCount, result.TokenEstimate)
	if err != nil {
		return fmt.Errorf("mark dataset ready: %w", err)
	}
	if !ok {
		w.logger.Info("dataset build: lost the finish race", "dataset_id", ds.ID)
		return nil
	}

	w.notifier.Emit(ctx, scope, EventDatasetReady, map[string]any{
		"dataset_id":     ds.ID,
		"storage_uri":    uri,
		"record_count":   result.RecordCount,
		"token_estimate": result.TokenEstimate,
		"dropped_count":  result.DroppedCount,
	})
	w.logger.Info("dataset ready", "dataset_id", ds.ID,
		"records", result.RecordCount, "dropped", result.DroppedCount)
	return nil
}

// vectorize embeds the usable traces into the dataset's own collection so
// vector_retrieval eval suites can select from them.
func (w *DatasetWorker) vectorize(ctx context.Context, scope tenant.Scope, datasetID uuid.UUID, traces []models.SourceTrace) error {
	var records []vectorstore.Record
	for _, tr := range traces {
		if tr.Input == "" || tr.Output == "" {
			continue
		}
		if len(w.scanner.Scan(tr.Input)) > 0 || len(w.scanner.Scan(tr.Output)) > 0 {
			continue
		}
		resp, err := w.gateway.Embed(ctx, llm.EmbeddingRequest{
			Model: w.embeddingModel,
			Input: []string{tr.Input},
		})
		if err != nil {
			return fmt.Errorf("embed trace %s: %w", tr.ID, err)
		}
		if len(resp.Embeddings) == 0 {
			return fmt.Errorf("empty embedding for trace %s", tr.ID)
		}
		records = append(records, vectorstore.Record{
			ID:         tr.ID,
			TenantID:   scope.TenantID,
			ProjectID:  scope.ProjectID,
			Collection: datasetID.String(),
			Input:      tr.Input,
			Expected:   tr.Output,
			Embedding:  resp.Embeddings[0],
			TokenCount: tokenizer.CountTokens(tr.Input),
		})
	}
	if len(records) == 0 {
		return nil
	}
	return w.vectors.Upsert(ctx, records)
}

// settle routes a transient error: retry while attempts remain, otherwise
// write the terminal failed state and surface the error to asynq.
func (w *DatasetWorker) settle(ctx context.Context, scope tenant.Scope, id uuid.UUID, cause error) error {
	if !lastAttempt(ctx) {
		return cause
	}
	if _, err := w.store.MarkDatasetFailed(ctx, scope, id, cause.Error()); err != nil {
		w.logger.Error("dataset build: mark failed on final attempt", "dataset_id", id, "error", err)
	}
	w.notifier.Emit(ctx, scope, EventDatasetFailed, map[string]any{
		"dataset_id": id, "reason": cause.Error(),
	})
	return cause
}

// fail writes the terminal failed state for a permanent error and acks.
func (w *DatasetWorker) fail(ctx context.Context, scope tenant.Scope, id uuid.UUID, reason string) error {
	ok, err := w.store.MarkDatasetFailed(ctx, scope, id, reason)
	if err != nil {
		return fmt.Errorf("mark dataset failed: %w", err)
	}
	if ok {
		w.notifier.Emit(ctx, scope, EventDatasetFailed, map[string]any{
			"dataset_id": id, "reason": reason,
		})
	}
	w.logger.Warn("dataset build failed", "dataset_id", id, "reason", reason)
	return nil
}
