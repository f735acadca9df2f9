package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/modelplane/modelplane/internal/dataset"
	"github.com/modelplane/modelplane/internal/finetune"
	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/pipeline"
	"github.com/modelplane/modelplane/internal/queue"
	"github.com/modelplane/modelplane/internal/storage"
	"github.com/modelplane/modelplane/internal/tenant"
)

type FinetuneStore interface {
	GetFineTuneJob(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.FineTuneJob, error)
	GetDataset(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.Dataset, error)
	SetProviderJob(ctx context.Context, scope tenant.Scope, id uuid.UUID, providerJobID string) (bool, error)
	CompleteFineTuneJob(ctx context.Context, scope tenant.Scope, id uuid.UUID, result any, costActualUSD *float64) (bool, error)
	FailFineTuneJob(ctx context.Context, scope tenant.Scope, id uuid.UUID, reason string) (bool, error)
	CreateModelVersion(ctx context.Context, scope tenant.Scope, provider, providerModelID string, fineTuneJobID *uuid.UUID) (*models.ModelVersion, error)
}

// FinetuneResult is what a completed job records.
type FinetuneResult struct {
	ProviderModelID string    `json:"provider_model_id"`
	ModelVersionID  uuid.UUID `json:"model_version_id"`
	TrainedTokens   int       `json:"trained_tokens"`
}

// FinetuneWorker submits a training job to the provider and polls it to a
// terminal state within the task's execution budget. The provider job id is
// persisted before polling starts, so a redelivered task resumes polling the
// existing provider job instead of submitting a second one.
type FinetuneWorker struct {
	store        FinetuneStore
	trainer      finetune.Trainer
	storage      storage.Storage
	bucket       string
	pollInterval time.Duration
	trainTimeout time.Duration
	costBudget   float64
	notifier     Notifier
	logger       *slog.Logger
}

func NewFinetuneWorker(store FinetuneStore, trainer finetune.Trainer, st storage.Storage, bucket string, pollInterval, trainTimeout time.Duration, costBudget float64, notifier Notifier, logger *slog.Logger) *FinetuneWorker {
	return &FinetuneWorker{
		store:        store,
		trainer:      trainer,
		storage:      st,
		bucket:       bucket,
		pollInterval: pollInterval,
		trainTimeout: trainTimeout,
		costBudget:   costBudget,
		notifier:     notifier,
		logger:       logger,
	}
}

func (w *FinetuneWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.FinetuneRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("finetune run: bad payload", "error", err)
		return nil
	}
	if err := payload.Validate(); err != nil {
		w.logger.Error("finetune run: invalid payload", "error", err)
		return nil
	}
	scope := tenant.Scope{TenantID: payload.TenantID, ProjectID: payload.ProjectID}

	job, err := w.store.GetFineTuneJob(ctx, scope, payload.JobID)
	if err != nil {
		if pipeline.Permanent(err) {
			w.logger.Warn("finetune run: job gone", "job_id", payload.JobID, "error", err)
			return nil
		}
		return fmt.Errorf("load finetune job: %w", err)
	}
	if job.Status != models.FTJobStatusQueued {
		w.logger.Info("finetune run: already settled", "job_id", job.ID, "status", job.Status)
		return nil
	}

	providerJobID := job.ProviderJobID
	if providerJobID == "" {
		providerJobID, err = w.submit(ctx, scope, job)
		if err != nil {
			if pipeline.Permanent(err) {
				return w.fail(ctx, scope, job.ID, err.Error())
			}
			return w.settle(ctx, scope, job.ID, err)
		}
	} else {
		w.logger.Info("finetune run: resuming provider job", "job_id", job.ID, "provider_job_id", providerJobID)
	}

	status, err := w.poll(ctx, providerJobID)
	if err != nil {
		return w.settle(ctx, scope, job.ID, err)
	}

	if status.State == finetune.StateFailed {
		return w.fail(ctx, scope, job.ID, fmt.Sprintf("provider job failed: %s", status.Message))
	}

	mv, err := w.store.CreateModelVersion(ctx, scope, job.Provider, status.ProviderModelID, &job.ID)
	if err != nil {
		return w.settle(ctx, scope, job.ID, fmt.Errorf("register model version: %w", err))
	}

	actual := finetune.ActualCost(job.BaseModel, status.TrainedTokens)
	result := FinetuneResult{
		ProviderModelID: status.ProviderModelID,
		ModelVersionID:  mv.ID,
		TrainedTokens:   status.TrainedTokens,
	}
	ok, err := w.store.CompleteFineTuneJob(ctx, scope, job.ID, result, &actual)
	if err != nil {
		return fmt.Errorf("complete finetune job: %w", err)
	}
	if !ok {
		w.logger.Info("finetune run: lost the finish race", "job_id", job.ID)
		return nil
	}

	w.notifier.Emit(ctx, scope, EventFinetuneCompleted, map[string]any{
		"job_id":            job.ID,
		"model_version_id":  mv.ID,
		"provider_model_id": status.ProviderModelID,
		"cost_actual_usd":   actual,
	})
	w.logger.Info("finetune job completed", "job_id", job.ID,
		"provider_model_id", status.ProviderModelID, "trained_tokens", status.TrainedTokens)
	return nil
}

// submit checks the dataset and cost preconditions, uploads the artifact to
// the provider and records the provider job id. No provider call happens
// unless the dataset is ready and the estimate is inside budget.
func (w *FinetuneWorker) submit(ctx context.Context, scope tenant.Scope, job *models.FineTuneJob) (string, error) {
	ds, err := w.store.GetDataset(ctx, scope, job.DatasetID)
	if err != nil {
		return "", err
	}
	if ds.Status != models.DatasetStatusReady {
		return "", pipeline.Precondition("dataset %s is %s, not ready", ds.ID, ds.Status)
	}
	if w.costBudget > 0 && job.CostEstimateUSD != nil && *job.CostEstimateUSD > w.costBudget {
		return "", pipeline.Precondition("estimated cost $%.2f exceeds budget $%.2f", *job.CostEstimateUSD, w.costBudget)
	}

	key := dataset.ArtifactKey(scope, ds.ID)
	rc, err := w.storage.Get(ctx, w.bucket, key)
	if err != nil {
		return "", fmt.Errorf("fetch training artifact: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read training artifact: %w", err)
	}

	if _, err := finetune.ValidateJSONL(bytes.NewReader(data), ds.Format); err != nil {
		return "", pipeline.Precondition("training artifact invalid: %v", err)
	}

	providerJobID, err := w.trainer.Submit(ctx, finetune.SubmitRequest{
		BaseModel:    job.BaseModel,
		Method:       job.Method,
		Suffix:       fmt.Sprintf("mp-%s", job.ID.String()[:8]),
		FileName:     fmt.Sprintf("%s.jsonl", ds.ID),
		TrainingData: data,
	})
	if err != nil {
		return "", fmt.Errorf("submit training job: %w", err)
	}

	ok, err := w.store.SetProviderJob(ctx, scope, job.ID, providerJobID)
	if err != nil {
		return "", fmt.Errorf("record provider job: %w", err)
	}
	if !ok {
		// A concurrent delivery already submitted. Keep polling the id we
		// just created; the CAS on completion still guarantees one winner.
		w.logger.Warn("finetune run: provider job already recorded", "job_id", job.ID)
	}
	return providerJobID, nil
}

// poll watches the provider job until it settles or the training budget runs
// out. A timeout is transient: the next delivery resumes from the persisted
// provider job id.
func (w *FinetuneWorker) poll(ctx context.Context, providerJobID string) (*finetune.JobStatus, error) {
	deadline := time.NewTimer(w.trainTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		status, err := w.trainer.Status(ctx, providerJobID)
		if err != nil {
			return nil, fmt.Errorf("poll provider job %s: %w", providerJobID, err)
		}
		if status.State != finetune.StateRunning {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("provider job %s still running after %s", providerJobID, w.trainTimeout)
		case <-ticker.C:
		}
	}
}

func (w *FinetuneWorker) settle(ctx context.Context, scope tenant.Scope, id uuid.UUID, cause error) error {
	if !lastAttempt(ctx) {
		return cause
	}
	if _, err := w.store.FailFineTuneJob(ctx, scope, id, cause.Error()); err != nil {
		w.logger.Error("finetune run: mark failed on final attempt", "job_id", id, "error", err)
	}
	w.notifier.Emit(ctx, scope, EventFinetuneFailed, map[string]any{
		"job_id": id, "reason": cause.Error(),
	})
	return cause
}

func (w *FinetuneWorker) fail(ctx context.Context, scope tenant.Scope, id uuid.UUID, reason string) error {
	ok, err := w.store.FailFineTuneJob(ctx, scope, id, reason)
	if err != nil {
		return fmt.Errorf("mark finetune job failed: %w", err)
	}
	if ok {
		w.notifier.Emit(ctx, scope, EventFinetuneFailed, map[string]any{
			"job_id": id, "reason": reason,
		})
	}
	w.logger.Warn("finetune job failed", "job_id", id, "reason", reason)
	return nil
}
