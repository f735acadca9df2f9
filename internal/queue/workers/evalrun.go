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
	"github.com/modelplane/modelplane/internal/llm"
	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/pipeline"
	"github.com/modelplane/modelplane/internal/queue"
	"github.com/modelplane/modelplane/internal/tenant"
)

type EvalStore interface {
	GetEvalRun(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.EvalRun, error)
	GetEvalSuite(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.EvalSuite, error)
	GetModelVersion(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.ModelVersion, error)
	SetEvalRunStarted(ctx context.Context, scope tenant.Scope, id uuid.UUID) error
	CompleteEvalRun(ctx context.Context, scope tenant.Scope, id uuid.UUID, metrics, safetyReport any) (bool, error)
	FailEvalRun(ctx context.Context, scope tenant.Scope, id uuid.UUID, reason string) (bool, error)
}

// SampleResolver materializes a suite's sample set.
type SampleResolver interface {
	Resolve(ctx context.Context, scope tenant.Scope, suite *models.EvalSuite) ([]models.EvalSample, error)
}

// EvalWorker runs an eval suite against the referenced model: one chat call
// per sample, scored against the expected answer, plus a content-safety scan
// over everything the model said.
type EvalWorker struct {
	store    EvalStore
	resolver SampleResolver
	gateway  llm.Gateway
	scanner  *governance.Scanner
	notifier Notifier
	logger   *slog.Logger
}

func NewEvalWorker(store EvalStore, resolver SampleResolver, gw llm.Gateway, notifier Notifier, logger *slog.Logger) *EvalWorker {
	return &EvalWorker{
		store:    store,
		resolver: resolver,
		gateway:  gw,
		scanner:  governance.NewScanner(),
		notifier: notifier,
		logger:   logger,
	}
}

func (w *EvalWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.EvalRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("eval run: bad payload", "error", err)
		return nil
	}
	if err := payload.Validate(); err != nil {
		w.logger.Error("eval run: invalid payload", "error", err)
		return nil
	}
	scope := tenant.Scope{TenantID: payload.TenantID, ProjectID: payload.ProjectID}

	run, err := w.store.GetEvalRun(ctx, scope, payload.EvalRunID)
	if err != nil {
		if pipeline.Permanent(err) {
			w.logger.Warn("eval run: run gone", "eval_run_id", payload.EvalRunID, "error", err)
			return nil
		}
		return fmt.Errorf("load eval run: %w", err)
	}
	if run.Status != models.EvalRunStatusQueued {
		w.logger.Info("eval run: already settled", "eval_run_id", run.ID, "status", run.Status)
		return nil
	}

	if err := w.store.SetEvalRunStarted(ctx, scope, run.ID); err != nil {
		return fmt.Errorf("stamp started: %w", err)
	}

	suite, err := w.store.GetEvalSuite(ctx, scope, run.SuiteID)
	if err != nil {
		if pipeline.Permanent(err) {
			return w.fail(ctx, scope, run.ID, err.Error())
		}
		return fmt.Errorf("load eval suite: %w", err)
	}

	samples, err := w.resolver.Resolve(ctx, scope, suite)
	if err != nil {
		if pipeline.Permanent(err) {
			return w.fail(ctx, scope, run.ID, err.Error())
		}
		return w.settle(ctx, scope, run.ID, err)
	}

	model, err := w.resolveModel(ctx, scope, run)
	if err != nil {
		if pipeline.Permanent(err) {
			return w.fail(ctx, scope, run.ID, err.Error())
		}
		return w.settle(ctx, scope, run.ID, err)
	}

	w.logger.Info("running eval", "eval_run_id", run.ID, "model", model, "samples", len(samples))

	results := make([]evaluation.SampleResult, 0, len(samples))
	outputs := make([]string, 0, len(samples))
	for _, sample := range samples {
		resp, err := w.gateway.Chat(ctx, llm.ChatRequest{
			Model:    model,
			Messages: []llm.Message{{Role: "user", Content: sample.Input}},
		})
		if err != nil {
			return w.settle(ctx, scope, run.ID, fmt.Errorf("chat completion: %w", err))
		}
		results = append(results, evaluation.Grade(sample.Input, sample.Expected, resp.Content))
		outputs = append(outputs, resp.Content)
	}

	metrics := evaluation.Aggregate(results)
	report := w.scanner.ScanOutputs(outputs)

	ok, err := w.store.CompleteEvalRun(ctx, scope, run.ID, metrics, report)
	if err != nil {
		return fmt.Errorf("complete eval run: %w", err)
	}
	if !ok {
		w.logger.Info("eval run: lost the finish race", "eval_run_id", run.ID)
		return nil
	}

	w.notifier.Emit(ctx, scope, EventEvalRunCompleted, map[string]any{
		"eval_run_id": run.ID,
		"suite_id":    run.SuiteID,
		"pass":        metrics.Pass,
		"pass_rate":   metrics.PassRate,
		"safety_pass": report.Pass,
	})
	w.logger.Info("eval run completed", "eval_run_id", run.ID,
		"pass_rate", metrics.PassRate, "flagged", report.Flagged)
	return nil
}

// resolveModel maps the run's model ref to a provider-callable model id.
func (w *EvalWorker) resolveModel(ctx context.Context, scope tenant.Scope, run *models.EvalRun) (string, error) {
	switch run.ModelRefType {
	case models.ModelRefBaseModel, models.ModelRefProviderModelID:
		return run.ModelRefValue, nil
	case models.ModelRefFTModelVersion:
		id, err := uuid.Parse(run.ModelRefValue)
		if err != nil {
			return "", pipeline.Precondition("model ref %q is not a model version id", run.ModelRefValue)
		}
		mv, err := w.store.GetModelVersion(ctx, scope, id)
		if err != nil {
			return "", err
		}
		return mv.ProviderModelID, nil
	default:
		return "", pipeline.Precondition("unknown model ref type %q", run.ModelRefType)
	}
}

func (w *EvalWorker) settle(ctx context.Context, scope tenant.Scope, id uuid.UUID, cause error) error {
	if !lastAttempt(ctx) {
		return cause
	}
	if _, err := w.store.FailEvalRun(ctx, scope, id, cause.Error()); err != nil {
		w.logger.Error("eval run: mark failed on final attempt", "eval_run_id", id, "error", err)
	}
	w.notifier.Emit(ctx, scope, EventEvalRunFailed, map[string]any{
		"eval_run_id": id, "reason": cause.Error(),
	})
	return cause
}

func (w *EvalWorker) fail(ctx context.Context, scope tenant.Scope, id uuid.UUID, reason string) error {
	ok, err := w.store.FailEvalRun(ctx, scope, id, reason)
	if err != nil {
		return fmt.Errorf("mark eval run failed: %w", err)
	}
	if ok {
		w.notifier.Emit(ctx, scope, EventEvalRunFailed, map[string]any{
			"eval_run_id": id, "reason": reason,
		})
	}
	w.logger.Warn("eval run failed", "eval_run_id", id, "reason", reason)
	return nil
}
