package workers

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/modelplane/modelplane/internal/tenant"
)

// Webhook event names emitted by the pipeline workers.
const (
	EventDatasetReady      = "dataset.ready"
	EventDatasetFailed     = "dataset.failed"
	EventEvalRunCompleted  = "eval_run.completed"
	EventEvalRunFailed     = "eval_run.failed"
	EventFinetuneCompleted = "finetune_job.completed"
	EventFinetuneFailed    = "finetune_job.failed"
	EventPromotionDecided  = "promotion.decided"
)

// Notifier fans pipeline events out to registered webhooks. Emit must not
// block task processing; delivery failures are the dispatcher's problem.
type Notifier interface {
	Emit(ctx context.Context, scope tenant.Scope, event string, payload any)
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) Emit(context.Context, tenant.Scope, string, any) {}

// lastAttempt reports whether this delivery is the task's final one. A
// transient failure on the last attempt must settle the entity in a terminal
// failed state before the error is returned, otherwise the row would stay
// pending forever.
func lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return false
	}
	return retried >= maxRetry
}
