package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/modelplane/modelplane/internal/config"
)

// Client enqueues pipeline tasks. Every task carries the owning entity's id
// as its asynq task id, so re-submitting the same entity while a task is
// pending or retained is a no-op rather than a second execution.
type Client struct {
	client *asynq.Client
	logger *slog.Logger
}

func NewClient(cfg config.RedisConfig, logger *slog.Logger) *Client {
	return &Client{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		logger: logger,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnqueueDatasetBuild(ctx context.Context, p DatasetBuildPayload) error {
	return c.enqueue(ctx, TypeDatasetBuild, p, p.DatasetID.String(),
		asynq.Queue(QueueDatasets), asynq.MaxRetry(5), asynq.Timeout(10*time.Minute))
}

func (c *Client) EnqueueEvalRun(ctx context.Context, p EvalRunPayload) error {
	return c.enqueue(ctx, TypeEvalRun, p, p.EvalRunID.String(),
		asynq.Queue(QueueEvals), asynq.MaxRetry(5), asynq.Timeout(30*time.Minute))
}

func (c *Client) EnqueueFinetuneRun(ctx context.Context, p FinetuneRunPayload) error {
	return c.enqueue(ctx, TypeFinetuneRun, p, p.JobID.String(),
		asynq.Queue(QueueFinetunes), asynq.MaxRetry(3), asynq.Timeout(time.Hour))
}

func (c *Client) EnqueuePromotionDecide(ctx context.Context, p PromotionDecidePayload) error {
	return c.enqueue(ctx, TypePromotionDecide, p, p.DecisionID.String(),
		asynq.Queue(QueuePromotions), asynq.MaxRetry(5), asynq.Timeout(5*time.Minute))
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, taskID string, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	opts = append(opts, asynq.TaskID(taskID))
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		c.logger.Info("task already enqueued", "type", taskType, "task_id", taskID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
