package finetune

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAITrainer struct {
	client *openai.Client
}

func NewOpenAITrainer(apiKey string) *OpenAITrainer {
	return &OpenAITrainer{client: openai.NewClient(apiKey)}
}

func (t *OpenAITrainer) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	file, err := t.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    req.FileName,
		Bytes:   req.TrainingData,
		Purpose: openai.PurposeFineTune,
	})
	if err != nil {
		return "", fmt.Errorf("upload training file: %w", err)
	}

	job, err := t.client.CreateFineTuningJob(ctx, openai.FineTuningJobRequest{
		TrainingFile: file.ID,
		Model:        req.BaseModel,
		Suffix:       req.Suffix,
	})
	if err != nil {
		return "", fmt.Errorf("create fine-tuning job: %w", err)
	}

	return job.ID, nil
}

func (t *OpenAITrainer) Status(ctx context.Context, providerJobID string) (*JobStatus, error) {
	job, err := t.client.RetrieveFineTuningJob(ctx, providerJobID)
	if err != nil {
		return nil, fmt.Errorf("retrieve fine-tuning job %s: %w", providerJobID, err)
	}

	status := &JobStatus{TrainedTokens: job.TrainedTokens}
	switch job.Status {
	case "succeeded":
		status.State = StateSucceeded
		status.ProviderModelID = job.FineTunedModel
	case "failed", "cancelled":
		status.State = StateFailed
		status.Message = fmt.Sprintf("provider reported status %q", job.Status)
	default:
		status.State = StateRunning
	}
	return status, nil
}
