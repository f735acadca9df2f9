package finetune

// Trainer abstracts a provider fine-tuning API. Submit uploads the training
// artifact and starts a provider job; Status reports where that job stands.
// Training is long-running, so the fine-tune stage processor polls Status
// within its own execution budget.

import "context"

type SubmitRequest struct {
	BaseModel    string
	Method       string
	Suffix       string
	FileName     string
	TrainingData []byte
}

type JobStatus struct {
	State           string
	ProviderModelID string
	TrainedTokens   int
	Message         string
}

const (
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

type Trainer interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Status(ctx context.Context, providerJobID string) (*JobStatus, error)
}

// trainingCostPer1K holds per-1K-token training pricing in USD.
var trainingCostPer1K = map[string]float64{
	"gpt-4o-mini-2024-07-18": 0.003,
	"gpt-4o-2024-08-06":      0.025,
	"gpt-3.5-turbo":          0.008,
	"davinci-002":            0.006,
	"babbage-002":            0.0004,
}

const defaultTrainingCostPer1K = 0.008

// EstimateCost projects training cost from the dataset token estimate.
func EstimateCost(baseModel string, tokens int) float64 {
	return costPer1K(baseModel) * float64(tokens) / 1000.0
}

// ActualCost prices the tokens the provider reports it trained on.
func ActualCost(baseModel string, trainedTokens int) float64 {
	return costPer1K(baseModel) * float64(trainedTokens) / 1000.0
}

func costPer1K(baseModel string) float64 {
	if price, ok := trainingCostPer1K[baseModel]; ok {
		return price
	}
	return defaultTrainingCostPer1K
}
