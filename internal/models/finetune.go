package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type FineTuneJob struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	TenantID          uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	ProjectID         uuid.UUID       `json:"project_id" db:"project_id"`
	Provider          string          `json:"provider" db:"provider"`
	Method            string          `json:"method" db:"method"`
	BaseModel         string          `json:"base_model" db:"base_model"`
	DatasetID         uuid.UUID       `json:"dataset_id" db:"dataset_id"`
	Status            string          `json:"status" db:"status"`
	ProviderJobID     string          `json:"provider_job_id,omitempty" db:"provider_job_id"`
	Result            json.RawMessage `json:"result,omitempty" db:"result"`
	CostEstimateUSD   *float64        `json:"cost_estimate_usd,omitempty" db:"cost_estimate_usd"`
	CostActualUSD     *float64        `json:"cost_actual_usd,omitempty" db:"cost_actual_usd"`
	GovernanceTracked bool            `json:"governance_tracked" db:"governance_tracked"`
	FailureReason     string          `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

type ModelVersion struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	TenantID          uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	ProjectID         uuid.UUID       `json:"project_id" db:"project_id"`
	Provider          string          `json:"provider" db:"provider"`
	ProviderModelID   string          `json:"provider_model_id" db:"provider_model_id"`
	FineTuneJobID     *uuid.UUID      `json:"finetune_job_id,omitempty" db:"finetune_job_id"`
	Status            string          `json:"status" db:"status"`
	EvalSummary       json.RawMessage `json:"eval_summary,omitempty" db:"eval_summary"`
	GovernanceSummary json.RawMessage `json:"governance_summary,omitempty" db:"governance_summary"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

const (
	MethodSFT = "SFT"
	MethodDPO = "DPO"
	MethodRFT = "RFT"

	FTJobStatusQueued    = "queued"
	FTJobStatusCompleted = "completed"
	FTJobStatusFailed    = "failed"

	ModelVersionCandidate  = "candidate"
	ModelVersionApproved   = "approved"
	ModelVersionProduction = "production"
	ModelVersionRetired    = "retired"
)
