package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EvalSuite struct {
	ID                uuid.UUID `json:"id" db:"id"`
	TenantID          uuid.UUID `json:"tenant_id" db:"tenant_id"`
	ProjectID         uuid.UUID `json:"project_id" db:"project_id"`
	Name              string    `json:"name" db:"name"`
	SelectionStrategy string    `json:"selection_strategy" db:"selection_strategy"`
	KBCollection      *string   `json:"kb_collection,omitempty" db:"kb_collection"`
	PolicyProfile     *string   `json:"policy_profile,omitempty" db:"policy_profile"`
	Description       *string   `json:"description,omitempty" db:"description"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// EvalSample is one prompt/expected pair a run is scored against.
type EvalSample struct {
	ID        uuid.UUID `json:"id" db:"id"`
	SuiteID   uuid.UUID `json:"suite_id" db:"suite_id"`
	TenantID  uuid.UUID `json:"tenant_id" db:"tenant_id"`
	ProjectID uuid.UUID `json:"project_id" db:"project_id"`
	Input     string    `json:"input" db:"input"`
	Expected  string    `json:"expected" db:"expected"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ModelRef identifies the model under evaluation. Value is interpreted
// according to Type: a provider base model name, a ModelVersion id, or a
// raw provider-assigned model id.
type ModelRef struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type EvalRun struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	TenantID      uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	ProjectID     uuid.UUID       `json:"project_id" db:"project_id"`
	SuiteID       uuid.UUID       `json:"suite_id" db:"suite_id"`
	ModelRefType  string          `json:"model_ref_type" db:"model_ref_type"`
	ModelRefValue string          `json:"model_ref_value" db:"model_ref_value"`
	Status        string          `json:"status" db:"status"`
	Metrics       json.RawMessage `json:"metrics,omitempty" db:"metrics"`
	SafetyReport  json.RawMessage `json:"safety_report,omitempty" db:"safety_report"`
	FailureReason string          `json:"failure_reason,omitempty" db:"failure_reason"`
	StartedAt     *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

const (
	SelectionStatic          = "static"
	SelectionVectorRetrieval = "vector_retrieval"

	ModelRefBaseModel       = "base_model"
	ModelRefFTModelVersion  = "ft_model_version"
	ModelRefProviderModelID = "provider_model_id"

	EvalRunStatusQueued    = "queued"
	EvalRunStatusCompleted = "completed"
	EvalRunStatusFailed    = "failed"
)
