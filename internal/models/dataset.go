package models

import (
	"time"

	"github.com/google/uuid"
)

type Dataset struct {
	ID                    uuid.UUID `json:"id" db:"id"`
	TenantID              uuid.UUID `json:"tenant_id" db:"tenant_id"`
	ProjectID             uuid.UUID `json:"project_id" db:"project_id"`
	Name                  string    `json:"name" db:"name"`
	Format                string    `json:"format" db:"format"`
	Status                string    `json:"status" db:"status"`
	Vectorize             bool      `json:"vectorize" db:"vectorize"`
	Sanitized             bool      `json:"sanitized" db:"sanitized"`
	SanitizedByGovernance bool      `json:"sanitized_by_governance" db:"sanitized_by_governance"`
	StorageURI            *string   `json:"storage_uri,omitempty" db:"storage_uri"`
	RecordCount           *int      `json:"record_count,omitempty" db:"record_count"`
	TokenEstimate         *int      `json:"token_estimate,omitempty" db:"token_estimate"`
	FailureReason         string    `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time `json:"updated_at" db:"updated_at"`
}

// SourceTrace is one recorded interaction a dataset build consumes.
type SourceTrace struct {
	ID        uuid.UUID `json:"id" db:"id"`
	TenantID  uuid.UUID `json:"tenant_id" db:"tenant_id"`
	ProjectID uuid.UUID `json:"project_id" db:"project_id"`
	System    string    `json:"system,omitempty" db:"system_prompt"`
	Input     string    `json:"input" db:"input"`
	Output    string    `json:"output" db:"output"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

const (
	DatasetFormatChat             = "jsonl_chat"
	DatasetFormatPromptCompletion = "jsonl_prompt_completion"

	DatasetStatusBuilding = "building"
	DatasetStatusReady    = "ready"
	DatasetStatusFailed   = "failed"
)
