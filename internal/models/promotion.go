package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TargetRef names the scope a promoted model serves.
type TargetRef struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type PromotionDecision struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	TenantID          uuid.UUID       `json:"tenant_id" db:"tenant_id"`
	ProjectID         uuid.UUID       `json:"project_id" db:"project_id"`
	ModelVersionID    uuid.UUID       `json:"model_version_id" db:"model_version_id"`
	TargetType        string          `json:"target_type" db:"target_type"`
	TargetValue       string          `json:"target_value" db:"target_value"`
	Decision          string          `json:"decision" db:"decision"`
	Reasons           []string        `json:"reasons" db:"reasons"`
	SafetyPass        *bool           `json:"safety_pass,omitempty" db:"safety_pass"`
	CompliancePass    *bool           `json:"compliance_pass,omitempty" db:"compliance_pass"`
	ProductionPointer json.RawMessage `json:"production_pointer,omitempty" db:"production_pointer"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// ProductionPointer is the single source of truth for which model version
// serves a (tenant, project, target) scope. Previous keeps a one-deep undo
// history; every swap must carry the old active id into it atomically.
type ProductionPointer struct {
	ID                     uuid.UUID  `json:"id" db:"id"`
	TenantID               uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	ProjectID              uuid.UUID  `json:"project_id" db:"project_id"`
	TargetType             string     `json:"target_type" db:"target_type"`
	TargetValue            string     `json:"target_value" db:"target_value"`
	ActiveModelVersionID   uuid.UUID  `json:"active_model_version_id" db:"active_model_version_id"`
	PreviousModelVersionID *uuid.UUID `json:"previous_model_version_id,omitempty" db:"previous_model_version_id"`
	UpdatedAt              time.Time  `json:"updated_at" db:"updated_at"`
}

const (
	TargetAssistant = "assistant"
	TargetProject   = "project"
	TargetGlobal    = "global"

	DecisionBlocked  = "blocked"
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)
