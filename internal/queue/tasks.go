package queue

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	TypeDatasetBuild    = "dataset:build"
	TypeEvalRun         = "eval:run"
	TypeFinetuneRun     = "finetune:run"
	TypePromotionDecide = "promotion:decide"
)

// Queue names, highest priority first. Promotions jump the line so pointer
// swaps are not starved by long training jobs.
const (
	QueuePromotions = "promotions"
	QueueDatasets   = "datasets"
	QueueEvals      = "evals"
	QueueFinetunes  = "finetunes"
	QueueDefault    = "default"
)

type DatasetBuildPayload struct {
	DatasetID uuid.UUID `json:"dataset_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	ProjectID uuid.UUID `json:"project_id"`
}

func (p DatasetBuildPayload) Validate() error {
	if p.DatasetID == uuid.Nil {
		return fmt.Errorf("dataset_id is required")
	}
	return validateScope(p.TenantID, p.ProjectID)
}

type EvalRunPayload struct {
	EvalRunID uuid.UUID `json:"eval_run_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	ProjectID uuid.UUID `json:"project_id"`
}

func (p EvalRunPayload) Validate() error {
	if p.EvalRunID == uuid.Nil {
		return fmt.Errorf("eval_run_id is required")
	}
	return validateScope(p.TenantID, p.ProjectID)
}

type FinetuneRunPayload struct {
	JobID     uuid.UUID `json:"job_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	ProjectID uuid.UUID `json:"project_id"`
}

func (p FinetuneRunPayload) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("job_id is required")
	}
	return validateScope(p.TenantID, p.ProjectID)
}

type PromotionDecidePayload struct {
	DecisionID uuid.UUID `json:"decision_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	ProjectID  uuid.UUID `json:"project_id"`
}

func (p PromotionDecidePayload) Validate() error {
	if p.DecisionID == uuid.Nil {
		return fmt.Errorf("decision_id is required")
	}
	return validateScope(p.TenantID, p.ProjectID)
}

func validateScope(tenantID, projectID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return fmt.Errorf("tenant_id is required")
	}
	if projectID == uuid.Nil {
		return fmt.Errorf("project_id is required")
	}
	return nil
}
