package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/pipeline"
	"github.com/modelplane/modelplane/internal/tenant"
)

const ftJobColumns = `id, tenant_id, project_id, provider, method, base_model, dataset_id,
	status, provider_job_id, result, cost_estimate_usd, cost_actual_usd,
	governance_tracked, failure_reason, created_at, updated_at`

func scanFineTuneJob(row pgx.Row) (*models.FineTuneJob, error) {
	var j models.FineTuneJob
	err := row.Scan(&j.ID, &j.TenantID, &j.ProjectID, &j.Provider, &j.Method, &j.BaseModel,
		&j.DatasetID, &j.Status, &j.ProviderJobID, &j.Result, &j.CostEstimateUSD,
		&j.CostActualUSD, &j.GovernanceTracked, &j.FailureReason, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

type CreateFineTuneJobParams struct {
	Provider        string
	Method          string
	BaseModel       string
	DatasetID       uuid.UUID
	CostEstimateUSD *float64
}

func (s *Store) CreateFineTuneJob(ctx context.Context, scope tenant.Scope, p CreateFineTuneJobParams) (*models.FineTuneJob, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO finetune_jobs (id, tenant_id, project_id, provider, method, base_model, dataset_id, status, cost_estimate_usd, governance_tracked)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'queued', $8, true)
		 RETURNING `+ftJobColumns,
		uuid.New(), scope.TenantID, scope.ProjectID, p.Provider, p.Method, p.BaseModel,
		p.DatasetID, p.CostEstimateUSD,
	)
	j, err := scanFineTuneJob(row)
	if err != nil {
		return nil, fmt.Errorf("insert finetune job: %w", err)
	}
	return j, nil
}

func (s *Store) GetFineTuneJob(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.FineTuneJob, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+ftJobColumns+` FROM finetune_jobs
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3`,
		id, scope.TenantID, scope.ProjectID,
	)
	j, err := scanFineTuneJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.NotFound("finetune job", id.String())
		}
		return nil, fmt.Errorf("get finetune job: %w", err)
	}
	return j, nil
}

func (s *Store) ListFineTuneJobs(ctx context.Context, scope tenant.Scope) ([]models.FineTuneJob, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+ftJobColumns+` FROM finetune_jobs
		 WHERE tenant_id = $1 AND project_id = $2 ORDER BY created_at DESC`,
		scope.TenantID, scope.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list finetune jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.FineTuneJob
	for rows.Next() {
		j, err := scanFineTuneJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finetune job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// SetProviderJob records the provider's job id after submission. Only legal
// while the job is still queued; a redelivered task that already submitted
// keeps the first provider id.
func (s *Store) SetProviderJob(ctx context.Context, scope tenant.Scope, id uuid.UUID, providerJobID string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE finetune_jobs
		 SET provider_job_id = $4, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3
		   AND status = 'queued' AND provider_job_id = ''`,
		id, scope.TenantID, scope.ProjectID, providerJobID,
	)
	if err != nil {
		return false, fmt.Errorf("set provider job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CompleteFineTuneJob(ctx context.Context, scope tenant.Scope, id uuid.UUID, result any, costActualUSD *float64) (bool, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE finetune_jobs
		 SET status = 'completed', result = $4, cost_actual_usd = $5, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3 AND status = 'queued'`,
		id, scope.TenantID, scope.ProjectID, resultJSON, costActualUSD,
	)
	if err != nil {
		return false, fmt.Errorf("complete finetune job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) FailFineTuneJob(ctx context.Context, scope tenant.Scope, id uuid.UUID, reason string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE finetune_jobs
		 SET status = 'failed', failure_reason = $4, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3 AND status = 'queued'`,
		id, scope.TenantID, scope.ProjectID, reason,
	)
	if err != nil {
		return false, fmt.Errorf("fail finetune job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
