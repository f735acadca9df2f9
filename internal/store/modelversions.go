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

const modelVersionColumns = `id, tenant_id, project_id, provider, provider_model_id,
	finetune_job_id, status, eval_summary, governance_summary, created_at, updated_at`

func scanModelVersion(row pgx.Row) (*models.ModelVersion, error) {
	var mv models.ModelVersion
	err := row.Scan(&mv.ID, &mv.TenantID, &mv.ProjectID, &mv.Provider, &mv.ProviderModelID,
		&mv.FineTuneJobID, &mv.Status, &mv.EvalSummary, &mv.GovernanceSummary,
		&mv.CreatedAt, &mv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &mv, nil
}

func (s *Store) CreateModelVersion(ctx context.Context, scope tenant.Scope, provider, providerModelID string, fineTuneJobID *uuid.UUID) (*models.ModelVersion, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO model_versions (id, tenant_id, project_id, provider, provider_model_id, finetune_job_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6, 'candidate')
		 RETURNING `+modelVersionColumns,
		uuid.New(), scope.TenantID, scope.ProjectID, provider, providerModelID, fineTuneJobID,
	)
	mv, err := scanModelVersion(row)
	if err != nil {
		return nil, fmt.Errorf("insert model version: %w", err)
	}
	return mv, nil
}

func (s *Store) GetModelVersion(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.ModelVersion, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+modelVersionColumns+` FROM model_versions
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3`,
		id, scope.TenantID, scope.ProjectID,
	)
	mv, err := scanModelVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.NotFound("model version", id.String())
		}
		return nil, fmt.Errorf("get model version: %w", err)
	}
	return mv, nil
}

func (s *Store) ListModelVersions(ctx context.Context, scope tenant.Scope) ([]models.ModelVersion, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+modelVersionColumns+` FROM model_versions
		 WHERE tenant_id = $1 AND project_id = $2 ORDER BY created_at DESC`,
		scope.TenantID, scope.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list model versions: %w", err)
	}
	defer rows.Close()

	var versions []models.ModelVersion
	for rows.Next() {
		mv, err := scanModelVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model version: %w", err)
		}
		versions = append(versions, *mv)
	}
	return versions, rows.Err()
}

// SetModelVersionSummaries attaches the eval and governance summaries a
// promotion evaluated the version against.
func (s *Store) SetModelVersionSummaries(ctx context.Context, scope tenant.Scope, id uuid.UUID, evalSummary, governanceSummary any) error {
	evalJSON, err := json.Marshal(evalSummary)
	if err != nil {
		return fmt.Errorf("marshal eval summary: %w", err)
	}
	govJSON, err := json.Marshal(governanceSummary)
	if err != nil {
		return fmt.Errorf("marshal governance summary: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`UPDATE model_versions
		 SET eval_summary = $4, governance_summary = $5, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3`,
		id, scope.TenantID, scope.ProjectID, evalJSON, govJSON,
	)
	if err != nil {
		return fmt.Errorf("set model version summaries: %w", err)
	}
	return nil
}
