package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/pipeline"
	"github.com/modelplane/modelplane/internal/tenant"
)

const datasetColumns = `id, tenant_id, project_id, name, format, status, vectorize,
	sanitized, sanitized_by_governance, storage_uri, record_count, token_estimate,
	failure_reason, created_at, updated_at`

func scanDataset(row pgx.Row) (*models.Dataset, error) {
	var d models.Dataset
	err := row.Scan(&d.ID, &d.TenantID, &d.ProjectID, &d.Name, &d.Format, &d.Status,
		&d.Vectorize, &d.Sanitized, &d.SanitizedByGovernance, &d.StorageURI,
		&d.RecordCount, &d.TokenEstimate, &d.FailureReason, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) CreateDataset(ctx context.Context, scope tenant.Scope, name, format string, vectorize bool) (*models.Dataset, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO datasets (id, tenant_id, project_id, name, format, status, vectorize)
		 VALUES ($1, $2, $3, $4, $5, 'building', $6)
		 RETURNING `+datasetColumns,
		uuid.New(), scope.TenantID, scope.ProjectID, name, format, vectorize,
	)
	d, err := scanDataset(row)
	if err != nil {
		return nil, fmt.Errorf("insert dataset: %w", err)
	}
	return d, nil
}

func (s *Store) GetDataset(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.Dataset, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+datasetColumns+` FROM datasets
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3`,
		id, scope.TenantID, scope.ProjectID,
	)
	d, err := scanDataset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.NotFound("dataset", id.String())
		}
		return nil, fmt.Errorf("get dataset: %w", err)
	}
	return d, nil
}

func (s *Store) ListDatasets(ctx context.Context, scope tenant.Scope) ([]models.Dataset, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+datasetColumns+` FROM datasets
		 WHERE tenant_id = $1 AND project_id = $2 ORDER BY created_at DESC`,
		scope.TenantID, scope.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []models.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		datasets = append(datasets, *d)
	}
	return datasets, rows.Err()
}

// MarkDatasetReady writes the terminal success state: storage URI, counts
// and sanitized flags in one update. Returns false when the dataset was no
// longer `building`, i.e. a duplicate delivery already completed it.
func (s *Store) MarkDatasetReady(ctx context.Context, scope tenant.Scope, id uuid.UUID, storageURI string, recordCount, tokenEstimate int) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE datasets
		 SET status = 'ready', storage_uri = $4, record_count = $5, token_estimate = $6,
		     sanitized = true, sanitized_by_governance = true, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3 AND status = 'building'`,
		id, scope.TenantID, scope.ProjectID, storageURI, recordCount, tokenEstimate,
	)
	if err != nil {
		return false, fmt.Errorf("mark dataset ready: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) MarkDatasetFailed(ctx context.Context, scope tenant.Scope, id uuid.UUID, reason string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE datasets
		 SET status = 'failed', failure_reason = $4, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3 AND status = 'building'`,
		id, scope.TenantID, scope.ProjectID, reason,
	)
	if err != nil {
		return false, fmt.Errorf("mark dataset failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
