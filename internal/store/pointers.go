package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/pipeline"
	"github.com/modelplane/modelplane/internal/tenant"
)

const pointerColumns = `id, tenant_id, project_id, target_type, target_value,
	active_model_version_id, previous_model_version_id, updated_at`

func scanPointer(row pgx.Row) (*models.ProductionPointer, error) {
	var p models.ProductionPointer
	err := row.Scan(&p.ID, &p.TenantID, &p.ProjectID, &p.TargetType, &p.TargetValue,
		&p.ActiveModelVersionID, &p.PreviousModelVersionID, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductionPointer(ctx context.Context, scope tenant.Scope, target models.TargetRef) (*models.ProductionPointer, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+pointerColumns+` FROM production_pointers
		 WHERE tenant_id = $1 AND project_id = $2 AND target_type = $3 AND target_value = $4`,
		scope.TenantID, scope.ProjectID, target.Type, target.Value,
	)
	p, err := scanPointer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.NotFound("production pointer", target.Type+"/"+target.Value)
		}
		return nil, fmt.Errorf("get production pointer: %w", err)
	}
	return p, nil
}

func (s *Store) ListProductionPointers(ctx context.Context, scope tenant.Scope) ([]models.ProductionPointer, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+pointerColumns+` FROM production_pointers
		 WHERE tenant_id = $1 AND project_id = $2 ORDER BY updated_at DESC`,
		scope.TenantID, scope.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list production pointers: %w", err)
	}
	defer rows.Close()

	var pointers []models.ProductionPointer
	for rows.Next() {
		p, err := scanPointer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan production pointer: %w", err)
		}
		pointers = append(pointers, *p)
	}
	return pointers, rows.Err()
}

// RollbackPointer swaps active and previous for a target. Fails with a
// precondition error when there is no previous version to roll back to.
func (s *Store) RollbackPointer(ctx context.Context, scope tenant.Scope, target models.TargetRef) (*models.ProductionPointer, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE production_pointers
		 SET active_model_version_id = previous_model_version_id,
		     previous_model_version_id = active_model_version_id,
		     updated_at = now()
		 WHERE tenant_id = $1 AND project_id = $2 AND target_type = $3 AND target_value = $4
		   AND previous_model_version_id IS NOT NULL
		 RETURNING `+pointerColumns,
		scope.TenantID, scope.ProjectID, target.Type, target.Value,
	)
	p, err := scanPointer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.Precondition("no previous model version for target %s/%s", target.Type, target.Value)
		}
		return nil, fmt.Errorf("rollback pointer: %w", err)
	}
	return p, nil
}
