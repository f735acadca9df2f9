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

const evalRunColumns = `id, tenant_id, project_id, suite_id, model_ref_type, model_ref_value,
	status, metrics, safety_report, failure_reason, started_at, completed_at, created_at`

func scanEvalRun(row pgx.Row) (*models.EvalRun, error) {
	var er models.EvalRun
	err := row.Scan(&er.ID, &er.TenantID, &er.ProjectID, &er.SuiteID, &er.ModelRefType,
		&er.ModelRefValue, &er.Status, &er.Metrics, &er.SafetyReport, &er.FailureReason,
		&er.StartedAt, &er.CompletedAt, &er.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &er, nil
}

func (s *Store) CreateEvalRun(ctx context.Context, scope tenant.Scope, suiteID uuid.UUID, ref models.ModelRef) (*models.EvalRun, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO eval_runs (id, tenant_id, project_id, suite_id, model_ref_type, model_ref_value, status)
		 VALUES ($1, $2, $3, $4, $5, $6, 'queued')
		 RETURNING `+evalRunColumns,
		uuid.New(), scope.TenantID, scope.ProjectID, suiteID, ref.Type, ref.Value,
	)
	er, err := scanEvalRun(row)
	if err != nil {
		return nil, fmt.Errorf("insert eval run: %w", err)
	}
	return er, nil
}

func (s *Store) GetEvalRun(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.EvalRun, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+evalRunColumns+` FROM eval_runs
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3`,
		id, scope.TenantID, scope.ProjectID,
	)
	er, err := scanEvalRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.NotFound("eval run", id.String())
		}
		return nil, fmt.Errorf("get eval run: %w", err)
	}
	return er, nil
}

func (s *Store) ListEvalRuns(ctx context.Context, scope tenant.Scope, suiteID uuid.UUID) ([]models.EvalRun, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+evalRunColumns+` FROM eval_runs
		 WHERE suite_id = $1 AND tenant_id = $2 AND project_id = $3
		 ORDER BY created_at DESC`,
		suiteID, scope.TenantID, scope.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list eval runs: %w", err)
	}
	defer rows.Close()

	var runs []models.EvalRun
	for rows.Next() {
		er, err := scanEvalRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan eval run: %w", err)
		}
		runs = append(runs, *er)
	}
	return runs, rows.Err()
}

// SetEvalRunStarted stamps started_at exactly once; redeliveries keep the
// original timestamp.
func (s *Store) SetEvalRunStarted(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE eval_runs SET started_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3 AND started_at IS NULL`,
		id, scope.TenantID, scope.ProjectID,
	)
	if err != nil {
		return fmt.Errorf("set eval run started: %w", err)
	}
	return nil
}

func (s *Store) CompleteEvalRun(ctx context.Context, scope tenant.Scope, id uuid.UUID, metrics, safetyReport any) (bool, error) {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return false, fmt.Errorf("marshal metrics: %w", err)
	}
	reportJSON, err := json.Marshal(safetyReport)
	if err != nil {
		return false, fmt.Errorf("marshal safety report: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE eval_runs
		 SET status = 'completed', metrics = $4, safety_report = $5, completed_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3 AND status = 'queued'`,
		id, scope.TenantID, scope.ProjectID, metricsJSON, reportJSON,
	)
	if err != nil {
		return false, fmt.Errorf("complete eval run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) FailEvalRun(ctx context.Context, scope tenant.Scope, id uuid.UUID, reason string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE eval_runs
		 SET status = 'failed', failure_reason = $4, completed_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3 AND status = 'queued'`,
		id, scope.TenantID, scope.ProjectID, reason,
	)
	if err != nil {
		return false, fmt.Errorf("fail eval run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// LatestCompletedEvalRun finds the newest completed run whose model ref
// matches; the promotion gate reads its metrics and safety report.
func (s *Store) LatestCompletedEvalRun(ctx context.Context, scope tenant.Scope, ref models.ModelRef) (*models.EvalRun, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+evalRunColumns+` FROM eval_runs
		 WHERE tenant_id = $1 AND project_id = $2
		   AND model_ref_type = $3 AND model_ref_value = $4 AND status = 'completed'
		 ORDER BY completed_at DESC LIMIT 1`,
		scope.TenantID, scope.ProjectID, ref.Type, ref.Value,
	)
	er, err := scanEvalRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.NotFound("completed eval run for model", ref.Value)
		}
		return nil, fmt.Errorf("latest completed eval run: %w", err)
	}
	return er, nil
}
