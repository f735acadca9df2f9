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

const evalSuiteColumns = `id, tenant_id, project_id, name, selection_strategy,
	kb_collection, policy_profile, description, created_at, updated_at`

func scanEvalSuite(row pgx.Row) (*models.EvalSuite, error) {
	var es models.EvalSuite
	err := row.Scan(&es.ID, &es.TenantID, &es.ProjectID, &es.Name, &es.SelectionStrategy,
		&es.KBCollection, &es.PolicyProfile, &es.Description, &es.CreatedAt, &es.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &es, nil
}

type CreateEvalSuiteParams struct {
	Name              string
	SelectionStrategy string
	KBCollection      *string
	PolicyProfile     *string
	Description       *string
}

func (s *Store) CreateEvalSuite(ctx context.Context, scope tenant.Scope, p CreateEvalSuiteParams) (*models.EvalSuite, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO eval_suites (id, tenant_id, project_id, name, selection_strategy, kb_collection, policy_profile, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+evalSuiteColumns,
		uuid.New(), scope.TenantID, scope.ProjectID, p.Name, p.SelectionStrategy,
		p.KBCollection, p.PolicyProfile, p.Description,
	)
	es, err := scanEvalSuite(row)
	if err != nil {
		return nil, fmt.Errorf("insert eval suite: %w", err)
	}
	return es, nil
}

func (s *Store) GetEvalSuite(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.EvalSuite, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+evalSuiteColumns+` FROM eval_suites
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3`,
		id, scope.TenantID, scope.ProjectID,
	)
	es, err := scanEvalSuite(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.NotFound("eval suite", id.String())
		}
		return nil, fmt.Errorf("get eval suite: %w", err)
	}
	return es, nil
}

func (s *Store) AddSuiteSamples(ctx context.Context, scope tenant.Scope, suiteID uuid.UUID, samples []models.EvalSample) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for i, sample := range samples {
		_, err := tx.Exec(ctx,
			`INSERT INTO eval_samples (id, suite_id, tenant_id, project_id, input, expected)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), suiteID, scope.TenantID, scope.ProjectID, sample.Input, sample.Expected,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert sample %d: %w", i, err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return inserted, fmt.Errorf("commit samples: %w", err)
	}
	return inserted, nil
}

func (s *Store) ListSuiteSamples(ctx context.Context, scope tenant.Scope, suiteID uuid.UUID) ([]models.EvalSample, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, suite_id, tenant_id, project_id, input, expected, created_at
		 FROM eval_samples
		 WHERE suite_id = $1 AND tenant_id = $2 AND project_id = $3
		 ORDER BY created_at ASC`,
		suiteID, scope.TenantID, scope.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list suite samples: %w", err)
	}
	defer rows.Close()

	var samples []models.EvalSample
	for rows.Next() {
		var sm models.EvalSample
		if err := rows.Scan(&sm.ID, &sm.SuiteID, &sm.TenantID, &sm.ProjectID, &sm.Input, &sm.Expected, &sm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, sm)
	}
	return samples, rows.Err()
}
