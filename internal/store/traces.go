package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/tenant"
)

func (s *Store) InsertSourceTraces(ctx context.Context, scope tenant.Scope, traces []models.SourceTrace) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for i, tr := range traces {
		id := tr.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO source_traces (id, tenant_id, project_id, system_prompt, input, output)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO NOTHING`,
			id, scope.TenantID, scope.ProjectID, tr.System, tr.Input, tr.Output,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert trace %d: %w", i, err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return inserted, fmt.Errorf("commit traces: %w", err)
	}
	return inserted, nil
}

func (s *Store) ListSourceTraces(ctx context.Context, scope tenant.Scope, limit int) ([]models.SourceTrace, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, project_id, system_prompt, input, output, created_at
		 FROM source_traces
		 WHERE tenant_id = $1 AND project_id = $2
		 ORDER BY created_at ASC
		 LIMIT $3`,
		scope.TenantID, scope.ProjectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list source traces: %w", err)
	}
	defer rows.Close()

	var traces []models.SourceTrace
	for rows.Next() {
		var tr models.SourceTrace
		if err := rows.Scan(&tr.ID, &tr.TenantID, &tr.ProjectID, &tr.System, &tr.Input, &tr.Output, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		traces = append(traces, tr)
	}
	return traces, rows.Err()
}
