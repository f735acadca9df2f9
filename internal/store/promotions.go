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

const promotionColumns = `id, tenant_id, project_id, model_version_id, target_type, target_value,
	decision, reasons, safety_pass, compliance_pass, production_pointer, created_at, updated_at`

func scanPromotion(row pgx.Row) (*models.PromotionDecision, error) {
	var pd models.PromotionDecision
	err := row.Scan(&pd.ID, &pd.TenantID, &pd.ProjectID, &pd.ModelVersionID, &pd.TargetType,
		&pd.TargetValue, &pd.Decision, &pd.Reasons, &pd.SafetyPass, &pd.CompliancePass,
		&pd.ProductionPointer, &pd.CreatedAt, &pd.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pd, nil
}

// CreatePromotionDecision records the request in its initial `blocked` state;
// the promotion worker moves it to approved or rejected.
func (s *Store) CreatePromotionDecision(ctx context.Context, scope tenant.Scope, modelVersionID uuid.UUID, target models.TargetRef) (*models.PromotionDecision, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO promotion_decisions (id, tenant_id, project_id, model_version_id, target_type, target_value, decision, reasons)
		 VALUES ($1, $2, $3, $4, $5, $6, 'blocked', '[]'::jsonb)
		 RETURNING `+promotionColumns,
		uuid.New(), scope.TenantID, scope.ProjectID, modelVersionID, target.Type, target.Value,
	)
	pd, err := scanPromotion(row)
	if err != nil {
		return nil, fmt.Errorf("insert promotion decision: %w", err)
	}
	return pd, nil
}

func (s *Store) GetPromotionDecision(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*models.PromotionDecision, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+promotionColumns+` FROM promotion_decisions
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3`,
		id, scope.TenantID, scope.ProjectID,
	)
	pd, err := scanPromotion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.NotFound("promotion decision", id.String())
		}
		return nil, fmt.Errorf("get promotion decision: %w", err)
	}
	return pd, nil
}

func (s *Store) ListPromotionDecisions(ctx context.Context, scope tenant.Scope) ([]models.PromotionDecision, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+promotionColumns+` FROM promotion_decisions
		 WHERE tenant_id = $1 AND project_id = $2 ORDER BY created_at DESC`,
		scope.TenantID, scope.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list promotion decisions: %w", err)
	}
	defer rows.Close()

	var decisions []models.PromotionDecision
	for rows.Next() {
		pd, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promotion decision: %w", err)
		}
		decisions = append(decisions, *pd)
	}
	return decisions, rows.Err()
}

// RejectPromotion writes the terminal rejected verdict. CAS on `blocked` so a
// redelivered task cannot overwrite an already-decided record.
func (s *Store) RejectPromotion(ctx context.Context, scope tenant.Scope, id uuid.UUID, reasons []string, safetyPass, compliancePass *bool) (bool, error) {
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return false, fmt.Errorf("marshal reasons: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE promotion_decisions
		 SET decision = 'rejected', reasons = $4, safety_pass = $5, compliance_pass = $6, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3 AND decision = 'blocked'`,
		id, scope.TenantID, scope.ProjectID, reasonsJSON, safetyPass, compliancePass,
	)
	if err != nil {
		return false, fmt.Errorf("reject promotion: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ApprovePromotion commits the approval and the pointer swap in one
// transaction: the decision flips blocked -> approved, the production pointer
// for the target upserts with the old active id shifted into previous, the
// resulting pointer is snapshotted onto the decision, and the model version
// moves to production carrying the summaries the gate evaluated. If the
// decision was no longer blocked nothing is written and ok is false.
func (s *Store) ApprovePromotion(ctx context.Context, scope tenant.Scope, id uuid.UUID, modelVersionID uuid.UUID, target models.TargetRef, reasons []string, safetyPass, compliancePass *bool, evalSummary, governanceSummary any) (bool, *models.ProductionPointer, error) {
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return false, nil, fmt.Errorf("marshal reasons: %w", err)
	}
	evalJSON, err := json.Marshal(evalSummary)
	if err != nil {
		return false, nil, fmt.Errorf("marshal eval summary: %w", err)
	}
	govJSON, err := json.Marshal(governanceSummary)
	if err != nil {
		return false, nil, fmt.Errorf("marshal governance summary: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE promotion_decisions
		 SET decision = 'approved', reasons = $4, safety_pass = $5, compliance_pass = $6, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3 AND decision = 'blocked'`,
		id, scope.TenantID, scope.ProjectID, reasonsJSON, safetyPass, compliancePass,
	)
	if err != nil {
		return false, nil, fmt.Errorf("approve promotion: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return false, nil, nil
	}

	var ptr models.ProductionPointer
	err = tx.QueryRow(ctx,
		`INSERT INTO production_pointers (id, tenant_id, project_id, target_type, target_value, active_model_version_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tenant_id, project_id, target_type, target_value)
		 DO UPDATE SET
		   previous_model_version_id = production_pointers.active_model_version_id,
		   active_model_version_id = EXCLUDED.active_model_version_id,
		   updated_at = now()
		 RETURNING id, tenant_id, project_id, target_type, target_value,
		   active_model_version_id, previous_model_version_id, updated_at`,
		uuid.New(), scope.TenantID, scope.ProjectID, target.Type, target.Value, modelVersionID,
	).Scan(&ptr.ID, &ptr.TenantID, &ptr.ProjectID, &ptr.TargetType, &ptr.TargetValue,
		&ptr.ActiveModelVersionID, &ptr.PreviousModelVersionID, &ptr.UpdatedAt)
	if err != nil {
		return false, nil, fmt.Errorf("swap production pointer: %w", err)
	}

	ptrJSON, err := json.Marshal(ptr)
	if err != nil {
		return false, nil, fmt.Errorf("marshal pointer snapshot: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE promotion_decisions SET production_pointer = $4
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3`,
		id, scope.TenantID, scope.ProjectID, ptrJSON,
	)
	if err != nil {
		return false, nil, fmt.Errorf("snapshot pointer on decision: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE model_versions
		 SET status = 'production', eval_summary = $4, governance_summary = $5, updated_at = now()
		 WHERE id = $1 AND tenant_id = $2 AND project_id = $3`,
		modelVersionID, scope.TenantID, scope.ProjectID, evalJSON, govJSON,
	)
	if err != nil {
		return false, nil, fmt.Errorf("promote model version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, nil, fmt.Errorf("commit promotion: %w", err)
	}
	return true, &ptr, nil
}
