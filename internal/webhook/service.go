package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/tenant"
)

type Service struct {
	db         *pgxpool.Pool
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewService(db *pgxpool.Pool, dispatcher *Dispatcher, logger *slog.Logger) *Service {
	return &Service{db: db, dispatcher: dispatcher, logger: logger}
}

type CreateRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

func (s *Service) Create(ctx context.Context, scope tenant.Scope, req CreateRequest) (*models.Webhook, error) {
	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	eventsJSON, err := json.Marshal(req.Events)
	if err != nil {
		return nil, fmt.Errorf("marshal events: %w", err)
	}

	var wh models.Webhook
	err = s.db.QueryRow(ctx,
		`INSERT INTO webhooks (id, tenant_id, project_id, url, events, secret, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, true)
		 RETURNING id, tenant_id, project_id, url, events, is_active, created_at`,
		uuid.New(), scope.TenantID, scope.ProjectID, req.URL, eventsJSON, secret,
	).Scan(&wh.ID, &wh.TenantID, &wh.ProjectID, &wh.URL, &wh.Events, &wh.IsActive, &wh.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert webhook: %w", err)
	}

	// The secret is shown exactly once.
	wh.Secret = secret
	return &wh, nil
}

func (s *Service) List(ctx context.Context, scope tenant.Scope) ([]models.Webhook, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, project_id, url, events, is_active, created_at
		 FROM webhooks WHERE tenant_id = $1 AND project_id = $2 ORDER BY created_at DESC`,
		scope.TenantID, scope.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []models.Webhook
	for rows.Next() {
		var wh models.Webhook
		if err := rows.Scan(&wh.ID, &wh.TenantID, &wh.ProjectID, &wh.URL, &wh.Events, &wh.IsActive, &wh.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, wh)
	}
	return webhooks, rows.Err()
}

func (s *Service) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM webhooks WHERE id = $1 AND tenant_id = $2 AND project_id = $3`,
		id, scope.TenantID, scope.ProjectID)
	return err
}

// Emit fans an event out to every matching active webhook in the scope.
// Failures are logged, never surfaced: webhook delivery must not affect
// pipeline outcomes.
func (s *Service) Emit(ctx context.Context, scope tenant.Scope, event string, payload any) {
	rows, err := s.db.Query(ctx,
		`SELECT id, url, secret FROM webhooks
		 WHERE tenant_id = $1 AND project_id = $2 AND is_active = true AND events @> $3::jsonb`,
		scope.TenantID, scope.ProjectID, fmt.Sprintf(`[%q]`, event),
	)
	if err != nil {
		s.logger.Error("find matching webhooks", "event", event, "error", err)
		return
	}
	defer rows.Close()

	body := map[string]any{"event": event, "data": payload}
	payloadJSON, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("marshal webhook payload", "event", event, "error", err)
		return
	}

	for rows.Next() {
		var id uuid.UUID
		var url, secret string
		if err := rows.Scan(&id, &url, &secret); err != nil {
			s.logger.Error("scan webhook", "error", err)
			continue
		}
		s.dispatcher.Enqueue(DeliveryRequest{
			WebhookID: id,
			URL:       url,
			Secret:    secret,
			Event:     event,
			Payload:   payloadJSON,
		})
	}
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(b), nil
}
