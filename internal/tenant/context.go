package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Scope identifies the tenant/project pair every entity belongs to. All
// store reads and writes are filtered by it; a row under another scope is
// indistinguishable from an absent row.
type Scope struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	ProjectID uuid.UUID `json:"project_id"`
}

func (s Scope) IsZero() bool {
	return s.TenantID == uuid.Nil || s.ProjectID == uuid.Nil
}

type contextKey string

const (
	scopeKey contextKey = "scope"
	actorKey contextKey = "actor"
)

func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

func ScopeFromContext(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey).(Scope)
	return s
}

// WithActor records the authenticated subject for audit trails.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromContext(ctx context.Context) string {
	a, _ := ctx.Value(actorKey).(string)
	return a
}
