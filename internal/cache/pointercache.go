package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/tenant"
)

const pointerTTL = 30 * time.Second

// PointerCache is a short-TTL read-through cache in front of the production
// pointer table. Promotion swaps invalidate the key, so the TTL only bounds
// staleness when invalidation itself fails.
type PointerCache struct {
	cache *Cache
}

func NewPointerCache(c *Cache) *PointerCache {
	return &PointerCache{cache: c}
}

func pointerKey(scope tenant.Scope, target models.TargetRef) string {
	return fmt.Sprintf("pointer:%s:%s:%s:%s", scope.TenantID, scope.ProjectID, target.Type, target.Value)
}

func (p *PointerCache) Get(ctx context.Context, scope tenant.Scope, target models.TargetRef) (*models.ProductionPointer, bool) {
	var ptr models.ProductionPointer
	if err := p.cache.Get(ctx, pointerKey(scope, target), &ptr); err != nil {
		return nil, false
	}
	return &ptr, true
}

func (p *PointerCache) Set(ctx context.Context, scope tenant.Scope, target models.TargetRef, ptr *models.ProductionPointer) error {
	return p.cache.Set(ctx, pointerKey(scope, target), ptr, pointerTTL)
}

func (p *PointerCache) Invalidate(ctx context.Context, scope tenant.Scope, target models.TargetRef) error {
	return p.cache.Delete(ctx, pointerKey(scope, target))
}
