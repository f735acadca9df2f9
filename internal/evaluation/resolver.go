package evaluation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/pipeline"
	"github.com/modelplane/modelplane/internal/tenant"
)

// SampleSource lists the fixed samples attached to a suite.
type SampleSource interface {
	ListSuiteSamples(ctx context.Context, scope tenant.Scope, suiteID uuid.UUID) ([]models.EvalSample, error)
}

// Retriever selects samples from a knowledge-base collection by similarity
// to a query. This is an external collaborator from the pipeline's
// perspective.
type Retriever interface {
	SelectSamples(ctx context.Context, scope tenant.Scope, collection, query string, limit int) ([]models.EvalSample, error)
}

// Resolver turns a suite's selection strategy into a concrete sample set.
type Resolver struct {
	samples   SampleSource
	retriever Retriever
	limit     int
}

func NewResolver(samples SampleSource, retriever Retriever, limit int) *Resolver {
	if limit <= 0 {
		limit = 50
	}
	return &Resolver{samples: samples, retriever: retriever, limit: limit}
}

func (r *Resolver) Resolve(ctx context.Context, scope tenant.Scope, suite *models.EvalSuite) ([]models.EvalSample, error) {
	switch suite.SelectionStrategy {
	case models.SelectionStatic:
		samples, err := r.samples.ListSuiteSamples(ctx, scope, suite.ID)
		if err != nil {
			return nil, fmt.Errorf("list suite samples: %w", err)
		}
		if len(samples) == 0 {
			return nil, pipeline.Precondition("eval suite %s has no samples", suite.ID)
		}
		return samples, nil

	case models.SelectionVectorRetrieval:
		if suite.KBCollection == nil || *suite.KBCollection == "" {
			return nil, pipeline.Precondition("eval suite %s uses vector retrieval but has no kb_collection", suite.ID)
		}
		query := suite.Name
		if suite.Description != nil && *suite.Description != "" {
			query = *suite.Description
		}
		samples, err := r.retriever.SelectSamples(ctx, scope, *suite.KBCollection, query, r.limit)
		if err != nil {
			return nil, fmt.Errorf("retrieve samples from %s: %w", *suite.KBCollection, err)
		}
		if len(samples) == 0 {
			return nil, pipeline.Precondition("kb collection %s returned no samples", *suite.KBCollection)
		}
		return samples, nil

	default:
		return nil, pipeline.Precondition("unknown selection strategy %q", suite.SelectionStrategy)
	}
}
