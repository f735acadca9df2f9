package evaluation

import (
	"context"
	"fmt"

	"github.com/modelplane/modelplane/internal/llm"
	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/tenant"
	"github.com/modelplane/modelplane/internal/vectorstore"
)

// VectorRetriever selects eval samples from a knowledge-base collection by
// embedding the query and running a similarity search.
type VectorRetriever struct {
	store          *vectorstore.PgVectorStore
	gateway        llm.Gateway
	embeddingModel string
}

func NewVectorRetriever(store *vectorstore.PgVectorStore, gw llm.Gateway, embeddingModel string) *VectorRetriever {
	return &VectorRetriever{store: store, gateway: gw, embeddingModel: embeddingModel}
}

func (r *VectorRetriever) SelectSamples(ctx context.Context, scope tenant.Scope, collection, query string, limit int) ([]models.EvalSample, error) {
	resp, err := r.gateway.Embed(ctx, llm.EmbeddingRequest{
		Model: r.embeddingModel,
		Input: []string{query},
	})
	if err != nil {
		return nil, fmt.Errorf("embed retrieval query: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("embedding response empty")
	}

	results, err := r.store.Search(ctx, scope, collection, resp.Embeddings[0], limit)
	if err != nil {
		return nil, err
	}

	samples := make([]models.EvalSample, 0, len(results))
	for _, res := range results {
		samples = append(samples, models.EvalSample{
			ID:        res.ID,
			TenantID:  scope.TenantID,
			ProjectID: scope.ProjectID,
			Input:     res.Input,
			Expected:  res.Expected,
		})
	}
	return samples, nil
}
