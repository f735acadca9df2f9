package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/modelplane/modelplane/internal/tenant"
)

// Record is one embedded input/expected pair in a named collection.
// Dataset builds with vectorize=true write their traces here; eval suites
// with the vector_retrieval strategy search it.
type Record struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	ProjectID  uuid.UUID
	Collection string
	Input      string
	Expected   string
	Embedding  []float32
	TokenCount int
}

type SearchResult struct {
	ID       uuid.UUID
	Input    string
	Expected string
	Score    float64
}

type PgVectorStore struct {
	db *pgxpool.Pool
}

func NewPgVectorStore(db *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{db: db}
}

func (s *PgVectorStore) Upsert(ctx context.Context, records []Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, rec := range records {
		id := rec.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		embedding := pgvector.NewVector(rec.Embedding)

		_, err := tx.Exec(ctx,
			`INSERT INTO vector_records (id, tenant_id, project_id, collection, input, expected, embedding, token_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE SET input = $5, expected = $6, embedding = $7, token_count = $8`,
			id, rec.TenantID, rec.ProjectID, rec.Collection, rec.Input, rec.Expected, embedding, rec.TokenCount,
		)
		if err != nil {
			return fmt.Errorf("upsert record %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PgVectorStore) Search(ctx context.Context, scope tenant.Scope, collection string, query []float32, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}

	embedding := pgvector.NewVector(query)

	rows, err := s.db.Query(ctx,
		`SELECT id, input, expected,
		        1 - (embedding <=> $1) AS score
		 FROM vector_records
		 WHERE tenant_id = $2 AND project_id = $3 AND collection = $4
		 ORDER BY embedding <=> $1
		 LIMIT $5`,
		embedding, scope.TenantID, scope.ProjectID, collection, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Input, &r.Expected, &r.Score); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
