package store

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the relational system of record for the pipeline. Every status
// transition is a single-row compare-and-set update keyed on the entity's
// pending status, so duplicate queue deliveries resolve to no-ops instead
// of double side effects. All reads and writes are tenant/project scoped.
type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}
