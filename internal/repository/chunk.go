package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository stores chunk vectors in one pgvector collection table shared
// by all tenants. Every query filters on the namespace column.
type ChunkRepository struct {
	pool       *pgxpool.Pool
	collection string
	dim        int
}

func NewChunkRepository(pool *pgxpool.Pool, collection string, dim int) *ChunkRepository {
	return &ChunkRepository{pool: pool, collection: collection, dim: dim}
}

func (r *ChunkRepository) table() string {
	return pgx.Identifier{r.collection}.Sanitize()
}

func (r *ChunkRepository) index(suffix string) string {
	return pgx.Identifier{r.collection + "_" + suffix}.Sanitize()
}

// EnsureCollection creates the extension, table and indexes if they are missing.
// An existing table is left as is, even if its dimension differs.
// No approximate index is built on embedding: its scan picks candidates
// table-wide before the namespace filter applies, which starves small tenants.
// A leftover one from an older schema is dropped.
func (r *ChunkRepository) EnsureCollection(ctx context.Context) error {
	if r.dim <= 0 {
		return fmt.Errorf("invalid vector dimension %d", r.dim)
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id           UUID PRIMARY KEY,
			namespace    TEXT NOT NULL,
			ingestion_id UUID,
			content      TEXT NOT NULL,
			metadata     JSONB NOT NULL,
			embedding    vector(%d) NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, r.table(), r.dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (namespace)`, r.index("namespace_idx"), r.table()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (ingestion_id)`, r.index("ingestion_idx"), r.table()),
		fmt.Sprintf(`DROP INDEX IF EXISTS %s`, r.index("embedding_idx")),
	}

	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure collection %s: %w", r.collection, err)
		}
	}
	return nil
}

// Insert writes all records in one transaction.
func (r *ChunkRepository) Insert(ctx context.Context, records []domain.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(
		`INSERT INTO %s (id, namespace, ingestion_id, content, metadata, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`, r.table())

	batch := &pgx.Batch{}
	for _, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		batch.Queue(query,
			rec.ID,
			rec.Namespace,
			nullableString(rec.IngestionID),
			rec.Content,
			meta,
			pgvector.NewVector(rec.Embedding),
			createdAt,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Search returns the k rows of namespace closest to embedding by cosine
// distance, exactly: never fewer than min(k, rows in namespace). Score is
// cosine similarity.
func (r *ChunkRepository) Search(ctx context.Context, namespace string, embedding []float32, k int) ([]domain.QueryResult, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT content, metadata, 1 - (embedding <=> $2) AS score
		 FROM %s
		 WHERE namespace = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`, r.table()),
		namespace, pgvector.NewVector(embedding), k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.QueryResult
	for rows.Next() {
		var res domain.QueryResult
		var meta []byte
		if err := rows.Scan(&res.Content, &meta, &res.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &res.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *ChunkRepository) Count(ctx context.Context, namespace string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE namespace = $1`, r.table()),
		namespace,
	).Scan(&n)
	return n, err
}

// CountByIngestion returns how many rows an ingest attempt committed.
func (r *ChunkRepository) CountByIngestion(ctx context.Context, ingestionID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE ingestion_id = $1`, r.table()),
		ingestionID,
	).Scan(&n)
	return n, err
}
