//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func chunk(ns, ingestionID, content string, embedding []float32) domain.ChunkRecord {
	return domain.ChunkRecord{
		ID:          uuid.NewString(),
		Namespace:   ns,
		IngestionID: ingestionID,
		Content:     content,
		Metadata:    domain.ChunkMetadata{Source: ns + "/doc.txt", CustomerID: "acme", ProjectID: "docs"},
		Embedding:   embedding,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestChunkRepository_InsertSearchCount(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	repo := NewChunkRepository(pool, "docs_test", 4)
	require.NoError(t, repo.EnsureCollection(ctx))
	require.NoError(t, repo.EnsureCollection(ctx))

	ingestionID := uuid.NewString()
	require.NoError(t, repo.Insert(ctx, []domain.ChunkRecord{
		chunk("acme:docs", ingestionID, "north", unit(4, 0)),
		chunk("acme:docs", ingestionID, "east", unit(4, 1)),
		chunk("other:docs", "", "north elsewhere", unit(4, 0)),
	}))

	results, err := repo.Search(ctx, "acme:docs", unit(4, 0), 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "north", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "acme:docs/doc.txt", results[0].Metadata.Source)
	assert.Equal(t, "east", results[1].Content)

	top, err := repo.Search(ctx, "acme:docs", unit(4, 1), 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "east", top[0].Content)

	count, err := repo.Count(ctx, "acme:docs")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	byIngestion, err := repo.CountByIngestion(ctx, ingestionID)
	require.NoError(t, err)
	assert.Equal(t, 2, byIngestion)

	empty, err := repo.Search(ctx, "nobody:here", unit(4, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestChunkRepository_SmallNamespaceInCrowdedCollection(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	const dim = 8
	repo := NewChunkRepository(pool, "docs_crowded", dim)
	require.NoError(t, repo.EnsureCollection(ctx))

	// Other tenants sit right on the query vector; the target tenant is far from it.
	var others []domain.ChunkRecord
	for i := 0; i < 400; i++ {
		others = append(others, chunk(fmt.Sprintf("tenant%d:docs", i%20), "", "noise", unit(dim, 0)))
	}
	require.NoError(t, repo.Insert(ctx, others))

	require.NoError(t, repo.Insert(ctx, []domain.ChunkRecord{
		chunk("acme:docs", "", "near", []float32{0.5, 1, 0, 0, 0, 0, 0, 0}),
		chunk("acme:docs", "", "middle", unit(dim, 1)),
		chunk("acme:docs", "", "far", unit(dim, 2)),
	}))
	_, err := pool.Exec(ctx, "ANALYZE docs_crowded")
	require.NoError(t, err)

	for _, k := range []int{1, 2, 3, 5, 50} {
		results, err := repo.Search(ctx, "acme:docs", unit(dim, 0), k)
		require.NoError(t, err)
		require.Len(t, results, min(k, 3), "k=%d", k)
		assert.Equal(t, "near", results[0].Content)
		for _, r := range results {
			assert.NotEqual(t, "noise", r.Content)
		}
	}
}

func TestChunkRepository_EnsureCollectionDropsApproximateIndex(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	repo := NewChunkRepository(pool, "docs_legacy", 4)
	require.NoError(t, repo.EnsureCollection(ctx))
	_, err := pool.Exec(ctx, `CREATE INDEX docs_legacy_embedding_idx ON docs_legacy USING hnsw (embedding vector_cosine_ops)`)
	require.NoError(t, err)

	require.NoError(t, repo.EnsureCollection(ctx))

	var n int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pg_indexes WHERE tablename = 'docs_legacy' AND indexname = 'docs_legacy_embedding_idx'`,
	).Scan(&n))
	assert.Zero(t, n)
}

func TestChunkRepository_DimensionMismatchSurfacesOnInsert(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	repo := NewChunkRepository(pool, "docs_dim", 4)
	require.NoError(t, repo.EnsureCollection(ctx))

	err := repo.Insert(ctx, []domain.ChunkRecord{chunk("a:b", "", "x", unit(3, 0))})
	assert.Error(t, err)

	count, err := repo.Count(ctx, "a:b")
	require.NoError(t, err)
	assert.Zero(t, count)
}
