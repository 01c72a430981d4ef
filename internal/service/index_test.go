package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metaFor(ns domain.Namespace, source string, n int) []domain.ChunkMetadata {
	out := make([]domain.ChunkMetadata, n)
	for i := range out {
		out[i] = domain.ChunkMetadata{Source: source, CustomerID: ns.CustomerID, ProjectID: ns.ProjectID}
	}
	return out
}

func TestNamespacedIndex_AddTextsInBatches(t *testing.T) {
	embedder := &hashEmbedder{}
	store := &memoryChunkStore{}
	index := NewVectorIndex(embedder, nil, store, IndexConfig{BatchSize: 2, Concurrency: 3})
	ns := domain.NewNamespace("acme", "docs")

	texts := make([]string, 5)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk number %d", i)
	}

	n, err := index.ForNamespace(ns).AddTexts(context.Background(), texts, metaFor(ns, "acme:docs/a.txt", 5), WithIngestionID("ing-1"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 3, embedder.calls)

	require.Len(t, store.records, 5)
	for i, r := range store.records {
		assert.Equal(t, texts[i], r.Content)
		assert.Equal(t, hashVector(texts[i]), r.Embedding)
		assert.Equal(t, "acme:docs", r.Namespace)
		assert.Equal(t, "ing-1", r.IngestionID)
		assert.NotEmpty(t, r.ID)
	}
}

func TestNamespacedIndex_AddTextsEmpty(t *testing.T) {
	embedder := &hashEmbedder{}
	index := NewVectorIndex(embedder, nil, &memoryChunkStore{}, IndexConfig{})

	n, err := index.ForNamespace(domain.NewNamespace("a", "b")).AddTexts(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, embedder.calls)
}

func TestNamespacedIndex_AddTextsMetadataMismatch(t *testing.T) {
	index := NewVectorIndex(&hashEmbedder{}, nil, &memoryChunkStore{}, IndexConfig{})
	_, err := index.ForNamespace(domain.NewNamespace("a", "b")).AddTexts(context.Background(), []string{"x"}, nil)
	assert.Error(t, err)
}

func TestNamespacedIndex_EmbeddingFailureStoresNothing(t *testing.T) {
	embedder := &hashEmbedder{failOn: "poison"}
	store := &memoryChunkStore{}
	index := NewVectorIndex(embedder, nil, store, IndexConfig{BatchSize: 1, Concurrency: 2})
	ns := domain.NewNamespace("a", "b")

	texts := []string{"fine", "poison pill", "also fine"}
	_, err := index.ForNamespace(ns).AddTexts(context.Background(), texts, metaFor(ns, "k", 3))

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeUpstream, de.Code)
	assert.Empty(t, store.records)
}

func TestNamespacedIndex_StoreFailureIsUpstream(t *testing.T) {
	store := &memoryChunkStore{insertErr: errors.New("connection refused")}
	index := NewVectorIndex(&hashEmbedder{}, nil, store, IndexConfig{})
	ns := domain.NewNamespace("a", "b")

	_, err := index.ForNamespace(ns).AddTexts(context.Background(), []string{"x"}, metaFor(ns, "k", 1))

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeUpstream, de.Code)
	assert.ErrorContains(t, err, "connection refused")
}

func TestNamespacedIndex_SearchIsScopedToNamespace(t *testing.T) {
	embedder := &hashEmbedder{}
	index := NewVectorIndex(embedder, embedder, &memoryChunkStore{}, IndexConfig{})
	ctx := context.Background()

	acme := domain.NewNamespace("acme", "docs")
	other := domain.NewNamespace("other", "docs")
	_, err := index.ForNamespace(acme).AddTexts(ctx, []string{"rockets fly to space"}, metaFor(acme, "acme:docs/r.txt", 1))
	require.NoError(t, err)
	_, err = index.ForNamespace(other).AddTexts(ctx, []string{"rockets fly to space"}, metaFor(other, "other:docs/r.txt", 1))
	require.NoError(t, err)

	results, err := index.ForNamespace(acme).SimilaritySearch(ctx, "rockets", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "acme:docs/r.txt", results[0].Metadata.Source)
}

func TestNamespacedIndex_CollidingLegacyKeysStayApart(t *testing.T) {
	embedder := &hashEmbedder{}
	index := NewVectorIndex(embedder, embedder, &memoryChunkStore{}, IndexConfig{})
	ctx := context.Background()

	first := domain.NewNamespace("a:b", "c")
	second := domain.NewNamespace("a", "b:c")
	require.Equal(t, first.LegacyKey(), second.LegacyKey())

	_, err := index.ForNamespace(first).AddTexts(ctx, []string{"secret"}, metaFor(first, "k", 1))
	require.NoError(t, err)

	count, err := index.ForNamespace(second).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNamespacedIndex_TopKLargerThanCorpus(t *testing.T) {
	embedder := &hashEmbedder{}
	index := NewVectorIndex(embedder, embedder, &memoryChunkStore{}, IndexConfig{})
	ns := domain.NewNamespace("acme", "docs")
	ctx := context.Background()

	_, err := index.ForNamespace(ns).AddTexts(ctx, []string{"one", "two", "three"}, metaFor(ns, "k", 3))
	require.NoError(t, err)

	results, err := index.ForNamespace(ns).SimilaritySearch(ctx, "one", 100)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, "one", results[0].Content)
}

func TestNamespacedIndex_SearchRejectsInvalidK(t *testing.T) {
	index := NewVectorIndex(&hashEmbedder{}, nil, &memoryChunkStore{}, IndexConfig{})
	_, err := index.ForNamespace(domain.NewNamespace("a", "b")).SimilaritySearch(context.Background(), "q", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidTopK)
}
