package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

const (
	DefaultEmbedBatchSize   = 64
	DefaultEmbedConcurrency = 4
)

// Embedder produces document embeddings in batches, preserving input order.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbedder embeds a single search query. The cached embedder satisfies it.
type QueryEmbedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ChunkStore persists chunk vectors. Every read is keyed by namespace.
type ChunkStore interface {
	Insert(ctx context.Context, records []domain.ChunkRecord) error
	Search(ctx context.Context, namespace string, embedding []float32, k int) ([]domain.QueryResult, error)
	Count(ctx context.Context, namespace string) (int, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

type IndexConfig struct {
	BatchSize   int
	Concurrency int
}

// VectorIndex embeds and stores chunks. Operations are reachable only through
// ForNamespace, so there is no way to search across tenants.
type VectorIndex struct {
	embedder Embedder
	queries  QueryEmbedder
	store    ChunkStore
	cfg      IndexConfig
	uuidGen  UUIDGenerator
}

// NewVectorIndex wires the index. A nil queries embeds queries through embedder.
func NewVectorIndex(embedder Embedder, queries QueryEmbedder, store ChunkStore, cfg IndexConfig) *VectorIndex {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbedBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultEmbedConcurrency
	}
	if queries == nil {
		queries = singleEmbedder{embedder}
	}
	return &VectorIndex{
		embedder: embedder,
		queries:  queries,
		store:    store,
		cfg:      cfg,
		uuidGen:  &DefaultUUIDGenerator{},
	}
}

// ForNamespace returns the index view for one tenant.
func (v *VectorIndex) ForNamespace(ns domain.Namespace) *NamespacedIndex {
	return &NamespacedIndex{index: v, namespace: ns}
}

type NamespacedIndex struct {
	index     *VectorIndex
	namespace domain.Namespace
}

// AddOption adjusts how AddTexts stores records.
type AddOption func(*addOptions)

type addOptions struct {
	ingestionID string
}

// WithIngestionID tags stored records with the ledger entry that wrote them.
func WithIngestionID(id string) AddOption {
	return func(o *addOptions) { o.ingestionID = id }
}

// AddTexts embeds texts and stores one record per text. metadata is aligned
// with texts. Nothing is stored unless every batch embeds successfully.
func (n *NamespacedIndex) AddTexts(ctx context.Context, texts []string, metadata []domain.ChunkMetadata, opts ...AddOption) (int, error) {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	if len(texts) == 0 {
		return 0, nil
	}
	if len(metadata) != len(texts) {
		return 0, fmt.Errorf("metadata count %d does not match text count %d", len(metadata), len(texts))
	}

	vectors, err := n.index.embedAll(ctx, texts)
	if err != nil {
		return 0, domain.Upstream("embed chunks", err)
	}

	key := n.namespace.String()
	now := time.Now().UTC()
	records := make([]domain.ChunkRecord, len(texts))
	for i, text := range texts {
		records[i] = domain.ChunkRecord{
			ID:          n.index.uuidGen.NewString(),
			Namespace:   key,
			IngestionID: o.ingestionID,
			Content:     text,
			Metadata:    metadata[i],
			Embedding:   vectors[i],
			CreatedAt:   now,
		}
	}

	if err := n.index.store.Insert(ctx, records); err != nil {
		return 0, domain.Upstream("store chunks", err)
	}
	return len(records), nil
}

// SimilaritySearch returns up to k nearest chunks in this namespace, closest first.
func (n *NamespacedIndex) SimilaritySearch(ctx context.Context, query string, k int) ([]domain.QueryResult, error) {
	if k < 1 {
		return nil, domain.ErrInvalidTopK
	}

	vec, err := n.index.queries.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, domain.Upstream("embed query", err)
	}

	results, err := n.index.store.Search(ctx, n.namespace.String(), vec, k)
	if err != nil {
		return nil, domain.Upstream("vector search", err)
	}
	return results, nil
}

// Count returns the number of stored chunks in this namespace.
func (n *NamespacedIndex) Count(ctx context.Context) (int, error) {
	count, err := n.index.store.Count(ctx, n.namespace.String())
	if err != nil {
		return 0, domain.Upstream("count chunks", err)
	}
	return count, nil
}

// embedAll splits texts into batches and embeds them on a bounded pool.
// The first failure cancels the remaining batches.
func (v *VectorIndex) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	batches := (len(texts) + v.cfg.BatchSize - 1) / v.cfg.BatchSize
	vectors := make([][]float32, len(texts))

	if batches == 1 {
		out, err := v.embedder.GenerateEmbeddings(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(out) != len(texts) {
			return nil, fmt.Errorf("expected %d vectors, got %d", len(texts), len(out))
		}
		return out, nil
	}

	size := v.cfg.Concurrency
	if size > batches {
		size = batches
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for b := 0; b < batches; b++ {
		start := b * v.cfg.BatchSize
		end := start + v.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				fail(ctx.Err())
				return
			}
			out, err := v.embedder.GenerateEmbeddings(ctx, texts[start:end])
			if err != nil {
				fail(fmt.Errorf("batch %d: %w", start/v.cfg.BatchSize, err))
				return
			}
			if len(out) != end-start {
				fail(fmt.Errorf("batch %d: expected %d vectors, got %d", start/v.cfg.BatchSize, end-start, len(out)))
				return
			}
			copy(vectors[start:end], out)
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", submitErr))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

type singleEmbedder struct {
	Embedder
}

func (s singleEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	out, err := s.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("expected 1 vector, got %d", len(out))
	}
	return out[0], nil
}
