package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type ingestFixture struct {
	embedder *hashEmbedder
	store    *memoryChunkStore
	objects  *memoryObjects
	ledger   *memoryLedger
	index    *VectorIndex
	ingest   *IngestService
}

func newIngestFixture() *ingestFixture {
	f := &ingestFixture{
		embedder: &hashEmbedder{},
		store:    &memoryChunkStore{},
		objects:  newMemoryObjects(),
		ledger:   newMemoryLedger(),
	}
	f.index = NewVectorIndex(f.embedder, f.embedder, f.store, IndexConfig{BatchSize: 4, Concurrency: 2})
	f.ingest = NewIngestService(f.objects, f.ledger, NewChunker(ChunkConfig{Size: 120, Overlap: 20}), f.index)
	return f
}

func textUpload(ns domain.Namespace, filename, body string) IngestInput {
	return IngestInput{Namespace: ns, Filename: filename, ContentType: "text/plain", Content: []byte(body)}
}

func TestIngestService_Ingest(t *testing.T) {
	f := newIngestFixture()
	ns := domain.NewNamespace("acme", "docs")
	body := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)

	result, err := f.ingest.Ingest(context.Background(), textUpload(ns, "fox.txt", body))
	require.NoError(t, err)

	assert.Equal(t, "acme:docs/fox.txt", result.Key)
	assert.Greater(t, result.Chunks, 1)

	stored, ok := f.objects.get("acme:docs/fox.txt")
	require.True(t, ok)
	assert.Equal(t, body, string(stored))

	count, err := f.index.ForNamespace(ns).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result.Chunks, count)

	row := f.ledger.get(result.IngestionID)
	assert.Equal(t, domain.IngestionStatusIndexed, row.Status)
	assert.Equal(t, result.Chunks, row.Chunks)
	assert.True(t, row.ObjectCreated)

	for _, r := range f.store.records {
		assert.Equal(t, domain.ChunkMetadata{Source: "acme:docs/fox.txt", CustomerID: "acme", ProjectID: "docs"}, r.Metadata)
		assert.Equal(t, result.IngestionID, r.IngestionID)
	}
}

func TestIngestService_FilenameReducedToBaseName(t *testing.T) {
	f := newIngestFixture()
	ns := domain.NewNamespace("acme", "docs")

	result, err := f.ingest.Ingest(context.Background(), textUpload(ns, "../../other:docs/x.txt", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "acme:docs/x.txt", result.Key)
}

func TestIngestService_ReingestOverwritesObjectAndGrowsIndex(t *testing.T) {
	f := newIngestFixture()
	ns := domain.NewNamespace("acme", "docs")
	ctx := context.Background()

	first, err := f.ingest.Ingest(ctx, textUpload(ns, "notes.txt", "version one of the notes"))
	require.NoError(t, err)
	second, err := f.ingest.Ingest(ctx, textUpload(ns, "notes.txt", "version two of the notes"))
	require.NoError(t, err)

	assert.Equal(t, first.Key, second.Key)
	stored, _ := f.objects.get(first.Key)
	assert.Equal(t, "version two of the notes", string(stored))
	assert.Len(t, f.objects.objects, 1)

	count, err := f.index.ForNamespace(ns).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Chunks+second.Chunks, count)

	assert.False(t, f.ledger.get(second.IngestionID).ObjectCreated)
}

func TestIngestService_EmptyDocument(t *testing.T) {
	f := newIngestFixture()

	result, err := f.ingest.Ingest(context.Background(), textUpload(domain.NewNamespace("a", "b"), "empty.txt", ""))
	require.NoError(t, err)
	assert.Zero(t, result.Chunks)
	assert.Zero(t, f.embedder.calls)
}

func TestIngestService_RejectsBinaryBeforeArchiving(t *testing.T) {
	f := newIngestFixture()
	input := IngestInput{
		Namespace:   domain.NewNamespace("a", "b"),
		Filename:    "image.png",
		ContentType: "image/png",
		Content:     []byte{0x89, 'P', 'N', 'G'},
	}

	_, err := f.ingest.Ingest(context.Background(), input)

	assert.ErrorIs(t, err, domain.ErrUnsupportedContent)
	assert.Zero(t, f.objects.puts)
	assert.Empty(t, f.ledger.rows)
}

func TestIngestService_InvalidFilename(t *testing.T) {
	f := newIngestFixture()

	_, err := f.ingest.Ingest(context.Background(), textUpload(domain.NewNamespace("a", "b"), "..", "x"))
	assert.ErrorIs(t, err, domain.ErrInvalidFilename)
}

func TestIngestService_IndexFailureRemovesCreatedObject(t *testing.T) {
	f := newIngestFixture()
	f.embedder.failOn = "explode"
	ns := domain.NewNamespace("acme", "docs")

	_, err := f.ingest.Ingest(context.Background(), textUpload(ns, "bad.txt", "this will explode"))

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeUpstream, de.Code)

	_, exists := f.objects.get("acme:docs/bad.txt")
	assert.False(t, exists)

	row := f.ledger.only()
	assert.Equal(t, domain.IngestionStatusFailed, row.Status)
	assert.True(t, row.ObjectRemoved)
	assert.Contains(t, row.Error, "embedding service unavailable")
	assert.False(t, row.NeedsCleanup())
}

func TestIngestService_IndexFailureKeepsPreexistingObject(t *testing.T) {
	f := newIngestFixture()
	ns := domain.NewNamespace("acme", "docs")
	ctx := context.Background()

	_, err := f.ingest.Ingest(ctx, textUpload(ns, "doc.txt", "good content"))
	require.NoError(t, err)

	f.embedder.failOn = "explode"
	_, err = f.ingest.Ingest(ctx, textUpload(ns, "doc.txt", "this will explode"))
	require.Error(t, err)

	// The failed attempt overwrote the blob but did not create the key.
	_, exists := f.objects.get("acme:docs/doc.txt")
	assert.True(t, exists)

	var failed domain.Ingestion
	for _, row := range f.ledger.rows {
		if row.Status == domain.IngestionStatusFailed {
			failed = row
		}
	}
	assert.False(t, failed.ObjectCreated)
	assert.False(t, failed.ObjectRemoved)
	assert.False(t, failed.NeedsCleanup())
}

func TestIngestService_CleanupFailureLeftForReconciler(t *testing.T) {
	f := newIngestFixture()
	f.embedder.failOn = "explode"
	f.objects.deleteErr = errors.New("storage offline")

	_, err := f.ingest.Ingest(context.Background(), textUpload(domain.NewNamespace("a", "b"), "x.txt", "explode"))
	require.Error(t, err)

	row := f.ledger.only()
	assert.Equal(t, domain.IngestionStatusFailed, row.Status)
	assert.False(t, row.ObjectRemoved)
	assert.True(t, row.NeedsCleanup())
}

func TestIngestService_ArchiveFailure(t *testing.T) {
	f := newIngestFixture()
	f.objects.putErr = errors.New("bucket missing")

	_, err := f.ingest.Ingest(context.Background(), textUpload(domain.NewNamespace("a", "b"), "x.txt", "hello"))

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeUpstream, de.Code)
	assert.Zero(t, f.embedder.calls)
	assert.Equal(t, domain.IngestionStatusFailed, f.ledger.only().Status)
}

func TestIngestService_LedgerFailureStopsBeforeArchive(t *testing.T) {
	f := newIngestFixture()
	f.ledger.createErr = errors.New("db down")

	_, err := f.ingest.Ingest(context.Background(), textUpload(domain.NewNamespace("a", "b"), "x.txt", "hello"))

	require.Error(t, err)
	assert.Zero(t, f.objects.puts)
}

func TestIngestThenAsk_ReturnsSourceOfAnsweringChunk(t *testing.T) {
	f := newIngestFixture()
	ns := domain.NewNamespace("acme", "docs")
	ctx := context.Background()

	_, err := f.ingest.Ingest(ctx, textUpload(ns, "cats.txt", "Cats sleep most of the day and purr when content."))
	require.NoError(t, err)
	_, err = f.ingest.Ingest(ctx, textUpload(ns, "rockets.txt", "Rockets burn liquid oxygen and kerosene to reach orbit."))
	require.NoError(t, err)

	chat := new(MockChatClient)
	chat.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Rockets burn liquid oxygen") && strings.HasSuffix(p, "Question: What do rockets burn to reach orbit?")
	})).Return("Liquid oxygen and kerosene.", nil)

	ask := NewAskService(f.index, NewAnswerComposer(chat, PromptConfig{}), nil)
	result, err := ask.Ask(ctx, AskInput{Namespace: ns, Question: "What do rockets burn to reach orbit?", TopK: 1})
	require.NoError(t, err)

	assert.Equal(t, "Liquid oxygen and kerosene.", result.Answer)
	assert.Equal(t, 1, result.K)
	require.Len(t, result.Sources, 1)
	assert.Equal(t, "acme:docs/rockets.txt", result.Sources[0].Source)
	chat.AssertExpectations(t)
}

func TestIngestService_IndexFailureLeavesObjectToNewerIngest(t *testing.T) {
	f := newIngestFixture()
	ns := domain.NewNamespace("acme", "docs")
	ctx := context.Background()

	// A second upload of the same key completes while the first is still indexing.
	var newer *IngestResult
	f.embedder.failOn = "explode"
	f.embedder.onFail = func() {
		var err error
		newer, err = f.ingest.Ingest(ctx, textUpload(ns, "race.txt", "the newer version"))
		require.NoError(t, err)
	}

	_, err := f.ingest.Ingest(ctx, textUpload(ns, "race.txt", "this will explode"))
	require.Error(t, err)
	require.NotNil(t, newer)

	stored, exists := f.objects.get("acme:docs/race.txt")
	require.True(t, exists)
	assert.Equal(t, "the newer version", string(stored))

	for id, row := range f.ledger.rows {
		if id == newer.IngestionID {
			assert.Equal(t, domain.IngestionStatusIndexed, row.Status)
			continue
		}
		assert.Equal(t, domain.IngestionStatusFailed, row.Status)
		assert.False(t, row.ObjectCreated)
		assert.False(t, row.ObjectRemoved)
		assert.False(t, row.NeedsCleanup())
	}
}

func TestIngestService_OwnershipCheckFailureLeftForReconciler(t *testing.T) {
	f := newIngestFixture()
	f.embedder.failOn = "explode"
	f.ledger.supersededErr = errors.New("db down")

	_, err := f.ingest.Ingest(context.Background(), textUpload(domain.NewNamespace("a", "b"), "x.txt", "explode"))
	require.Error(t, err)

	_, exists := f.objects.get("a:b/x.txt")
	assert.True(t, exists)
	row := f.ledger.only()
	assert.Equal(t, domain.IngestionStatusFailed, row.Status)
	assert.True(t, row.NeedsCleanup())
}
