package service

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/cloo-solutions/docqa/internal/cache"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/stretchr/testify/mock"
)

const testDim = 64

// hashEmbedder maps text to a normalized bag-of-words vector, so texts sharing
// words land close together.
type hashEmbedder struct {
	mu      sync.Mutex
	calls   int
	batches [][]string
	failOn  string
	// onFail runs once just before a failOn error is returned.
	onFail func()
}

func (e *hashEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.batches = append(e.batches, texts)
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.failOn != "" && strings.Contains(t, e.failOn) {
			e.mu.Lock()
			hook := e.onFail
			e.onFail = nil
			e.mu.Unlock()
			if hook != nil {
				hook()
			}
			return nil, errors.New("embedding service unavailable")
		}
		out[i] = hashVector(t)
	}
	return out, nil
}

func (e *hashEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	out, err := e.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func hashVector(text string) []float32 {
	v := make([]float32, testDim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%testDim]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// memoryChunkStore ranks by cosine similarity and scopes by namespace like the
// pgvector repository does.
type memoryChunkStore struct {
	mu        sync.Mutex
	records   []domain.ChunkRecord
	insertErr error
}

func (s *memoryChunkStore) Insert(ctx context.Context, records []domain.ChunkRecord) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func (s *memoryChunkStore) Search(ctx context.Context, namespace string, embedding []float32, k int) ([]domain.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []domain.QueryResult
	for _, r := range s.records {
		if r.Namespace != namespace {
			continue
		}
		results = append(results, domain.QueryResult{
			Content:  r.Content,
			Metadata: r.Metadata,
			Score:    cosine(embedding, r.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *memoryChunkStore) Count(ctx context.Context, namespace string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.Namespace == namespace {
			n++
		}
	}
	return n, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i] * b[i])
		na += float64(a[i] * a[i])
		nb += float64(b[i] * b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type memoryObjects struct {
	mu        sync.Mutex
	objects   map[string][]byte
	puts      int
	putErr    error
	deleteErr error
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: map[string][]byte{}}
}

func (o *memoryObjects) PutObject(ctx context.Context, key string, content []byte, contentType string) error {
	if o.putErr != nil {
		return o.putErr
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.puts++
	o.objects[key] = append([]byte(nil), content...)
	return nil
}

func (o *memoryObjects) ObjectExists(ctx context.Context, key string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[key]
	return ok, nil
}

func (o *memoryObjects) DeleteObject(ctx context.Context, key string) error {
	if o.deleteErr != nil {
		return o.deleteErr
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

func (o *memoryObjects) get(key string) ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.objects[key]
	return b, ok
}

type memoryLedger struct {
	mu            sync.Mutex
	rows          map[string]domain.Ingestion
	createErr     error
	supersededErr error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{rows: map[string]domain.Ingestion{}}
}

func (l *memoryLedger) Create(ctx context.Context, ing *domain.Ingestion) error {
	if l.createErr != nil {
		return l.createErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows[ing.ID] = *ing
	return nil
}

func (l *memoryLedger) MarkIndexed(ctx context.Context, id string, chunks int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row := l.rows[id]
	row.Status = domain.IngestionStatusIndexed
	row.Chunks = chunks
	l.rows[id] = row
	return nil
}

func (l *memoryLedger) MarkFailed(ctx context.Context, id, reason string, objectRemoved bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row := l.rows[id]
	row.Status = domain.IngestionStatusFailed
	row.Error = reason
	row.ObjectRemoved = objectRemoved
	l.rows[id] = row
	return nil
}

func (l *memoryLedger) IsSuperseded(ctx context.Context, ing *domain.Ingestion) (bool, error) {
	if l.supersededErr != nil {
		return false, l.supersededErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, row := range l.rows {
		if id != ing.ID && row.StorageKey == ing.StorageKey &&
			row.CreatedAt.After(ing.CreatedAt) && row.Status != domain.IngestionStatusFailed {
			return true, nil
		}
	}
	return false, nil
}

func (l *memoryLedger) MarkSuperseded(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row := l.rows[id]
	row.Status = domain.IngestionStatusFailed
	row.ObjectCreated = false
	l.rows[id] = row
	return nil
}

func (l *memoryLedger) get(id string) domain.Ingestion {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows[id]
}

func (l *memoryLedger) only() domain.Ingestion {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, row := range l.rows {
		return row
	}
	return domain.Ingestion{}
}

// MockChatClient is a mock implementation of ChatClient
type MockChatClient struct {
	mock.Mock
}

func (m *MockChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// MockSessionRecorder is a mock implementation of SessionRecorder
type MockSessionRecorder struct {
	mock.Mock
}

func (m *MockSessionRecorder) Append(ctx context.Context, namespace, sessionID string, turn cache.SessionTurn) error {
	args := m.Called(ctx, namespace, sessionID, turn)
	return args.Error(0)
}
