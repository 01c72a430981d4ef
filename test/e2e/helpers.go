//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/cache"
	"github.com/cloo-solutions/docqa/internal/cli/client"
	"github.com/cloo-solutions/docqa/internal/jobs"
	"github.com/cloo-solutions/docqa/internal/metrics"
	"github.com/cloo-solutions/docqa/internal/openai"
	"github.com/cloo-solutions/docqa/internal/repository"
	"github.com/cloo-solutions/docqa/internal/server"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/cloo-solutions/docqa/internal/storage"
	"github.com/cloo-solutions/docqa/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	e2eAPIKey     = "e2e-secret"
	e2eDimensions = 16
	e2eCollection = "e2e_docs"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	PostgresC  *testutil.PostgresContainer
	RustFSC    *testutil.RustFSContainer
	RedisC     *testutil.RedisContainer
	Pool       *pgxpool.Pool
	Store      *cache.Store
	S3Client   *storage.S3Client
	Chunks     *repository.ChunkRepository
	Ingestions *repository.IngestionRepository
	Sessions   *cache.SessionLog
	LLM        *fakeLLM
	Server     *httptest.Server
	Reconciler *jobs.Reconciler
}

// SetupE2EEnv starts Postgres, RustFS and Redis, wires the real server
// against them and fakes only the model endpoint.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()
	env := &E2ETestEnv{T: t, Ctx: ctx}

	env.PostgresC = testutil.NewPostgresContainer(ctx, t)
	env.RustFSC = testutil.NewRustFSContainer(ctx, t)
	env.RedisC = testutil.NewRedisContainer(ctx, t)
	env.Pool = testutil.NewTestPool(ctx, t, env.PostgresC)

	accessKey, secretKey := env.RustFSC.Credentials()
	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        env.RustFSC.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		Bucket:          "e2e-documents",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}
	env.S3Client = s3Client

	env.Store, err = cache.NewStore(env.RedisC.URL())
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}

	env.Chunks = repository.NewChunkRepository(env.Pool, e2eCollection, e2eDimensions)
	if err := env.Chunks.EnsureCollection(ctx); err != nil {
		t.Fatalf("failed to ensure collection: %v", err)
	}
	env.Ingestions = repository.NewIngestionRepository(env.Pool)

	env.LLM = newFakeLLM()
	llm := openai.NewClientWithConfig(openai.Config{
		APIKey:              "unused",
		BaseURL:             env.LLM.URL(),
		EmbeddingModel:      "fake-embedding",
		EmbeddingDimensions: e2eDimensions,
		ChatModel:           "fake-chat",
	})

	queries := cache.NewCachedEmbedder(llm, env.Store, "fake-embedding", time.Hour, metrics.EmbeddingCache, zap.NewNop())
	env.Sessions = cache.NewSessionLog(env.Store, 10, time.Hour)

	index := service.NewVectorIndex(llm, queries, env.Chunks, service.IndexConfig{BatchSize: 2, Concurrency: 2})
	chunker := service.NewChunker(service.ChunkConfig{Size: 200, Overlap: 20})
	composer := service.NewAnswerComposer(llm, service.PromptConfig{})

	const maxUpload = 1 << 20
	router := server.NewRouter(server.RouterConfig{
		APIKey:         e2eAPIKey,
		RequireHeaders: true,
		MaxUploadBytes: maxUpload,
		IngestHandler:  handlers.NewIngestHandler(service.NewIngestService(s3Client, env.Ingestions, chunker, index), maxUpload),
		AskHandler:     handlers.NewAskHandler(service.NewAskService(index, composer, env.Sessions)),
		SessionHandler: handlers.NewSessionHandler(env.Sessions),
	})
	env.Server = httptest.NewServer(router)

	env.Reconciler = jobs.NewReconciler(env.Ingestions, env.Chunks, s3Client, time.Minute, zap.NewNop())

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Close()
	}
	if e.LLM != nil {
		e.LLM.Close()
	}
	if e.Store != nil {
		e.Store.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RedisC != nil {
		e.RedisC.Terminate(e.Ctx)
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// Client returns a CLI API client for the given tenant.
func (e *E2ETestEnv) Client(customer, project string) *client.APIClient {
	return client.NewAPIClientWithSettings(client.Settings{
		APIURL:     e.Server.URL,
		APIKey:     e2eAPIKey,
		CustomerID: customer,
		ProjectID:  project,
	})
}

// fakeLLM serves the two OpenAI endpoints the service calls. Embeddings are
// bag-of-words hashes; chat echoes the first context line so tests can see
// which chunk ranked first.
type fakeLLM struct {
	srv *httptest.Server

	mu              sync.Mutex
	embeddingInputs int
	prompts         []string
}

func newFakeLLM() *fakeLLM {
	f := &fakeLLM{}
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", f.embeddings)
	mux.HandleFunc("/chat/completions", f.chat)
	f.srv = httptest.NewServer(mux)
	return f
}

func (f *fakeLLM) URL() string { return f.srv.URL }

func (f *fakeLLM) Close() { f.srv.Close() }

func (f *fakeLLM) EmbeddingInputs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embeddingInputs
}

func (f *fakeLLM) LastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeLLM) embeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.embeddingInputs += len(req.Input)
	f.mu.Unlock()

	type item struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	data := make([]item, len(req.Input))
	for i, text := range req.Input {
		data[i] = item{Object: "embedding", Embedding: bagOfWords(text), Index: i}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"object": "list",
		"data":   data,
		"model":  "fake-embedding",
		"usage":  map[string]int{"prompt_tokens": 0, "total_tokens": 0},
	})
}

func (f *fakeLLM) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	prompt := req.Messages[len(req.Messages)-1].Content

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	_, after, _ := strings.Cut(prompt, "Context:\n")
	answer, _, _ := strings.Cut(after, "\n")
	if answer == "" {
		answer = "I don't know."
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":     "chatcmpl-e2e",
		"object": "chat.completion",
		"model":  "fake-chat",
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": answer},
			"finish_reason": "stop",
		}},
	})
}

func bagOfWords(text string) []float32 {
	v := make([]float32, e2eDimensions)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,?!:;")))
		v[h.Sum32()%e2eDimensions]++
	}
	// pgvector cosine distance is undefined for zero vectors.
	v[0] += 0.01
	return v
}
