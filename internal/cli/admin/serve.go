package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/cache"
	"github.com/cloo-solutions/docqa/internal/config"
	"github.com/cloo-solutions/docqa/internal/database"
	"github.com/cloo-solutions/docqa/internal/jobs"
	"github.com/cloo-solutions/docqa/internal/logger"
	"github.com/cloo-solutions/docqa/internal/metrics"
	"github.com/cloo-solutions/docqa/internal/openai"
	"github.com/cloo-solutions/docqa/internal/repository"
	"github.com/cloo-solutions/docqa/internal/server"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/cloo-solutions/docqa/internal/storage"
	"github.com/cloo-solutions/docqa/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the docqa API server: document ingest and question answering over HTTP",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if portFlag, _ := cmd.Flags().GetString("port"); portFlag != "" {
		cfg.Port = portFlag
	}

	log, err := logger.NewLogger(cfg.LoggerEnv(), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: telemetry.SampleRateFor(cfg.Environment),
	}, log)
	if err != nil {
		log.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
	} else {
		defer shutdownTelemetry()
	}

	if !cfg.HasS3() {
		return errors.New("S3_ENDPOINT, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required")
	}
	if !cfg.HasOpenAI() {
		return errors.New("OPENAI_API_KEY or LLM_BASE_URL is required")
	}
	if !cfg.HasAPIKey() {
		log.Warn("API_KEY is not set, requests are not authenticated")
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("connected to database")

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		if err := database.RunMigrations(cfg.DatabaseURL, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	chunkRepo := repository.NewChunkRepository(pool, cfg.VectorCollection, cfg.EmbedDim)
	if err := chunkRepo.EnsureCollection(ctx); err != nil {
		return err
	}
	ingestionRepo := repository.NewIngestionRepository(pool)

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	log.Info("bucket ready", zap.String("bucket", s3Client.Bucket()))

	llm := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.LLMBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbedDim,
		ChatModel:           cfg.LLMModel,
	})

	var queries service.QueryEmbedder = llm
	var sessions service.SessionRecorder
	var sessionReader handlers.SessionReader
	store, err := cache.NewStore(cfg.RedisURL)
	if err != nil {
		log.Warn("redis unavailable, running without embedding cache and session log", zap.Error(err))
	} else {
		defer store.Close()
		queries = cache.NewCachedEmbedder(llm, store, cfg.EmbeddingModel, cfg.EmbedCacheTTL, metrics.EmbeddingCache, log)
		sessionLog := cache.NewSessionLog(store, cfg.SessionMaxTurns, cfg.SessionTTL)
		sessions = sessionLog
		sessionReader = sessionLog
	}

	index := service.NewVectorIndex(llm, queries, chunkRepo, service.IndexConfig{
		BatchSize:   cfg.EmbedBatchSize,
		Concurrency: cfg.EmbedConcurrency,
	})
	chunker := service.NewChunker(service.ChunkConfig{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap})
	composer := service.NewAnswerComposer(llm, service.PromptConfig{
		Instruction: cfg.PromptInstruction,
		Language:    cfg.AnswerLanguage,
	})

	ingestSvc := service.NewIngestService(s3Client, ingestionRepo, chunker, index)
	askSvc := service.NewAskService(index, composer, sessions)

	reconciler := jobs.NewReconciler(ingestionRepo, chunkRepo, s3Client, cfg.ReconcileStaleAfter, log.Named("reconciler"))
	worker := jobs.NewWorker(reconciler, cfg.ReconcileInterval, log.Named("worker"))
	go worker.Start(ctx)

	router := server.NewRouter(server.RouterConfig{
		APIKey:         cfg.APIKey,
		RequireHeaders: cfg.RequireHeaders,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         log.Named("http"),
		IngestHandler:  handlers.NewIngestHandler(ingestSvc, cfg.MaxUploadBytes),
		AskHandler:     handlers.NewAskHandler(askSvc),
		SessionHandler: handlers.NewSessionHandler(sessionReader),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down")

	worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}
