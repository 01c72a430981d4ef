package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/logger"
	"github.com/cloo-solutions/docqa/internal/metrics"
	"github.com/cloo-solutions/docqa/internal/telemetry"
	"go.uber.org/zap"
)

// ObjectStore archives raw uploads.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
	ObjectExists(ctx context.Context, key string) (bool, error)
	DeleteObject(ctx context.Context, key string) error
}

// IngestionLedger records each ingest attempt so a failed one can be cleaned up.
type IngestionLedger interface {
	Create(ctx context.Context, ing *domain.Ingestion) error
	MarkIndexed(ctx context.Context, id string, chunks int) error
	MarkFailed(ctx context.Context, id, reason string, objectRemoved bool) error
	IsSuperseded(ctx context.Context, ing *domain.Ingestion) (bool, error)
	MarkSuperseded(ctx context.Context, id string) error
}

type IngestInput struct {
	Namespace   domain.Namespace
	Filename    string
	ContentType string
	Content     []byte
}

type IngestResult struct {
	IngestionID string
	Key         string
	Chunks      int
}

// IngestService archives an upload, splits it and indexes the chunks.
type IngestService struct {
	objects ObjectStore
	ledger  IngestionLedger
	chunker *Chunker
	index   *VectorIndex
	uuidGen UUIDGenerator
}

func NewIngestService(objects ObjectStore, ledger IngestionLedger, chunker *Chunker, index *VectorIndex) *IngestService {
	return &IngestService{
		objects: objects,
		ledger:  ledger,
		chunker: chunker,
		index:   index,
		uuidGen: &DefaultUUIDGenerator{},
	}
}

// Ingest runs archive, split and index in that order. When indexing fails the
// object is removed again, unless it existed before this call.
func (s *IngestService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	ns := input.Namespace
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Ingest", telemetry.SpanAttributes{
		CustomerID: ns.CustomerID,
		ProjectID:  ns.ProjectID,
		Namespace:  ns.String(),
		Operation:  "ingest",
	})
	defer span.End()
	log := logger.FromContext(ctx)

	key, err := ns.ObjectKey(input.Filename)
	if err != nil {
		return nil, err
	}

	text, err := DecodeText(input.Content, input.ContentType)
	if err != nil {
		metrics.IngestFailures.WithLabelValues("decode").Inc()
		return nil, err
	}

	existed, err := s.objects.ObjectExists(ctx, key)
	if err != nil {
		metrics.IngestFailures.WithLabelValues("archive").Inc()
		span.SetError(err)
		return nil, domain.Upstream("check object", err)
	}

	now := time.Now().UTC()
	ing := &domain.Ingestion{
		ID:            s.uuidGen.NewString(),
		Namespace:     ns.String(),
		StorageKey:    key,
		Filename:      input.Filename,
		ContentType:   input.ContentType,
		SizeBytes:     int64(len(input.Content)),
		Status:        domain.IngestionStatusPending,
		ObjectCreated: !existed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.ledger.Create(ctx, ing); err != nil {
		metrics.IngestFailures.WithLabelValues("ledger").Inc()
		span.SetError(err)
		return nil, domain.Upstream("record ingestion", err)
	}

	archiveCtx, archiveSpan := telemetry.StartSpan(ctx, "ingest.archive", telemetry.SpanAttributes{Operation: "archive"})
	err = s.objects.PutObject(archiveCtx, key, input.Content, input.ContentType)
	archiveSpan.End()
	if err != nil {
		metrics.IngestFailures.WithLabelValues("archive").Inc()
		span.SetError(err)
		s.compensate(ctx, ing, err)
		return nil, domain.Upstream("archive object", err)
	}
	telemetry.AddBreadcrumb(ctx, "ingest", "archived "+key)

	chunks, err := s.chunker.Split(text)
	if err != nil {
		metrics.IngestFailures.WithLabelValues("split").Inc()
		span.SetError(err)
		s.compensate(ctx, ing, err)
		return nil, err
	}

	meta := domain.ChunkMetadata{Source: key, CustomerID: ns.CustomerID, ProjectID: ns.ProjectID}
	metadata := make([]domain.ChunkMetadata, len(chunks))
	for i := range metadata {
		metadata[i] = meta
	}

	indexCtx, indexSpan := telemetry.StartSpan(ctx, "ingest.index", telemetry.SpanAttributes{Operation: "index"})
	indexSpan.SetData("chunks", len(chunks))
	stored, err := s.index.ForNamespace(ns).AddTexts(indexCtx, chunks, metadata, WithIngestionID(ing.ID))
	indexSpan.End()
	if err != nil {
		metrics.IngestFailures.WithLabelValues("index").Inc()
		span.SetError(err)
		s.compensate(ctx, ing, err)
		return nil, err
	}

	// The chunks are committed; a stale pending row is resolved by the reconciler.
	if err := s.ledger.MarkIndexed(ctx, ing.ID, stored); err != nil {
		log.Warn("failed to mark ingestion indexed",
			zap.String("ingestion_id", ing.ID), zap.Error(err))
	}
	metrics.IngestedChunks.Add(float64(stored))

	log.Info("document ingested",
		zap.String("namespace", ns.String()),
		zap.String("key", key),
		zap.Int("chunks", stored),
		zap.Bool("overwrote", existed))

	return &IngestResult{IngestionID: ing.ID, Key: key, Chunks: stored}, nil
}

// compensate removes an object this attempt created and marks the attempt
// failed. It runs detached from the request so a client disconnect cannot
// leave the blob behind. When a later ingest of the same key is indexed or in
// flight, the object is left to that attempt.
func (s *IngestService) compensate(ctx context.Context, ing *domain.Ingestion, cause error) {
	log := logger.FromContext(ctx)
	ctx = context.WithoutCancel(ctx)

	removed, handedOff := false, false
	if ing.ObjectCreated {
		superseded, err := s.ledger.IsSuperseded(ctx, ing)
		switch {
		case err != nil:
			// Unknown ownership; the reconciler decides later.
			log.Error("failed to check for newer ingestion",
				zap.String("ingestion_id", ing.ID), zap.Error(err))
		case superseded:
			handedOff = true
		default:
			if err := s.objects.DeleteObject(ctx, ing.StorageKey); err != nil {
				telemetry.CaptureError(ctx, err)
				log.Error("failed to remove object after ingest failure",
					zap.String("ingestion_id", ing.ID),
					zap.String("key", ing.StorageKey),
					zap.Error(err))
			} else {
				removed = true
			}
		}
	}

	if err := s.ledger.MarkFailed(ctx, ing.ID, cause.Error(), removed); err != nil {
		log.Error("failed to mark ingestion failed",
			zap.String("ingestion_id", ing.ID), zap.Error(err))
		return
	}
	if handedOff {
		if err := s.ledger.MarkSuperseded(ctx, ing.ID); err != nil {
			log.Error("failed to hand object to newer ingestion",
				zap.String("ingestion_id", ing.ID), zap.Error(err))
		}
	}

	log.Warn("ingest failed",
		zap.String("ingestion_id", ing.ID),
		zap.String("key", ing.StorageKey),
		zap.Bool("object_removed", removed),
		zap.Bool("superseded", handedOff),
		zap.Error(cause))
}
