package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/metrics"
	"github.com/cloo-solutions/docqa/internal/telemetry"
	"go.uber.org/zap"
)

const (
	// DefaultBatchSize is how many ledger rows one pass handles.
	DefaultBatchSize = 100

	abandonedReason = "abandoned before indexing completed"
)

// IngestionRepository is the ledger view the reconciler needs.
type IngestionRepository interface {
	ListNeedingCleanup(ctx context.Context, staleBefore time.Time, limit int) ([]*domain.Ingestion, error)
	MarkIndexed(ctx context.Context, id string, chunks int) error
	MarkFailed(ctx context.Context, id, reason string, objectRemoved bool) error
	MarkObjectRemoved(ctx context.Context, id string) error
	IsSuperseded(ctx context.Context, ing *domain.Ingestion) (bool, error)
	MarkSuperseded(ctx context.Context, id string) error
}

// ChunkCounter reports how many chunks an ingest attempt committed.
type ChunkCounter interface {
	CountByIngestion(ctx context.Context, ingestionID string) (int, error)
}

// ObjectRemover deletes archived uploads.
type ObjectRemover interface {
	DeleteObject(ctx context.Context, key string) error
}

// Reconciler resolves ingest attempts that ended without a clean outcome:
// stale pending rows from a crashed request and failed rows whose created
// object could not be removed at the time.
type Reconciler struct {
	repo       IngestionRepository
	chunks     ChunkCounter
	objects    ObjectRemover
	staleAfter time.Duration
	batchSize  int
	logger     *zap.Logger
	now        func() time.Time
}

func NewReconciler(repo IngestionRepository, chunks ChunkCounter, objects ObjectRemover, staleAfter time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		repo:       repo,
		chunks:     chunks,
		objects:    objects,
		staleAfter: staleAfter,
		batchSize:  DefaultBatchSize,
		logger:     logger,
		now:        time.Now,
	}
}

// ProcessJobs implements the JobProcessor interface
func (r *Reconciler) ProcessJobs(ctx context.Context) error {
	rows, err := r.repo.ListNeedingCleanup(ctx, r.now().UTC().Add(-r.staleAfter), r.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list ingestions needing cleanup: %w", err)
	}

	if len(rows) == 0 {
		return nil
	}

	r.logger.Info("reconciling ingestions", zap.Int("count", len(rows)))

	for _, ing := range rows {
		if err := r.reconcile(ctx, ing); err != nil {
			telemetry.CaptureError(ctx, err)
			r.logger.Error("failed to reconcile ingestion",
				zap.String("ingestion_id", ing.ID),
				zap.String("key", ing.StorageKey),
				zap.Error(err))
		}
	}

	return nil
}

func (r *Reconciler) reconcile(ctx context.Context, ing *domain.Ingestion) error {
	if ing.Status == domain.IngestionStatusPending {
		n, err := r.chunks.CountByIngestion(ctx, ing.ID)
		if err != nil {
			return fmt.Errorf("failed to count chunks: %w", err)
		}
		// Indexing committed but the final status update was lost.
		if n > 0 {
			if err := r.repo.MarkIndexed(ctx, ing.ID, n); err != nil {
				return fmt.Errorf("failed to mark indexed: %w", err)
			}
			r.logger.Info("recovered indexed ingestion", zap.String("ingestion_id", ing.ID), zap.Int("chunks", n))
			return nil
		}
	}

	if !ing.ObjectCreated || ing.ObjectRemoved {
		return r.repo.MarkFailed(ctx, ing.ID, abandonedReason, false)
	}

	// A later ingest of the same key owns the object now.
	superseded, err := r.repo.IsSuperseded(ctx, ing)
	if err != nil {
		return fmt.Errorf("failed to check for newer ingestion: %w", err)
	}
	if superseded {
		return r.repo.MarkSuperseded(ctx, ing.ID)
	}

	if err := r.objects.DeleteObject(ctx, ing.StorageKey); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	metrics.ReconciledObjects.Inc()

	if ing.Status == domain.IngestionStatusPending {
		if err := r.repo.MarkFailed(ctx, ing.ID, abandonedReason, true); err != nil {
			return fmt.Errorf("failed to mark failed: %w", err)
		}
	} else if err := r.repo.MarkObjectRemoved(ctx, ing.ID); err != nil {
		return fmt.Errorf("failed to mark object removed: %w", err)
	}

	r.logger.Info("removed orphaned object",
		zap.String("ingestion_id", ing.ID),
		zap.String("key", ing.StorageKey))
	return nil
}
