package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrIngestionNotFound = errors.New("ingestion not found")

type IngestionRepository struct {
	db dbtx
}

func NewIngestionRepository(pool *pgxpool.Pool) *IngestionRepository {
	return &IngestionRepository{db: pool}
}

const ingestionColumns = `id, namespace, storage_key, filename, content_type, size_bytes, chunks, status,
	object_created, object_removed, error, created_at, updated_at`

func (r *IngestionRepository) Create(ctx context.Context, ing *domain.Ingestion) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ingestions (`+ingestionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ing.ID, ing.Namespace, ing.StorageKey, ing.Filename, ing.ContentType, ing.SizeBytes, ing.Chunks,
		ing.Status, ing.ObjectCreated, ing.ObjectRemoved, nullableString(ing.Error), ing.CreatedAt, ing.UpdatedAt,
	)
	return err
}

func (r *IngestionRepository) GetByID(ctx context.Context, id string) (*domain.Ingestion, error) {
	row := r.db.QueryRow(ctx, `SELECT `+ingestionColumns+` FROM ingestions WHERE id = $1`, id)
	ing, err := scanIngestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIngestionNotFound
		}
		return nil, err
	}
	return ing, nil
}

func (r *IngestionRepository) MarkIndexed(ctx context.Context, id string, chunks int) error {
	return r.update(ctx,
		`UPDATE ingestions SET status = $2, chunks = $3, error = NULL, updated_at = $4 WHERE id = $1`,
		id, domain.IngestionStatusIndexed, chunks, time.Now().UTC())
}

func (r *IngestionRepository) MarkFailed(ctx context.Context, id, reason string, objectRemoved bool) error {
	return r.update(ctx,
		`UPDATE ingestions
		 SET status = $2, error = $3, object_removed = object_removed OR $4, updated_at = $5
		 WHERE id = $1`,
		id, domain.IngestionStatusFailed, nullableString(reason), objectRemoved, time.Now().UTC())
}

func (r *IngestionRepository) MarkObjectRemoved(ctx context.Context, id string) error {
	return r.update(ctx,
		`UPDATE ingestions SET object_removed = TRUE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
}

// IsSuperseded reports whether a later attempt for the same storage key is
// indexed or still in flight.
func (r *IngestionRepository) IsSuperseded(ctx context.Context, ing *domain.Ingestion) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM ingestions
			WHERE storage_key = $1 AND id <> $2 AND created_at > $3 AND status <> $4
		)`,
		ing.StorageKey, ing.ID, ing.CreatedAt, domain.IngestionStatusFailed,
	).Scan(&exists)
	return exists, err
}

// MarkSuperseded fails the attempt and hands object ownership to the later one.
func (r *IngestionRepository) MarkSuperseded(ctx context.Context, id string) error {
	return r.update(ctx,
		`UPDATE ingestions
		 SET status = $2, object_created = FALSE, error = COALESCE(error, $3), updated_at = $4
		 WHERE id = $1`,
		id, domain.IngestionStatusFailed, "superseded by a later ingest", time.Now().UTC())
}

// ListNeedingCleanup returns failed attempts whose created object is still
// present, plus pending attempts not touched since staleBefore.
func (r *IngestionRepository) ListNeedingCleanup(ctx context.Context, staleBefore time.Time, limit int) ([]*domain.Ingestion, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+ingestionColumns+`
		 FROM ingestions
		 WHERE (status = $1 AND object_created AND NOT object_removed)
		    OR (status = $2 AND updated_at < $3)
		 ORDER BY created_at ASC
		 LIMIT $4`,
		domain.IngestionStatusFailed, domain.IngestionStatusPending, staleBefore, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Ingestion
	for rows.Next() {
		ing, err := scanIngestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

func (r *IngestionRepository) update(ctx context.Context, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIngestionNotFound
	}
	return nil
}

func scanIngestion(row pgx.Row) (*domain.Ingestion, error) {
	var ing domain.Ingestion
	var errMsg pgtype.Text
	err := row.Scan(
		&ing.ID, &ing.Namespace, &ing.StorageKey, &ing.Filename, &ing.ContentType, &ing.SizeBytes, &ing.Chunks,
		&ing.Status, &ing.ObjectCreated, &ing.ObjectRemoved, &errMsg, &ing.CreatedAt, &ing.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if errMsg.Valid {
		ing.Error = errMsg.String
	}
	return &ing, nil
}
