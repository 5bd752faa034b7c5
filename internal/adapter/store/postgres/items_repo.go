package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// ItemsSchema is the items table definition, applied by migrations. Items are
// created by the upload surface; this service only reports into them.
const ItemsSchema = `CREATE TABLE IF NOT EXISTS items (
	id                  TEXT PRIMARY KEY,
	object_key          TEXT NOT NULL,
	processing_status   TEXT NOT NULL DEFAULT 'Pending',
	processing_message  TEXT NOT NULL DEFAULT '',
	processing_error    TEXT NOT NULL DEFAULT '',
	processing_progress INT NOT NULL DEFAULT 0,
	retry_count         INT NOT NULL DEFAULT 0,
	pdf_metadata        JSONB,
	merging_started_at  TIMESTAMPTZ,
	completed_at        TIMESTAMPTZ,
	modified_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// ItemRepo implements domain.MetadataStore on PostgreSQL.
type ItemRepo struct{ Pool PgxPool }

// NewItemRepo constructs an ItemRepo with the given pool.
func NewItemRepo(p PgxPool) *ItemRepo { return &ItemRepo{Pool: p} }

// GetItem fetches one item by ID.
func (r *ItemRepo) GetItem(ctx domain.Context, itemID string) (domain.Item, error) {
	q := `SELECT id, object_key, processing_status, processing_message, processing_error,
		processing_progress, retry_count, pdf_metadata, merging_started_at, completed_at, modified_at
		FROM items WHERE id=$1`
	var it domain.Item
	var status string
	var md []byte
	err := r.Pool.QueryRow(ctx, q, itemID).Scan(
		&it.ID, &it.ObjectKey, &status, &it.ProcessingMessage, &it.ProcessingError,
		&it.ProcessingProgress, &it.RetryCount, &md, &it.MergingStartedAt, &it.CompletedAt, &it.ModifiedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Item{}, fmt.Errorf("op=items.GetItem: item %s: %w", itemID, domain.ErrNotFound)
		}
		return domain.Item{}, fmt.Errorf("op=items.GetItem: %w", err)
	}
	it.ProcessingStatus = domain.ProcessingStatus(status)
	if len(md) > 0 {
		var m domain.PdfMetadata
		if err := json.Unmarshal(md, &m); err != nil {
			return domain.Item{}, fmt.Errorf("op=items.GetItem: metadata: %w", err)
		}
		it.PdfMetadata = &m
	}
	return it, nil
}

// UpdateStatus transitions the item and records the message. The error text is
// stored only for StatusFailed and cleared otherwise; mergingStartedAt is
// stamped when Merging is entered, completedAt (and progress 100) when
// Completed is entered.
func (r *ItemRepo) UpdateStatus(ctx domain.Context, itemID string, status domain.ProcessingStatus, message, errMsg string) error {
	tracer := otel.Tracer("store.postgres")
	ctx, span := tracer.Start(ctx, "items.UpdateStatus")
	defer span.End()

	if status != domain.StatusFailed {
		errMsg = ""
	}
	now := time.Now().UTC()
	q := `UPDATE items SET processing_status=$2, processing_message=$3, processing_error=$4,
		merging_started_at = CASE WHEN $2='Merging' THEN $5 ELSE merging_started_at END,
		completed_at       = CASE WHEN $2='Completed' THEN $5 ELSE completed_at END,
		processing_progress = CASE WHEN $2='Completed' THEN 100 ELSE processing_progress END,
		modified_at=$5
		WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, itemID, string(status), message, errMsg, now)
	if err != nil {
		return fmt.Errorf("op=items.UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=items.UpdateStatus: item %s: %w", itemID, domain.ErrNotFound)
	}
	return nil
}

// UpdateProgress records a progress percentage and message without touching
// the status.
func (r *ItemRepo) UpdateProgress(ctx domain.Context, itemID string, progress int, message string) error {
	q := `UPDATE items SET processing_progress=$2, processing_message=$3, modified_at=$4 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, itemID, progress, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=items.UpdateProgress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=items.UpdateProgress: item %s: %w", itemID, domain.ErrNotFound)
	}
	return nil
}

// SetPdfMetadata persists the analyzer's findings.
func (r *ItemRepo) SetPdfMetadata(ctx domain.Context, itemID string, md domain.PdfMetadata) error {
	doc, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("op=items.SetPdfMetadata: marshal: %w", err)
	}
	q := `UPDATE items SET pdf_metadata=$2, modified_at=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, itemID, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=items.SetPdfMetadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=items.SetPdfMetadata: item %s: %w", itemID, domain.ErrNotFound)
	}
	return nil
}
