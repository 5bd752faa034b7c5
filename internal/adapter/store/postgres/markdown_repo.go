package postgres

import (
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// wholeDocIndex is the part_index sentinel for whole or merged documents, so
// (item_id, part_index) stays a usable primary key without NULL semantics.
const wholeDocIndex = -1

// MarkdownSchema is the markdown table definition, applied by migrations.
const MarkdownSchema = `CREATE TABLE IF NOT EXISTS item_markdown (
	item_id    TEXT NOT NULL,
	part_index INT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (item_id, part_index)
)`

// MarkdownRepo implements domain.MarkdownStore on PostgreSQL.
type MarkdownRepo struct{ Pool PgxPool }

// NewMarkdownRepo constructs a MarkdownRepo with the given pool.
func NewMarkdownRepo(p PgxPool) *MarkdownRepo { return &MarkdownRepo{Pool: p} }

// SaveMarkdown upserts content keyed by (itemID, partIndex); a redelivered
// storage request overwrites the same row instead of duplicating it. A nil
// partIndex stores the whole (or merged) document.
func (r *MarkdownRepo) SaveMarkdown(ctx domain.Context, itemID string, partIndex *int, content string) error {
	tracer := otel.Tracer("store.postgres")
	ctx, span := tracer.Start(ctx, "markdown.SaveMarkdown")
	defer span.End()

	idx := wholeDocIndex
	if partIndex != nil {
		if *partIndex < 0 {
			return fmt.Errorf("op=markdown.SaveMarkdown: part index %d: %w", *partIndex, domain.ErrInvalidArgument)
		}
		idx = *partIndex
	}
	now := time.Now().UTC()
	q := `INSERT INTO item_markdown (item_id, part_index, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (item_id, part_index) DO UPDATE SET content=$3, updated_at=$4`
	if _, err := r.Pool.Exec(ctx, q, itemID, idx, content, now); err != nil {
		return fmt.Errorf("op=markdown.SaveMarkdown: %w", err)
	}
	return nil
}

// GetMarkdown returns the whole document when one is stored, else the
// concatenation of part payloads in arrival order. Part payloads carry their
// own "--- PART n ---" markers, so plain concatenation is enough here; the
// merger re-orders by marker number.
func (r *MarkdownRepo) GetMarkdown(ctx domain.Context, itemID string) (string, error) {
	q := `SELECT part_index, content FROM item_markdown WHERE item_id=$1 ORDER BY created_at, part_index`
	rows, err := r.Pool.Query(ctx, q, itemID)
	if err != nil {
		return "", fmt.Errorf("op=markdown.GetMarkdown: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var idx int
		var content string
		if err := rows.Scan(&idx, &content); err != nil {
			return "", fmt.Errorf("op=markdown.GetMarkdown: scan: %w", err)
		}
		if idx == wholeDocIndex {
			return content, nil
		}
		parts = append(parts, content)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("op=markdown.GetMarkdown: rows: %w", err)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("op=markdown.GetMarkdown: item %s: %w", itemID, domain.ErrNotFound)
	}
	return strings.Join(parts, ""), nil
}
