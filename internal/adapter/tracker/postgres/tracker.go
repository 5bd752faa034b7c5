// Package postgres implements the document backend of the part tracker.
//
// Each item's PartSet is persisted whole as one JSONB document with a version
// counter; updates run a compare-and-swap loop so concurrent transitions for
// distinct parts of the same item are linearizable.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// PgxPool is the minimal pgx surface the tracker needs; satisfied by
// *pgxpool.Pool and by test fakes.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// casAttempts bounds the compare-and-swap loop. Contention is per item and
// per part, so a handful of rounds is plenty.
const casAttempts = 16

// Tracker is the document-backed domain.PartTracker.
type Tracker struct{ Pool PgxPool }

// New constructs a Tracker with the given pool.
func New(p PgxPool) *Tracker { return &Tracker{Pool: p} }

// Schema is the tracker's table definition, applied by migrations.
const Schema = `CREATE TABLE IF NOT EXISTS pdf_part_tracking (
	item_id    TEXT PRIMARY KEY,
	version    BIGINT NOT NULL,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// Initialize atomically replaces any prior entry for itemID with totalParts
// pending parts.
func (t *Tracker) Initialize(ctx domain.Context, itemID string, totalParts int) error {
	tracer := otel.Tracer("tracker.postgres")
	ctx, span := tracer.Start(ctx, "tracker.Initialize")
	defer span.End()

	set, err := domain.NewPartSet(itemID, totalParts)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("op=tracker.Initialize: marshal: %w", err)
	}
	q := `INSERT INTO pdf_part_tracking (item_id, version, doc, updated_at) VALUES ($1, 1, $2, $3)
		ON CONFLICT (item_id) DO UPDATE SET version = pdf_part_tracking.version + 1, doc = $2, updated_at = $3`
	if _, err := t.Pool.Exec(ctx, q, itemID, doc, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=tracker.Initialize: %w", err)
	}
	return nil
}

func (t *Tracker) load(ctx domain.Context, itemID string) (domain.PartSet, int64, error) {
	var doc []byte
	var version int64
	q := `SELECT version, doc FROM pdf_part_tracking WHERE item_id=$1`
	if err := t.Pool.QueryRow(ctx, q, itemID).Scan(&version, &doc); err != nil {
		if err == pgx.ErrNoRows {
			return domain.PartSet{}, 0, fmt.Errorf("op=tracker.load: item %s: %w", itemID, domain.ErrNotFound)
		}
		return domain.PartSet{}, 0, fmt.Errorf("op=tracker.load: %w", err)
	}
	var set domain.PartSet
	if err := json.Unmarshal(doc, &set); err != nil {
		return domain.PartSet{}, 0, fmt.Errorf("op=tracker.load: unmarshal: %w", err)
	}
	return set, version, nil
}

func (t *Tracker) store(ctx domain.Context, itemID string, set domain.PartSet, version int64) (bool, error) {
	doc, err := json.Marshal(set)
	if err != nil {
		return false, fmt.Errorf("op=tracker.store: marshal: %w", err)
	}
	q := `UPDATE pdf_part_tracking SET doc=$3, version=version+1, updated_at=$4 WHERE item_id=$1 AND version=$2`
	tag, err := t.Pool.Exec(ctx, q, itemID, version, doc, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("op=tracker.store: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdatePartStatus transitions one part under CAS and returns the resulting
// state.
func (t *Tracker) UpdatePartStatus(ctx domain.Context, itemID string, partIndex int, status domain.PartStatus, errMsg string) (domain.PartSet, error) {
	tracer := otel.Tracer("tracker.postgres")
	ctx, span := tracer.Start(ctx, "tracker.UpdatePartStatus")
	defer span.End()

	for attempt := 0; attempt < casAttempts; attempt++ {
		set, version, err := t.load(ctx, itemID)
		if err != nil {
			return domain.PartSet{}, err
		}
		if err := set.SetPartStatus(partIndex, status, errMsg, time.Now().UTC()); err != nil {
			return domain.PartSet{}, err
		}
		ok, err := t.store(ctx, itemID, set, version)
		if err != nil {
			return domain.PartSet{}, err
		}
		if ok {
			return set, nil
		}
	}
	return domain.PartSet{}, fmt.Errorf("op=tracker.UpdatePartStatus: item %s part %d: cas exhausted: %w", itemID, partIndex, domain.ErrConflict)
}

// Get returns the current part set for an item.
func (t *Tracker) Get(ctx domain.Context, itemID string) (domain.PartSet, error) {
	set, _, err := t.load(ctx, itemID)
	return set, err
}

// AreAllPartsCompleted reports whether every part is Completed.
func (t *Tracker) AreAllPartsCompleted(ctx domain.Context, itemID string) (bool, error) {
	set, _, err := t.load(ctx, itemID)
	if err != nil {
		return false, err
	}
	return set.AllCompleted(), nil
}

// HasAnyPartFailed reports whether at least one part is Failed.
func (t *Tracker) HasAnyPartFailed(ctx domain.Context, itemID string) (bool, error) {
	set, _, err := t.load(ctx, itemID)
	if err != nil {
		return false, err
	}
	return set.AnyFailed(), nil
}

// GetCompletedParts returns indices of completed parts.
func (t *Tracker) GetCompletedParts(ctx domain.Context, itemID string) ([]int, error) {
	set, _, err := t.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return set.CompletedParts(), nil
}

// GetFailedParts returns indices of failed parts.
func (t *Tracker) GetFailedParts(ctx domain.Context, itemID string) ([]int, error) {
	set, _, err := t.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return set.FailedParts(), nil
}

// GetFailedPartsDetails returns per-part failure details.
func (t *Tracker) GetFailedPartsDetails(ctx domain.Context, itemID string) ([]domain.FailedPartDetail, error) {
	set, _, err := t.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return set.FailedDetails(), nil
}

// GetAllPartStatuses returns each part's status by index.
func (t *Tracker) GetAllPartStatuses(ctx domain.Context, itemID string) ([]domain.PartStatus, error) {
	set, _, err := t.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return set.Statuses(), nil
}

// RetryFailedParts resets failed parts to Pending under CAS and returns the
// indices reset.
func (t *Tracker) RetryFailedParts(ctx domain.Context, itemID string) ([]int, error) {
	tracer := otel.Tracer("tracker.postgres")
	ctx, span := tracer.Start(ctx, "tracker.RetryFailedParts")
	defer span.End()

	for attempt := 0; attempt < casAttempts; attempt++ {
		set, version, err := t.load(ctx, itemID)
		if err != nil {
			return nil, err
		}
		reset := set.RetryFailed(time.Now().UTC())
		if len(reset) == 0 {
			return nil, nil
		}
		ok, err := t.store(ctx, itemID, set, version)
		if err != nil {
			return nil, err
		}
		if ok {
			return reset, nil
		}
	}
	return nil, fmt.Errorf("op=tracker.RetryFailedParts: item %s: cas exhausted: %w", itemID, domain.ErrConflict)
}

// Cleanup deletes the tracker entry.
func (t *Tracker) Cleanup(ctx domain.Context, itemID string) error {
	if _, err := t.Pool.Exec(ctx, `DELETE FROM pdf_part_tracking WHERE item_id=$1`, itemID); err != nil {
		return fmt.Errorf("op=tracker.Cleanup: %w", err)
	}
	return nil
}
