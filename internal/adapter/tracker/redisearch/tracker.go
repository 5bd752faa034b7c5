// Package redisearch implements the search-index backend of the part tracker.
//
// The PartSet is persisted as one JSON value per item; updates use WATCH-based
// optimistic transactions so concurrent transitions for distinct parts of the
// same item are linearizable, matching the document backend's contract.
package redisearch

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

const keyPrefix = "pdftrack:"

// casAttempts bounds the optimistic transaction loop.
const casAttempts = 16

// Tracker is the redis-backed domain.PartTracker.
type Tracker struct {
	rdb *redis.Client
}

// New constructs a Tracker on the given client.
func New(rdb *redis.Client) *Tracker { return &Tracker{rdb: rdb} }

func key(itemID string) string { return keyPrefix + itemID }

// Initialize atomically replaces any prior entry for itemID.
func (t *Tracker) Initialize(ctx domain.Context, itemID string, totalParts int) error {
	tracer := otel.Tracer("tracker.redisearch")
	ctx, span := tracer.Start(ctx, "tracker.Initialize")
	defer span.End()

	set, err := domain.NewPartSet(itemID, totalParts)
	if err != nil {
		return err
	}
	doc, err := set.MarshalDoc()
	if err != nil {
		return err
	}
	if err := t.rdb.Set(ctx, key(itemID), doc, 0).Err(); err != nil {
		return fmt.Errorf("op=tracker.Initialize: %w", err)
	}
	return nil
}

func (t *Tracker) load(ctx domain.Context, itemID string) (domain.PartSet, error) {
	doc, err := t.rdb.Get(ctx, key(itemID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PartSet{}, fmt.Errorf("op=tracker.load: item %s: %w", itemID, domain.ErrNotFound)
		}
		return domain.PartSet{}, fmt.Errorf("op=tracker.load: %w", err)
	}
	return domain.UnmarshalDoc(doc)
}

// mutate runs fn against the current PartSet inside a WATCH transaction and
// persists the result. fn returning (false, nil) skips the write.
func (t *Tracker) mutate(ctx domain.Context, itemID string, fn func(set *domain.PartSet) (bool, error)) (domain.PartSet, error) {
	var out domain.PartSet
	k := key(itemID)
	txn := func(tx *redis.Tx) error {
		doc, err := tx.Get(ctx, k).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("op=tracker.mutate: item %s: %w", itemID, domain.ErrNotFound)
			}
			return fmt.Errorf("op=tracker.mutate: %w", err)
		}
		set, err := domain.UnmarshalDoc(doc)
		if err != nil {
			return err
		}
		write, err := fn(&set)
		if err != nil {
			return err
		}
		out = set
		if !write {
			return nil
		}
		next, err := set.MarshalDoc()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		err := t.rdb.Watch(ctx, txn, k)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return domain.PartSet{}, err
	}
	return domain.PartSet{}, fmt.Errorf("op=tracker.mutate: item %s: cas exhausted: %w", itemID, domain.ErrConflict)
}

// UpdatePartStatus transitions one part and returns the resulting state.
func (t *Tracker) UpdatePartStatus(ctx domain.Context, itemID string, partIndex int, status domain.PartStatus, errMsg string) (domain.PartSet, error) {
	tracer := otel.Tracer("tracker.redisearch")
	ctx, span := tracer.Start(ctx, "tracker.UpdatePartStatus")
	defer span.End()

	return t.mutate(ctx, itemID, func(set *domain.PartSet) (bool, error) {
		if err := set.SetPartStatus(partIndex, status, errMsg, time.Now().UTC()); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Get returns the current part set for an item.
func (t *Tracker) Get(ctx domain.Context, itemID string) (domain.PartSet, error) {
	return t.load(ctx, itemID)
}

// AreAllPartsCompleted reports whether every part is Completed.
func (t *Tracker) AreAllPartsCompleted(ctx domain.Context, itemID string) (bool, error) {
	set, err := t.load(ctx, itemID)
	if err != nil {
		return false, err
	}
	return set.AllCompleted(), nil
}

// HasAnyPartFailed reports whether at least one part is Failed.
func (t *Tracker) HasAnyPartFailed(ctx domain.Context, itemID string) (bool, error) {
	set, err := t.load(ctx, itemID)
	if err != nil {
		return false, err
	}
	return set.AnyFailed(), nil
}

// GetCompletedParts returns indices of completed parts.
func (t *Tracker) GetCompletedParts(ctx domain.Context, itemID string) ([]int, error) {
	set, err := t.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return set.CompletedParts(), nil
}

// GetFailedParts returns indices of failed parts.
func (t *Tracker) GetFailedParts(ctx domain.Context, itemID string) ([]int, error) {
	set, err := t.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return set.FailedParts(), nil
}

// GetFailedPartsDetails returns per-part failure details.
func (t *Tracker) GetFailedPartsDetails(ctx domain.Context, itemID string) ([]domain.FailedPartDetail, error) {
	set, err := t.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return set.FailedDetails(), nil
}

// GetAllPartStatuses returns each part's status by index.
func (t *Tracker) GetAllPartStatuses(ctx domain.Context, itemID string) ([]domain.PartStatus, error) {
	set, err := t.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return set.Statuses(), nil
}

// RetryFailedParts resets failed parts to Pending and returns the indices
// reset.
func (t *Tracker) RetryFailedParts(ctx domain.Context, itemID string) ([]int, error) {
	tracer := otel.Tracer("tracker.redisearch")
	ctx, span := tracer.Start(ctx, "tracker.RetryFailedParts")
	defer span.End()

	var reset []int
	_, err := t.mutate(ctx, itemID, func(set *domain.PartSet) (bool, error) {
		reset = set.RetryFailed(time.Now().UTC())
		return len(reset) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	return reset, nil
}

// Cleanup deletes the tracker entry.
func (t *Tracker) Cleanup(ctx domain.Context, itemID string) error {
	if err := t.rdb.Del(ctx, key(itemID)).Err(); err != nil {
		return fmt.Errorf("op=tracker.Cleanup: %w", err)
	}
	return nil
}
