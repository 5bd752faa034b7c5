package postgres_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trackerpg "github.com/fairyhunter13/pdf-ingest/internal/adapter/tracker/postgres"
	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// fakePool emulates the tracker's three statements against an in-memory row
// table, including the version CAS, so the optimistic loop is exercised
// without a live database.
type fakePool struct {
	mu   sync.Mutex
	rows map[string]fakeRow
}

type fakeRow struct {
	version int64
	doc     []byte
}

func newFakePool() *fakePool { return &fakePool{rows: map[string]fakeRow{}} }

func (p *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case strings.HasPrefix(sql, "INSERT INTO pdf_part_tracking"):
		itemID := args[0].(string)
		doc := args[1].([]byte)
		if row, ok := p.rows[itemID]; ok {
			p.rows[itemID] = fakeRow{version: row.version + 1, doc: doc}
		} else {
			p.rows[itemID] = fakeRow{version: 1, doc: doc}
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.HasPrefix(sql, "UPDATE pdf_part_tracking"):
		itemID := args[0].(string)
		version := args[1].(int64)
		doc := args[2].([]byte)
		row, ok := p.rows[itemID]
		if !ok || row.version != version {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		p.rows[itemID] = fakeRow{version: version + 1, doc: doc}
		return pgconn.NewCommandTag("UPDATE 1"), nil
	case strings.HasPrefix(sql, "DELETE FROM pdf_part_tracking"):
		delete(p.rows, args[0].(string))
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.CommandTag{}, nil
}

func (p *fakePool) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	p.mu.Lock()
	defer p.mu.Unlock()
	row, ok := p.rows[args[0].(string)]
	return scanRow{row: row, ok: ok}
}

type scanRow struct {
	row fakeRow
	ok  bool
}

func (r scanRow) Scan(dest ...any) error {
	if !r.ok {
		return pgx.ErrNoRows
	}
	*(dest[0].(*int64)) = r.row.version
	*(dest[1].(*[]byte)) = append([]byte(nil), r.row.doc...)
	return nil
}

func TestTracker_InitializeAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := trackerpg.New(newFakePool())

	require.NoError(t, tr.Initialize(ctx, "item-1", 4))
	set, err := tr.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, 4, set.TotalParts)
	assert.Equal(t, domain.AggregatePending, set.Status)
}

func TestTracker_InitializeTwiceReplacesEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := trackerpg.New(newFakePool())

	require.NoError(t, tr.Initialize(ctx, "item-1", 5))
	_, err := tr.UpdatePartStatus(ctx, "item-1", 0, domain.PartProcessing, "")
	require.NoError(t, err)

	require.NoError(t, tr.Initialize(ctx, "item-1", 3))
	set, err := tr.Get(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, 3, set.TotalParts)
	for _, st := range set.Statuses() {
		assert.Equal(t, domain.PartPending, st)
	}
}

func TestTracker_UpdateFlowAndProjections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := trackerpg.New(newFakePool())
	require.NoError(t, tr.Initialize(ctx, "item-1", 2))

	_, err := tr.UpdatePartStatus(ctx, "item-1", 0, domain.PartProcessing, "")
	require.NoError(t, err)
	_, err = tr.UpdatePartStatus(ctx, "item-1", 0, domain.PartCompleted, "")
	require.NoError(t, err)
	_, err = tr.UpdatePartStatus(ctx, "item-1", 1, domain.PartProcessing, "")
	require.NoError(t, err)
	set, err := tr.UpdatePartStatus(ctx, "item-1", 1, domain.PartFailed, "timeout")
	require.NoError(t, err)
	assert.Equal(t, domain.AggregateFailed, set.Status)

	done, err := tr.AreAllPartsCompleted(ctx, "item-1")
	require.NoError(t, err)
	assert.False(t, done)
	failed, err := tr.HasAnyPartFailed(ctx, "item-1")
	require.NoError(t, err)
	assert.True(t, failed)

	reset, err := tr.RetryFailedParts(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, reset)
}

func TestTracker_ConcurrentDistinctParts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := trackerpg.New(newFakePool())

	const parts = 6
	require.NoError(t, tr.Initialize(ctx, "item-1", parts))

	var wg sync.WaitGroup
	errs := make([]error, parts)
	for i := 0; i < parts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := tr.UpdatePartStatus(ctx, "item-1", i, domain.PartProcessing, ""); err != nil {
				errs[i] = err
				return
			}
			time.Sleep(time.Millisecond)
			_, errs[i] = tr.UpdatePartStatus(ctx, "item-1", i, domain.PartCompleted, "")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "part %d", i)
	}
	done, err := tr.AreAllPartsCompleted(ctx, "item-1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestTracker_Cleanup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := trackerpg.New(newFakePool())
	require.NoError(t, tr.Initialize(ctx, "item-1", 1))
	require.NoError(t, tr.Cleanup(ctx, "item-1"))
	_, err := tr.Get(ctx, "item-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
