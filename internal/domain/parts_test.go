package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

func countByStatus(s *domain.PartSet) (completed, failed, processing, pending int) {
	for _, st := range s.Statuses() {
		switch st {
		case domain.PartCompleted:
			completed++
		case domain.PartFailed:
			failed++
		case domain.PartProcessing:
			processing++
		default:
			pending++
		}
	}
	return
}

func TestNewPartSet_AllPending(t *testing.T) {
	t.Parallel()
	s, err := domain.NewPartSet("item-1", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, s.TotalParts)
	assert.Equal(t, domain.AggregatePending, s.Status)
	for _, st := range s.Statuses() {
		assert.Equal(t, domain.PartPending, st)
	}
}

func TestNewPartSet_Invalid(t *testing.T) {
	t.Parallel()
	_, err := domain.NewPartSet("", 4)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = domain.NewPartSet("item-1", 0)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSetPartStatus_HappyPath(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	s, err := domain.NewPartSet("item-1", 2)
	require.NoError(t, err)

	require.NoError(t, s.SetPartStatus(0, domain.PartProcessing, "", now))
	assert.Equal(t, domain.AggregateProcessing, s.Status)
	assert.NotNil(t, s.Parts[0].StartTime)

	require.NoError(t, s.SetPartStatus(0, domain.PartCompleted, "", now))
	assert.NotNil(t, s.Parts[0].EndTime)
	assert.False(t, s.AllCompleted())

	require.NoError(t, s.SetPartStatus(1, domain.PartProcessing, "", now))
	require.NoError(t, s.SetPartStatus(1, domain.PartCompleted, "", now))
	assert.True(t, s.AllCompleted())
	assert.Equal(t, domain.AggregateCompleted, s.Status)
	assert.NotNil(t, s.CompletedAt)
}

func TestSetPartStatus_IllegalTransitions(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	s, err := domain.NewPartSet("item-1", 1)
	require.NoError(t, err)

	// Pending cannot jump straight to a terminal state.
	require.ErrorIs(t, s.SetPartStatus(0, domain.PartCompleted, "", now), domain.ErrConflict)
	require.ErrorIs(t, s.SetPartStatus(0, domain.PartFailed, "x", now), domain.ErrConflict)

	require.NoError(t, s.SetPartStatus(0, domain.PartProcessing, "", now))
	require.NoError(t, s.SetPartStatus(0, domain.PartCompleted, "", now))

	// Terminal states do not move except via RetryFailed.
	require.ErrorIs(t, s.SetPartStatus(0, domain.PartProcessing, "", now), domain.ErrConflict)
	require.ErrorIs(t, s.SetPartStatus(0, domain.PartPending, "", now), domain.ErrConflict)
}

func TestSetPartStatus_ReplayIsNoop(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	s, err := domain.NewPartSet("item-1", 1)
	require.NoError(t, err)
	require.NoError(t, s.SetPartStatus(0, domain.PartProcessing, "", now))
	start := s.Parts[0].StartTime
	require.NoError(t, s.SetPartStatus(0, domain.PartProcessing, "", now.Add(time.Minute)))
	assert.Equal(t, start, s.Parts[0].StartTime)
}

func TestSetPartStatus_OutOfRange(t *testing.T) {
	t.Parallel()
	s, err := domain.NewPartSet("item-1", 2)
	require.NoError(t, err)
	require.ErrorIs(t, s.SetPartStatus(2, domain.PartProcessing, "", time.Now()), domain.ErrInvalidArgument)
	require.ErrorIs(t, s.SetPartStatus(-1, domain.PartProcessing, "", time.Now()), domain.ErrInvalidArgument)
}

func TestAggregate_FailedOnlyWhenNothingInFlight(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	s, err := domain.NewPartSet("item-1", 3)
	require.NoError(t, err)

	require.NoError(t, s.SetPartStatus(0, domain.PartProcessing, "", now))
	require.NoError(t, s.SetPartStatus(0, domain.PartFailed, "boom", now))
	// Parts 1 and 2 still pending: aggregate is processing, not failed.
	assert.Equal(t, domain.AggregateProcessing, s.Status)

	require.NoError(t, s.SetPartStatus(1, domain.PartProcessing, "", now))
	require.NoError(t, s.SetPartStatus(1, domain.PartCompleted, "", now))
	require.NoError(t, s.SetPartStatus(2, domain.PartProcessing, "", now))
	require.NoError(t, s.SetPartStatus(2, domain.PartFailed, "boom2", now))
	assert.Equal(t, domain.AggregateFailed, s.Status)
	assert.True(t, s.AnyFailed())
	assert.Equal(t, []int{1}, s.CompletedParts())
	assert.Equal(t, []int{0, 2}, s.FailedParts())
}

func TestConservation_AcrossTransitions(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	s, err := domain.NewPartSet("item-1", 5)
	require.NoError(t, err)

	check := func() {
		c, f, pr, pe := countByStatus(&s)
		assert.Equal(t, 5, c+f+pr+pe)
	}
	check()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SetPartStatus(i, domain.PartProcessing, "", now))
		check()
	}
	require.NoError(t, s.SetPartStatus(0, domain.PartCompleted, "", now))
	require.NoError(t, s.SetPartStatus(1, domain.PartFailed, "x", now))
	check()
	s.RetryFailed(now)
	check()
}

func TestRetryFailed_ResetsAndCounts(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	s, err := domain.NewPartSet("item-1", 3)
	require.NoError(t, err)
	require.NoError(t, s.SetPartStatus(0, domain.PartProcessing, "", now))
	require.NoError(t, s.SetPartStatus(0, domain.PartFailed, "boom", now))
	require.NoError(t, s.SetPartStatus(1, domain.PartProcessing, "", now))
	require.NoError(t, s.SetPartStatus(1, domain.PartCompleted, "", now))
	require.NoError(t, s.SetPartStatus(2, domain.PartProcessing, "", now))
	require.NoError(t, s.SetPartStatus(2, domain.PartFailed, "boom", now))

	reset := s.RetryFailed(now)
	assert.Equal(t, []int{0, 2}, reset)
	assert.Equal(t, domain.PartPending, s.Parts[0].Status)
	assert.Equal(t, 1, s.Parts[0].RetryCount)
	assert.Empty(t, s.Parts[0].Error)
	assert.Nil(t, s.Parts[0].StartTime)
	// Part 1 stays completed, so at least one part has started.
	assert.Equal(t, domain.AggregateProcessing, s.Status)

	// Failed part can run again after the reset.
	require.NoError(t, s.SetPartStatus(0, domain.PartProcessing, "", now))
}

func TestRetryFailed_NoFailedParts(t *testing.T) {
	t.Parallel()
	s, err := domain.NewPartSet("item-1", 2)
	require.NoError(t, err)
	assert.Empty(t, s.RetryFailed(time.Now()))
}

func TestFailedDetails(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	s, err := domain.NewPartSet("item-1", 2)
	require.NoError(t, err)
	require.NoError(t, s.SetPartStatus(1, domain.PartProcessing, "", now))
	require.NoError(t, s.SetPartStatus(1, domain.PartFailed, "converter 500", now))

	details := s.FailedDetails()
	require.Len(t, details, 1)
	assert.Equal(t, 1, details[0].PartIndex)
	assert.Equal(t, "converter 500", details[0].Error)
	assert.Equal(t, now, details[0].FailedAt)
}

func TestCompletedAt_OnlyWhileCompleted(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	s, err := domain.NewPartSet("item-1", 1)
	require.NoError(t, err)
	require.NoError(t, s.SetPartStatus(0, domain.PartProcessing, "", now))
	require.NoError(t, s.SetPartStatus(0, domain.PartCompleted, "", now))
	require.NotNil(t, s.CompletedAt)
}
