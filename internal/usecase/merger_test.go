package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
	"github.com/fairyhunter13/pdf-ingest/internal/domain/mocks"
)

func TestMerger_HappyPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	meta := new(mocks.MockMetadataStore)
	markdown := new(mocks.MockMarkdownStore)
	tracker := new(mocks.MockPartTracker)
	pub := new(capturePub)

	stored := part(2, "second part body") + part(1, "first part body")
	meta.On("UpdateStatus", mock.Anything, "item-1", domain.StatusMerging, mock.Anything, "").Return(nil)
	meta.On("UpdateProgress", mock.Anything, "item-1", mock.Anything, mock.Anything).Return(nil)
	markdown.On("GetMarkdown", mock.Anything, "item-1").Return(stored, nil)
	tracker.On("Cleanup", mock.Anything, "item-1").Return(nil)

	m := NewMergerService(0, meta, markdown, tracker, pub)
	msg := domain.MergingRequest{
		Envelope:       domain.NewEnvelope(domain.EventPdfMergingRequest, "item-1"),
		TotalParts:     2,
		CompletedParts: []int{0, 1},
	}
	require.NoError(t, m.HandleMergingRequest(ctx, msg))

	store := pub.one(domain.EventMarkdownStorageRequest)
	require.NotNil(t, store)
	sr := store.(*domain.StorageRequest)
	assert.Contains(t, sr.MarkdownContent, "# Merged PDF Document")
	assert.Contains(t, sr.MarkdownContent, "merging 2 PDF parts")
	assert.Less(t,
		strings.Index(sr.MarkdownContent, "first part body"),
		strings.Index(sr.MarkdownContent, "second part body"))
	assert.False(t, sr.Metadata.IsPart)

	done := pub.one(domain.EventPdfConversionCompleted)
	require.NotNil(t, done)
	cc := done.(*domain.ConversionCompleted)
	assert.Equal(t, domain.StatusCompleted, cc.Status)
	assert.Equal(t, sr.MarkdownContent, cc.MarkdownContent)
	progress := pub.byType(domain.EventPdfMergingProgress)
	require.Len(t, progress, 2)
	assert.Equal(t, 80, progress[0].(*domain.MergingProgress).Progress)
	assert.Equal(t, 95, progress[1].(*domain.MergingProgress).Progress)
	tracker.AssertExpectations(t)
}

func TestMerger_NoMarkersStoresContentAsIs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	meta := new(mocks.MockMetadataStore)
	markdown := new(mocks.MockMarkdownStore)
	tracker := new(mocks.MockPartTracker)
	pub := new(capturePub)

	meta.On("UpdateStatus", mock.Anything, "item-1", domain.StatusMerging, mock.Anything, "").Return(nil)
	meta.On("UpdateProgress", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	markdown.On("GetMarkdown", mock.Anything, "item-1").Return("# Whole Document\n\nno markers", nil)
	tracker.On("Cleanup", mock.Anything, "item-1").Return(nil)

	m := NewMergerService(0, meta, markdown, tracker, pub)
	msg := domain.MergingRequest{
		Envelope:   domain.NewEnvelope(domain.EventPdfMergingRequest, "item-1"),
		TotalParts: 1,
	}
	require.NoError(t, m.HandleMergingRequest(ctx, msg))

	sr := pub.one(domain.EventMarkdownStorageRequest).(*domain.StorageRequest)
	assert.Equal(t, "# Whole Document\n\nno markers", sr.MarkdownContent)
	assert.NotContains(t, sr.MarkdownContent, "Merged PDF Document")
}

func TestMerger_MissingMarkdownRetriedOnceThenFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	meta := new(mocks.MockMetadataStore)
	markdown := new(mocks.MockMarkdownStore)
	tracker := new(mocks.MockPartTracker)
	pub := new(capturePub)

	meta.On("UpdateStatus", mock.Anything, "item-1", domain.StatusMerging, mock.Anything, "").Return(nil)
	meta.On("UpdateStatus", mock.Anything, "item-1", domain.StatusFailed, mock.Anything, mock.Anything).Return(nil)
	markdown.On("GetMarkdown", mock.Anything, "item-1").Return("", domain.ErrNotFound)

	m := NewMergerService(0, meta, markdown, tracker, pub)
	msg := domain.MergingRequest{
		Envelope:   domain.NewEnvelope(domain.EventPdfMergingRequest, "item-1"),
		TotalParts: 2,
	}
	require.NoError(t, m.HandleMergingRequest(ctx, msg))
	rep := pub.one(domain.EventPdfMergingRequest)
	require.NotNil(t, rep)
	assert.Equal(t, 1, rep.Env().RetryCount)

	require.NoError(t, m.HandleMergingRequest(ctx, *rep.(*domain.MergingRequest)))
	failed := pub.one(domain.EventPdfConversionFailed)
	require.NotNil(t, failed)
	cf := failed.(*domain.ConversionFailed)
	assert.False(t, cf.CanRetry)
	assert.Equal(t, 1, cf.RetryCount)
	assert.Equal(t, domain.DefaultMaxRetries, cf.MaxRetries)
	tracker.AssertNotCalled(t, "Cleanup", mock.Anything, mock.Anything)
	meta.AssertExpectations(t)
}

func TestMerger_CleanupFailureDoesNotFailMerge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	meta := new(mocks.MockMetadataStore)
	markdown := new(mocks.MockMarkdownStore)
	tracker := new(mocks.MockPartTracker)
	pub := new(capturePub)

	meta.On("UpdateStatus", mock.Anything, mock.Anything, domain.StatusMerging, mock.Anything, "").Return(nil)
	meta.On("UpdateProgress", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	markdown.On("GetMarkdown", mock.Anything, "item-1").Return(part(1, "body"), nil)
	tracker.On("Cleanup", mock.Anything, "item-1").Return(domain.ErrInternal)

	m := NewMergerService(0, meta, markdown, tracker, pub)
	msg := domain.MergingRequest{
		Envelope:   domain.NewEnvelope(domain.EventPdfMergingRequest, "item-1"),
		TotalParts: 1,
	}
	require.NoError(t, m.HandleMergingRequest(ctx, msg))
	require.NotNil(t, pub.one(domain.EventPdfConversionCompleted))
}
