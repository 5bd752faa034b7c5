// Package mocks provides testify mocks for the domain ports.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// MockPublisher mocks domain.Publisher.
type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(ctx domain.Context, msg domain.Message) error {
	return m.Called(ctx, msg).Error(0)
}

// MockMetadataStore mocks domain.MetadataStore.
type MockMetadataStore struct{ mock.Mock }

func (m *MockMetadataStore) GetItem(ctx domain.Context, itemID string) (domain.Item, error) {
	args := m.Called(ctx, itemID)
	return args.Get(0).(domain.Item), args.Error(1)
}

func (m *MockMetadataStore) UpdateStatus(ctx domain.Context, itemID string, status domain.ProcessingStatus, message, errMsg string) error {
	return m.Called(ctx, itemID, status, message, errMsg).Error(0)
}

func (m *MockMetadataStore) UpdateProgress(ctx domain.Context, itemID string, progress int, message string) error {
	return m.Called(ctx, itemID, progress, message).Error(0)
}

func (m *MockMetadataStore) SetPdfMetadata(ctx domain.Context, itemID string, md domain.PdfMetadata) error {
	return m.Called(ctx, itemID, md).Error(0)
}

// MockMarkdownStore mocks domain.MarkdownStore.
type MockMarkdownStore struct{ mock.Mock }

func (m *MockMarkdownStore) SaveMarkdown(ctx domain.Context, itemID string, partIndex *int, content string) error {
	return m.Called(ctx, itemID, partIndex, content).Error(0)
}

func (m *MockMarkdownStore) GetMarkdown(ctx domain.Context, itemID string) (string, error) {
	args := m.Called(ctx, itemID)
	return args.String(0), args.Error(1)
}

// MockObjectStore mocks domain.ObjectStore.
type MockObjectStore struct{ mock.Mock }

func (m *MockObjectStore) UploadPdf(ctx domain.Context, b []byte, filename string) (string, string, error) {
	args := m.Called(ctx, b, filename)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockObjectStore) GetPdf(ctx domain.Context, objectKey string) ([]byte, error) {
	args := m.Called(ctx, objectKey)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockObjectStore) GetPdfDownloadURL(ctx domain.Context, objectKey string) (string, error) {
	args := m.Called(ctx, objectKey)
	return args.String(0), args.Error(1)
}

// MockConverter mocks domain.Converter.
type MockConverter struct{ mock.Mock }

func (m *MockConverter) ConvertFromURL(ctx domain.Context, presignedURL string) (domain.ConvertResult, error) {
	args := m.Called(ctx, presignedURL)
	return args.Get(0).(domain.ConvertResult), args.Error(1)
}

// MockPageSplitter mocks domain.PageSplitter.
type MockPageSplitter struct{ mock.Mock }

func (m *MockPageSplitter) ExtractPages(ctx domain.Context, srcPath, dstPath string, firstPage, lastPage int) error {
	return m.Called(ctx, srcPath, dstPath, firstPage, lastPage).Error(0)
}

// MockPartTracker mocks domain.PartTracker.
type MockPartTracker struct{ mock.Mock }

func (m *MockPartTracker) Initialize(ctx domain.Context, itemID string, totalParts int) error {
	return m.Called(ctx, itemID, totalParts).Error(0)
}

func (m *MockPartTracker) UpdatePartStatus(ctx domain.Context, itemID string, partIndex int, status domain.PartStatus, errMsg string) (domain.PartSet, error) {
	args := m.Called(ctx, itemID, partIndex, status, errMsg)
	return args.Get(0).(domain.PartSet), args.Error(1)
}

func (m *MockPartTracker) Get(ctx domain.Context, itemID string) (domain.PartSet, error) {
	args := m.Called(ctx, itemID)
	return args.Get(0).(domain.PartSet), args.Error(1)
}

func (m *MockPartTracker) AreAllPartsCompleted(ctx domain.Context, itemID string) (bool, error) {
	args := m.Called(ctx, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPartTracker) HasAnyPartFailed(ctx domain.Context, itemID string) (bool, error) {
	args := m.Called(ctx, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPartTracker) GetCompletedParts(ctx domain.Context, itemID string) ([]int, error) {
	args := m.Called(ctx, itemID)
	if v := args.Get(0); v != nil {
		return v.([]int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPartTracker) GetFailedParts(ctx domain.Context, itemID string) ([]int, error) {
	args := m.Called(ctx, itemID)
	if v := args.Get(0); v != nil {
		return v.([]int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPartTracker) GetFailedPartsDetails(ctx domain.Context, itemID string) ([]domain.FailedPartDetail, error) {
	args := m.Called(ctx, itemID)
	if v := args.Get(0); v != nil {
		return v.([]domain.FailedPartDetail), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPartTracker) GetAllPartStatuses(ctx domain.Context, itemID string) ([]domain.PartStatus, error) {
	args := m.Called(ctx, itemID)
	if v := args.Get(0); v != nil {
		return v.([]domain.PartStatus), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPartTracker) RetryFailedParts(ctx domain.Context, itemID string) ([]int, error) {
	args := m.Called(ctx, itemID)
	if v := args.Get(0); v != nil {
		return v.([]int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPartTracker) Cleanup(ctx domain.Context, itemID string) error {
	return m.Called(ctx, itemID).Error(0)
}
