// Package domain contains the pipeline's entities, message model, part-state
// machine, and the ports implemented by adapters.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrPoisonMessage   = errors.New("poison message")
	ErrUnhealthy       = errors.New("broker unhealthy")
	ErrInternal        = errors.New("internal error")
)

// ProcessingStatus is the item-level lifecycle status. The success path is
// Pending→Analyzing→(Splitting→)Processing→Merging→Completed; Failed may be
// entered from any non-terminal state and re-entered into Analyzing or
// Processing by a retry.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "Pending"
	StatusAnalyzing  ProcessingStatus = "Analyzing"
	StatusSplitting  ProcessingStatus = "Splitting"
	StatusProcessing ProcessingStatus = "Processing"
	StatusMerging    ProcessingStatus = "Merging"
	StatusCompleted  ProcessingStatus = "Completed"
	StatusFailed     ProcessingStatus = "Failed"
)

// PdfMetadata is populated once by analysis and carried downstream so later
// stages do not re-analyze the document.
type PdfMetadata struct {
	PageCount    int    `json:"pageCount"`
	FileSize     int64  `json:"fileSize"`
	Title        string `json:"title,omitempty"`
	Author       string `json:"author,omitempty"`
	CreationDate string `json:"creationDate,omitempty"`
}

// Item is the externally created record the pipeline reports progress into.
type Item struct {
	ID                 string
	ObjectKey          string
	ProcessingStatus   ProcessingStatus
	ProcessingMessage  string
	ProcessingError    string
	ProcessingProgress int
	RetryCount         int
	PdfMetadata        *PdfMetadata
	MergingStartedAt   *time.Time
	CompletedAt        *time.Time
	ModifiedAt         time.Time
}

// MetadataStore persists item-level status and metadata.
type MetadataStore interface {
	GetItem(ctx Context, itemID string) (Item, error)
	// UpdateStatus transitions the item and records the message; errMsg is
	// stored only for StatusFailed. The store stamps mergingStartedAt and
	// completedAt when the corresponding statuses are entered.
	UpdateStatus(ctx Context, itemID string, status ProcessingStatus, message, errMsg string) error
	UpdateProgress(ctx Context, itemID string, progress int, message string) error
	SetPdfMetadata(ctx Context, itemID string, md PdfMetadata) error
}

// MarkdownStore persists converted Markdown. Writes are idempotent on
// (itemID, partIndex); partIndex nil means the whole (or merged) document.
type MarkdownStore interface {
	SaveMarkdown(ctx Context, itemID string, partIndex *int, content string) error
	// GetMarkdown returns the whole document if present, else the
	// concatenation of stored part payloads in arrival order.
	GetMarkdown(ctx Context, itemID string) (string, error)
}

// ObjectStore holds the original PDFs and uploaded part files.
type ObjectStore interface {
	UploadPdf(ctx Context, b []byte, filename string) (objectKey, url string, err error)
	GetPdf(ctx Context, objectKey string) ([]byte, error)
	GetPdfDownloadURL(ctx Context, objectKey string) (string, error)
}

// ConvertResult is the external converter's loose response shape. Data is a
// Markdown string, or an object with a "markdown" or "content" field, or an
// arbitrary object whose JSON stringification is used as a fallback.
type ConvertResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	TaskID  string          `json:"taskId"`
	Error   string          `json:"error,omitempty"`
}

// Converter is the external PDF→Markdown service.
type Converter interface {
	ConvertFromURL(ctx Context, presignedURL string) (ConvertResult, error)
}

// MarkdownFromConverterData resolves the converter's tagged-union payload to
// Markdown text.
func MarkdownFromConverterData(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Markdown *string `json:"markdown"`
		Content  *string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Markdown != nil {
			return *obj.Markdown
		}
		if obj.Content != nil {
			return *obj.Content
		}
	}
	return string(raw)
}

// PageSplitter extracts a 1-based inclusive page range from srcPath into a
// new PDF at dstPath. Implementations shell out to an external tool.
type PageSplitter interface {
	ExtractPages(ctx Context, srcPath, dstPath string, firstPage, lastPage int) error
}

// Publisher is the broker adapter's typed publish capability. Workers hold it
// as an opaque port so no back-pointer into the adapter exists.
type Publisher interface {
	Publish(ctx Context, msg Message) error
}

// Context is an alias so the domain package does not force adapters through
// an indirection; adapters and usecases pass context.Context through.
type Context = context.Context
