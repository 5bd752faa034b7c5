package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates every message kind the pipeline exchanges. The set is
// closed; unknown event types are poison.
type EventType string

const (
	EventPdfAnalysisRequest       EventType = "PdfAnalysisRequest"
	EventPdfAnalysisCompleted     EventType = "PdfAnalysisCompleted"
	EventPdfAnalysisFailed        EventType = "PdfAnalysisFailed"
	EventPdfSplittingRequest      EventType = "PdfSplittingRequest"
	EventPdfConversionRequest     EventType = "PdfConversionRequest"
	EventPdfConversionProgress    EventType = "PdfConversionProgress"
	EventPdfConversionCompleted   EventType = "PdfConversionCompleted"
	EventPdfConversionFailed      EventType = "PdfConversionFailed"
	EventPdfPartConversionRequest EventType = "PdfPartConversionRequest"
	EventPdfPartConversionDone    EventType = "PdfPartConversionCompleted"
	EventPdfPartConversionFailed  EventType = "PdfPartConversionFailed"
	EventPdfMergingRequest        EventType = "PdfMergingRequest"
	EventPdfMergingProgress       EventType = "PdfMergingProgress"
	EventMarkdownStorageRequest   EventType = "MarkdownStorageRequest"
	EventMarkdownStorageCompleted EventType = "MarkdownStorageCompleted"
	EventMarkdownStorageFailed    EventType = "MarkdownStorageFailed"
)

// Valid reports whether t is a member of the closed event-type set.
func (t EventType) Valid() bool {
	switch t {
	case EventPdfAnalysisRequest, EventPdfAnalysisCompleted, EventPdfAnalysisFailed,
		EventPdfSplittingRequest, EventPdfConversionRequest, EventPdfConversionProgress,
		EventPdfConversionCompleted, EventPdfConversionFailed, EventPdfPartConversionRequest,
		EventPdfPartConversionDone, EventPdfPartConversionFailed, EventPdfMergingRequest,
		EventPdfMergingProgress, EventMarkdownStorageRequest, EventMarkdownStorageCompleted,
		EventMarkdownStorageFailed:
		return true
	}
	return false
}

// Transient reports whether messages of this type are published non-persistent
// with a broker TTL (progress streams only).
func (t EventType) Transient() bool {
	return t == EventPdfConversionProgress || t == EventPdfMergingProgress
}

// Priority maps onto AMQP message priority at publish time.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// DefaultMaxRetries bounds the retry chain of every request message.
const DefaultMaxRetries = 3

// Envelope is embedded in every message.
type Envelope struct {
	MessageID  string    `json:"messageId"`
	Timestamp  int64     `json:"timestamp"`
	EventType  EventType `json:"eventType"`
	ItemID     string    `json:"itemId"`
	RetryCount int       `json:"retryCount"`
	MaxRetries int       `json:"maxRetries,omitempty"`
	Priority   Priority  `json:"priority,omitempty"`
}

// NewEnvelope builds an envelope with a fresh message ID, a millisecond
// timestamp, and the default retry bound.
func NewEnvelope(eventType EventType, itemID string) Envelope {
	return Envelope{
		MessageID:  uuid.New().String(),
		Timestamp:  time.Now().UnixMilli(),
		EventType:  eventType,
		ItemID:     itemID,
		MaxRetries: DefaultMaxRetries,
	}
}

// NewBoundedEnvelope builds an envelope with an explicit retry bound;
// non-positive bounds fall back to the default.
func NewBoundedEnvelope(eventType EventType, itemID string, maxRetries int) Envelope {
	e := NewEnvelope(eventType, itemID)
	if maxRetries > 0 {
		e.MaxRetries = maxRetries
	}
	return e
}

// Env exposes the envelope for the Publisher and the retry discipline.
func (e *Envelope) Env() *Envelope { return e }

// BumpRetry prepares the envelope for a retry republish: fresh message ID,
// updated timestamp, incremented retry count. No other field changes.
func (e *Envelope) BumpRetry() {
	e.MessageID = uuid.New().String()
	e.Timestamp = time.Now().UnixMilli()
	e.RetryCount++
}

// Message is any payload carrying the envelope.
type Message interface {
	Env() *Envelope
}

// AnalysisRequest asks the analyzer to inspect a PDF.
type AnalysisRequest struct {
	Envelope
	ObjectKey string `json:"objectKey,omitempty"`
}

// AnalysisCompleted reports page count, metadata, and the splitting decision.
type AnalysisCompleted struct {
	Envelope
	ObjectKey          string       `json:"objectKey"`
	PageCount          int          `json:"pageCount"`
	RequiresSplitting  bool         `json:"requiresSplitting"`
	SuggestedSplitSize int          `json:"suggestedSplitSize"`
	Metadata           *PdfMetadata `json:"pdfMetadata,omitempty"`
}

// AnalysisFailed terminates the analysis stage.
type AnalysisFailed struct {
	Envelope
	Error    string `json:"error"`
	CanRetry bool   `json:"canRetry"`
}

// SplittingRequest asks the splitter to decompose the PDF into parts.
type SplittingRequest struct {
	Envelope
	ObjectKey string `json:"objectKey"`
	PageCount int    `json:"pageCount"`
	SplitSize int    `json:"splitSize"`
}

// ConversionRequest converts a whole PDF to Markdown.
type ConversionRequest struct {
	Envelope
	ObjectKey string       `json:"objectKey"`
	Metadata  *PdfMetadata `json:"pdfMetadata,omitempty"`
}

// ConversionProgress is a transient progress signal (TTL-bounded).
type ConversionProgress struct {
	Envelope
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// ConversionCompleted reports a finished conversion (whole or merged).
type ConversionCompleted struct {
	Envelope
	Status           ProcessingStatus `json:"status"`
	MarkdownContent  string           `json:"markdownContent,omitempty"`
	ProcessingTimeMS int64            `json:"processingTime,omitempty"`
}

// ConversionFailed terminates the whole-PDF conversion stage.
type ConversionFailed struct {
	Envelope
	Error    string `json:"error"`
	CanRetry bool   `json:"canRetry"`
}

// PartConversionRequest converts one page-range part. Pages are 1-based
// inclusive on both ends.
type PartConversionRequest struct {
	Envelope
	ObjectKey  string `json:"objectKey"`
	PartIndex  int    `json:"partIndex"`
	TotalParts int    `json:"totalParts"`
	FirstPage  int    `json:"firstPage"`
	LastPage   int    `json:"lastPage"`
}

// PartConversionCompleted reports one part finished.
type PartConversionCompleted struct {
	Envelope
	PartIndex int `json:"partIndex"`
}

// PartConversionFailed reports one part terminally failed.
type PartConversionFailed struct {
	Envelope
	PartIndex int    `json:"partIndex"`
	Error     string `json:"error"`
	CanRetry  bool   `json:"canRetry"`
}

// MergingRequest asks the merger to assemble the stored part Markdown.
type MergingRequest struct {
	Envelope
	TotalParts     int   `json:"totalParts"`
	CompletedParts []int `json:"completedParts"`
}

// MergingProgress is a transient progress signal (TTL-bounded).
type MergingProgress struct {
	Envelope
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// StorageMetadata annotates a storage request.
type StorageMetadata struct {
	ProcessingTimeMS int64 `json:"processingTime,omitempty"`
	PartIndex        *int  `json:"partIndex,omitempty"`
	IsPart           bool  `json:"isPart,omitempty"`
}

// StorageRequest asks the markdown storage worker to persist content.
type StorageRequest struct {
	Envelope
	MarkdownContent string          `json:"markdownContent"`
	Metadata        StorageMetadata `json:"metadata"`
}

// StorageCompleted is the handoff event for the downstream chunk/embedding
// stage.
type StorageCompleted struct {
	Envelope
	ContentLength int  `json:"contentLength"`
	IsPart        bool `json:"isPart,omitempty"`
	PartIndex     *int `json:"partIndex,omitempty"`
}

// StorageFailed terminates the storage stage.
type StorageFailed struct {
	Envelope
	Error    string `json:"error"`
	CanRetry bool   `json:"canRetry"`
}
