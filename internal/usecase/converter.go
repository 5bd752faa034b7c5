package usecase

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/pdf-ingest/internal/adapter/observability"
	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// ConverterConfig tunes the converter worker.
type ConverterConfig struct {
	// MaxRetries bounds the retry chain of messages this worker mints.
	MaxRetries int
}

// ConverterService drives the external converter for whole PDFs and for
// page-range parts, and triggers the merge once the last part of an item
// completes.
type ConverterService struct {
	cfg     ConverterConfig
	meta    domain.MetadataStore
	objects domain.ObjectStore
	conv    domain.Converter
	tracker domain.PartTracker
	pub     domain.Publisher
}

// NewConverterService constructs a ConverterService.
func NewConverterService(cfg ConverterConfig, meta domain.MetadataStore, objects domain.ObjectStore, conv domain.Converter, tracker domain.PartTracker, pub domain.Publisher) *ConverterService {
	return &ConverterService{cfg: cfg, meta: meta, objects: objects, conv: conv, tracker: tracker, pub: pub}
}

// progressEvent emits a transient progress event. Progress is advisory;
// failures here never fail the conversion.
func (c *ConverterService) progressEvent(ctx domain.Context, itemID string, pct int, note string) {
	p := domain.ConversionProgress{
		Envelope: domain.NewEnvelope(domain.EventPdfConversionProgress, itemID),
		Progress: pct,
		Message:  note,
	}
	if err := c.pub.Publish(ctx, &p); err != nil {
		slog.Warn("progress publish failed", "itemId", itemID, "progress", pct, "error", err)
	}
}

// progress additionally mirrors the percentage into the item record. Only the
// whole-document path does this; parallel parts would thrash the item row.
func (c *ConverterService) progress(ctx domain.Context, itemID string, pct int, note string) {
	c.progressEvent(ctx, itemID, pct, note)
	if err := c.meta.UpdateProgress(ctx, itemID, pct, note); err != nil {
		slog.Warn("progress write failed", "itemId", itemID, "progress", pct, "error", err)
	}
}

// convert resolves a presigned URL for the object and runs the converter,
// reporting the 0/10/30/60 milestones through report. A success=false response
// is deterministic and classified as bad input.
func (c *ConverterService) convert(ctx domain.Context, objectKey string, report func(pct int, note string)) (string, domain.ErrorKind, error) {
	report(0, "Starting conversion")
	url, err := c.objects.GetPdfDownloadURL(ctx, objectKey)
	if err != nil {
		return "", classify(err), err
	}
	report(10, "Resolved download URL")
	report(30, "Converting PDF")
	res, err := c.conv.ConvertFromURL(ctx, url)
	if err != nil {
		return "", domain.KindTransient, err
	}
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = "converter rejected the document"
		}
		return "", domain.KindBadInput, fmt.Errorf("op=usecase.convert: %s: %w", reason, domain.ErrInvalidArgument)
	}
	md := domain.MarkdownFromConverterData(res.Data)
	if strings.TrimSpace(md) == "" {
		return "", domain.KindBadInput, fmt.Errorf("op=usecase.convert: empty conversion result: %w", domain.ErrInvalidArgument)
	}
	report(60, "Converted to Markdown")
	return md, 0, nil
}

// HandleConversionRequest converts a whole (unsplit) PDF.
func (c *ConverterService) HandleConversionRequest(ctx domain.Context, msg domain.ConversionRequest) error {
	start := time.Now()

	md, kind, err := c.convert(ctx, msg.ObjectKey, func(pct int, note string) {
		c.progress(ctx, msg.ItemID, pct, note)
	})
	if err != nil {
		return retryOrFail(ctx, c.pub, &msg, kind, err, c.exhausted(&msg, err.Error()))
	}

	elapsed := time.Since(start).Milliseconds()
	store := domain.StorageRequest{
		Envelope:        domain.NewBoundedEnvelope(domain.EventMarkdownStorageRequest, msg.ItemID, c.cfg.MaxRetries),
		MarkdownContent: md,
		Metadata:        domain.StorageMetadata{ProcessingTimeMS: elapsed},
	}
	store.Priority = msg.Priority
	c.progress(ctx, msg.ItemID, 80, "Storing Markdown")
	if err := c.pub.Publish(ctx, &store); err != nil {
		return retryOrFail(ctx, c.pub, &msg, domain.KindTransient, err, c.exhausted(&msg, err.Error()))
	}

	done := domain.ConversionCompleted{
		Envelope:         domain.NewEnvelope(domain.EventPdfConversionCompleted, msg.ItemID),
		Status:           domain.StatusCompleted,
		MarkdownContent:  md,
		ProcessingTimeMS: elapsed,
	}
	if err := c.pub.Publish(ctx, &done); err != nil {
		return fmt.Errorf("op=usecase.HandleConversionRequest: completed event: %w", err)
	}
	return nil
}

func (c *ConverterService) exhausted(msg *domain.ConversionRequest, errMsg string) func(ctx domain.Context) error {
	return func(ctx domain.Context) error {
		out := domain.ConversionFailed{
			Envelope: domain.NewEnvelope(domain.EventPdfConversionFailed, msg.ItemID),
			Error:    errMsg,
			CanRetry: false,
		}
		out.RetryCount = msg.RetryCount
		out.MaxRetries = msg.MaxRetries
		if err := c.pub.Publish(ctx, &out); err != nil {
			return fmt.Errorf("op=usecase.ConverterService: publish failure event: %w", err)
		}
		return c.meta.UpdateStatus(ctx, msg.ItemID, domain.StatusFailed, "Conversion failed", errMsg)
	}
}

// HandlePartConversionRequest converts one page-range part. The first part of
// an item to arrive initializes the tracker entry; the part that completes the
// set publishes the merging request.
func (c *ConverterService) HandlePartConversionRequest(ctx domain.Context, msg domain.PartConversionRequest) error {
	set, err := c.tracker.Get(ctx, msg.ItemID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if err := c.tracker.Initialize(ctx, msg.ItemID, msg.TotalParts); err != nil {
			return retryOrFail(ctx, c.pub, &msg, classify(err), err, c.partExhausted(&msg, err.Error()))
		}
	case err != nil:
		return retryOrFail(ctx, c.pub, &msg, domain.KindTransient, err, c.partExhausted(&msg, err.Error()))
	default:
		// Redelivery of an already-finished part is a no-op.
		if msg.PartIndex >= 0 && msg.PartIndex < len(set.Parts) && set.Parts[msg.PartIndex].Status == domain.PartCompleted {
			slog.Info("part already completed, skipping", "itemId", msg.ItemID, "partIndex", msg.PartIndex)
			return nil
		}
	}

	if _, err := c.tracker.UpdatePartStatus(ctx, msg.ItemID, msg.PartIndex, domain.PartProcessing, ""); err != nil {
		return retryOrFail(ctx, c.pub, &msg, classify(err), err, c.partExhausted(&msg, err.Error()))
	}

	start := time.Now()
	md, kind, err := c.convert(ctx, msg.ObjectKey, func(pct int, note string) {
		c.progressEvent(ctx, msg.ItemID, pct, fmt.Sprintf("Part %d: %s", msg.PartIndex, note))
	})
	if err != nil {
		return retryOrFail(ctx, c.pub, &msg, kind, err, c.partExhausted(&msg, err.Error()))
	}

	idx := msg.PartIndex
	store := domain.StorageRequest{
		Envelope:        domain.NewBoundedEnvelope(domain.EventMarkdownStorageRequest, msg.ItemID, c.cfg.MaxRetries),
		MarkdownContent: PartMarker(msg.PartIndex) + md,
		Metadata: domain.StorageMetadata{
			ProcessingTimeMS: time.Since(start).Milliseconds(),
			PartIndex:        &idx,
			IsPart:           true,
		},
	}
	store.Priority = msg.Priority
	c.progressEvent(ctx, msg.ItemID, 80, fmt.Sprintf("Part %d: Storing Markdown", msg.PartIndex))
	if err := c.pub.Publish(ctx, &store); err != nil {
		return retryOrFail(ctx, c.pub, &msg, domain.KindTransient, err, c.partExhausted(&msg, err.Error()))
	}

	set, err = c.tracker.UpdatePartStatus(ctx, msg.ItemID, msg.PartIndex, domain.PartCompleted, "")
	if err != nil {
		return retryOrFail(ctx, c.pub, &msg, classify(err), err, c.partExhausted(&msg, err.Error()))
	}
	observability.PartsCompletedTotal.Inc()

	done := domain.PartConversionCompleted{
		Envelope:  domain.NewEnvelope(domain.EventPdfPartConversionDone, msg.ItemID),
		PartIndex: msg.PartIndex,
	}
	if err := c.pub.Publish(ctx, &done); err != nil {
		return fmt.Errorf("op=usecase.HandlePartConversionRequest: completed event: %w", err)
	}

	if set.AllCompleted() {
		merge := domain.MergingRequest{
			Envelope:       domain.NewBoundedEnvelope(domain.EventPdfMergingRequest, msg.ItemID, c.cfg.MaxRetries),
			TotalParts:     set.TotalParts,
			CompletedParts: set.CompletedParts(),
		}
		merge.Priority = msg.Priority
		if err := c.pub.Publish(ctx, &merge); err != nil {
			return fmt.Errorf("op=usecase.HandlePartConversionRequest: merge request: %w", err)
		}
		slog.Info("all parts completed, merge queued", "itemId", msg.ItemID, "totalParts", set.TotalParts)
	}
	return nil
}

// partExhausted marks the part Failed, emits the part failure event, and, if
// no part remains in flight, fails the whole item.
func (c *ConverterService) partExhausted(msg *domain.PartConversionRequest, errMsg string) func(ctx domain.Context) error {
	return func(ctx domain.Context) error {
		set, err := c.tracker.UpdatePartStatus(ctx, msg.ItemID, msg.PartIndex, domain.PartFailed, errMsg)
		if err != nil && !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("op=usecase.ConverterService: mark part failed: %w", err)
		}
		observability.PartsFailedTotal.Inc()

		out := domain.PartConversionFailed{
			Envelope:  domain.NewEnvelope(domain.EventPdfPartConversionFailed, msg.ItemID),
			PartIndex: msg.PartIndex,
			Error:     errMsg,
			CanRetry:  false,
		}
		out.RetryCount = msg.RetryCount
		out.MaxRetries = msg.MaxRetries
		if err := c.pub.Publish(ctx, &out); err != nil {
			return fmt.Errorf("op=usecase.ConverterService: publish part failure: %w", err)
		}
		if set.Status == domain.AggregateFailed {
			note := fmt.Sprintf("Part conversion failed for parts %v", set.FailedParts())
			return c.meta.UpdateStatus(ctx, msg.ItemID, domain.StatusFailed, note, errMsg)
		}
		return nil
	}
}
