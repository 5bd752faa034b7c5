package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/pdf-ingest/internal/adapter/observability"
	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// MergerService assembles an item's stored part Markdown into one document,
// hands it to storage, and retires the tracker entry.
type MergerService struct {
	maxRetries int
	meta       domain.MetadataStore
	markdown   domain.MarkdownStore
	tracker    domain.PartTracker
	pub        domain.Publisher
}

// NewMergerService constructs a MergerService. maxRetries bounds the retry
// chain of the storage request it mints.
func NewMergerService(maxRetries int, meta domain.MetadataStore, markdown domain.MarkdownStore, tracker domain.PartTracker, pub domain.Publisher) *MergerService {
	return &MergerService{maxRetries: maxRetries, meta: meta, markdown: markdown, tracker: tracker, pub: pub}
}

func (m *MergerService) progress(ctx domain.Context, itemID string, pct int, note string) {
	p := domain.MergingProgress{
		Envelope: domain.NewEnvelope(domain.EventPdfMergingProgress, itemID),
		Progress: pct,
		Message:  note,
	}
	if err := m.pub.Publish(ctx, &p); err != nil {
		slog.Warn("progress publish failed", "itemId", itemID, "progress", pct, "error", err)
	}
	if err := m.meta.UpdateProgress(ctx, itemID, pct, note); err != nil {
		slog.Warn("progress write failed", "itemId", itemID, "progress", pct, "error", err)
	}
}

// HandleMergingRequest runs the merge stage for one item.
func (m *MergerService) HandleMergingRequest(ctx domain.Context, msg domain.MergingRequest) error {
	start := time.Now()
	if err := m.meta.UpdateStatus(ctx, msg.ItemID, domain.StatusMerging, "Merging part documents", ""); err != nil {
		return retryOrFail(ctx, m.pub, &msg, classify(err), err, m.exhausted(&msg, err.Error()))
	}

	content, err := m.markdown.GetMarkdown(ctx, msg.ItemID)
	if err != nil {
		return retryOrFail(ctx, m.pub, &msg, classify(err), err, m.exhausted(&msg, err.Error()))
	}

	m.progress(ctx, msg.ItemID, 80, "Merging parts")
	merged, parts, found := MergeMarkdown(content)
	if !found {
		slog.Info("no part markers found, storing content as-is", "itemId", msg.ItemID)
	} else if parts < msg.TotalParts {
		slog.Warn("merged fewer parts than expected",
			"itemId", msg.ItemID, "merged", parts, "expected", msg.TotalParts)
	}

	m.progress(ctx, msg.ItemID, 95, "Storing merged document")
	elapsed := time.Since(start).Milliseconds()
	store := domain.StorageRequest{
		Envelope:        domain.NewBoundedEnvelope(domain.EventMarkdownStorageRequest, msg.ItemID, m.maxRetries),
		MarkdownContent: merged,
		Metadata:        domain.StorageMetadata{ProcessingTimeMS: elapsed},
	}
	store.Priority = msg.Priority
	if err := m.pub.Publish(ctx, &store); err != nil {
		return retryOrFail(ctx, m.pub, &msg, domain.KindTransient, err, m.exhausted(&msg, err.Error()))
	}

	done := domain.ConversionCompleted{
		Envelope:         domain.NewEnvelope(domain.EventPdfConversionCompleted, msg.ItemID),
		Status:           domain.StatusCompleted,
		MarkdownContent:  merged,
		ProcessingTimeMS: elapsed,
	}
	if err := m.pub.Publish(ctx, &done); err != nil {
		return fmt.Errorf("op=usecase.HandleMergingRequest: completed event: %w", err)
	}
	observability.MergesTotal.WithLabelValues("success").Inc()

	// The tracker entry has served its purpose; a failed delete only leaks a
	// row, never the merge.
	if err := m.tracker.Cleanup(ctx, msg.ItemID); err != nil {
		slog.Warn("tracker cleanup failed", "itemId", msg.ItemID, "error", err)
	}
	return nil
}

func (m *MergerService) exhausted(msg *domain.MergingRequest, errMsg string) func(ctx domain.Context) error {
	return func(ctx domain.Context) error {
		observability.MergesTotal.WithLabelValues("failure").Inc()
		out := domain.ConversionFailed{
			Envelope: domain.NewEnvelope(domain.EventPdfConversionFailed, msg.ItemID),
			Error:    errMsg,
			CanRetry: false,
		}
		out.RetryCount = msg.RetryCount
		out.MaxRetries = msg.MaxRetries
		if err := m.pub.Publish(ctx, &out); err != nil {
			return fmt.Errorf("op=usecase.MergerService: publish failure event: %w", err)
		}
		return m.meta.UpdateStatus(ctx, msg.ItemID, domain.StatusFailed, "Merging failed", errMsg)
	}
}
