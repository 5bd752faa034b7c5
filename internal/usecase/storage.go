package usecase

import (
	"fmt"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// StorageService persists converted Markdown and emits the handoff event the
// downstream chunking/embedding stage listens for. Storing a whole (or
// merged) document completes the item.
type StorageService struct {
	meta     domain.MetadataStore
	markdown domain.MarkdownStore
	pub      domain.Publisher
}

// NewStorageService constructs a StorageService.
func NewStorageService(meta domain.MetadataStore, markdown domain.MarkdownStore, pub domain.Publisher) *StorageService {
	return &StorageService{meta: meta, markdown: markdown, pub: pub}
}

// HandleStorageRequest saves the content idempotently on (item, part).
func (s *StorageService) HandleStorageRequest(ctx domain.Context, msg domain.StorageRequest) error {
	if msg.Metadata.IsPart && msg.Metadata.PartIndex == nil {
		return fmt.Errorf("op=usecase.HandleStorageRequest: part storage without part index: %w", domain.ErrPoisonMessage)
	}
	if msg.MarkdownContent == "" {
		return fmt.Errorf("op=usecase.HandleStorageRequest: empty content: %w", domain.ErrPoisonMessage)
	}

	var partIndex *int
	if msg.Metadata.IsPart {
		partIndex = msg.Metadata.PartIndex
	}
	if err := s.markdown.SaveMarkdown(ctx, msg.ItemID, partIndex, msg.MarkdownContent); err != nil {
		return retryOrFail(ctx, s.pub, &msg, classify(err), err, s.exhausted(&msg, err.Error()))
	}

	done := domain.StorageCompleted{
		Envelope:      domain.NewEnvelope(domain.EventMarkdownStorageCompleted, msg.ItemID),
		ContentLength: len(msg.MarkdownContent),
		IsPart:        msg.Metadata.IsPart,
		PartIndex:     partIndex,
	}
	if err := s.pub.Publish(ctx, &done); err != nil {
		return fmt.Errorf("op=usecase.HandleStorageRequest: completed event: %w", err)
	}

	if !msg.Metadata.IsPart {
		if err := s.meta.UpdateStatus(ctx, msg.ItemID, domain.StatusCompleted, "Markdown stored", ""); err != nil {
			return fmt.Errorf("op=usecase.HandleStorageRequest: status: %w", err)
		}
	}
	return nil
}

func (s *StorageService) exhausted(msg *domain.StorageRequest, errMsg string) func(ctx domain.Context) error {
	return func(ctx domain.Context) error {
		out := domain.StorageFailed{
			Envelope: domain.NewEnvelope(domain.EventMarkdownStorageFailed, msg.ItemID),
			Error:    errMsg,
			CanRetry: false,
		}
		out.RetryCount = msg.RetryCount
		out.MaxRetries = msg.MaxRetries
		if err := s.pub.Publish(ctx, &out); err != nil {
			return fmt.Errorf("op=usecase.StorageService: publish failure event: %w", err)
		}
		return s.meta.UpdateStatus(ctx, msg.ItemID, domain.StatusFailed, "Markdown storage failed", errMsg)
	}
}
