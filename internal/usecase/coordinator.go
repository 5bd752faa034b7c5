package usecase

import (
	"fmt"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// Coordinator routes completed analyses: large PDFs go to the splitter,
// everything else straight to conversion. It is the sole writer of the
// Processing item status.
type Coordinator struct {
	defaultSplitSize int
	maxRetries       int
	meta             domain.MetadataStore
	pub              domain.Publisher
}

// NewCoordinator constructs a Coordinator. defaultSplitSize backstops
// analyses that carry no suggested size; maxRetries bounds the retry chain of
// the requests it dispatches.
func NewCoordinator(defaultSplitSize, maxRetries int, meta domain.MetadataStore, pub domain.Publisher) *Coordinator {
	return &Coordinator{defaultSplitSize: defaultSplitSize, maxRetries: maxRetries, meta: meta, pub: pub}
}

// HandleAnalysisCompleted dispatches the item to its next stage.
func (c *Coordinator) HandleAnalysisCompleted(ctx domain.Context, msg domain.AnalysisCompleted) error {
	var out domain.Message
	var note string
	if msg.RequiresSplitting {
		size := msg.SuggestedSplitSize
		if size <= 0 {
			size = c.defaultSplitSize
		}
		out = &domain.SplittingRequest{
			Envelope:  domain.NewBoundedEnvelope(domain.EventPdfSplittingRequest, msg.ItemID, c.maxRetries),
			ObjectKey: msg.ObjectKey,
			PageCount: msg.PageCount,
			SplitSize: size,
		}
		note = fmt.Sprintf("Queued splitting of %d pages into parts of %d", msg.PageCount, size)
	} else {
		out = &domain.ConversionRequest{
			Envelope:  domain.NewBoundedEnvelope(domain.EventPdfConversionRequest, msg.ItemID, c.maxRetries),
			ObjectKey: msg.ObjectKey,
			Metadata:  msg.Metadata,
		}
		note = "Queued conversion"
	}
	out.Env().Priority = msg.Priority

	if err := c.pub.Publish(ctx, out); err != nil {
		return retryOrFail(ctx, c.pub, &msg, domain.KindTransient, err, c.exhausted(&msg, err.Error()))
	}
	if err := c.meta.UpdateStatus(ctx, msg.ItemID, domain.StatusProcessing, note, ""); err != nil {
		// The next stage is already queued; a failed status write must not
		// re-dispatch the item.
		return fmt.Errorf("op=usecase.HandleAnalysisCompleted: status: %w", err)
	}
	return nil
}

func (c *Coordinator) exhausted(msg *domain.AnalysisCompleted, errMsg string) func(ctx domain.Context) error {
	return func(ctx domain.Context) error {
		out := domain.ConversionFailed{
			Envelope: domain.NewEnvelope(domain.EventPdfConversionFailed, msg.ItemID),
			Error:    errMsg,
			CanRetry: false,
		}
		out.RetryCount = msg.RetryCount
		out.MaxRetries = msg.MaxRetries
		if err := c.pub.Publish(ctx, &out); err != nil {
			return fmt.Errorf("op=usecase.Coordinator: publish failure event: %w", err)
		}
		return c.meta.UpdateStatus(ctx, msg.ItemID, domain.StatusFailed, "Dispatch failed", errMsg)
	}
}
