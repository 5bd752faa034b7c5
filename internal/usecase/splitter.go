package usecase

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// SplitterConfig tunes part fan-out.
type SplitterConfig struct {
	// ConcurrentPartProcessing is the part-request batch size; a pause between
	// batches keeps the converter from being slammed by one large document.
	ConcurrentPartProcessing int
	BatchPause               time.Duration
	// MaxRetries bounds the retry chain of the part requests fanned out.
	MaxRetries int
}

// SplitterService decomposes a large PDF into page-range parts, uploads each
// part, and fans out part conversion requests.
type SplitterService struct {
	cfg     SplitterConfig
	meta    domain.MetadataStore
	objects domain.ObjectStore
	pages   domain.PageSplitter
	pub     domain.Publisher
	sleep   func(ctx domain.Context, d time.Duration) error
}

// NewSplitterService constructs a SplitterService.
func NewSplitterService(cfg SplitterConfig, meta domain.MetadataStore, objects domain.ObjectStore, pages domain.PageSplitter, pub domain.Publisher) *SplitterService {
	if cfg.ConcurrentPartProcessing <= 0 {
		cfg.ConcurrentPartProcessing = 4
	}
	if cfg.BatchPause <= 0 {
		cfg.BatchPause = time.Second
	}
	return &SplitterService{cfg: cfg, meta: meta, objects: objects, pages: pages, pub: pub, sleep: ctxSleep}
}

func ctxSleep(ctx domain.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// HandleSplittingRequest splits the PDF and enqueues one conversion request
// per part. The scratch directory is removed on every exit path.
func (s *SplitterService) HandleSplittingRequest(ctx domain.Context, msg domain.SplittingRequest) error {
	if msg.PageCount <= 0 || msg.SplitSize <= 0 {
		err := fmt.Errorf("op=usecase.HandleSplittingRequest: pages=%d splitSize=%d: %w", msg.PageCount, msg.SplitSize, domain.ErrInvalidArgument)
		return retryOrFail(ctx, s.pub, &msg, domain.KindBadInput, err, s.exhausted(&msg, "invalid splitting request"))
	}
	if err := s.meta.UpdateStatus(ctx, msg.ItemID, domain.StatusSplitting, "Splitting PDF", ""); err != nil {
		return retryOrFail(ctx, s.pub, &msg, classify(err), err, s.exhausted(&msg, err.Error()))
	}

	reqs, err := s.splitAndUpload(ctx, &msg)
	if err != nil {
		return retryOrFail(ctx, s.pub, &msg, classify(err), err, s.exhausted(&msg, err.Error()))
	}

	batch := s.cfg.ConcurrentPartProcessing
	for start := 0; start < len(reqs); start += batch {
		end := min(start+batch, len(reqs))
		for i := start; i < end; i++ {
			if err := s.pub.Publish(ctx, &reqs[i]); err != nil {
				return retryOrFail(ctx, s.pub, &msg, domain.KindTransient, err, s.exhausted(&msg, err.Error()))
			}
		}
		if end < len(reqs) {
			if err := s.sleep(ctx, s.cfg.BatchPause); err != nil {
				return fmt.Errorf("op=usecase.HandleSplittingRequest: %w", err)
			}
		}
	}
	return nil
}

// splitAndUpload extracts every page range into the scratch directory and
// uploads the part files. The whole batch either succeeds or is retried from
// scratch; part files in the object store are keyed per attempt, so a retry
// never collides with leftovers.
func (s *SplitterService) splitAndUpload(ctx domain.Context, msg *domain.SplittingRequest) ([]domain.PartConversionRequest, error) {
	src, scratch, err := s.fetchToScratch(ctx, msg.ObjectKey)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(scratch)

	totalParts := (msg.PageCount + msg.SplitSize - 1) / msg.SplitSize
	reqs := make([]domain.PartConversionRequest, 0, totalParts)
	for i := 0; i < totalParts; i++ {
		first := i*msg.SplitSize + 1
		last := min((i+1)*msg.SplitSize, msg.PageCount)
		dst := filepath.Join(scratch, fmt.Sprintf("part-%03d.pdf", i))
		if err := s.pages.ExtractPages(ctx, src, dst, first, last); err != nil {
			return nil, fmt.Errorf("op=usecase.splitAndUpload: part %d: %w", i, err)
		}
		pb, err := os.ReadFile(dst)
		if err != nil {
			return nil, fmt.Errorf("op=usecase.splitAndUpload: part %d: %w", i, err)
		}
		key, _, err := s.objects.UploadPdf(ctx, pb, fmt.Sprintf("%s-part-%d.pdf", msg.ItemID, i))
		if err != nil {
			return nil, fmt.Errorf("op=usecase.splitAndUpload: upload part %d: %w", i, err)
		}
		req := domain.PartConversionRequest{
			Envelope:   domain.NewBoundedEnvelope(domain.EventPdfPartConversionRequest, msg.ItemID, s.cfg.MaxRetries),
			ObjectKey:  key,
			PartIndex:  i,
			TotalParts: totalParts,
			FirstPage:  first,
			LastPage:   last,
		}
		req.Priority = msg.Priority
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (s *SplitterService) fetchToScratch(ctx domain.Context, objectKey string) (srcPath, scratch string, err error) {
	b, err := s.objects.GetPdf(ctx, objectKey)
	if err != nil {
		return "", "", err
	}
	scratch, err = os.MkdirTemp("", "pdfsplit-*")
	if err != nil {
		return "", "", fmt.Errorf("op=usecase.fetchToScratch: %w", err)
	}
	srcPath = filepath.Join(scratch, "source.pdf")
	if err := os.WriteFile(srcPath, b, 0o600); err != nil {
		os.RemoveAll(scratch)
		return "", "", fmt.Errorf("op=usecase.fetchToScratch: %w", err)
	}
	return srcPath, scratch, nil
}

func (s *SplitterService) exhausted(msg *domain.SplittingRequest, errMsg string) func(ctx domain.Context) error {
	return func(ctx domain.Context) error {
		out := domain.ConversionFailed{
			Envelope: domain.NewEnvelope(domain.EventPdfConversionFailed, msg.ItemID),
			Error:    errMsg,
			CanRetry: false,
		}
		out.RetryCount = msg.RetryCount
		out.MaxRetries = msg.MaxRetries
		if err := s.pub.Publish(ctx, &out); err != nil {
			return fmt.Errorf("op=usecase.SplitterService: publish failure event: %w", err)
		}
		return s.meta.UpdateStatus(ctx, msg.ItemID, domain.StatusFailed, "Splitting failed", errMsg)
	}
}
