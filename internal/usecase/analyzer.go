package usecase

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
	"github.com/fairyhunter13/pdf-ingest/pkg/pdfx"
)

// AnalyzerConfig tunes the splitting decision and the presigned-URL fetch.
type AnalyzerConfig struct {
	// SplitThreshold is the page count above which a PDF is split.
	SplitThreshold int
	// SuggestedSplitSize is the page-range size proposed to the splitter.
	SuggestedSplitSize int
	// FetchTimeout bounds the presigned-URL download.
	FetchTimeout time.Duration
	// MaxRetries bounds the retry chain of messages this worker mints.
	MaxRetries int
}

// Analyzer inspects uploaded PDFs: page count, metadata, and whether the
// document is large enough to split.
type Analyzer struct {
	cfg     AnalyzerConfig
	meta    domain.MetadataStore
	objects domain.ObjectStore
	pub     domain.Publisher
	fetch   func(ctx domain.Context, url string) ([]byte, error)
}

// NewAnalyzer constructs an Analyzer fetching PDFs over HTTP via presigned
// URLs.
func NewAnalyzer(cfg AnalyzerConfig, meta domain.MetadataStore, objects domain.ObjectStore, pub domain.Publisher) *Analyzer {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	client := &http.Client{Timeout: cfg.FetchTimeout}
	return &Analyzer{cfg: cfg, meta: meta, objects: objects, pub: pub, fetch: httpFetch(client)}
}

func httpFetch(client *http.Client) func(ctx domain.Context, url string) ([]byte, error) {
	return func(ctx domain.Context, url string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("op=usecase.httpFetch: request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("op=usecase.httpFetch: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("op=usecase.httpFetch: status %d", resp.StatusCode)
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("op=usecase.httpFetch: read: %w", err)
		}
		return b, nil
	}
}

// HandleAnalysisRequest runs the analysis stage for one item.
func (a *Analyzer) HandleAnalysisRequest(ctx domain.Context, msg domain.AnalysisRequest) error {
	item, err := a.meta.GetItem(ctx, msg.ItemID)
	if err != nil {
		return retryOrFail(ctx, a.pub, &msg, classify(err), err, a.exhausted(&msg, "item lookup: "+err.Error()))
	}
	objectKey := msg.ObjectKey
	if objectKey == "" {
		objectKey = item.ObjectKey
	}
	if objectKey == "" {
		err := fmt.Errorf("op=usecase.HandleAnalysisRequest: item %s has no object key: %w", msg.ItemID, domain.ErrInvalidArgument)
		return retryOrFail(ctx, a.pub, &msg, domain.KindBadInput, err, a.exhausted(&msg, "no object key"))
	}

	if err := a.meta.UpdateStatus(ctx, msg.ItemID, domain.StatusAnalyzing, "Analyzing PDF", ""); err != nil {
		return retryOrFail(ctx, a.pub, &msg, classify(err), err, a.exhausted(&msg, err.Error()))
	}

	url, err := a.objects.GetPdfDownloadURL(ctx, objectKey)
	if err != nil {
		return retryOrFail(ctx, a.pub, &msg, classify(err), err, a.exhausted(&msg, err.Error()))
	}
	b, err := a.fetch(ctx, url)
	if err != nil {
		return retryOrFail(ctx, a.pub, &msg, domain.KindTransient, err, a.exhausted(&msg, err.Error()))
	}

	if !mimetype.Detect(b).Is("application/pdf") {
		err := fmt.Errorf("op=usecase.HandleAnalysisRequest: object %s is not a PDF: %w", objectKey, domain.ErrInvalidArgument)
		return retryOrFail(ctx, a.pub, &msg, domain.KindBadInput, err, a.exhausted(&msg, "not a PDF"))
	}
	info, err := pdfx.Parse(b)
	if err != nil || info.PageCount == 0 {
		if err == nil {
			err = fmt.Errorf("op=usecase.HandleAnalysisRequest: no pages found: %w", domain.ErrInvalidArgument)
		}
		return retryOrFail(ctx, a.pub, &msg, domain.KindBadInput, err, a.exhausted(&msg, "unreadable PDF: no pages found"))
	}

	md := domain.PdfMetadata{
		PageCount:    info.PageCount,
		FileSize:     int64(len(b)),
		Title:        info.Title,
		Author:       info.Author,
		CreationDate: info.CreationDate,
	}
	if err := a.meta.SetPdfMetadata(ctx, msg.ItemID, md); err != nil {
		return retryOrFail(ctx, a.pub, &msg, classify(err), err, a.exhausted(&msg, err.Error()))
	}

	out := domain.AnalysisCompleted{
		Envelope:           domain.NewBoundedEnvelope(domain.EventPdfAnalysisCompleted, msg.ItemID, a.cfg.MaxRetries),
		ObjectKey:          objectKey,
		PageCount:          info.PageCount,
		RequiresSplitting:  info.PageCount > a.cfg.SplitThreshold,
		SuggestedSplitSize: a.cfg.SuggestedSplitSize,
		Metadata:           &md,
	}
	out.Priority = msg.Priority
	if err := a.pub.Publish(ctx, &out); err != nil {
		return retryOrFail(ctx, a.pub, &msg, domain.KindTransient, err, a.exhausted(&msg, err.Error()))
	}
	return nil
}

// exhausted terminates the stage: publish the failure event and mark the item
// Failed.
func (a *Analyzer) exhausted(msg *domain.AnalysisRequest, errMsg string) func(ctx domain.Context) error {
	return func(ctx domain.Context) error {
		out := domain.AnalysisFailed{
			Envelope: domain.NewEnvelope(domain.EventPdfAnalysisFailed, msg.ItemID),
			Error:    errMsg,
			CanRetry: false,
		}
		out.RetryCount = msg.RetryCount
		out.MaxRetries = msg.MaxRetries
		if err := a.pub.Publish(ctx, &out); err != nil {
			return fmt.Errorf("op=usecase.Analyzer: publish failure event: %w", err)
		}
		return a.meta.UpdateStatus(ctx, msg.ItemID, domain.StatusFailed, "Analysis failed", errMsg)
	}
}
