// Package mdserve is the HTTP client for the external PDF→Markdown converter
// service.
package mdserve

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// Client implements domain.Converter against the converter's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client. timeout bounds the whole conversion call; the
// converter streams nothing, so a single deadline is enough.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type convertRequest struct {
	URL string `json:"url"`
}

// ConvertFromURL asks the converter to fetch the PDF from the presigned URL
// and return Markdown. The response's success flag and loose data payload are
// returned as-is; the caller classifies failures.
func (c *Client) ConvertFromURL(ctx domain.Context, presignedURL string) (domain.ConvertResult, error) {
	body, err := json.Marshal(convertRequest{URL: presignedURL})
	if err != nil {
		return domain.ConvertResult{}, fmt.Errorf("op=mdserve.ConvertFromURL: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/convert", bytes.NewReader(body))
	if err != nil {
		return domain.ConvertResult{}, fmt.Errorf("op=mdserve.ConvertFromURL: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ConvertResult{}, fmt.Errorf("op=mdserve.ConvertFromURL: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return domain.ConvertResult{}, fmt.Errorf("op=mdserve.ConvertFromURL: read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.ConvertResult{}, fmt.Errorf("op=mdserve.ConvertFromURL: status %d: %s", resp.StatusCode, truncate(raw, 256))
	}
	var result domain.ConvertResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.ConvertResult{}, fmt.Errorf("op=mdserve.ConvertFromURL: decode: %w", err)
	}
	return result, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
