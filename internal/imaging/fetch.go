package imaging

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultFetchTimeout bounds a single reference-image download.
	DefaultFetchTimeout = 30 * time.Second
	// DefaultMaxFetchSize is the maximum accepted download size (10MB).
	DefaultMaxFetchSize = 10 * 1024 * 1024
)

// Fetcher downloads reference images over HTTP with a size cap and
// content-type validation.
type Fetcher struct {
	client  *resty.Client
	maxSize int64
}

// NewFetcher creates a Fetcher with default limits.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client:  resty.New().SetTimeout(DefaultFetchTimeout),
		maxSize: DefaultMaxFetchSize,
	}
}

// WithTimeout sets a custom download timeout.
func (f *Fetcher) WithTimeout(timeout time.Duration) *Fetcher {
	f.client.SetTimeout(timeout)
	return f
}

// WithMaxSize sets a custom maximum download size.
func (f *Fetcher) WithMaxSize(maxSize int64) *Fetcher {
	f.maxSize = maxSize
	return f
}

// Fetch downloads image bytes from a URL. The body is read through a
// limit reader so the cap holds even when Content-Length is missing or
// wrong.
func (f *Fetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode())
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("fetch image: expected image/*, got %s", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("image too large: exceeds limit of %d bytes", f.maxSize)
	}

	return data, nil
}
