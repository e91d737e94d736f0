package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/docker/go-units"
)

var (
	ErrInvalidURL = errors.New("file url must be absolute http(s)")
	ErrTooLarge   = errors.New("file exceeds the size limit")
	ErrFetch      = errors.New("fetch file failed")
)

// Fetcher downloads uploaded files for ingestion.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(client *http.Client, maxBytes int64) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, maxBytes: maxBytes}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status=%d", ErrFetch, resp.StatusCode)
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %s > %s", ErrTooLarge,
			units.HumanSize(float64(resp.ContentLength)), units.HumanSize(float64(f.maxBytes)))
	}

	reader := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: limit %s", ErrTooLarge, units.HumanSize(float64(f.maxBytes)))
	}
	return data, nil
}
