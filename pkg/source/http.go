package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBodySize caps a single resource download.
const maxBodySize = 256 << 20

// HTTPFetcher downloads resources relative to a base URL.
type HTTPFetcher struct {
	base    string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPFetcher creates a fetcher for base. Each request is bounded by timeout.
func NewHTTPFetcher(base string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPFetcher{
		base:    strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Fetch issues GET base/name. Any non-2xx status is a transport failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	target := f.base + "/" + escapePath(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, transportErr(name, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, transportErr(name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, transportErr(name, fmt.Errorf("GET %s: %s", target, resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, transportErr(name, fmt.Errorf("read body: %w", err))
	}
	if len(data) > maxBodySize {
		return nil, transportErr(name, fmt.Errorf("body exceeds %d bytes", maxBodySize))
	}
	return data, nil
}

// escapePath escapes each segment of name and keeps the separators.
func escapePath(name string) string {
	segments := strings.Split(strings.TrimLeft(name, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
