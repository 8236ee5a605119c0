// Package source fetches raw resource bytes from a local directory, an HTTP
// server or an S3 prefix.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTransport indicates a resource could not be delivered. Callers must not
// proceed with empty or stale data when they see it.
var ErrTransport = errors.New("transport failure")

// DefaultTimeout bounds a single fetch when the caller does not set one.
const DefaultTimeout = 30 * time.Second

// Fetcher returns the raw bytes of a named resource.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// transportErr wraps err so that errors.Is(err, ErrTransport) holds.
func transportErr(name string, err error) error {
	return fmt.Errorf("%w: fetch %s: %w", ErrTransport, name, err)
}

// New selects a fetcher by the scheme of uri:
//
//	http://host/path, https://host/path   HTTPFetcher
//	s3://bucket/prefix                    S3Fetcher
//	anything else                         DirFetcher rooted at uri
func New(ctx context.Context, uri string, timeout time.Duration) (Fetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return NewHTTPFetcher(uri, timeout), nil
	case strings.HasPrefix(uri, "s3://"):
		bucket, prefix, err := ParseS3URI(uri)
		if err != nil {
			return nil, err
		}
		return NewS3Fetcher(ctx, bucket, prefix, timeout)
	default:
		if uri == "" {
			uri = "."
		}
		return NewDirFetcher(uri), nil
	}
}
