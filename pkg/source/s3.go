package source

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Fetcher downloads resources stored under an S3 prefix.
type S3Fetcher struct {
	bucket     string
	prefix     string
	timeout    time.Duration
	downloader *manager.Downloader
}

// NewS3Fetcher creates a fetcher using the default AWS configuration chain.
func NewS3Fetcher(ctx context.Context, bucket, prefix string, timeout time.Duration) (*S3Fetcher, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewS3FetcherWithClient(s3.NewFromConfig(cfg), bucket, prefix, timeout), nil
}

// NewS3FetcherWithClient creates a fetcher from an existing S3 client.
func NewS3FetcherWithClient(client manager.DownloadAPIClient, bucket, prefix string, timeout time.Duration) *S3Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &S3Fetcher{
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		timeout: timeout,
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.Concurrency = 4
		}),
	}
}

// Key returns the object key for a resource name.
func (f *S3Fetcher) Key(name string) string {
	if f.prefix == "" {
		return name
	}
	return path.Join(f.prefix, name)
}

// Fetch downloads the object into memory.
func (f *S3Fetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	key := f.Key(name)
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := f.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, transportErr(name, fmt.Errorf("download s3://%s/%s: %w", f.bucket, key, err))
	}
	return buf.Bytes(), nil
}

// ParseS3URI parses an S3 URI (s3://bucket/prefix) into bucket and prefix.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", errors.New("invalid S3 URI: must start with s3://")
	}

	rest := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		return "", "", errors.New("invalid S3 URI: missing bucket name")
	}

	bucket = parts[0]
	if len(parts) == 2 {
		prefix = parts[1]
	}
	return bucket, prefix, nil
}
