package source

import (
	"context"
	"os"
	"path/filepath"
)

// DirFetcher reads resources as files under a root directory.
type DirFetcher struct {
	root string
}

// NewDirFetcher creates a fetcher rooted at dir.
func NewDirFetcher(dir string) *DirFetcher {
	return &DirFetcher{root: dir}
}

// Fetch reads root/name. Absolute names are read as-is.
func (f *DirFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportErr(name, err)
	}

	path := name
	if !filepath.IsAbs(name) {
		path = filepath.Join(f.root, name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, transportErr(name, err)
	}
	return data, nil
}
