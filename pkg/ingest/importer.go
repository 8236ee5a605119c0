// Package ingest loads store, product and sale extracts into the sales store.
//
// Every Ingest call owns exactly one transaction: either all of its rows are
// applied or none are. Stores and products are insert-or-overwrite keyed by
// their identifier. Sales are insert-if-absent keyed by the four-tuple
// (date, product reference, quantity, store id), so re-importing an extract
// never creates duplicate sales.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/eunmann/salesdb/internal/logctx"
	"github.com/eunmann/salesdb/pkg/extract"
	"github.com/eunmann/salesdb/pkg/region"
	"github.com/eunmann/salesdb/pkg/salesdb"
	"github.com/eunmann/salesdb/pkg/source"
)

// Kind names an entity kind.
type Kind string

// Entity kinds, in the order they should be ingested.
const (
	KindStores   Kind = "stores"
	KindProducts Kind = "products"
	KindSales    Kind = "sales"
)

// Options controls decoding and reference checking.
type Options struct {
	// SkipHeader drops the first row of delimited resources.
	SkipHeader bool
	// Comma is the CSV delimiter. Zero means ','.
	Comma rune
	// Lenient accepts sales whose store or product is unknown. An unknown
	// product is priced at 0. The store must not enforce foreign keys for such
	// rows to be written.
	Lenient bool
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{SkipHeader: true}
}

// Result describes one ingestion call.
type Result struct {
	Kind     Kind          `json:"kind"`
	Resource string        `json:"resource,omitempty"`
	Rows     int           `json:"rows"`
	Written  int           `json:"written"`
	Existing int           `json:"existing"`
	Duration time.Duration `json:"duration_ns"`
}

// Importer ingests extracts into a store. The store handle is owned by the
// caller.
type Importer struct {
	db       *salesdb.DB
	fetcher  source.Fetcher
	resolver *region.Resolver
	opts     Options
}

// NewImporter creates an importer. A nil resolver uses the built-in region
// table. The fetcher may be nil when only the Ingest* operations are used.
func NewImporter(db *salesdb.DB, fetcher source.Fetcher, resolver *region.Resolver, opts Options) *Importer {
	if resolver == nil {
		resolver = region.Default()
	}
	return &Importer{db: db, fetcher: fetcher, resolver: resolver, opts: opts}
}

// ImportStores fetches and ingests a stores resource.
func (im *Importer) ImportStores(ctx context.Context, resource string) (Result, error) {
	return im.importResource(ctx, KindStores, resource, im.IngestStores)
}

// ImportProducts fetches and ingests a products resource.
func (im *Importer) ImportProducts(ctx context.Context, resource string) (Result, error) {
	return im.importResource(ctx, KindProducts, resource, im.IngestProducts)
}

// ImportSales fetches and ingests a sales resource.
func (im *Importer) ImportSales(ctx context.Context, resource string) (Result, error) {
	return im.importResource(ctx, KindSales, resource, im.IngestSales)
}

// Import dispatches on kind.
func (im *Importer) Import(ctx context.Context, kind Kind, resource string) (Result, error) {
	switch kind {
	case KindStores:
		return im.ImportStores(ctx, resource)
	case KindProducts:
		return im.ImportProducts(ctx, resource)
	case KindSales:
		return im.ImportSales(ctx, resource)
	default:
		return Result{}, fmt.Errorf("unknown entity kind %q", kind)
	}
}

type ingestFunc func(ctx context.Context, rows [][]string) (Result, error)

// importResource fetches before any transaction is opened, so a transport
// failure leaves the store untouched.
func (im *Importer) importResource(ctx context.Context, kind Kind, resource string, ingest ingestFunc) (Result, error) {
	ctx = logctx.WithResource(ctx, resource)
	log := logctx.FromContext(ctx)

	if im.fetcher == nil {
		return Result{Kind: kind, Resource: resource}, fmt.Errorf("import %s: %w: no fetcher configured", kind, source.ErrTransport)
	}

	log.Debug().Str("kind", string(kind)).Msg("fetching resource")
	data, err := im.fetcher.Fetch(ctx, resource)
	if err != nil {
		return Result{Kind: kind, Resource: resource}, fmt.Errorf("import %s: %w", kind, err)
	}

	rows, err := extract.ReadAll(resource, data, extract.Options{
		SkipHeader: im.opts.SkipHeader,
		Comma:      im.opts.Comma,
	})
	if err != nil {
		return Result{Kind: kind, Resource: resource}, fmt.Errorf("import %s: %w", kind, salesdb.Validationf("decode %s: %v", resource, err))
	}

	res, err := ingest(ctx, rows)
	res.Resource = resource
	if err != nil {
		return res, fmt.Errorf("import %s from %s: %w", kind, resource, err)
	}
	return res, nil
}

// Counts returns the row count of every relation.
func (im *Importer) Counts(ctx context.Context) (salesdb.TableCounts, error) {
	return im.db.Counts(ctx)
}
