package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/eunmann/salesdb/internal/logctx"
	"github.com/eunmann/salesdb/pkg/analysis"
	"github.com/eunmann/salesdb/pkg/ingest"
	"github.com/eunmann/salesdb/pkg/logging"
	"github.com/eunmann/salesdb/pkg/report"
	"github.com/eunmann/salesdb/pkg/salesdb"
	"github.com/eunmann/salesdb/pkg/source"
)

var allKinds = []ingest.Kind{ingest.KindStores, ingest.KindProducts, ingest.KindSales}

func (a *app) resource(kind ingest.Kind) string {
	switch kind {
	case ingest.KindStores:
		return a.cfg.Resources.Stores
	case ingest.KindProducts:
		return a.cfg.Resources.Products
	default:
		return a.cfg.Resources.Sales
	}
}

// importAll prefetches the resources of kinds concurrently, then ingests them
// one at a time in order. Transport failures are collected in transportErr and
// the next resource is still imported unless failFast is set. Any other
// failure stops the import and is returned as err.
func (a *app) importAll(ctx context.Context, db *salesdb.DB, kinds []ingest.Kind, failFast bool) (results []ingest.Result, transportErr, err error) {
	start := time.Now()
	log := logctx.FromContext(ctx)

	fetcher, err := source.New(ctx, a.cfg.Source, a.cfg.FetchTimeout)
	if err != nil {
		return nil, nil, err
	}
	resolver, err := a.cfg.Resolver()
	if err != nil {
		return nil, nil, err
	}

	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = a.resource(k)
	}
	cache := source.Prefetch(ctx, fetcher, names, a.cfg.PrefetchConcurrency)
	if failed := cache.Failed(); len(failed) > 0 {
		log.Warn().Int("unavailable", len(failed)).Int("requested", len(names)).Msg("prefetch incomplete")
	}
	log.Debug().Int("regions", resolver.Len()).Str("source", a.cfg.Source).Msg("importing resources")

	importer := ingest.NewImporter(db, cache, resolver, a.cfg.ImportOptions())

	var transport []error
	for _, kind := range kinds {
		res, err := importer.Import(ctx, kind, a.resource(kind))
		if err != nil {
			if errors.Is(err, source.ErrTransport) {
				log.Error().Err(err).Str("kind", string(kind)).Msg("resource unavailable")
				transport = append(transport, err)
				if failFast {
					return results, errors.Join(transport...), nil
				}
				continue
			}
			log.Error().Err(err).Str("kind", string(kind)).Msg("import failed")
			return results, errors.Join(transport...), err
		}
		results = append(results, res)
	}

	logging.PhaseComplete(log, "import", time.Since(start)).
		Int("imported", len(results)).
		Int("unavailable", len(transport)).
		Log("import finished")
	return results, errors.Join(transport...), nil
}

type importOutput struct {
	Results []ingest.Result     `json:"results"`
	Counts  salesdb.TableCounts `json:"counts"`
}

func (a *app) writeImport(cmd *cobra.Command, db *salesdb.DB, results []ingest.Result, asJSON bool) error {
	counts, err := db.Counts(cmd.Context())
	if err != nil {
		return err
	}
	if asJSON {
		return report.WriteJSON(out(cmd), importOutput{Results: results, Counts: counts})
	}
	if err := report.WriteImports(out(cmd), results); err != nil {
		return err
	}
	return report.WriteCounts(out(cmd), counts)
}

func (a *app) analyze(cmd *cobra.Command, db *salesdb.DB, asJSON bool) error {
	summary, err := analysis.NewAnalyzer(db, nil).Summary(cmd.Context())
	if err != nil {
		return err
	}
	if asJSON {
		return report.WriteJSON(out(cmd), summary)
	}
	return report.WriteSummary(out(cmd), summary)
}
