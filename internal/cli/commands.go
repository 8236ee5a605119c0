package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eunmann/salesdb/internal/logctx"
	"github.com/eunmann/salesdb/pkg/analysis"
	"github.com/eunmann/salesdb/pkg/ingest"
	"github.com/eunmann/salesdb/pkg/report"
	"github.com/eunmann/salesdb/pkg/salesdb"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the schema and print table counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(db *salesdb.DB) error {
				counts, err := db.Counts(cmd.Context())
				if err != nil {
					return err
				}
				return report.WriteCounts(out(cmd), counts)
			})
		},
	}
}

type importFlags struct {
	stores   string
	products string
	sales    string
	failFast bool
	json     bool
}

func (f *importFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.stores, "stores", "", "stores resource name (default from config)")
	cmd.Flags().StringVar(&f.products, "products", "", "products resource name (default from config)")
	cmd.Flags().StringVar(&f.sales, "sales", "", "sales resource name (default from config)")
	cmd.Flags().BoolVar(&f.failFast, "fail-fast", false, "stop at the first unavailable resource")
}

func (f *importFlags) apply(a *app) {
	if f.stores != "" {
		a.cfg.Resources.Stores = f.stores
	}
	if f.products != "" {
		a.cfg.Resources.Products = f.products
	}
	if f.sales != "" {
		a.cfg.Resources.Sales = f.sales
	}
}

func parseKinds(args []string) ([]ingest.Kind, error) {
	if len(args) == 0 {
		return allKinds, nil
	}
	want := make(map[ingest.Kind]bool, len(args))
	for _, arg := range args {
		k := ingest.Kind(strings.ToLower(arg))
		switch k {
		case ingest.KindStores, ingest.KindProducts, ingest.KindSales:
			want[k] = true
		default:
			return nil, fmt.Errorf("unknown entity kind %q: must be stores, products or sales", arg)
		}
	}
	// Keep dependency order regardless of argument order.
	var kinds []ingest.Kind
	for _, k := range allKinds {
		if want[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

func newImportCmd(a *app) *cobra.Command {
	var f importFlags
	cmd := &cobra.Command{
		Use:   "import [stores|products|sales ...]",
		Short: "Import extracts into the store",
		Long: `Import fetches the configured extracts and loads them in dependency order:
stores, products, then sales. Without arguments all three are imported.

An unavailable resource is reported and the remaining resources are still
imported unless --fail-fast is set; the command then exits non-zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKinds(args)
			if err != nil {
				return err
			}
			f.apply(a)

			return a.withStore(cmd.Context(), func(db *salesdb.DB) error {
				results, transportErr, err := a.importAll(cmd.Context(), db, kinds, f.failFast)
				if err != nil {
					return errors.Join(transportErr, err)
				}
				if err := a.writeImport(cmd, db, results, f.json); err != nil {
					return err
				}
				return transportErr
			})
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&f.json, "json", false, "print results as JSON")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compute revenue aggregates and print the summary report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(db *salesdb.DB) error {
				return a.analyze(cmd, db, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var f importFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Initialise the store, import every extract and print the summary report",
		Long: `Run is the full pipeline: create the schema if needed, import stores,
products and sales, then compute and print the summary report. Unavailable
resources are reported and the analysis still runs on what was loaded, but the
command exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.apply(a)
			return a.withStore(cmd.Context(), func(db *salesdb.DB) error {
				results, transportErr, err := a.importAll(cmd.Context(), db, allKinds, f.failFast)
				if err != nil {
					return errors.Join(transportErr, err)
				}
				if f.failFast && transportErr != nil {
					return transportErr
				}

				if !f.json {
					if err := a.writeImport(cmd, db, results, false); err != nil {
						return err
					}
					return errors.Join(transportErr, a.analyze(cmd, db, false))
				}

				counts, err := db.Counts(cmd.Context())
				if err != nil {
					return err
				}
				summary, err := analysis.NewAnalyzer(db, nil).Summary(cmd.Context())
				if err != nil {
					return errors.Join(transportErr, err)
				}
				if err := report.WriteJSON(out(cmd), runOutput{
					RunID:   logctx.RunID(cmd.Context()),
					Import:  importOutput{Results: results, Counts: counts},
					Summary: summary,
				}); err != nil {
					return err
				}
				return transportErr
			})
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&f.json, "json", false, "print results and summary as JSON")
	return cmd
}

type runOutput struct {
	RunID   string           `json:"run_id"`
	Import  importOutput     `json:"import"`
	Summary analysis.Summary `json:"summary"`
}

func newHistoryCmd(a *app) *cobra.Command {
	var (
		kind   string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored analysis results, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(db *salesdb.DB) error {
				records, err := analysis.NewAnalyzer(db, nil).History(cmd.Context(), analysis.Kind(strings.ToUpper(kind)), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return report.WriteJSON(out(cmd), records)
				}
				return report.WriteHistory(out(cmd), records)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only TOTAL_REVENUE, SALES_BY_PRODUCT or SALES_BY_REGION")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}
