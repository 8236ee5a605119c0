// Package report renders summaries, import results and table counts for
// people (text) and for tools (JSON).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/eunmann/salesdb/pkg/analysis"
	"github.com/eunmann/salesdb/pkg/humanfmt"
	"github.com/eunmann/salesdb/pkg/ingest"
	"github.com/eunmann/salesdb/pkg/salesdb"
)

const rule = "============================================================"

// WriteSummary writes the summary report as text.
func WriteSummary(w io.Writer, s analysis.Summary) error {
	var b strings.Builder

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "SALES ANALYSIS REPORT")
	fmt.Fprintf(&b, "Generated: %s\n", s.GeneratedAt)
	fmt.Fprintln(&b, rule)

	fmt.Fprintln(&b, "\nTOTAL REVENUE")
	fmt.Fprintf(&b, "   Amount:      %s €\n", humanfmt.Money(s.TotalRevenue))
	fmt.Fprintf(&b, "   Sales:       %s\n", humanfmt.Count(s.SaleCount))

	fmt.Fprintln(&b, "\nTOP PRODUCT")
	fmt.Fprintf(&b, "   Name:        %s\n", s.TopProduct.Name)
	fmt.Fprintf(&b, "   Reference:   %s\n", s.TopProduct.Reference)
	fmt.Fprintf(&b, "   Revenue:     %s €\n", humanfmt.Money(s.TopProduct.Revenue))

	fmt.Fprintln(&b, "\nTOP REGION")
	fmt.Fprintf(&b, "   Region:      %s\n", s.TopRegion.Name)
	fmt.Fprintf(&b, "   Revenue:     %s €\n", humanfmt.Money(s.TopRegion.Revenue))
	fmt.Fprintf(&b, "   Stores:      %d\n", s.TopRegion.StoreCount)

	fmt.Fprintln(&b, "\nPERIOD")
	fmt.Fprintf(&b, "   From:        %s\n", orNone(s.Period.Start))
	fmt.Fprintf(&b, "   To:          %s\n", orNone(s.Period.End))
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteCounts writes the row count of every relation.
func WriteCounts(w io.Writer, c salesdb.TableCounts) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS")
	fmt.Fprintf(tw, "%s\t%s\n", salesdb.TableStore, humanfmt.Count(c.Stores))
	fmt.Fprintf(tw, "%s\t%s\n", salesdb.TableProduct, humanfmt.Count(c.Products))
	fmt.Fprintf(tw, "%s\t%s\n", salesdb.TableSale, humanfmt.Count(c.Sales))
	fmt.Fprintf(tw, "%s\t%s\n", salesdb.TableAnalysisResult, humanfmt.Count(c.Analyses))
	return tw.Flush()
}

// WriteImports writes one line per ingestion call.
func WriteImports(w io.Writer, results []ingest.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tRESOURCE\tROWS\tWRITTEN\tEXISTING\tTIME")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.Kind, r.Resource, r.Rows, r.Written, r.Existing, humanfmt.Duration(r.Duration))
	}
	return tw.Flush()
}

// WriteHistory writes stored analysis results, one per line.
func WriteHistory(w io.Writer, records []analysis.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tGENERATED\tHEADLINE")
	for _, r := range records {
		headline := "-"
		if r.Headline.Valid {
			headline = humanfmt.Money(r.Headline.Decimal)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.Kind, r.GeneratedAt, headline)
	}
	return tw.Flush()
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func orNone(s *string) string {
	if s == nil {
		return "n/a"
	}
	return *s
}
