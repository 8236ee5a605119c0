package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/eunmann/salesdb/internal/logctx"
	"github.com/eunmann/salesdb/pkg/humanfmt"
	"github.com/eunmann/salesdb/pkg/logging"
	"github.com/shopspring/decimal"
)

// TopProduct is the best-selling product of a summary.
type TopProduct struct {
	Name      string          `json:"name"`
	Reference string          `json:"reference"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// TopRegion is the best-performing region of a summary.
type TopRegion struct {
	Name       string          `json:"name"`
	Revenue    decimal.Decimal `json:"revenue"`
	StoreCount int64           `json:"store_count"`
}

// Period is the date range covered by the sales. Both bounds are nil when
// there are no sales.
type Period struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

// Summary is the top-level report.
type Summary struct {
	GeneratedAt  string          `json:"generated_at"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	SaleCount    int64           `json:"sale_count"`
	TopProduct   TopProduct      `json:"top_product"`
	TopRegion    TopRegion       `json:"top_region"`
	Period       Period          `json:"period"`
}

// Summary runs the total, per-product and per-region aggregates in that order
// and picks the top product and region by revenue. On a tie the first entry
// in breakdown order wins. Returns ErrEmptyDataset when there are no
// products or no regions; the three aggregates are stored regardless.
func (a *Analyzer) Summary(ctx context.Context) (Summary, error) {
	start := time.Now()

	total, err := a.TotalRevenue(ctx)
	if err != nil {
		return Summary{}, err
	}
	products, err := a.RevenueByProduct(ctx)
	if err != nil {
		return Summary{}, err
	}
	regions, err := a.RevenueByRegion(ctx)
	if err != nil {
		return Summary{}, err
	}

	topProduct, ok := maxBy(products.Products, func(p ProductSales) decimal.Decimal { return p.Revenue })
	if !ok {
		return Summary{}, fmt.Errorf("top product: %w: no products", ErrEmptyDataset)
	}
	topRegion, ok := maxBy(regions.Regions, func(r RegionSales) decimal.Decimal { return r.Revenue })
	if !ok {
		return Summary{}, fmt.Errorf("top region: %w: no regions", ErrEmptyDataset)
	}

	s := Summary{
		GeneratedAt:  a.timestamp(),
		TotalRevenue: total.Revenue,
		SaleCount:    total.SaleCount,
		TopProduct: TopProduct{
			Name:      topProduct.Name,
			Reference: topProduct.Reference,
			Revenue:   topProduct.Revenue,
		},
		TopRegion: TopRegion{
			Name:       topRegion.Region,
			Revenue:    topRegion.Revenue,
			StoreCount: topRegion.StoreCount,
		},
		Period: Period{Start: total.PeriodStart, End: total.PeriodEnd},
	}

	logging.PhaseComplete(logctx.FromContext(ctx), "summary", time.Since(start)).
		Money("total_revenue", humanfmt.Money(s.TotalRevenue)).
		Str("top_product", s.TopProduct.Reference).
		Str("top_region", s.TopRegion.Name).
		Log("summary report generated")
	return s, nil
}

// maxBy returns the first element with the greatest key.
func maxBy[T any](items []T, key func(T) decimal.Decimal) (T, bool) {
	var best T
	if len(items) == 0 {
		return best, false
	}
	best = items[0]
	bestKey := key(best)
	for _, item := range items[1:] {
		if k := key(item); k.GreaterThan(bestKey) {
			best, bestKey = item, k
		}
	}
	return best, true
}
