// Package analysis computes revenue aggregates over the sales store and
// records every computed result in analysis_result.
package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eunmann/salesdb/internal/logctx"
	"github.com/eunmann/salesdb/pkg/humanfmt"
	"github.com/eunmann/salesdb/pkg/logging"
	"github.com/eunmann/salesdb/pkg/salesdb"
	"github.com/shopspring/decimal"
)

// ErrEmptyDataset indicates a top entry was requested from an empty breakdown.
var ErrEmptyDataset = errors.New("empty dataset")

// Kind tags a stored analysis result.
type Kind string

// Analysis kinds.
const (
	KindTotalRevenue   Kind = "TOTAL_REVENUE"
	KindSalesByProduct Kind = "SALES_BY_PRODUCT"
	KindSalesByRegion  Kind = "SALES_BY_REGION"
)

// Kinds lists every analysis kind in the order Summary runs them.
var Kinds = []Kind{KindTotalRevenue, KindSalesByProduct, KindSalesByRegion}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// TimeFormat is the layout of every generated_at timestamp.
const TimeFormat = "2006-01-02 15:04:05"

// revenuePlaces is the rounding applied to reported revenue.
const revenuePlaces = 2

// Analyzer runs aggregates against a store it does not own.
type Analyzer struct {
	db  *salesdb.DB
	now func() time.Time
}

// NewAnalyzer creates an analyzer. A nil clock uses time.Now.
func NewAnalyzer(db *salesdb.DB, clock func() time.Time) *Analyzer {
	if clock == nil {
		clock = time.Now
	}
	return &Analyzer{db: db, now: clock}
}

func (a *Analyzer) timestamp() string {
	return a.now().Format(TimeFormat)
}

// RevenueTotal is the store-wide revenue aggregate.
type RevenueTotal struct {
	Kind        Kind            `json:"kind"`
	GeneratedAt string          `json:"generated_at"`
	Revenue     decimal.Decimal `json:"total_revenue"`
	SaleCount   int64           `json:"sale_count"`
	PeriodStart *string         `json:"period_start"`
	PeriodEnd   *string         `json:"period_end"`
}

const totalRevenueQuery = `SELECT COALESCE(SUM(total_amount), 0), COUNT(*), MIN(sale_date), MAX(sale_date)
FROM sale`

// TotalRevenue sums every sale. With no sales the revenue is 0 and the period
// bounds are nil. The result is stored with its revenue as headline value.
func (a *Analyzer) TotalRevenue(ctx context.Context) (RevenueTotal, error) {
	start := time.Now()
	res := RevenueTotal{Kind: KindTotalRevenue, GeneratedAt: a.timestamp()}

	err := a.db.WithTx(ctx, func(tx *salesdb.Tx) error {
		var first, last sql.NullString
		if err := tx.QueryRow(ctx, totalRevenueQuery).Scan(&res.Revenue, &res.SaleCount, &first, &last); err != nil {
			return fmt.Errorf("query total revenue: %w", err)
		}
		res.Revenue = res.Revenue.Round(revenuePlaces)
		if first.Valid {
			res.PeriodStart = &first.String
		}
		if last.Valid {
			res.PeriodEnd = &last.String
		}
		return store(ctx, tx, res.Kind, res.GeneratedAt, res, decimal.NewNullDecimal(res.Revenue))
	})
	if err != nil {
		return RevenueTotal{}, fmt.Errorf("total revenue: %w", err)
	}

	logging.PhaseComplete(logctx.FromContext(ctx), "analysis_total", time.Since(start)).
		Money("total_revenue", humanfmt.Money(res.Revenue)).
		Count("sales", res.SaleCount).
		Log("computed total revenue")
	return res, nil
}

// ProductSales is one product's rollup.
type ProductSales struct {
	Reference string          `json:"reference"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"total_quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
	SaleCount int64           `json:"sale_count"`
}

// ProductBreakdown is the per-product aggregate.
type ProductBreakdown struct {
	Kind         Kind           `json:"kind"`
	GeneratedAt  string         `json:"generated_at"`
	Products     []ProductSales `json:"products"`
	ProductCount int            `json:"product_count"`
}

const productQuery = `SELECT p.reference, p.name, p.price,
	COALESCE(SUM(s.quantity), 0),
	COALESCE(SUM(s.total_amount), 0),
	COUNT(s.sale_id)
FROM product p
LEFT JOIN sale s ON p.reference = s.product_ref
GROUP BY p.reference, p.name, p.price
ORDER BY 5 DESC, p.reference`

// RevenueByProduct rolls sales up per product. Products without sales are
// included with zero totals. Rows are ordered by revenue descending, then by
// reference.
func (a *Analyzer) RevenueByProduct(ctx context.Context) (ProductBreakdown, error) {
	start := time.Now()
	res := ProductBreakdown{Kind: KindSalesByProduct, GeneratedAt: a.timestamp(), Products: []ProductSales{}}

	err := a.db.WithTx(ctx, func(tx *salesdb.Tx) error {
		rows, err := tx.Query(ctx, productQuery)
		if err != nil {
			return fmt.Errorf("query product sales: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var p ProductSales
			if err := rows.Scan(&p.Reference, &p.Name, &p.UnitPrice, &p.Quantity, &p.Revenue, &p.SaleCount); err != nil {
				return fmt.Errorf("scan product sales: %w", err)
			}
			p.Revenue = p.Revenue.Round(revenuePlaces)
			res.Products = append(res.Products, p)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("read product sales: %w", err)
		}
		rows.Close()

		res.ProductCount = len(res.Products)
		return store(ctx, tx, res.Kind, res.GeneratedAt, res, decimal.NullDecimal{})
	})
	if err != nil {
		return ProductBreakdown{}, fmt.Errorf("revenue by product: %w", err)
	}

	logging.PhaseComplete(logctx.FromContext(ctx), "analysis_products", time.Since(start)).
		Int("products", res.ProductCount).
		Log("computed revenue by product")
	return res, nil
}

// RegionSales is one region's rollup.
type RegionSales struct {
	Region     string          `json:"region"`
	StoreCount int64           `json:"store_count"`
	Revenue    decimal.Decimal `json:"revenue"`
	SaleCount  int64           `json:"sale_count"`
	Quantity   int64           `json:"total_quantity"`
}

// RegionBreakdown is the per-region aggregate.
type RegionBreakdown struct {
	Kind        Kind          `json:"kind"`
	GeneratedAt string        `json:"generated_at"`
	Regions     []RegionSales `json:"regions"`
	RegionCount int           `json:"region_count"`
}

const regionQuery = `SELECT st.region,
	COUNT(DISTINCT st.store_id),
	COALESCE(SUM(s.total_amount), 0),
	COUNT(s.sale_id),
	COALESCE(SUM(s.quantity), 0)
FROM store st
LEFT JOIN sale s ON st.store_id = s.store_id
GROUP BY st.region
ORDER BY 3 DESC, st.region`

// RevenueByRegion rolls sales up per store region. Regions whose stores have
// no sales are included with zero totals.
func (a *Analyzer) RevenueByRegion(ctx context.Context) (RegionBreakdown, error) {
	start := time.Now()
	res := RegionBreakdown{Kind: KindSalesByRegion, GeneratedAt: a.timestamp(), Regions: []RegionSales{}}

	err := a.db.WithTx(ctx, func(tx *salesdb.Tx) error {
		rows, err := tx.Query(ctx, regionQuery)
		if err != nil {
			return fmt.Errorf("query region sales: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r RegionSales
			if err := rows.Scan(&r.Region, &r.StoreCount, &r.Revenue, &r.SaleCount, &r.Quantity); err != nil {
				return fmt.Errorf("scan region sales: %w", err)
			}
			r.Revenue = r.Revenue.Round(revenuePlaces)
			res.Regions = append(res.Regions, r)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("read region sales: %w", err)
		}
		rows.Close()

		res.RegionCount = len(res.Regions)
		return store(ctx, tx, res.Kind, res.GeneratedAt, res, decimal.NullDecimal{})
	})
	if err != nil {
		return RegionBreakdown{}, fmt.Errorf("revenue by region: %w", err)
	}

	logging.PhaseComplete(logctx.FromContext(ctx), "analysis_regions", time.Since(start)).
		Int("regions", res.RegionCount).
		Log("computed revenue by region")
	return res, nil
}

const insertResult = `INSERT INTO analysis_result (kind, generated_at, payload, headline_value)
VALUES (?, ?, ?, ?)`

// store appends one analysis_result row inside the aggregate's transaction.
func store(ctx context.Context, tx *salesdb.Tx, kind Kind, generatedAt string, result any, headline decimal.NullDecimal) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode %s result: %w", kind, err)
	}
	if _, err := tx.Exec(ctx, insertResult, string(kind), generatedAt, string(payload), headline); err != nil {
		return fmt.Errorf("store %s result: %w", kind, err)
	}
	return nil
}
