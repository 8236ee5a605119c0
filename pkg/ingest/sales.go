package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/eunmann/salesdb/internal/logctx"
	"github.com/eunmann/salesdb/pkg/logging"
	"github.com/eunmann/salesdb/pkg/salesdb"
	"github.com/shopspring/decimal"
)

const countSale = `SELECT COUNT(*) FROM sale
WHERE sale_date = ? AND product_ref = ? AND quantity = ? AND store_id = ?`

// insertSaleIfAbsent is a single conditional statement, so the uniqueness
// check and the insert cannot interleave with another writer.
const insertSaleIfAbsent = `INSERT INTO sale (sale_date, product_ref, quantity, store_id, total_amount)
SELECT CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS INTEGER), CAST(? AS INTEGER), CAST(? AS NUMERIC)
WHERE NOT EXISTS (
	SELECT 1 FROM sale
	WHERE sale_date = ? AND product_ref = ? AND quantity = ? AND store_id = ?
)`

// Sale is a normalized sale record.
type Sale struct {
	Date       string
	ProductRef string
	Quantity   int64
	StoreID    int64
	Total      decimal.Decimal
}

// saleKey is the identity of a sale.
type saleKey struct {
	date     string
	product  string
	quantity int64
	store    int64
}

func (s Sale) key() saleKey {
	return saleKey{date: s.Date, product: s.ProductRef, quantity: s.Quantity, store: s.StoreID}
}

// parseSale maps a positional (date, product reference, quantity, store id) row.
// Total is filled in later from the price table.
func parseSale(r row) (Sale, error) {
	if err := r.width(4); err != nil {
		return Sale{}, err
	}
	date, err := r.text(0, "date")
	if err != nil {
		return Sale{}, err
	}
	ref, err := r.text(1, "product reference")
	if err != nil {
		return Sale{}, err
	}
	qty, err := r.int(2, "quantity")
	if err != nil {
		return Sale{}, err
	}
	if qty <= 0 {
		return Sale{}, salesdb.Validationf("row %d: quantity %d must be positive", r.n, qty)
	}
	store, err := r.int(3, "store id")
	if err != nil {
		return Sale{}, err
	}
	return Sale{Date: date, ProductRef: ref, Quantity: qty, StoreID: store}, nil
}

// IngestSales writes sale rows with insert-if-absent semantics. A row whose
// four-tuple already exists, in the store or earlier in the same call, is
// skipped and counted in Result.Existing. Each new sale is priced at the
// product's current unit price.
func (im *Importer) IngestSales(ctx context.Context, rows [][]string) (Result, error) {
	start := time.Now()
	res := Result{Kind: KindSales, Rows: len(rows)}
	log := logctx.FromContext(ctx)

	sales := make([]Sale, 0, len(rows))
	for _, r := range numbered(rows) {
		s, err := parseSale(r)
		if err != nil {
			return res, err
		}
		sales = append(sales, s)
	}

	err := im.db.WithTx(ctx, func(tx *salesdb.Tx) error {
		prices, err := loadPrices(ctx, tx)
		if err != nil {
			return err
		}
		stores, err := existingKeys(ctx, tx, "SELECT store_id FROM store")
		if err != nil {
			return err
		}

		staged := make([]Sale, 0, len(sales))
		seen := make(map[saleKey]bool, len(sales))
		for i, s := range sales {
			price, known := prices[s.ProductRef]
			_, storeKnown := stores[fmt.Sprint(s.StoreID)]
			if !im.opts.Lenient {
				if !known {
					return salesdb.Validationf("row %d: unknown product %q", i+1, s.ProductRef)
				}
				if !storeKnown {
					return salesdb.Validationf("row %d: unknown store %d", i+1, s.StoreID)
				}
			} else if !known || !storeKnown {
				log.Warn().
					Int("row", i+1).
					Str("product_ref", s.ProductRef).
					Int64("store_id", s.StoreID).
					Msg("sale references unknown store or product")
			}
			s.Total = price.Mul(decimal.NewFromInt(s.Quantity))

			k := s.key()
			if seen[k] {
				res.Existing++
				continue
			}
			seen[k] = true

			var n int64
			if err := tx.QueryRow(ctx, countSale, s.Date, s.ProductRef, s.Quantity, s.StoreID).Scan(&n); err != nil {
				return fmt.Errorf("check sale row %d: %w", i+1, err)
			}
			if n > 0 {
				res.Existing++
				continue
			}
			staged = append(staged, s)
		}

		if len(staged) == 0 {
			return nil
		}

		stmt, err := tx.Prepare(ctx, insertSaleIfAbsent)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range staged {
			r, err := stmt.Exec(ctx,
				s.Date, s.ProductRef, s.Quantity, s.StoreID, s.Total,
				s.Date, s.ProductRef, s.Quantity, s.StoreID)
			if err != nil {
				return fmt.Errorf("insert sale %s/%s/%d/%d: %w", s.Date, s.ProductRef, s.Quantity, s.StoreID, err)
			}
			affected, err := r.RowsAffected()
			if err != nil {
				return fmt.Errorf("insert sale: %w", err)
			}
			if affected == 0 {
				res.Existing++
				continue
			}
			res.Written++
		}
		return nil
	})
	res.Duration = time.Since(start)
	if err != nil {
		return Result{Kind: KindSales, Rows: len(rows), Duration: res.Duration}, err
	}

	ev := logging.BatchComplete(log, "ingest_sales", res.Duration).
		Count("rows", int64(res.Rows)).
		Count("written", int64(res.Written)).
		Count("existing", int64(res.Existing))
	if res.Written == 0 {
		ev.Log("no new sales to import")
	} else {
		ev.Log("imported sales")
	}
	return res, nil
}

// loadPrices reads the unit price of every product inside tx.
func loadPrices(ctx context.Context, tx *salesdb.Tx) (map[string]decimal.Decimal, error) {
	rows, err := tx.Query(ctx, "SELECT reference, price FROM product")
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	defer rows.Close()

	prices := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			ref   string
			price decimal.Decimal
		)
		if err := rows.Scan(&ref, &price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		prices[ref] = price
	}
	return prices, rows.Err()
}
