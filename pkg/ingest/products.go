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

const upsertProduct = `INSERT INTO product (reference, name, price, stock)
VALUES (?, ?, ?, ?)
ON CONFLICT (reference) DO UPDATE SET
	name = excluded.name,
	price = excluded.price,
	stock = excluded.stock`

// Product is a normalized product record.
type Product struct {
	Reference string
	Name      string
	Price     decimal.Decimal
	Stock     int64
}

// parseProduct maps a positional (name, reference, price, stock) row.
func parseProduct(r row) (Product, error) {
	if err := r.width(4); err != nil {
		return Product{}, err
	}
	name, err := r.text(0, "name")
	if err != nil {
		return Product{}, err
	}
	ref, err := r.text(1, "reference")
	if err != nil {
		return Product{}, err
	}
	price, err := r.money(2, "price")
	if err != nil {
		return Product{}, err
	}
	if !price.IsPositive() {
		return Product{}, salesdb.Validationf("row %d: price %s of %s must be positive", r.n, price, ref)
	}
	stock, err := r.int(3, "stock")
	if err != nil {
		return Product{}, err
	}
	if stock < 0 {
		return Product{}, salesdb.Validationf("row %d: stock %d of %s is negative", r.n, stock, ref)
	}
	return Product{Reference: ref, Name: name, Price: price, Stock: stock}, nil
}

// IngestProducts writes product rows with insert-or-overwrite semantics keyed
// by reference. A row that breaks the price or stock constraint rejects the
// whole call.
func (im *Importer) IngestProducts(ctx context.Context, rows [][]string) (Result, error) {
	start := time.Now()
	res := Result{Kind: KindProducts, Rows: len(rows)}

	products := make([]Product, 0, len(rows))
	for _, r := range numbered(rows) {
		p, err := parseProduct(r)
		if err != nil {
			return res, err
		}
		products = append(products, p)
	}

	err := im.db.WithTx(ctx, func(tx *salesdb.Tx) error {
		existing, err := existingKeys(ctx, tx, "SELECT reference FROM product")
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(ctx, upsertProduct)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range products {
			if _, err := stmt.Exec(ctx, p.Reference, p.Name, p.Price, p.Stock); err != nil {
				return fmt.Errorf("upsert product %s: %w", p.Reference, err)
			}
			if existing[p.Reference] {
				res.Existing++
			}
			existing[p.Reference] = true
			res.Written++
		}
		return nil
	})
	res.Duration = time.Since(start)
	if err != nil {
		return Result{Kind: KindProducts, Rows: len(rows), Duration: res.Duration}, err
	}

	logging.BatchComplete(logctx.FromContext(ctx), "ingest_products", res.Duration).
		Count("rows", int64(res.Rows)).
		Count("written", int64(res.Written)).
		Count("overwritten", int64(res.Existing)).
		Log("imported products")
	return res, nil
}
