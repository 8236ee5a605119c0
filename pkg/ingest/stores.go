package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/eunmann/salesdb/internal/logctx"
	"github.com/eunmann/salesdb/pkg/logging"
	"github.com/eunmann/salesdb/pkg/salesdb"
)

const upsertStore = `INSERT INTO store (store_id, city, employee_count, region)
VALUES (?, ?, ?, ?)
ON CONFLICT (store_id) DO UPDATE SET
	city = excluded.city,
	employee_count = excluded.employee_count,
	region = excluded.region`

// Store is a normalized store record.
type Store struct {
	ID            int64
	City          string
	EmployeeCount int64
	Region        string
}

// parseStore maps a positional (id, city, employees) row. Region is derived
// from the city, never read from input.
func (im *Importer) parseStore(r row) (Store, error) {
	if err := r.width(3); err != nil {
		return Store{}, err
	}
	id, err := r.int(0, "store id")
	if err != nil {
		return Store{}, err
	}
	city, err := r.text(1, "city")
	if err != nil {
		return Store{}, err
	}
	employees, err := r.int(2, "employee count")
	if err != nil {
		return Store{}, err
	}
	if employees < 0 {
		return Store{}, salesdb.Validationf("row %d: employee count %d is negative", r.n, employees)
	}
	return Store{ID: id, City: city, EmployeeCount: employees, Region: im.resolver.Resolve(city)}, nil
}

// IngestStores writes store rows with insert-or-overwrite semantics keyed by
// store id.
func (im *Importer) IngestStores(ctx context.Context, rows [][]string) (Result, error) {
	start := time.Now()
	res := Result{Kind: KindStores, Rows: len(rows)}

	stores := make([]Store, 0, len(rows))
	for _, r := range numbered(rows) {
		s, err := im.parseStore(r)
		if err != nil {
			return res, err
		}
		stores = append(stores, s)
	}

	err := im.db.WithTx(ctx, func(tx *salesdb.Tx) error {
		existing, err := existingKeys(ctx, tx, "SELECT store_id FROM store")
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(ctx, upsertStore)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range stores {
			if _, err := stmt.Exec(ctx, s.ID, s.City, s.EmployeeCount, s.Region); err != nil {
				return fmt.Errorf("upsert store %d: %w", s.ID, err)
			}
			key := fmt.Sprint(s.ID)
			if existing[key] {
				res.Existing++
			}
			existing[key] = true
			res.Written++
		}
		return nil
	})
	res.Duration = time.Since(start)
	if err != nil {
		return Result{Kind: KindStores, Rows: len(rows), Duration: res.Duration}, err
	}

	logging.BatchComplete(logctx.FromContext(ctx), "ingest_stores", res.Duration).
		Count("rows", int64(res.Rows)).
		Count("written", int64(res.Written)).
		Count("overwritten", int64(res.Existing)).
		Log("imported stores")
	return res, nil
}

// existingKeys loads a single-column key set inside tx.
func existingKeys(ctx context.Context, tx *salesdb.Tx, query string) (map[string]bool, error) {
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys[k] = true
	}
	return keys, rows.Err()
}
