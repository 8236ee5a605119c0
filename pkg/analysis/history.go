package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eunmann/salesdb/pkg/salesdb"
	"github.com/shopspring/decimal"
)

// Record is one stored analysis result.
type Record struct {
	ID          int64               `json:"id"`
	Kind        Kind                `json:"kind"`
	GeneratedAt string              `json:"generated_at"`
	Payload     json.RawMessage     `json:"payload"`
	Headline    decimal.NullDecimal `json:"headline_value"`
}

// History returns stored results, newest first. An empty kind returns every
// kind. A non-positive limit returns all rows.
func (a *Analyzer) History(ctx context.Context, kind Kind, limit int) ([]Record, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("unknown analysis kind %q", kind)
	}

	query := "SELECT analysis_id, kind, generated_at, payload, headline_value FROM analysis_result"
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY analysis_id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	records := []Record{}
	err := a.db.WithTx(ctx, func(tx *salesdb.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query history: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				r       Record
				k       string
				payload string
			)
			if err := rows.Scan(&r.ID, &k, &r.GeneratedAt, &payload, &r.Headline); err != nil {
				return fmt.Errorf("scan history: %w", err)
			}
			r.Kind = Kind(k)
			r.Payload = json.RawMessage(payload)
			records = append(records, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("analysis history: %w", err)
	}
	return records, nil
}
