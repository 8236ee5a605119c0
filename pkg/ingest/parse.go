package ingest

import (
	"strconv"

	"github.com/eunmann/salesdb/pkg/salesdb"
	"github.com/shopspring/decimal"
)

// row wraps a positional record with its 1-based position for error messages.
type row struct {
	n      int
	fields []string
}

func (r row) width(want int) error {
	if len(r.fields) < want {
		return salesdb.Validationf("row %d: expected %d columns, got %d", r.n, want, len(r.fields))
	}
	return nil
}

func (r row) text(col int, name string) (string, error) {
	v := r.fields[col]
	if v == "" {
		return "", salesdb.Validationf("row %d: %s is empty", r.n, name)
	}
	return v, nil
}

func (r row) int(col int, name string) (int64, error) {
	v := r.fields[col]
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// Extracts produced by spreadsheet tools write integers as "10.0".
		d, derr := decimal.NewFromString(v)
		if derr != nil || !d.IsInteger() {
			return 0, salesdb.Validationf("row %d: %s %q is not an integer", r.n, name, v)
		}
		n = d.IntPart()
	}
	return n, nil
}

func (r row) money(col int, name string) (decimal.Decimal, error) {
	v := r.fields[col]
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, salesdb.Validationf("row %d: %s %q is not a number", r.n, name, v)
	}
	return d, nil
}

func numbered(rows [][]string) []row {
	out := make([]row, len(rows))
	for i, fields := range rows {
		out[i] = row{n: i + 1, fields: fields}
	}
	return out
}
