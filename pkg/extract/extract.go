// Package extract turns raw resource bytes into positional rows.
//
// The format is chosen from the resource name: .parquet files are read
// column by column in schema order, everything else is delimited text,
// gzip-compressed when the name ends in .gz.
package extract

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Format identifies how a resource is encoded.
type Format int

const (
	// FormatCSV is comma-separated text.
	FormatCSV Format = iota
	// FormatParquet is an Apache Parquet file.
	FormatParquet
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// DetectFormat returns the format implied by a resource name.
func DetectFormat(name string) Format {
	lower := strings.ToLower(name)
	lower = strings.TrimSuffix(lower, ".gz")
	if strings.HasSuffix(lower, ".parquet") {
		return FormatParquet
	}
	return FormatCSV
}

// RowReader yields positional rows.
type RowReader interface {
	// Next returns the next row. Returns io.EOF when all rows have been read.
	// The returned slice is owned by the caller.
	Next() ([]string, error)

	// Close releases resources associated with the reader.
	Close() error
}

// Options controls how rows are decoded.
type Options struct {
	// SkipHeader drops the first row of delimited resources. Parquet
	// resources carry their header in the schema and are never skipped.
	SkipHeader bool
	// Comma is the CSV field delimiter. Zero means ','.
	Comma rune
}

// Open returns a RowReader over data, chosen by name.
func Open(name string, data []byte, opts Options) (RowReader, error) {
	var (
		r       io.Reader = bytes.NewReader(data)
		closers []io.Closer
	)

	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader for %s: %w", name, err)
		}
		closers = append(closers, gzr)
		r = gzr
	}

	if DetectFormat(name) == FormatParquet {
		if len(closers) > 0 {
			raw, err := io.ReadAll(r)
			closeAll(closers)
			if err != nil {
				return nil, fmt.Errorf("decompress %s: %w", name, err)
			}
			data = raw
		}
		pr, err := NewParquetReader(data)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		return pr, nil
	}

	cr := newCSVReader(r, opts.Comma, closers)
	if opts.SkipHeader {
		if _, err := cr.Next(); err != nil && !errors.Is(err, io.EOF) {
			cr.Close()
			return nil, fmt.Errorf("read header of %s: %w", name, err)
		}
	}
	return cr, nil
}

// ReadAll decodes every row of a resource.
func ReadAll(name string, data []byte, opts Options) ([][]string, error) {
	r, err := Open(name, data, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var rows [][]string
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		rows = append(rows, row)
	}
}

// csvReader reads delimited rows, trimming each field and skipping rows
// whose fields are all blank.
type csvReader struct {
	csvReader *csv.Reader
	closers   []io.Closer
}

func newCSVReader(r io.Reader, comma rune, closers []io.Closer) *csvReader {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // Row width is checked by the ingesters
	csvr.LazyQuotes = true
	csvr.TrimLeadingSpace = true
	if comma != 0 {
		csvr.Comma = comma
	}
	return &csvReader{csvReader: csvr, closers: closers}
}

func (r *csvReader) Next() ([]string, error) {
	for {
		record, err := r.csvReader.Read()
		if err != nil {
			return nil, err
		}

		blank := true
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
			if record[i] != "" {
				blank = false
			}
		}
		if !blank {
			return record, nil
		}
	}
}

func (r *csvReader) Close() error {
	return closeAll(r.closers)
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
