package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// parquetReader reads rows from an in-memory Parquet file by iterating its
// row groups. Every leaf column becomes one positional field.
type parquetReader struct {
	file    *parquet.File
	columns int

	rowGroups    []parquet.RowGroup
	currentRGIdx int
	currentRows  parquet.Rows
	rowBuf       []parquet.Row
	bufIdx       int
	bufLen       int
}

// NewParquetReader opens Parquet data held in memory.
func NewParquetReader(data []byte) (RowReader, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	columns := len(file.Schema().Columns())
	if columns == 0 {
		return nil, errors.New("parquet schema has no columns")
	}

	return &parquetReader{
		file:         file,
		columns:      columns,
		rowGroups:    file.RowGroups(),
		currentRGIdx: -1,
		rowBuf:       make([]parquet.Row, 256),
	}, nil
}

func (r *parquetReader) Next() ([]string, error) {
	for {
		if r.bufIdx < r.bufLen {
			row := r.rowBuf[r.bufIdx]
			r.bufIdx++
			return r.toFields(row), nil
		}

		if r.currentRows != nil {
			n, err := r.currentRows.ReadRows(r.rowBuf)
			if n > 0 {
				r.bufIdx = 0
				r.bufLen = n
				continue
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("read parquet rows: %w", err)
			}
			r.currentRows.Close()
			r.currentRows = nil
		}

		r.currentRGIdx++
		if r.currentRGIdx >= len(r.rowGroups) {
			return nil, io.EOF
		}
		r.currentRows = r.rowGroups[r.currentRGIdx].Rows()
	}
}

func (r *parquetReader) toFields(row parquet.Row) []string {
	fields := make([]string, r.columns)
	for _, val := range row {
		col := val.Column()
		if col < 0 || col >= r.columns || val.IsNull() {
			continue
		}
		fields[col] = strings.TrimSpace(valueString(val))
	}
	return fields
}

// valueString renders a Parquet value as the text a CSV extract would carry.
func valueString(v parquet.Value) string {
	switch v.Kind() {
	case parquet.Boolean:
		return strconv.FormatBool(v.Boolean())
	case parquet.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case parquet.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case parquet.Float:
		return strconv.FormatFloat(float64(v.Float()), 'f', -1, 32)
	case parquet.Double:
		return strconv.FormatFloat(v.Double(), 'f', -1, 64)
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}

func (r *parquetReader) Close() error {
	if r.currentRows != nil {
		err := r.currentRows.Close()
		r.currentRows = nil
		return err
	}
	return nil
}
