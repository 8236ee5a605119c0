package extract

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		want Format
	}{
		{"ventes.csv", FormatCSV},
		{"ventes.csv.gz", FormatCSV},
		{"ventes.parquet", FormatParquet},
		{"VENTES.PARQUET", FormatParquet},
		{"ventes.parquet.gz", FormatParquet},
		{"ventes", FormatCSV},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.name); got != tt.want {
			t.Errorf("DetectFormat(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestReadAll_CSV(t *testing.T) {
	data := []byte("id,ville,employes\n1, Paris ,10\n\n2,Lyon,5\n , ,\n")

	rows, err := ReadAll("magasins.csv", data, Options{SkipHeader: true})
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	want := [][]string{{"1", "Paris", "10"}, {"2", "Lyon", "5"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestReadAll_CSVKeepsHeaderWhenAsked(t *testing.T) {
	rows, err := ReadAll("magasins.csv", []byte("id,ville\n1,Paris\n"), Options{})
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "id" {
		t.Errorf("rows = %v, want header kept", rows)
	}
}

func TestReadAll_CSVEmptyAndHeaderOnly(t *testing.T) {
	for _, data := range []string{"", "date,ref,qte,magasin\n"} {
		rows, err := ReadAll("ventes.csv", []byte(data), Options{SkipHeader: true})
		if err != nil {
			t.Fatalf("ReadAll(%q) failed: %v", data, err)
		}
		if len(rows) != 0 {
			t.Errorf("ReadAll(%q) = %v, want no rows", data, rows)
		}
	}
}

func TestReadAll_CustomDelimiter(t *testing.T) {
	rows, err := ReadAll("produits.csv", []byte("Stylo;P1;1.50;100\n"), Options{Comma: ';'})
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	want := [][]string{{"Stylo", "P1", "1.50", "100"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestReadAll_GzipCSV(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte("date,ref,qte,magasin\n2024-01-01,P1,3,1\n")); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	rows, err := ReadAll("ventes.csv.gz", buf.Bytes(), Options{SkipHeader: true})
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	want := [][]string{{"2024-01-01", "P1", "3", "1"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestReadAll_BadGzip(t *testing.T) {
	if _, err := ReadAll("ventes.csv.gz", []byte("not gzip"), Options{}); err == nil {
		t.Error("expected error for invalid gzip data")
	}
}

type productRow struct {
	Name      string  `parquet:"nom"`
	Reference string  `parquet:"reference"`
	Price     float64 `parquet:"prix"`
	Stock     int32   `parquet:"stock"`
}

func writeParquet[T any](t *testing.T, rows []T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	return buf.Bytes()
}

func TestReadAll_Parquet(t *testing.T) {
	data := writeParquet(t, []productRow{
		{Name: "Stylo", Reference: "P1", Price: 1.5, Stock: 100},
		{Name: "Cahier", Reference: "P2", Price: 9.99, Stock: 0},
	})

	// SkipHeader must not drop a data row from a Parquet resource.
	rows, err := ReadAll("produits.parquet", data, Options{SkipHeader: true})
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	want := [][]string{
		{"Stylo", "P1", "1.5", "100"},
		{"Cahier", "P2", "9.99", "0"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

type saleRow struct {
	Date     string  `parquet:"date"`
	Ref      string  `parquet:"ref"`
	Quantity int64   `parquet:"qte"`
	Store    *int32  `parquet:"magasin,optional"`
	Promo    bool    `parquet:"promo"`
	Discount float32 `parquet:"remise"`
}

func TestParquetReader_Kinds(t *testing.T) {
	store := int32(7)
	data := writeParquet(t, []saleRow{
		{Date: "2024-01-01", Ref: "P1", Quantity: 3, Store: &store, Promo: true, Discount: 0.25},
		{Date: "2024-01-02", Ref: "P2", Quantity: 1, Store: nil},
	})

	r, err := NewParquetReader(data)
	if err != nil {
		t.Fatalf("NewParquetReader failed: %v", err)
	}
	defer r.Close()

	first, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	wantFirst := []string{"2024-01-01", "P1", "3", "7", "true", "0.25"}
	if !reflect.DeepEqual(first, wantFirst) {
		t.Errorf("first = %v, want %v", first, wantFirst)
	}

	second, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if second[3] != "" {
		t.Errorf("null store = %q, want empty", second[3])
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestNewParquetReader_Invalid(t *testing.T) {
	if _, err := NewParquetReader([]byte("definitely not parquet")); err == nil {
		t.Error("expected error for invalid parquet data")
	}
}
