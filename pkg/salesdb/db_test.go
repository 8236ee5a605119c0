package salesdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DefaultConfig(filepath.Join(t.TempDir(), "test.db")))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := Open(context.Background(), DefaultConfig(dbPath))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if db.Driver() != DriverSQLite {
		t.Errorf("Driver() = %q, want %q", db.Driver(), DriverSQLite)
	}
	if !db.ForeignKeys() {
		t.Error("ForeignKeys() = false, want true by default")
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}

	// Reopening an existing database keeps the schema.
	db, err = Open(context.Background(), DefaultConfig(dbPath))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	db.Close()
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid default config", cfg: DefaultConfig("/tmp/test.db")},
		{name: "empty db path", cfg: Config{}, wantErr: true},
		{name: "invalid synchronous", cfg: Config{DBPath: "/tmp/test.db", Synchronous: "INVALID"}, wantErr: true},
		{name: "negative busy timeout", cfg: Config{DBPath: "/tmp/test.db", BusyTimeoutMs: -1}, wantErr: true},
		{name: "unknown driver", cfg: Config{Driver: "mysql", DBPath: "/tmp/test.db"}, wantErr: true},
		{name: "postgres without dsn", cfg: Config{Driver: DriverPostgres}, wantErr: true},
		{name: "postgres with dsn", cfg: Config{Driver: DriverPostgres, DSN: "postgres://localhost/sales"}},
		{name: "empty synchronous uses default", cfg: Config{DBPath: "/tmp/test.db"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	cfg := DefaultConfig("/data/sales.db")
	dsn := cfg.sqliteDSN()
	for _, want := range []string{"_journal_mode=WAL", "_synchronous=NORMAL", "_busy_timeout=5000", "_foreign_keys=1"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}

	cfg.ForeignKeys = false
	if dsn := cfg.sqliteDSN(); !strings.Contains(dsn, "_foreign_keys=0") {
		t.Errorf("dsn %q should disable foreign keys", dsn)
	}
}

func TestTableIntrospection(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	for _, table := range Tables {
		ok, err := db.TableExists(ctx, table)
		if err != nil {
			t.Fatalf("TableExists(%s) failed: %v", table, err)
		}
		if !ok {
			t.Errorf("table %s does not exist", table)
		}
	}

	ok, err := db.TableExists(ctx, "returns")
	if err != nil {
		t.Fatalf("TableExists failed: %v", err)
	}
	if ok {
		t.Error("unexpected table returns")
	}

	if _, err := db.TableCount(ctx, "sqlite_master; DROP TABLE sale"); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("TableCount with unknown table: got %v, want ErrUnknownTable", err)
	}

	err = db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Exec(ctx, "INSERT INTO store (store_id, city, employee_count, region) VALUES (?, ?, ?, ?)", 1, "Paris", 3, "Île-de-France")
		return err
	})
	if err != nil {
		t.Fatalf("insert store: %v", err)
	}

	var city string
	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.QueryRow(ctx, "SELECT city FROM store WHERE store_id = ?", 1).Scan(&city)
	})
	if err != nil || city != "Paris" {
		t.Errorf("QueryRow city = %q, %v; want Paris", city, err)
	}

	counts, err := db.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts != (TableCounts{Stores: 1}) {
		t.Errorf("Counts = %+v, want 1 store", counts)
	}
}

func TestConstraintViolationsAreValidationErrors(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Exec(ctx, "INSERT INTO store (store_id, city, employee_count, region) VALUES (1, 'Paris', 3, 'Île-de-France')")
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, "INSERT INTO product (reference, name, price, stock) VALUES ('P1', 'Stylo', 1.5, 10)")
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	tests := []struct {
		name  string
		query string
	}{
		{"zero price", "INSERT INTO product (reference, name, price, stock) VALUES ('P2', 'Gomme', 0, 1)"},
		{"negative stock", "INSERT INTO product (reference, name, price, stock) VALUES ('P2', 'Gomme', 1, -1)"},
		{"zero quantity", "INSERT INTO sale (sale_date, product_ref, quantity, store_id, total_amount) VALUES ('2024-01-01', 'P1', 0, 1, 0)"},
		{"unknown product", "INSERT INTO sale (sale_date, product_ref, quantity, store_id, total_amount) VALUES ('2024-01-01', 'P9', 1, 1, 0)"},
		{"unknown store", "INSERT INTO sale (sale_date, product_ref, quantity, store_id, total_amount) VALUES ('2024-01-01', 'P1', 1, 9, 0)"},
		{"duplicate reference", "INSERT INTO product (reference, name, price, stock) VALUES ('P1', 'Autre', 2, 1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.WithTx(ctx, func(tx *Tx) error {
				_, err := tx.Exec(ctx, tt.query)
				return err
			})
			if !errors.Is(err, ErrValidation) {
				t.Errorf("got %v, want ErrValidation", err)
			}
		})
	}

	// Syntax errors are not validation failures.
	err = db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Exec(ctx, "INSERT INTO nowhere VALUES (1)")
		return err
	})
	if err == nil || errors.Is(err, ErrValidation) {
		t.Errorf("got %v, want a non-validation error", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"sqlite constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, true},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, false},
		{"pq check violation", &pq.Error{Code: "23514"}, true},
		{"pq foreign key violation", &pq.Error{Code: "23503"}, true},
		{"pq syntax error", &pq.Error{Code: "42601"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			if got := errors.Is(err, ErrValidation); got != tt.want {
				t.Errorf("classify(%v) is validation = %v, want %v", tt.err, got, tt.want)
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Errorf("classify(%v) dropped the driver error from the chain", tt.err)
			}
		})
	}
}

func TestWithTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.Exec(ctx, "INSERT INTO store (store_id, city, employee_count, region) VALUES (1, 'Paris', 1, 'x')"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = db.WithTx(ctx, func(tx *Tx) error {
			if _, err := tx.Exec(ctx, "INSERT INTO store (store_id, city, employee_count, region) VALUES (2, 'Lyon', 1, 'x')"); err != nil {
				return err
			}
			panic("mid-transaction")
		})
	}()

	n, err := db.TableCount(ctx, TableStore)
	if err != nil {
		t.Fatalf("TableCount failed: %v", err)
	}
	if n != 0 {
		t.Errorf("store count = %d, want 0 after rollbacks", n)
	}
}

func TestTx_UseAfterCommit(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	tx, err := db.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := tx.Exec(ctx, "SELECT 1"); !errors.Is(err, ErrNoTransaction) {
		t.Errorf("Exec after commit: got %v, want ErrNoTransaction", err)
	}
	var n int
	if err := tx.QueryRow(ctx, "SELECT 1").Scan(&n); !errors.Is(err, ErrNoTransaction) {
		t.Errorf("QueryRow after commit: got %v, want ErrNoTransaction", err)
	}
	if _, err := tx.Query(ctx, "SELECT 1"); !errors.Is(err, ErrNoTransaction) {
		t.Errorf("Query after commit: got %v, want ErrNoTransaction", err)
	}
	if _, err := tx.Prepare(ctx, "SELECT 1"); !errors.Is(err, ErrNoTransaction) {
		t.Errorf("Prepare after commit: got %v, want ErrNoTransaction", err)
	}
	if err := tx.Commit(); !errors.Is(err, ErrNoTransaction) {
		t.Errorf("second Commit: got %v, want ErrNoTransaction", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Rollback after commit should be a no-op, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		name  string
		d     dialect
		query string
		want  string
	}{
		{"sqlite untouched", sqliteDialect, "SELECT * FROM sale WHERE a = ? AND b = ?", "SELECT * FROM sale WHERE a = ? AND b = ?"},
		{"postgres numbered", postgresDialect, "SELECT * FROM sale WHERE a = ? AND b = ?", "SELECT * FROM sale WHERE a = $1 AND b = $2"},
		{"postgres skips literals", postgresDialect, "SELECT '?' || ? FROM t WHERE c = 'a?b' AND d = ?", "SELECT '?' || $1 FROM t WHERE c = 'a?b' AND d = $2"},
		{"postgres no placeholders", postgresDialect, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.rebind(tt.query); got != tt.want {
				t.Errorf("rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestPostgres runs against a live server when SALESDB_TEST_POSTGRES_DSN is set.
func TestPostgres(t *testing.T) {
	dsn := os.Getenv("SALESDB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SALESDB_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	db, err := Open(ctx, Config{Driver: DriverPostgres, DSN: dsn})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	for _, table := range Tables {
		ok, err := db.TableExists(ctx, table)
		if err != nil || !ok {
			t.Errorf("TableExists(%s) = %v, %v", table, ok, err)
		}
	}

	err = db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Exec(ctx, "INSERT INTO product (reference, name, price, stock) VALUES (?, ?, ?, ?)", "PG-CHECK", "Gomme", 0, 1)
		return err
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("zero price on postgres: got %v, want ErrValidation", err)
	}
}
