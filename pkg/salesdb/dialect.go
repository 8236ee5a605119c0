package salesdb

import (
	"strconv"
	"strings"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// dialect captures the SQL differences between the supported engines.
// Queries are written once with '?' placeholders and rebound per engine.
type dialect struct {
	name        string
	positional  bool // $1, $2, ... instead of ?
	schema      []string
	tableExists string
}

var sqliteDialect = dialect{
	name: DriverSQLite,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS store (
			store_id INTEGER PRIMARY KEY,
			city TEXT NOT NULL,
			employee_count INTEGER NOT NULL CHECK (employee_count >= 0),
			region TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS product (
			reference TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			price REAL NOT NULL CHECK (price > 0),
			stock INTEGER NOT NULL CHECK (stock >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS sale (
			sale_id INTEGER PRIMARY KEY AUTOINCREMENT,
			sale_date TEXT NOT NULL,
			product_ref TEXT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			store_id INTEGER NOT NULL,
			total_amount REAL NOT NULL,
			FOREIGN KEY (product_ref) REFERENCES product(reference),
			FOREIGN KEY (store_id) REFERENCES store(store_id)
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_result (
			analysis_id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			payload TEXT NOT NULL,
			headline_value REAL
		)`,
	},
	tableExists: "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
}

var postgresDialect = dialect{
	name:       DriverPostgres,
	positional: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS store (
			store_id INTEGER PRIMARY KEY,
			city TEXT NOT NULL,
			employee_count INTEGER NOT NULL CHECK (employee_count >= 0),
			region TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS product (
			reference TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			price NUMERIC(12, 2) NOT NULL CHECK (price > 0),
			stock INTEGER NOT NULL CHECK (stock >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS sale (
			sale_id BIGSERIAL PRIMARY KEY,
			sale_date TEXT NOT NULL,
			product_ref TEXT NOT NULL REFERENCES product(reference),
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			store_id INTEGER NOT NULL REFERENCES store(store_id),
			total_amount NUMERIC(14, 2) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS analysis_result (
			analysis_id BIGSERIAL PRIMARY KEY,
			kind TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			payload TEXT NOT NULL,
			headline_value NUMERIC
		)`,
	},
	tableExists: "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?",
}

// indexes are portable between both engines.
var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_sale_date ON sale(sale_date)",
	"CREATE INDEX IF NOT EXISTS idx_sale_store ON sale(store_id)",
	"CREATE INDEX IF NOT EXISTS idx_sale_product ON sale(product_ref)",
	"CREATE INDEX IF NOT EXISTS idx_sale_tuple ON sale(sale_date, product_ref, quantity, store_id)",
	"CREATE INDEX IF NOT EXISTS idx_analysis_kind ON analysis_result(kind)",
}

func dialectFor(driver string) (dialect, bool) {
	switch driver {
	case DriverSQLite, "":
		return sqliteDialect, true
	case DriverPostgres:
		return postgresDialect, true
	default:
		return dialect{}, false
	}
}

// rebind converts '?' placeholders to the engine's native form.
// Placeholders inside single-quoted literals are left alone.
func (d dialect) rebind(query string) string {
	if !d.positional || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
