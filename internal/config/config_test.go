package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eunmann/salesdb/pkg/region"
	"github.com/eunmann/salesdb/pkg/salesdb"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config is invalid: %v", err)
	}
	if cfg.DB.Driver != salesdb.DriverSQLite {
		t.Errorf("driver = %q, want %q", cfg.DB.Driver, salesdb.DriverSQLite)
	}
	if cfg.Resources.Sales != "ventes.csv" {
		t.Errorf("sales resource = %q, want ventes.csv", cfg.Resources.Sales)
	}
	if !cfg.Ingest.SkipHeader {
		t.Error("skip_header should default to true")
	}
	if !cfg.StoreConfig().ForeignKeys {
		t.Error("foreign keys should be on by default")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salesdb.yaml")
	content := `
db:
  path: /var/lib/salesdb/sales.db
source: https://extracts.example.com/daily
fetch_timeout: 5s
resources:
  sales: ventes.parquet
ingest:
  delimiter: ";"
regions:
  Toulouse: Occitanie
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DB.Path != "/var/lib/salesdb/sales.db" {
		t.Errorf("db.path = %q", cfg.DB.Path)
	}
	if cfg.DB.Driver != salesdb.DriverSQLite {
		t.Errorf("unset driver should keep default, got %q", cfg.DB.Driver)
	}
	if cfg.FetchTimeout != 5*time.Second {
		t.Errorf("fetch_timeout = %s, want 5s", cfg.FetchTimeout)
	}
	if cfg.Resources.Sales != "ventes.parquet" || cfg.Resources.Stores != "magasins.csv" {
		t.Errorf("resources = %+v", cfg.Resources)
	}
	if opts := cfg.ImportOptions(); opts.Comma != ';' || !opts.SkipHeader {
		t.Errorf("import options = %+v", opts)
	}

	r, err := cfg.Resolver()
	if err != nil {
		t.Fatalf("Resolver failed: %v", err)
	}
	if got := r.Resolve("Toulouse"); got != "Occitanie" {
		t.Errorf("Resolve(Toulouse) = %q, want Occitanie", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("db: [oops"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		EnvDBDriver:          "postgres",
		EnvDBDSN:             "postgres://u:p@localhost/sales?sslmode=disable",
		EnvFetchTimeout:      "2s",
		EnvLenientReferences: "true",
		EnvDebug:             "1",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.DB.Driver != "postgres" || !strings.HasPrefix(cfg.DB.DSN, "postgres://") {
		t.Errorf("db = %+v", cfg.DB)
	}
	if cfg.FetchTimeout != 2*time.Second {
		t.Errorf("fetch_timeout = %s", cfg.FetchTimeout)
	}
	if !cfg.Ingest.LenientReferences || !cfg.Log.Debug {
		t.Errorf("lenient=%v debug=%v, want true/true", cfg.Ingest.LenientReferences, cfg.Log.Debug)
	}
	if cfg.StoreConfig().ForeignKeys {
		t.Error("lenient references should turn foreign keys off")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestApplyEnv_LegacyHTTP(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"use http default url", map[string]string{EnvUseHTTP: "true"}, DefaultHTTPBaseURL},
		{"use http custom url", map[string]string{EnvUseHTTP: "TRUE", EnvHTTPBaseURL: "http://collector:9000"}, "http://collector:9000"},
		{"base url without flag", map[string]string{EnvHTTPBaseURL: "http://collector:9000"}, "."},
		{"explicit source wins", map[string]string{EnvUseHTTP: "true", EnvSource: "s3://extracts/daily"}, "s3://extracts/daily"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			if err := cfg.ApplyEnv(envMap(tt.env)); err != nil {
				t.Fatalf("ApplyEnv failed: %v", err)
			}
			if cfg.Source != tt.want {
				t.Errorf("source = %q, want %q", cfg.Source, tt.want)
			}
		})
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	for _, env := range []map[string]string{
		{EnvFetchTimeout: "soon"},
		{EnvLenientReferences: "maybe"},
		{EnvDebug: "loud"},
	} {
		cfg := Default()
		if err := cfg.ApplyEnv(envMap(env)); err == nil {
			t.Errorf("ApplyEnv(%v) should fail", env)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.DB.Driver = "mysql" }, "unsupported driver"},
		{"postgres without dsn", func(c *Config) { c.DB.Driver = salesdb.DriverPostgres }, "DSN"},
		{"missing path", func(c *Config) { c.DB.Path = "" }, "DBPath"},
		{"zero timeout", func(c *Config) { c.FetchTimeout = 0 }, "fetch_timeout"},
		{"empty resource", func(c *Config) { c.Resources.Products = "" }, "resources"},
		{"long delimiter", func(c *Config) { c.Ingest.Delimiter = ";;" }, "delimiter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestResolver_RegionsFileThenInline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	if err := os.WriteFile(path, []byte("cities:\n  Rennes: Bretagne\n  Nice: Côte\n"), 0o644); err != nil {
		t.Fatalf("write regions: %v", err)
	}

	cfg := Default()
	cfg.RegionsFile = path
	cfg.Regions = map[string]string{"Nice": "Provence-Alpes-Côte d'Azur"}

	r, err := cfg.Resolver()
	if err != nil {
		t.Fatalf("Resolver failed: %v", err)
	}
	if got := r.Resolve("Rennes"); got != "Bretagne" {
		t.Errorf("Rennes = %q", got)
	}
	if got := r.Resolve("Nice"); got != "Provence-Alpes-Côte d'Azur" {
		t.Errorf("inline map should win over file, got %q", got)
	}
	if got := r.Resolve("Brest"); got != region.Unknown {
		t.Errorf("Brest = %q, want %q", got, region.Unknown)
	}

	cfg.RegionsFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := cfg.Resolver(); err == nil {
		t.Error("expected error for missing regions file")
	}
}
