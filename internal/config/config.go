// Package config loads salesdb settings from defaults, an optional YAML file
// and the environment, in that order of increasing priority. Command-line
// flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/eunmann/salesdb/pkg/ingest"
	"github.com/eunmann/salesdb/pkg/region"
	"github.com/eunmann/salesdb/pkg/salesdb"
	"github.com/eunmann/salesdb/pkg/source"
)

// Environment variables.
const (
	EnvConfig            = "SALESDB_CONFIG"
	EnvDBDriver          = "SALESDB_DB_DRIVER"
	EnvDBPath            = "SALESDB_DB_PATH"
	EnvDBDSN             = "SALESDB_DB_DSN"
	EnvSource            = "SALESDB_SOURCE"
	EnvFetchTimeout      = "SALESDB_FETCH_TIMEOUT"
	EnvLenientReferences = "SALESDB_LENIENT_REFERENCES"
	EnvDebug             = "SALESDB_DEBUG"

	// EnvUseHTTP and EnvHTTPBaseURL switch the source to an HTTP server.
	EnvUseHTTP     = "USE_HTTP"
	EnvHTTPBaseURL = "HTTP_BASE_URL"
)

// DefaultHTTPBaseURL is used when USE_HTTP is set without HTTP_BASE_URL.
const DefaultHTTPBaseURL = "http://localhost:8000"

// DBConfig selects and tunes the store.
type DBConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	DSN           string `yaml:"dsn"`
	Synchronous   string `yaml:"synchronous"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"`
}

// Resources names the three extracts.
type Resources struct {
	Stores   string `yaml:"stores"`
	Products string `yaml:"products"`
	Sales    string `yaml:"sales"`
}

// IngestConfig controls decoding and reference checks.
type IngestConfig struct {
	SkipHeader        bool   `yaml:"skip_header"`
	Delimiter         string `yaml:"delimiter"`
	LenientReferences bool   `yaml:"lenient_references"`
}

// LogConfig controls log output.
type LogConfig struct {
	Debug bool `yaml:"debug"`
	Human bool `yaml:"human"`
}

// Config is the full application configuration.
type Config struct {
	DB                  DBConfig          `yaml:"db"`
	Source              string            `yaml:"source"`
	FetchTimeout        time.Duration     `yaml:"fetch_timeout"`
	PrefetchConcurrency int               `yaml:"prefetch_concurrency"`
	Resources           Resources         `yaml:"resources"`
	Ingest              IngestConfig      `yaml:"ingest"`
	RegionsFile         string            `yaml:"regions_file"`
	Regions             map[string]string `yaml:"regions"`
	Log                 LogConfig         `yaml:"log"`
}

// Default returns the built-in configuration: a SQLite file in the working
// directory and the three extracts read from it.
func Default() Config {
	return Config{
		DB: DBConfig{
			Driver:        salesdb.DriverSQLite,
			Path:          "ventes_pme.db",
			Synchronous:   "NORMAL",
			BusyTimeoutMs: 5000,
		},
		Source:              ".",
		FetchTimeout:        source.DefaultTimeout,
		PrefetchConcurrency: 3,
		Resources: Resources{
			Stores:   "magasins.csv",
			Products: "produits.csv",
			Sales:    "ventes.csv",
		},
		Ingest: IngestConfig{SkipHeader: true},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvDBDriver); v != "" {
		c.DB.Driver = v
	}
	if v := getenv(EnvDBPath); v != "" {
		c.DB.Path = v
	}
	if v := getenv(EnvDBDSN); v != "" {
		c.DB.DSN = v
	}

	if strings.EqualFold(getenv(EnvUseHTTP), "true") {
		c.Source = DefaultHTTPBaseURL
		if v := getenv(EnvHTTPBaseURL); v != "" {
			c.Source = v
		}
	}
	if v := getenv(EnvSource); v != "" {
		c.Source = v
	}

	if v := getenv(EnvFetchTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvFetchTimeout, v, err)
		}
		c.FetchTimeout = d
	}
	if v := getenv(EnvLenientReferences); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvLenientReferences, v, err)
		}
		c.Ingest.LenientReferences = b
	}
	if v := getenv(EnvDebug); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvDebug, v, err)
		}
		c.Log.Debug = b
	}
	return nil
}

// Validate checks the configuration for invalid settings.
func (c *Config) Validate() error {
	var errs []error

	store := c.StoreConfig()
	if err := store.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("db: %w", err))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch_timeout must be positive, got %s", c.FetchTimeout))
	}
	if c.PrefetchConcurrency < 0 {
		errs = append(errs, fmt.Errorf("prefetch_concurrency must be non-negative, got %d", c.PrefetchConcurrency))
	}
	if c.Resources.Stores == "" || c.Resources.Products == "" || c.Resources.Sales == "" {
		errs = append(errs, errors.New("resources: stores, products and sales names are required"))
	}
	if c.Ingest.Delimiter != "" && utf8.RuneCountInString(c.Ingest.Delimiter) != 1 {
		errs = append(errs, fmt.Errorf("ingest.delimiter must be a single character, got %q", c.Ingest.Delimiter))
	}
	return errors.Join(errs...)
}

// StoreConfig returns the store settings. Lenient reference handling turns
// SQLite foreign keys off so unknown references can be written.
func (c *Config) StoreConfig() salesdb.Config {
	cfg := salesdb.DefaultConfig(c.DB.Path)
	cfg.Driver = c.DB.Driver
	cfg.DSN = c.DB.DSN
	cfg.Synchronous = c.DB.Synchronous
	cfg.BusyTimeoutMs = c.DB.BusyTimeoutMs
	cfg.ForeignKeys = !c.Ingest.LenientReferences
	return cfg
}

// ImportOptions returns the ingestion options.
func (c *Config) ImportOptions() ingest.Options {
	opts := ingest.Options{
		SkipHeader: c.Ingest.SkipHeader,
		Lenient:    c.Ingest.LenientReferences,
	}
	if c.Ingest.Delimiter != "" {
		opts.Comma, _ = utf8.DecodeRuneInString(c.Ingest.Delimiter)
	}
	return opts
}

// Resolver builds the region resolver: the built-in table, then the
// regions file, then the inline regions map.
func (c *Config) Resolver() (*region.Resolver, error) {
	var extra []map[string]string
	if c.RegionsFile != "" {
		t, err := region.LoadTable(c.RegionsFile)
		if err != nil {
			return nil, err
		}
		extra = append(extra, t.Cities)
	}
	if len(c.Regions) > 0 {
		extra = append(extra, c.Regions)
	}
	return region.New(extra...), nil
}
