// Package cli implements the command-line interface for salesdb.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/eunmann/salesdb/internal/config"
	"github.com/eunmann/salesdb/internal/logctx"
	"github.com/eunmann/salesdb/pkg/logging"
	"github.com/eunmann/salesdb/pkg/salesdb"
)

const usage = "usage: salesdb <command> [flags]\ncommands: init, import, analyze, run, history"

// Run executes the CLI with the given arguments.
func Run(ctx context.Context, args []string) error {
	cmd := newRootCmd(os.Getenv)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	dbPath     string
	driver     string
	dsn        string
	source     string
	timeout    time.Duration
	debug      bool
	human      bool
	lenient    bool
}

// app carries the resolved configuration from the root command to its children.
type app struct {
	getenv func(string) string
	flags  globalFlags
	cfg    config.Config
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	a := &app{getenv: getenv}

	root := &cobra.Command{
		Use:   "salesdb",
		Short: "Load retail sales extracts into a relational store and report revenue",
		Long: `salesdb ingests store, product and sale extracts (CSV, gzip CSV or Parquet)
from a local directory, an HTTP server or an S3 prefix, loads them into SQLite
or PostgreSQL without duplicating sales, and computes revenue aggregates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return errors.New(usage)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "YAML config file (env "+config.EnvConfig+")")
	pf.StringVar(&a.flags.dbPath, "db", "", "SQLite database file")
	pf.StringVar(&a.flags.driver, "driver", "", "store driver: sqlite3 or postgres")
	pf.StringVar(&a.flags.dsn, "dsn", "", "PostgreSQL connection string")
	pf.StringVar(&a.flags.source, "source", "", "extract source: directory, http(s):// URL or s3://bucket/prefix")
	pf.DurationVar(&a.flags.timeout, "timeout", 0, "per-resource fetch timeout")
	pf.BoolVar(&a.flags.debug, "debug", false, "enable debug logging")
	pf.BoolVar(&a.flags.human, "human", false, "human-friendly console logs")
	pf.BoolVar(&a.flags.lenient, "lenient-references", false, "accept sales with unknown store or product (unknown products are priced at 0)")

	root.AddCommand(
		newInitCmd(a),
		newImportCmd(a),
		newAnalyzeCmd(a),
		newRunCmd(a),
		newHistoryCmd(a),
	)
	return root
}

// setup resolves the configuration (defaults, file, env, flags), initialises
// logging and tags the command context with a run id.
func (a *app) setup(cmd *cobra.Command) error {
	path := a.flags.configPath
	if path == "" {
		path = a.getenv(config.EnvConfig)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(a.getenv); err != nil {
		return err
	}

	changed := cmd.Flags().Changed
	if changed("db") {
		cfg.DB.Path = a.flags.dbPath
	}
	if changed("driver") {
		cfg.DB.Driver = a.flags.driver
	}
	if changed("dsn") {
		cfg.DB.DSN = a.flags.dsn
	}
	if changed("source") {
		cfg.Source = a.flags.source
	}
	if changed("timeout") {
		cfg.FetchTimeout = a.flags.timeout
	}
	if changed("debug") {
		cfg.Log.Debug = a.flags.debug
	}
	if changed("human") {
		cfg.Log.Human = a.flags.human
	}
	if changed("lenient-references") {
		cfg.Ingest.LenientReferences = a.flags.lenient
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logging.InitTo(cmd.ErrOrStderr(), cfg.Log.Debug, cfg.Log.Human)

	ctx, _ := logctx.WithRunID(cmd.Context())
	log := logctx.FromContext(ctx)
	log.Debug().
		Str("command", cmd.Name()).
		Str("driver", cfg.DB.Driver).
		Str("source", cfg.Source).
		Msg("configuration loaded")
	cmd.SetContext(ctx)
	return nil
}

// withStore opens the store, runs fn and closes the store on every path.
func (a *app) withStore(ctx context.Context, fn func(db *salesdb.DB) error) (err error) {
	db, err := salesdb.Open(ctx, a.cfg.StoreConfig())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log := logctx.FromContext(ctx)
			log.Warn().Err(cerr).Msg("close store")
			if err == nil {
				err = fmt.Errorf("close store: %w", cerr)
			}
		}
	}()
	return fn(db)
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
