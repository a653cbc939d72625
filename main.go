// jsguide indexes JavaScript projects and answers definition, reference and
// module queries against the index.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/phobologic/jsguide/internal/config"
	"github.com/phobologic/jsguide/internal/depgraph"
	"github.com/phobologic/jsguide/internal/indexer"
	"github.com/phobologic/jsguide/internal/infer"
	"github.com/phobologic/jsguide/internal/parse"
)

var version = "dev"

// memoryStore selects an in-memory index for --store.
const memoryStore = ":memory:"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	a := &app{stdout: stdout, stderr: stderr}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(context.Background())
}

type globalFlags struct {
	root     string
	config   string
	store    string
	logLevel string
	json     bool
}

// app holds the state shared by subcommands. The index is opened lazily so
// commands that never touch it (init, refs) do not lock the store.
type app struct {
	stdout, stderr io.Writer
	flags          globalFlags

	root   string
	cfg    *config.Config
	logger *slog.Logger

	resolver *depgraph.Resolver
	store    *indexer.BadgerStore
	ix       *indexer.Indexer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "jsguide",
		Short:         "Type-inferring index for AMD, CommonJS and browser-global JavaScript",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.root, "root", ".", "project root directory")
	pf.StringVar(&a.flags.config, "config", "", "config file (default <root>/"+config.FileName+")")
	pf.StringVar(&a.flags.store, "store", "", "index directory, or "+memoryStore+" (default from config)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "debug, info, warn or error (default from config)")
	pf.BoolVar(&a.flags.json, "json", false, "write results and logs as JSON")

	root.AddCommand(
		newIndexCmd(a),
		newDefCmd(a),
		newRefsCmd(a),
		newCheckCmd(a),
		newSummaryCmd(a),
		newMapCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newInitCmd(a),
	)
	return root
}

// setup resolves the root, loads the config and builds the logger.
func (a *app) setup() error {
	root, err := filepath.Abs(a.flags.root)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", root)
	}
	a.root = root

	cfgPath := a.configPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if a.flags.logLevel != "" {
		cfg.LogLevel = a.flags.logLevel
	}
	if a.flags.store != "" {
		cfg.StoreDir = a.flags.store
	}
	a.cfg = cfg
	a.logger = newLogger(a.stderr, cfg.SlogLevel(), a.flags.json)
	a.logger.Debug("config loaded", "path", cfgPath, "root", root)
	return nil
}

func (a *app) configPath() string {
	if a.flags.config != "" {
		return a.flags.config
	}
	return filepath.Join(a.root, config.FileName)
}

// newLogger writes text logs to a terminal and JSON logs otherwise, or
// always JSON when asJSON is set.
func newLogger(w io.Writer, level slog.Level, asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if asJSON || !isTerminal(w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// open builds the resolver, store and indexer on first use.
func (a *app) open() (*indexer.Indexer, error) {
	if a.ix != nil {
		return a.ix, nil
	}
	res, err := depgraph.New(a.root, depgraph.Options{
		BaseURL:     a.cfg.BaseURL,
		Paths:       a.cfg.Paths,
		MaxFileSize: a.cfg.MaxFileSize,
		Workers:     a.cfg.Workers,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, err
	}

	dir := ""
	if a.cfg.StoreDir != memoryStore {
		dir = a.cfg.StoreDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(a.root, dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	store, err := indexer.OpenBadger(dir, a.logger)
	if err != nil {
		return nil, err
	}

	opts := []indexer.Option{
		indexer.WithLogger(a.logger),
		indexer.WithAnalysisOptions(a.analysisOptions()...),
	}
	if a.cfg.Workers > 0 {
		opts = append(opts, indexer.WithWorkers(a.cfg.Workers))
	}
	ix, err := indexer.New(store, res, opts...)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.resolver, a.store, a.ix = res, store, ix
	return ix, nil
}

func (a *app) close() {
	if a.ix != nil {
		a.ix.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.logger != nil {
			a.logger.Warn("closing index store", "error", err)
		}
	}
}

func (a *app) analysisOptions() []infer.Option {
	return []infer.Option{
		infer.WithBrowser(a.cfg.Browser),
		infer.WithMaxFileSize(a.cfg.MaxFileSize),
	}
}

func (a *app) parseOptions() []parse.Option {
	return []parse.Option{parse.WithMaxFileSize(a.cfg.MaxFileSize)}
}

// readSource returns the root-relative key and contents of a file named on
// the command line.
func (a *app) readSource(name string) (string, string, error) {
	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(a.root, p)
	}
	key, err := a.rel(p)
	if err != nil {
		return "", "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", name, err)
	}
	if a.cfg.MaxFileSize > 0 && len(data) > a.cfg.MaxFileSize {
		return "", "", fmt.Errorf("%s: %w", name, parse.ErrFileTooLarge)
	}
	return key, string(data), nil
}

func (a *app) rel(p string) (string, error) {
	rel, err := filepath.Rel(a.root, p)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", p, a.root)
	}
	return rel, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}

// errProblems reports that check found diagnostics; the diagnostics
// themselves are already printed.
var errProblems = errors.New("problems found")
