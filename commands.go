package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/jsguide/internal/discover"
	"github.com/phobologic/jsguide/internal/graph"
	"github.com/phobologic/jsguide/internal/indexer"
	"github.com/phobologic/jsguide/internal/infer"
	"github.com/phobologic/jsguide/internal/model"
	"github.com/phobologic/jsguide/internal/ranking"
	"github.com/phobologic/jsguide/internal/refs"
	"github.com/phobologic/jsguide/internal/server"
	"github.com/phobologic/jsguide/internal/toon"
	"github.com/phobologic/jsguide/internal/verify"
	"github.com/phobologic/jsguide/internal/watch"
)

// runSummary is the printed form of one or more index runs.
type runSummary struct {
	Entries   []string          `json:"entries"`
	Written   []string          `json:"written"`
	Unchanged []string          `json:"unchanged"`
	Failed    map[string]string `json:"failed,omitempty"`
}

func (s *runSummary) add(r *indexer.Report) {
	s.Entries = append(s.Entries, r.Entry)
	s.Written = append(s.Written, r.Written...)
	s.Unchanged = append(s.Unchanged, r.Unchanged...)
	for p, err := range r.Failed {
		if s.Failed == nil {
			s.Failed = make(map[string]string)
		}
		s.Failed[p] = err.Error()
	}
}

// indexEntries runs the indexer from each entry. With no entries every
// discovered file is an entry; files already written by an earlier entry
// come back unchanged.
func (a *app) indexEntries(ctx context.Context, entries []string) (*runSummary, error) {
	ix, err := a.open()
	if err != nil {
		return nil, err
	}
	var keys []string
	if len(entries) == 0 {
		files, err := discover.Files(a.root, a.cfg.Extensions)
		if err != nil {
			return nil, fmt.Errorf("discovering files: %w", err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no JavaScript files found under %s", a.root)
		}
		for _, f := range files {
			keys = append(keys, f.Path)
		}
	} else {
		for _, e := range entries {
			p := e
			if !filepath.IsAbs(p) {
				p = filepath.Join(a.root, p)
			}
			key, err := a.rel(p)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
	}

	sum := &runSummary{}
	seen := make(map[string]bool)
	for _, key := range keys {
		if seen[key] {
			continue
		}
		report, err := ix.Run(ctx, key)
		if err != nil {
			return nil, err
		}
		for _, p := range report.Written {
			seen[p] = true
		}
		for _, p := range report.Unchanged {
			seen[p] = true
		}
		sum.add(report)
	}
	sort.Strings(sum.Written)
	sum.Unchanged = dedupe(sum.Unchanged, sum.Written)
	return sum, nil
}

// dedupe sorts s and drops repeats and anything in drop.
func dedupe(s, drop []string) []string {
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	var out []string
	for _, v := range s {
		if !skip[v] {
			skip[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func newIndexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "index [entry...]",
		Short: "Index the files reachable from each entry (default: every file)",
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := a.indexEntries(cmd.Context(), args)
			if err != nil {
				return err
			}
			if a.flags.json {
				return a.printJSON(sum)
			}
			fmt.Fprintf(a.stdout, "indexed %d files: %d written, %d unchanged, %d failed\n",
				len(sum.Written)+len(sum.Unchanged)+len(sum.Failed), len(sum.Written), len(sum.Unchanged), len(sum.Failed))
			failed := make([]string, 0, len(sum.Failed))
			for p := range sum.Failed {
				failed = append(failed, p)
			}
			sort.Strings(failed)
			for _, p := range failed {
				fmt.Fprintf(a.stdout, "  %s: %s\n", p, sum.Failed[p])
			}
			return nil
		},
	}
}

func parseOffset(s string) (int, error) {
	off, err := strconv.Atoi(s)
	if err != nil || off < 0 {
		return 0, fmt.Errorf("invalid offset %q", s)
	}
	return off, nil
}

func newDefCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "def <file> <offset>",
		Short: "Show the definition and type of the token at a byte offset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			off, err := parseOffset(args[1])
			if err != nil {
				return err
			}
			ix, err := a.open()
			if err != nil {
				return err
			}
			key, src, err := a.readSource(args[0])
			if err != nil {
				return err
			}
			sess, err := ix.Session(cmd.Context(), key)
			if err != nil {
				return err
			}
			opts := append(a.analysisOptions(), infer.WithResolver(sess))
			def, err := infer.FindDefinition(src, off, opts...)
			if err != nil {
				return err
			}
			if a.flags.json {
				return a.printJSON(def)
			}
			if def == nil {
				fmt.Fprintln(a.stdout, "no definition")
				return nil
			}
			fmt.Fprintln(a.stdout, def.Hover)
			if def.Range != nil {
				path := def.Path
				if path == "" {
					path = key
				}
				fmt.Fprintf(a.stdout, "%s:%d-%d\n", path, def.Range.Start, def.Range.End)
			}
			return nil
		},
	}
}

func newRefsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refs <file> <offset>",
		Short: "List the references to the variable at a byte offset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			off, err := parseOffset(args[1])
			if err != nil {
				return err
			}
			_, src, err := a.readSource(args[0])
			if err != nil {
				return err
			}
			ranges, err := refs.FindVarReferences(src, model.Range{Start: off, End: off}, a.parseOptions()...)
			if err != nil {
				return err
			}
			if a.flags.json {
				if ranges == nil {
					ranges = []model.Range{}
				}
				return a.printJSON(ranges)
			}
			for _, r := range ranges {
				fmt.Fprintf(a.stdout, "%d-%d %s\n", r.Start, r.End, src[r.Start:r.End])
			}
			return nil
		},
	}
}

type fileDiagnostics struct {
	Path        string             `json:"path"`
	Diagnostics []model.Diagnostic `json:"diagnostics"`
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file...>",
		Short: "Report module specifiers that do not resolve",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ix, err := a.open()
			if err != nil {
				return err
			}
			results := make([]fileDiagnostics, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			if a.cfg.Workers > 0 {
				g.SetLimit(a.cfg.Workers)
			}
			for i, name := range args {
				g.Go(func() error {
					key, src, err := a.readSource(name)
					if err != nil {
						return err
					}
					sess, err := ix.Session(ctx, key)
					if err != nil {
						return err
					}
					diags, err := verify.CheckModules(src, sess, a.parseOptions()...)
					if err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}
					results[i] = fileDiagnostics{Path: key, Diagnostics: diags}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			problems := 0
			for _, r := range results {
				problems += len(r.Diagnostics)
			}
			if a.flags.json {
				if err := a.printJSON(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					for _, d := range r.Diagnostics {
						fmt.Fprintf(a.stdout, "%s:%d: %s: %s\n", r.Path, d.Line, d.Severity, d.Description)
					}
				}
			}
			if problems > 0 {
				return fmt.Errorf("%d %w", problems, errProblems)
			}
			return nil
		},
	}
}

func newSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <file>",
		Short: "Print the persisted summary of an indexed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ix, err := a.open()
			if err != nil {
				return err
			}
			p := args[0]
			if !filepath.IsAbs(p) {
				p = filepath.Join(a.root, p)
			}
			key, err := a.rel(p)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := ix.CheckEntry(ctx, key); err != nil {
				if !errors.Is(err, indexer.ErrStaleIndex) {
					return err
				}
				a.logger.Warn("summary is stale; re-run jsguide index", "path", key)
			}
			sum, err := ix.Summary(ctx, key)
			if err != nil {
				return err
			}
			if a.flags.json {
				return a.printJSON(sum)
			}
			fmt.Fprintf(a.stdout, "%s (%s)\n", key, sum.Kind)
			if sum.Exported != "" {
				fmt.Fprintf(a.stdout, "  exports :: %s\n", infer.RenderSummaryType(sum, sum.Exported))
			}
			names := make([]string, 0, len(sum.Provided))
			for n := range sum.Provided {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(a.stdout, "  %s :: %s\n", n, infer.RenderSummaryType(sum, sum.Provided[n].TypeName))
			}
			return nil
		},
	}
}

type mapFlags struct {
	maxFiles int
	file     string
	symbol   string
	noTests  bool
	reindex  bool
	raw      bool
}

func newMapCmd(a *app) *cobra.Command {
	var f mapFlags
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Print a ranked TOON map of the indexed project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if f.reindex {
				if _, err := a.indexEntries(ctx, nil); err != nil {
					return err
				}
			}
			pm, err := a.projectMap(ctx)
			if err != nil {
				return err
			}
			if f.noTests {
				pm = ranking.Exclude(pm, discover.IsTestFile)
			}
			if f.file != "" {
				pm = ranking.FilterByFile(pm, f.file)
			}
			if f.symbol != "" {
				pm = ranking.FilterBySymbol(pm, f.symbol)
			}
			pm = ranking.SelectFiles(pm, f.maxFiles)

			out := toon.Encode(pm)
			if !f.raw {
				out = mapHeader + out
			}
			fmt.Fprintln(a.stdout, out)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.IntVarP(&f.maxFiles, "max-files", "n", 0, "maximum number of files to include")
	fl.StringVar(&f.file, "file", "", "keep files whose path contains this text")
	fl.StringVar(&f.symbol, "symbol", "", "keep files providing a member whose name contains this text")
	fl.BoolVar(&f.noTests, "no-tests", false, "leave out test files")
	fl.BoolVar(&f.reindex, "index", false, "index every file before mapping")
	fl.BoolVar(&f.raw, "raw", false, "omit the explanatory header")
	return cmd
}

const mapHeader = `# Project Map
# files are ranked by how often other files depend on them; symbols are the
# members each file provides with inferred types; dependencies list the
# specifiers each file resolves to another.
`

// projectMap assembles every persisted summary and dependency record into a
// ranked map.
func (a *app) projectMap(ctx context.Context) (*model.ProjectMap, error) {
	ix, err := a.open()
	if err != nil {
		return nil, err
	}
	paths, err := ix.Paths(ctx)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("nothing indexed; run jsguide index first")
	}

	files := make([]model.FileInfo, 0, len(paths))
	records := make([]*model.DependencyRecord, 0, len(paths))
	for _, p := range paths {
		sum, err := ix.Summary(ctx, p)
		if err != nil {
			return nil, err
		}
		rec, err := ix.Dependencies(ctx, p)
		if err != nil {
			return nil, err
		}
		files = append(files, model.FileInfo{Path: p, Kind: sum.Kind, Summary: sum})
		records = append(records, rec)
	}
	deps := graph.BuildGraph(records)
	graph.Rank(files, deps)

	return &model.ProjectMap{
		Name:         filepath.Base(a.root),
		Root:         filepath.Base(a.root),
		Files:        files,
		Dependencies: deps,
	}, nil
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <entry>",
		Short: "Re-index from an entry file whenever sources change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ix, err := a.open()
			if err != nil {
				return err
			}
			p := args[0]
			if !filepath.IsAbs(p) {
				p = filepath.Join(a.root, p)
			}
			entry, err := a.rel(p)
			if err != nil {
				return err
			}
			w, err := watch.New(a.root, func(ctx context.Context) error {
				_, err := ix.Run(ctx, entry)
				return err
			}, watch.Options{Extensions: a.cfg.Extensions, Logger: a.logger})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.logger.Info("watching", "root", a.root, "entry", entry)
			return w.Run(ctx)
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	var addr string
	var trace bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve analysis queries over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ix, err := a.open()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("addr") {
				addr = a.cfg.Server.Addr
			}
			if trace || a.cfg.Server.Trace {
				shutdown, err := server.SetupTracing(a.stderr)
				if err != nil {
					return err
				}
				defer func() {
					if err := shutdown(context.Background()); err != nil {
						a.logger.Warn("flushing spans", "error", err)
					}
				}()
			}
			srv := server.New(ix, server.Options{
				Logger:      a.logger,
				Metrics:     a.cfg.Server.Metrics,
				Browser:     a.cfg.Browser,
				MaxFileSize: a.cfg.MaxFileSize,
				PathKey:     a.resolver.Rel,
				Debug:       a.cfg.SlogLevel() <= slog.LevelDebug,
			})
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&trace, "trace", false, "write OpenTelemetry spans to stderr")
	return cmd
}
