// Package indexer computes and persists per-file summaries and dependency
// records for every file reachable from an entry file, and serves them back
// to analysis sessions.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phobologic/jsguide/internal/infer"
	"github.com/phobologic/jsguide/internal/model"
)

var tracer = otel.Tracer("github.com/phobologic/jsguide/internal/indexer")

var (
	// ErrNotIndexed is returned when a path has no persisted summary.
	ErrNotIndexed = errors.New("file is not indexed")
	// ErrStaleIndex is returned when a summary is older than the
	// dependency record it was computed against.
	ErrStaleIndex = errors.New("index is stale")
)

// Key suffixes of the four records persisted per file.
const (
	summarySuffix   = "-summary"
	summaryTsSuffix = "-summary-ts"
	depsSuffix      = "-deps"
	depsTsSuffix    = "-deps-ts"
)

// DependencyResolver walks the dependency graph and reads file contents.
type DependencyResolver interface {
	// Resolve returns the dependency record of every file reachable from
	// root, keyed by path.
	Resolve(ctx context.Context, root string) (map[string]*model.DependencyRecord, error)
	// Contents returns the text of path.
	Contents(ctx context.Context, path string) (string, error)
}

// Report describes one completed index run.
type Report struct {
	RunID     string
	Entry     string
	Written   []string
	Unchanged []string
	Failed    map[string]error
}

// Indexer persists summaries through a Store.
type Indexer struct {
	store    Store
	resolver DependencyResolver
	logger   *slog.Logger
	now      func() time.Time
	workers  int
	analysis []infer.Option
	cache    *ristretto.Cache[string, *model.Summary]
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) {
		ix.logger = l
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(ix *Indexer) {
		ix.now = now
	}
}

// WithWorkers bounds the number of files analysed concurrently.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		ix.workers = n
	}
}

// WithAnalysisOptions passes options through to every summary computation.
func WithAnalysisOptions(opts ...infer.Option) Option {
	return func(ix *Indexer) {
		ix.analysis = append(ix.analysis, opts...)
	}
}

// New returns an Indexer writing to store and walking files with resolver.
func New(store Store, resolver DependencyResolver, opts ...Option) (*Indexer, error) {
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver must not be nil")
	}
	ix := &Indexer{
		store:    store,
		resolver: resolver,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.workers <= 0 {
		ix.workers = runtime.GOMAXPROCS(0)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *model.Summary]{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating summary cache: %w", err)
	}
	ix.cache = cache
	return ix, nil
}

// Close releases the summary cache. The store is owned by the caller.
func (ix *Indexer) Close() {
	ix.cache.Close()
}

// Index walks the graph reachable from entry and persists a summary and
// dependency record for every file. Files that fail to analyse are skipped
// and logged; Index only fails when the graph itself cannot be resolved or
// the store rejects a write.
func (ix *Indexer) Index(ctx context.Context, entry string) error {
	_, err := ix.Run(ctx, entry)
	return err
}

// PerformIndex runs Index in the background and reports through onDone.
func (ix *Indexer) PerformIndex(ctx context.Context, entry string, onDone func(error)) {
	go func() {
		err := ix.Index(ctx, entry)
		if onDone != nil {
			onDone(err)
		}
	}()
}

// Run is Index returning the per-file outcome of the run.
func (ix *Indexer) Run(ctx context.Context, entry string) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), Entry: entry, Failed: make(map[string]error)}

	ctx, span := tracer.Start(ctx, "Indexer.Run",
		trace.WithAttributes(
			attribute.String("index.entry", entry),
			attribute.String("index.run_id", report.RunID),
		),
	)
	defer span.End()

	logger := ix.logger.With(slog.String("run_id", report.RunID), slog.String("entry", entry))

	records, err := ix.resolver.Resolve(ctx, entry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("resolving dependencies of %s: %w", entry, err)
	}

	paths := make([]string, 0, len(records))
	for p := range records {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	results := ix.summarizeConcurrent(ctx, paths)

	kinds := make(map[string]model.ModuleKind, len(results))
	for _, r := range results {
		if r.err == nil {
			kinds[r.path] = r.summary.Kind
		}
	}

	for _, r := range results {
		if r.err != nil {
			report.Failed[r.path] = r.err
			filesTotal.WithLabelValues("failed").Inc()
			logger.Warn("skipping file", slog.String("path", r.path), slog.String("error", r.err.Error()))
			continue
		}
		record := normalizeRecord(r.path, records[r.path], r.summary.Kind, kinds)
		written, err := ix.persist(ctx, r.path, r.summary, record)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if written {
			report.Written = append(report.Written, r.path)
			filesTotal.WithLabelValues("written").Inc()
		} else {
			report.Unchanged = append(report.Unchanged, r.path)
			filesTotal.WithLabelValues("unchanged").Inc()
		}
	}

	elapsed := time.Since(start)
	runSeconds.Observe(elapsed.Seconds())
	span.SetAttributes(
		attribute.Int("index.written", len(report.Written)),
		attribute.Int("index.unchanged", len(report.Unchanged)),
		attribute.Int("index.failed", len(report.Failed)),
	)
	logger.Info("index complete",
		slog.Int("files", len(paths)),
		slog.Int("written", len(report.Written)),
		slog.Int("unchanged", len(report.Unchanged)),
		slog.Int("failed", len(report.Failed)),
		slog.Duration("elapsed", elapsed),
	)
	return report, nil
}

type summaryResult struct {
	path    string
	summary *model.Summary
	err     error
}

// summarizeConcurrent computes summaries with a bounded worker pool.
// Results are returned in the order of paths.
func (ix *Indexer) summarizeConcurrent(ctx context.Context, paths []string) []summaryResult {
	type job struct {
		idx  int
		path string
	}

	numWorkers := min(ix.workers, len(paths))
	work := make(chan job, len(paths))
	out := make(chan struct {
		idx int
		res summaryResult
	}, len(paths))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range work {
				s, err := ix.derive(ctx, j.path)
				out <- struct {
					idx int
					res summaryResult
				}{j.idx, summaryResult{path: j.path, summary: s, err: err}}
			}
		}()
	}

	for i, p := range paths {
		work <- job{idx: i, path: p}
	}
	close(work)

	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]summaryResult, len(paths))
	for r := range out {
		results[r.idx] = r.res
	}
	return results
}

// derive reads path and computes its summary.
func (ix *Indexer) derive(ctx context.Context, path string) (*model.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := ix.resolver.Contents(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return infer.ComputeSummary(src, path, ix.analysis...)
}

// normalizeRecord fills the fields the resolver cannot know: the file's own
// module kind and the kinds of its targets.
func normalizeRecord(path string, rec *model.DependencyRecord, kind model.ModuleKind, kinds map[string]model.ModuleKind) *model.DependencyRecord {
	out := &model.DependencyRecord{Path: path, Kind: kind, Refs: make(map[string]model.DependencyRef)}
	if rec == nil {
		return out
	}
	for spec, ref := range rec.Refs {
		if k, ok := kinds[ref.Path]; ok {
			ref.Kind = k
		}
		if ref.Name == "" {
			ref.Name = spec
		}
		out.Refs[spec] = ref
	}
	return out
}

// persist writes the four records for path. Nothing is written when both
// JSON documents match what is already stored. When either changes, both
// timestamps are refreshed so the pair stays consistent.
func (ix *Indexer) persist(ctx context.Context, path string, s *model.Summary, rec *model.DependencyRecord) (bool, error) {
	summaryJSON, err := json.Marshal(s)
	if err != nil {
		return false, fmt.Errorf("encoding summary of %s: %w", path, err)
	}
	depsJSON, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encoding dependencies of %s: %w", path, err)
	}

	oldSummary, summaryOK, err := ix.store.Get(ctx, path+summarySuffix)
	if err != nil {
		return false, err
	}
	oldDeps, depsOK, err := ix.store.Get(ctx, path+depsSuffix)
	if err != nil {
		return false, err
	}
	if summaryOK && depsOK && oldSummary == string(summaryJSON) && oldDeps == string(depsJSON) {
		return false, nil
	}

	ts := strconv.FormatInt(ix.now().UnixMilli(), 10)
	writes := []struct{ key, value string }{
		{path + depsSuffix, string(depsJSON)},
		{path + depsTsSuffix, ts},
		{path + summarySuffix, string(summaryJSON)},
		{path + summaryTsSuffix, ts},
	}
	for _, w := range writes {
		if err := ix.store.Put(ctx, w.key, w.value); err != nil {
			return false, fmt.Errorf("persisting %s: %w", w.key, err)
		}
	}
	ix.cache.Del(path)
	return true, nil
}

// CheckEntry reports whether the persisted records for path are usable.
// It returns ErrNotIndexed when no summary exists and ErrStaleIndex when
// the summary predates the dependency record.
func (ix *Indexer) CheckEntry(ctx context.Context, path string) error {
	summaryTs, ok, err := ix.timestamp(ctx, path+summaryTsSuffix)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", path, ErrNotIndexed)
	}
	depsTs, ok, err := ix.timestamp(ctx, path+depsTsSuffix)
	if err != nil {
		return err
	}
	if ok && summaryTs < depsTs {
		return fmt.Errorf("%s: %w", path, ErrStaleIndex)
	}
	return nil
}

func (ix *Indexer) timestamp(ctx context.Context, key string) (int64, bool, error) {
	v, ok, err := ix.store.Get(ctx, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return ts, true, nil
}

// Summary returns the persisted summary of path, or ErrNotIndexed.
// The returned value is a private copy.
func (ix *Indexer) Summary(ctx context.Context, path string) (*model.Summary, error) {
	if s, ok := ix.cache.Get(path); ok {
		summaryLookupsTotal.WithLabelValues("cache").Inc()
		return cloneSummary(s), nil
	}
	raw, ok, err := ix.store.Get(ctx, path+summarySuffix)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotIndexed)
	}
	var s model.Summary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decoding summary of %s: %w", path, err)
	}
	summaryLookupsTotal.WithLabelValues("store").Inc()
	ix.cache.Set(path, &s, 1)
	return cloneSummary(&s), nil
}

// Dependencies returns the persisted dependency record of path, or
// ErrNotIndexed.
func (ix *Indexer) Dependencies(ctx context.Context, path string) (*model.DependencyRecord, error) {
	raw, ok, err := ix.store.Get(ctx, path+depsSuffix)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotIndexed)
	}
	var rec model.DependencyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decoding dependencies of %s: %w", path, err)
	}
	return &rec, nil
}

// Paths returns every path with a persisted summary, sorted.
func (ix *Indexer) Paths(ctx context.Context) ([]string, error) {
	keys, err := ix.store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, k := range keys {
		if p, ok := strings.CutSuffix(k, summarySuffix); ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// cloneSummary copies the top-level maps so callers may rename or extend a
// summary without touching the cached value.
func cloneSummary(s *model.Summary) *model.Summary {
	out := *s
	out.Provided = make(map[string]model.Entry, len(s.Provided))
	for k, v := range s.Provided {
		out.Provided[k] = v
	}
	out.Types = make(map[string]map[string]model.Entry, len(s.Types))
	for k, v := range s.Types {
		out.Types[k] = v
	}
	return &out
}
