package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/jsguide/internal/infer"
	"github.com/phobologic/jsguide/internal/model"
)

type fakeResolver struct {
	files map[string]string
	refs  map[string]map[string]string
}

func (f *fakeResolver) Resolve(_ context.Context, root string) (map[string]*model.DependencyRecord, error) {
	if _, ok := f.files[root]; !ok {
		return nil, fmt.Errorf("no such file %s", root)
	}
	out := make(map[string]*model.DependencyRecord)
	queue := []string{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if _, seen := out[p]; seen {
			continue
		}
		rec := &model.DependencyRecord{Path: p, Refs: map[string]model.DependencyRef{}}
		for spec, target := range f.refs[p] {
			rec.Refs[spec] = model.DependencyRef{Path: target}
			queue = append(queue, target)
		}
		out[p] = rec
	}
	return out, nil
}

func (f *fakeResolver) Contents(_ context.Context, path string) (string, error) {
	src, ok := f.files[path]
	if !ok {
		return "", fmt.Errorf("no such file %s", path)
	}
	return src, nil
}

func sampleResolver() *fakeResolver {
	return &fakeResolver{
		files: map[string]string{
			"main":  "define(['file1'], function(f1){ f1.val1; });",
			"file1": "var val1 = 1;",
		},
		refs: map[string]map[string]string{
			"main": {"file1": "file1"},
		},
	}
}

type fixedClock struct {
	ms atomic.Int64
}

func (c *fixedClock) now() time.Time {
	return time.UnixMilli(c.ms.Load())
}

func newTestIndexer(t *testing.T, store Store, res DependencyResolver, clock *fixedClock) *Indexer {
	t.Helper()
	ix, err := New(store, res,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(clock.now),
		WithWorkers(2),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(ix.Close)
	return ix
}

func snapshot(t *testing.T, s Store) map[string]string {
	t.Helper()
	ctx := context.Background()
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, _, err := s.Get(ctx, k)
		if err != nil {
			t.Fatalf("Get(%s): %v", k, err)
		}
		out[k] = v
	}
	return out
}

func TestIndexPersistsFourKeysPerFile(t *testing.T) {
	t.Parallel()
	store := NewMemStore()
	clock := &fixedClock{}
	clock.ms.Store(1000)
	ix := newTestIndexer(t, store, sampleResolver(), clock)

	if err := ix.Index(context.Background(), "main"); err != nil {
		t.Fatalf("Index: %v", err)
	}

	got := snapshot(t, store)
	var keys []string
	for k := range got {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{
		"file1-deps", "file1-deps-ts", "file1-summary", "file1-summary-ts",
		"main-deps", "main-deps-ts", "main-summary", "main-summary-ts",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if got["main-summary-ts"] != "1000" || got["file1-deps-ts"] != "1000" {
		t.Errorf("timestamps = %q, %q", got["main-summary-ts"], got["file1-deps-ts"])
	}
	if !strings.Contains(got["main-deps"], `"file1":{"kind":"global","name":"file1","path":"file1"}`) {
		t.Errorf("main-deps = %s", got["main-deps"])
	}
	if !strings.Contains(got["main-deps"], `"kind":"AMD"`) {
		t.Errorf("main-deps kind missing: %s", got["main-deps"])
	}
}

func TestIndexIsIdempotent(t *testing.T) {
	t.Parallel()
	store := NewMemStore()
	clock := &fixedClock{}
	clock.ms.Store(1000)
	ix := newTestIndexer(t, store, sampleResolver(), clock)
	ctx := context.Background()

	if _, err := ix.Run(ctx, "main"); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before := snapshot(t, store)
	writes := store.Writes()

	clock.ms.Store(5000)
	report, err := ix.Run(ctx, "main")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if diff := cmp.Diff(before, snapshot(t, store)); diff != "" {
		t.Errorf("store changed on second run (-before +after):\n%s", diff)
	}
	if store.Writes() != writes {
		t.Errorf("writes = %d, want %d", store.Writes(), writes)
	}
	if diff := cmp.Diff([]string{"file1", "main"}, report.Unchanged); diff != "" {
		t.Errorf("unchanged mismatch (-want +got):\n%s", diff)
	}
	if len(report.Written) != 0 {
		t.Errorf("written = %v", report.Written)
	}
}

func TestIndexRewritesChangedFile(t *testing.T) {
	t.Parallel()
	store := NewMemStore()
	clock := &fixedClock{}
	clock.ms.Store(1000)
	res := sampleResolver()
	ix := newTestIndexer(t, store, res, clock)
	ctx := context.Background()

	if err := ix.Index(ctx, "main"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	res.files["file1"] = "var val1 = 'now a string';"
	clock.ms.Store(2000)
	report, err := ix.Run(ctx, "main")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"file1"}, report.Written); diff != "" {
		t.Errorf("written mismatch (-want +got):\n%s", diff)
	}
	s, err := ix.Summary(ctx, "file1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if s.Provided["val1"].TypeName != infer.String {
		t.Errorf("val1 = %+v", s.Provided["val1"])
	}
	if err := ix.CheckEntry(ctx, "file1"); err != nil {
		t.Errorf("CheckEntry: %v", err)
	}
}

func TestIndexSkipsBrokenFiles(t *testing.T) {
	t.Parallel()
	store := NewMemStore()
	res := sampleResolver()
	res.files["file1"] = "var = ;"
	ix := newTestIndexer(t, store, res, &fixedClock{})

	report, err := ix.Run(context.Background(), "main")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := report.Failed["file1"]; !ok {
		t.Fatalf("failed = %v, want file1", report.Failed)
	}
	if _, ok, _ := store.Get(context.Background(), "file1-summary"); ok {
		t.Error("broken file has a persisted summary")
	}
	if diff := cmp.Diff([]string{"main"}, report.Written); diff != "" {
		t.Errorf("written mismatch (-want +got):\n%s", diff)
	}
}

func TestIndexUnresolvableEntry(t *testing.T) {
	t.Parallel()
	ix := newTestIndexer(t, NewMemStore(), sampleResolver(), &fixedClock{})
	if err := ix.Index(context.Background(), "nope"); err == nil {
		t.Fatal("expected error")
	}
}

func TestPerformIndexCallsOnDone(t *testing.T) {
	t.Parallel()
	ix := newTestIndexer(t, NewMemStore(), sampleResolver(), &fixedClock{})
	done := make(chan error, 1)
	ix.PerformIndex(context.Background(), "main", func(err error) { done <- err })
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("onDone: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("onDone not called")
	}
	if err := ix.CheckEntry(context.Background(), "main"); err != nil {
		t.Errorf("CheckEntry: %v", err)
	}
}

func TestCheckEntry(t *testing.T) {
	t.Parallel()
	store := NewMemStore()
	clock := &fixedClock{}
	clock.ms.Store(1000)
	ix := newTestIndexer(t, store, sampleResolver(), clock)
	ctx := context.Background()

	if err := ix.CheckEntry(ctx, "main"); !errors.Is(err, ErrNotIndexed) {
		t.Errorf("before index: err = %v, want ErrNotIndexed", err)
	}
	if err := ix.Index(ctx, "main"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := ix.CheckEntry(ctx, "main"); err != nil {
		t.Errorf("after index: err = %v", err)
	}
	if err := store.Put(ctx, "main-deps-ts", "1001"); err != nil {
		t.Fatal(err)
	}
	if err := ix.CheckEntry(ctx, "main"); !errors.Is(err, ErrStaleIndex) {
		t.Errorf("newer deps: err = %v, want ErrStaleIndex", err)
	}
}

func TestSession(t *testing.T) {
	t.Parallel()
	ix := newTestIndexer(t, NewMemStore(), sampleResolver(), &fixedClock{})
	ctx := context.Background()
	if err := ix.Index(ctx, "main"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	sess, err := ix.Session(ctx, "main")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}

	if p, ok := sess.HasDependency("file1"); !ok || p != "file1" {
		t.Errorf("HasDependency(file1) = %q, %v", p, ok)
	}
	if _, ok := sess.HasDependency("missing/mod"); ok {
		t.Error("HasDependency(missing/mod) = true")
	}

	s, err := sess.RetrieveSummary("file1")
	if err != nil {
		t.Fatalf("RetrieveSummary: %v", err)
	}
	want := &model.Summary{
		Kind:     model.Global,
		Name:     "file1",
		Provided: map[string]model.Entry{"val1": {TypeName: infer.Number, Path: "file1", Range: &model.Range{Start: 4, End: 8}}},
		Types:    map[string]map[string]model.Entry{},
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	none, err := sess.RetrieveSummary("missing/mod")
	if err != nil || none != nil {
		t.Errorf("RetrieveSummary(missing/mod) = %v, %v", none, err)
	}
}

func TestSessionRenamesPerSpecifier(t *testing.T) {
	t.Parallel()
	res := sampleResolver()
	res.refs["main"]["./file1"] = "file1"
	ix := newTestIndexer(t, NewMemStore(), res, &fixedClock{})
	ctx := context.Background()
	if err := ix.Index(ctx, "main"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	sess, err := ix.Session(ctx, "main")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	a, err := sess.RetrieveSummary("file1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := sess.RetrieveSummary("./file1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Name != "file1" || b.Name != "./file1" {
		t.Errorf("names = %q, %q", a.Name, b.Name)
	}
}

func TestSessionDerivesUnindexedTarget(t *testing.T) {
	t.Parallel()
	store := NewMemStore()
	ix := newTestIndexer(t, store, sampleResolver(), &fixedClock{})
	ctx := context.Background()
	rec := `{"path":"main","kind":"AMD","refs":{"file1":{"kind":"global","name":"file1","path":"file1"}}}`
	if err := store.Put(ctx, "main-deps", rec); err != nil {
		t.Fatal(err)
	}
	sess, err := ix.Session(ctx, "main")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	s, err := sess.RetrieveSummary("file1")
	if err != nil {
		t.Fatalf("RetrieveSummary: %v", err)
	}
	if s.Provided["val1"].TypeName != infer.Number {
		t.Errorf("val1 = %+v", s.Provided["val1"])
	}
	if _, ok, _ := store.Get(ctx, "file1-summary"); ok {
		t.Error("derived summary was persisted")
	}
}

func TestSessionForUnindexedFile(t *testing.T) {
	t.Parallel()
	ix := newTestIndexer(t, NewMemStore(), sampleResolver(), &fixedClock{})
	sess, err := ix.Session(context.Background(), "scratch.js")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if sess.Path() != "scratch.js" {
		t.Errorf("Path = %q", sess.Path())
	}
	if _, ok := sess.HasDependency("file1"); ok {
		t.Error("unindexed file has dependencies")
	}
}

func TestGlobalSummaries(t *testing.T) {
	t.Parallel()
	ix := newTestIndexer(t, NewMemStore(), sampleResolver(), &fixedClock{})
	ctx := context.Background()
	if err := ix.Index(ctx, "main"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	sess, err := ix.Session(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	globals, err := sess.GlobalSummaries()
	if err != nil {
		t.Fatalf("GlobalSummaries: %v", err)
	}
	if len(globals) != 1 || globals["file1"] == nil {
		t.Fatalf("globals = %v", globals)
	}

	own, err := ix.Session(ctx, "file1")
	if err != nil {
		t.Fatal(err)
	}
	globals, err = own.GlobalSummaries()
	if err != nil {
		t.Fatal(err)
	}
	if len(globals) != 0 {
		t.Errorf("own file included: %v", globals)
	}
}

func TestCrossFileDefinition(t *testing.T) {
	t.Parallel()
	res := sampleResolver()
	ix := newTestIndexer(t, NewMemStore(), res, &fixedClock{})
	ctx := context.Background()
	if err := ix.Index(ctx, "main"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	sess, err := ix.Session(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	src := res.files["main"]
	off := strings.Index(src, "val1") + 1
	def, err := infer.FindDefinition(src, off, infer.WithResolver(sess))
	if err != nil {
		t.Fatalf("FindDefinition: %v", err)
	}
	want := &model.Definition{
		TypeName: infer.Number,
		Path:     "file1",
		Range:    &model.Range{Start: 4, End: 8},
		Hover:    "val1 :: Number",
	}
	if diff := cmp.Diff(want, def); diff != "" {
		t.Errorf("definition mismatch (-want +got):\n%s", diff)
	}
}

func TestSummaryNotIndexed(t *testing.T) {
	t.Parallel()
	ix := newTestIndexer(t, NewMemStore(), sampleResolver(), &fixedClock{})
	if _, err := ix.Summary(context.Background(), "main"); !errors.Is(err, ErrNotIndexed) {
		t.Errorf("err = %v, want ErrNotIndexed", err)
	}
	if _, err := ix.Dependencies(context.Background(), "main"); !errors.Is(err, ErrNotIndexed) {
		t.Errorf("err = %v, want ErrNotIndexed", err)
	}
}

func TestPaths(t *testing.T) {
	t.Parallel()
	ix := newTestIndexer(t, NewMemStore(), sampleResolver(), &fixedClock{})
	ctx := context.Background()
	if err := ix.Index(ctx, "main"); err != nil {
		t.Fatal(err)
	}
	paths, err := ix.Paths(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"file1", "main"}, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRejectsNil(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, sampleResolver()); err == nil {
		t.Error("nil store accepted")
	}
	if _, err := New(NewMemStore(), nil); err == nil {
		t.Error("nil resolver accepted")
	}
}
