package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/jsguide/internal/depgraph"
	"github.com/phobologic/jsguide/internal/indexer"
	"github.com/phobologic/jsguide/internal/infer"
	"github.com/phobologic/jsguide/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	mainSrc  = "define(['file1'], function(f1){ f1.val1; });"
	file1Src = "var val1 = 1;"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	for name, src := range map[string]string{"main.js": mainSrc, "file1.js": file1Src} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res, err := depgraph.New(dir, depgraph.Options{Logger: logger})
	if err != nil {
		t.Fatalf("depgraph.New: %v", err)
	}
	ix, err := indexer.New(indexer.NewMemStore(), res, indexer.WithLogger(logger))
	if err != nil {
		t.Fatalf("indexer.New: %v", err)
	}
	t.Cleanup(ix.Close)
	return New(ix, Options{Logger: logger, Metrics: true, PathKey: res.Rel})
}

func do(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return v
}

func indexMain(t *testing.T, s *Server) IndexResponse {
	t.Helper()
	w := do(t, s, http.MethodPost, "/v1/index", IndexRequest{Entry: "main.js"})
	if w.Code != http.StatusOK {
		t.Fatalf("index status = %d, body %s", w.Code, w.Body)
	}
	return decode[IndexResponse](t, w)
}

func TestIndex(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	first := indexMain(t, s)
	if first.RunID == "" {
		t.Error("missing run id")
	}
	if diff := cmp.Diff([]string{"file1.js", "main.js"}, first.Written); diff != "" {
		t.Errorf("written mismatch (-want +got):\n%s", diff)
	}

	second := indexMain(t, s)
	if len(second.Written) != 0 {
		t.Errorf("second run wrote %v", second.Written)
	}
	if diff := cmp.Diff([]string{"file1.js", "main.js"}, second.Unchanged); diff != "" {
		t.Errorf("unchanged mismatch (-want +got):\n%s", diff)
	}
}

func TestIndexBadRequest(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/v1/index", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := decode[ErrorResponse](t, w); got.Code != "INVALID_REQUEST" {
		t.Errorf("code = %q", got.Code)
	}

	w = do(t, s, http.MethodPost, "/v1/index", IndexRequest{Entry: "../outside.js"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("outside root: status = %d, want 400", w.Code)
	}
}

func TestDefinitionAcrossFiles(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	indexMain(t, s)

	w := do(t, s, http.MethodPost, "/v1/definition", DefinitionRequest{
		Path:   "main.js",
		Buffer: mainSrc,
		Offset: strings.Index(mainSrc, "val1") + 1,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	got := decode[DefinitionResponse](t, w)
	want := &model.Definition{
		TypeName: infer.Number,
		Path:     "file1.js",
		Range:    &model.Range{Start: 4, End: 8},
		Hover:    "val1 :: Number",
	}
	if diff := cmp.Diff(want, got.Definition); diff != "" {
		t.Errorf("definition mismatch (-want +got):\n%s", diff)
	}
}

func TestDefinitionNothingThere(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/v1/definition", DefinitionRequest{Buffer: "var a = 1;", Offset: 9})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if got := decode[DefinitionResponse](t, w); got.Definition != nil {
		t.Errorf("definition = %+v, want nil", got.Definition)
	}
}

func TestSyntaxError(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/v1/definition", DefinitionRequest{Buffer: "var = ;;(", Offset: 0})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if got := decode[ErrorResponse](t, w); got.Code != "SYNTAX_ERROR" {
		t.Errorf("code = %q", got.Code)
	}
}

func TestReferences(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	src := "var hhh = 1; hhh + hhh;"
	w := do(t, s, http.MethodPost, "/v1/references", ReferencesRequest{Buffer: src, Start: 4, End: 7})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	got := decode[ReferencesResponse](t, w)
	want := []model.Range{{Start: 4, End: 7}, {Start: 13, End: 16}, {Start: 19, End: 22}}
	if diff := cmp.Diff(want, got.Ranges); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}

	w = do(t, s, http.MethodPost, "/v1/references", ReferencesRequest{Buffer: src, Start: 7, End: 4})
	if w.Code != http.StatusBadRequest {
		t.Errorf("inverted selection: status = %d, want 400", w.Code)
	}
}

func TestDiagnostics(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	indexMain(t, s)

	buf := "define(['file1', 'gone'], function(f1, g){});"
	w := do(t, s, http.MethodPost, "/v1/diagnostics", DiagnosticsRequest{Path: "main.js", Buffer: buf})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	got := decode[DiagnosticsResponse](t, w)
	start := strings.Index(buf, "'gone'")
	want := []model.Diagnostic{{
		Description: "Cannot find module 'gone'",
		Line:        1,
		Severity:    model.SeverityError,
		Start:       start,
		End:         start + len("'gone'"),
	}}
	if diff := cmp.Diff(want, got.Diagnostics); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestModulePath(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	indexMain(t, s)

	start := strings.Index(mainSrc, "file1")
	w := do(t, s, http.MethodPost, "/v1/module-path", ModulePathRequest{
		Path: "main.js", Buffer: mainSrc, Start: start, End: start + 2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	got := decode[ModulePathResponse](t, w)
	if got.ModulePath == nil || got.ModulePath.Path != "file1.js" {
		t.Errorf("module path = %+v, want file1.js", got.ModulePath)
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := do(t, s, http.MethodGet, "/v1/summary?path=file1.js", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("before index: status = %d, want 404", w.Code)
	}

	indexMain(t, s)
	w = do(t, s, http.MethodGet, "/v1/summary?path=file1.js", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	got := decode[SummaryResponse](t, w)
	if got.Stale {
		t.Error("fresh summary reported stale")
	}
	if e, ok := got.Summary.Provided["val1"]; !ok || e.TypeName != infer.Number {
		t.Errorf("provided = %+v, want val1 :: Number", got.Summary.Provided)
	}

	w = do(t, s, http.MethodGet, "/v1/summary", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing path: status = %d, want 400", w.Code)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want echoed", got)
	}

	w = do(t, s, http.MethodGet, "/v1/health", nil)
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("no request id assigned")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	do(t, s, http.MethodGet, "/v1/health", nil)

	w := do(t, s, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "jsguide_server_requests_total") {
		t.Error("server metrics not exported")
	}
}
