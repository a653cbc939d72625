package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/phobologic/jsguide/internal/indexer"
	"github.com/phobologic/jsguide/internal/infer"
	"github.com/phobologic/jsguide/internal/model"
	"github.com/phobologic/jsguide/internal/parse"
	"github.com/phobologic/jsguide/internal/refs"
	"github.com/phobologic/jsguide/internal/verify"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// IndexRequest starts an index run from Entry.
type IndexRequest struct {
	Entry string `json:"entry" binding:"required"`
}

// IndexResponse summarises a finished run.
type IndexResponse struct {
	RunID     string            `json:"runId"`
	Entry     string            `json:"entry"`
	Written   []string          `json:"written"`
	Unchanged []string          `json:"unchanged"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// DefinitionRequest asks what the token at Offset in Buffer refers to.
// Path names the file the buffer belongs to and selects its dependencies.
type DefinitionRequest struct {
	Path   string `json:"path"`
	Buffer string `json:"buffer"`
	Offset int    `json:"offset" binding:"gte=0"`
}

// DefinitionResponse carries a nil Definition when nothing resolves.
type DefinitionResponse struct {
	Definition *model.Definition `json:"definition"`
}

// ReferencesRequest selects an identifier in Buffer.
type ReferencesRequest struct {
	Buffer string `json:"buffer"`
	Start  int    `json:"start" binding:"gte=0"`
	End    int    `json:"end" binding:"gtefield=Start"`
}

// ReferencesResponse lists every occurrence of the selected variable.
type ReferencesResponse struct {
	Ranges []model.Range `json:"ranges"`
}

// DiagnosticsRequest checks the module references of Buffer.
type DiagnosticsRequest struct {
	Path   string `json:"path"`
	Buffer string `json:"buffer"`
}

// DiagnosticsResponse lists the problems found.
type DiagnosticsResponse struct {
	Diagnostics []model.Diagnostic `json:"diagnostics"`
}

// ModulePathRequest asks which file the specifier literal spanning
// [Start, End] resolves to.
type ModulePathRequest struct {
	Path   string `json:"path"`
	Buffer string `json:"buffer"`
	Start  int    `json:"start" binding:"gte=0"`
	End    int    `json:"end" binding:"gtefield=Start"`
}

// ModulePathResponse carries a nil ModulePath when the literal is not a
// known dependency.
type ModulePathResponse struct {
	ModulePath *model.ModulePath `json:"modulePath"`
}

// SummaryResponse returns a persisted summary and whether it predates its
// dependency record.
type SummaryResponse struct {
	Path    string         `json:"path"`
	Stale   bool           `json:"stale"`
	Summary *model.Summary `json:"summary"`
}

func (s *Server) parseOptions() []parse.Option {
	if s.opts.MaxFileSize > 0 {
		return []parse.Option{parse.WithMaxFileSize(s.opts.MaxFileSize)}
	}
	return nil
}

func (s *Server) inferOptions(sess *indexer.Session) []infer.Option {
	opts := []infer.Option{infer.WithBrowser(s.opts.Browser), infer.WithResolver(sess)}
	if s.opts.MaxFileSize > 0 {
		opts = append(opts, infer.WithMaxFileSize(s.opts.MaxFileSize))
	}
	return opts
}

// session opens the dependency view of a request path. An empty path gets
// a session with no dependencies.
func (s *Server) session(c *gin.Context, path string) (*indexer.Session, bool) {
	key := path
	if path != "" {
		var err error
		key, err = s.opts.PathKey(path)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_PATH"})
			return nil, false
		}
	}
	sess, err := s.ix.Session(c.Request.Context(), key)
	if err != nil {
		s.fail(c, "session", err)
		return nil, false
	}
	return sess, true
}

func (s *Server) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return false
	}
	return true
}

// fail maps an analysis error to a status code and writes it.
func (s *Server) fail(c *gin.Context, handler string, err error) {
	var syntaxErr *parse.SyntaxError
	switch {
	case errors.As(err, &syntaxErr):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "SYNTAX_ERROR"})
	case errors.Is(err, parse.ErrFileTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error(), Code: "FILE_TOO_LARGE"})
	case errors.Is(err, indexer.ErrNotIndexed):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_INDEXED"})
	default:
		s.requestLogger(c, handler).Error("request failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "INTERNAL"})
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	var req IndexRequest
	if !s.bind(c, &req) {
		return
	}
	entry, err := s.opts.PathKey(req.Entry)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_PATH"})
		return
	}

	s.indexMu.Lock()
	report, err := s.ix.Run(c.Request.Context(), entry)
	s.indexMu.Unlock()
	if err != nil {
		s.fail(c, "index", err)
		return
	}

	resp := IndexResponse{
		RunID:     report.RunID,
		Entry:     report.Entry,
		Written:   nonNil(report.Written),
		Unchanged: nonNil(report.Unchanged),
	}
	if len(report.Failed) > 0 {
		resp.Failed = make(map[string]string, len(report.Failed))
		for p, ferr := range report.Failed {
			resp.Failed[p] = ferr.Error()
		}
	}
	s.requestLogger(c, "index").Info("index run finished",
		"run_id", report.RunID, "written", len(report.Written), "failed", len(report.Failed))
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDefinition(c *gin.Context) {
	var req DefinitionRequest
	if !s.bind(c, &req) {
		return
	}
	sess, ok := s.session(c, req.Path)
	if !ok {
		return
	}
	def, err := infer.FindDefinition(req.Buffer, req.Offset, s.inferOptions(sess)...)
	if err != nil {
		s.fail(c, "definition", err)
		return
	}
	c.JSON(http.StatusOK, DefinitionResponse{Definition: def})
}

func (s *Server) handleReferences(c *gin.Context) {
	var req ReferencesRequest
	if !s.bind(c, &req) {
		return
	}
	ranges, err := refs.FindVarReferences(req.Buffer, model.Range{Start: req.Start, End: req.End}, s.parseOptions()...)
	if err != nil {
		s.fail(c, "references", err)
		return
	}
	c.JSON(http.StatusOK, ReferencesResponse{Ranges: nonNil(ranges)})
}

func (s *Server) handleDiagnostics(c *gin.Context) {
	var req DiagnosticsRequest
	if !s.bind(c, &req) {
		return
	}
	sess, ok := s.session(c, req.Path)
	if !ok {
		return
	}
	diags, err := verify.CheckModules(req.Buffer, sess, s.parseOptions()...)
	if err != nil {
		s.fail(c, "diagnostics", err)
		return
	}
	c.JSON(http.StatusOK, DiagnosticsResponse{Diagnostics: nonNil(diags)})
}

func (s *Server) handleModulePath(c *gin.Context) {
	var req ModulePathRequest
	if !s.bind(c, &req) {
		return
	}
	sess, ok := s.session(c, req.Path)
	if !ok {
		return
	}
	mp, err := verify.FindModulePath(req.Buffer, sess, req.Start, req.End, s.parseOptions()...)
	if err != nil {
		s.fail(c, "module-path", err)
		return
	}
	c.JSON(http.StatusOK, ModulePathResponse{ModulePath: mp})
}

func (s *Server) handleSummary(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "path parameter is required", Code: "MISSING_PARAMETER"})
		return
	}
	key, err := s.opts.PathKey(path)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_PATH"})
		return
	}
	ctx := c.Request.Context()
	stale := false
	if err := s.ix.CheckEntry(ctx, key); err != nil {
		if !errors.Is(err, indexer.ErrStaleIndex) {
			s.fail(c, "summary", err)
			return
		}
		stale = true
	}
	sum, err := s.ix.Summary(ctx, key)
	if err != nil {
		s.fail(c, "summary", err)
		return
	}
	c.JSON(http.StatusOK, SummaryResponse{Path: key, Stale: stale, Summary: sum})
}

func (s *Server) handleHealth(c *gin.Context) {
	paths, err := s.ix.Paths(c.Request.Context())
	if err != nil {
		s.fail(c, "health", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "indexed": len(paths)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
