// Package server exposes the analysis operations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/phobologic/jsguide/internal/indexer"
)

// Options configures a Server.
type Options struct {
	Logger *slog.Logger
	// Metrics mounts the Prometheus handler at /metrics.
	Metrics bool
	// Browser forces the browser global context in every buffer.
	Browser bool
	// MaxFileSize bounds request buffers; zero keeps the parser default.
	MaxFileSize int
	// PathKey maps a request path to the key the index uses. Nil keeps
	// paths unchanged.
	PathKey func(string) (string, error)
	// Debug enables gin's request logger.
	Debug bool
}

// Server answers analysis queries against one index.
type Server struct {
	ix     *indexer.Indexer
	opts   Options
	logger *slog.Logger
	router *gin.Engine
	// indexMu serialises index runs; concurrent runs would race writes to
	// the same keys.
	indexMu sync.Mutex
}

// New builds the router.
func New(ix *indexer.Indexer, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PathKey == nil {
		opts.PathKey = func(p string) (string, error) { return p, nil }
	}
	s := &Server{ix: ix, opts: opts, logger: opts.Logger}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("jsguide"))
	router.Use(requestID())
	router.Use(observe())
	if opts.Debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/index", s.handleIndex)
		v1.POST("/definition", s.handleDefinition)
		v1.POST("/references", s.handleReferences)
		v1.POST("/diagnostics", s.handleDiagnostics)
		v1.POST("/module-path", s.handleModulePath)
		v1.GET("/summary", s.handleSummary)
		v1.GET("/health", s.handleHealth)
	}
	if opts.Metrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

const requestIDHeader = "X-Request-ID"

// requestID propagates the caller's request id or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return s.logger.With(slog.String("request_id", c.GetString("request_id")), slog.String("handler", handler))
}
