package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phobologic/jsguide/internal/model"
)

// Session answers cross-file questions on behalf of one file. It carries
// that file's dependency record by value and implements infer.Resolver.
type Session struct {
	// ctx bounds the store reads the session performs for a single
	// analysis call.
	ctx    context.Context
	ix     *Indexer
	record model.DependencyRecord
}

// Session opens a session for path. A file that has not been indexed gets
// an empty dependency record, so every specifier is unresolved.
func (ix *Indexer) Session(ctx context.Context, path string) (*Session, error) {
	rec, err := ix.Dependencies(ctx, path)
	switch {
	case errors.Is(err, ErrNotIndexed):
		rec = &model.DependencyRecord{Path: path, Refs: map[string]model.DependencyRef{}}
	case err != nil:
		return nil, err
	}
	return &Session{ctx: ctx, ix: ix, record: *rec}, nil
}

// Path returns the file the session was opened for.
func (s *Session) Path() string {
	return s.record.Path
}

// Record returns the session's dependency record.
func (s *Session) Record() model.DependencyRecord {
	return s.record
}

// HasDependency returns the resolved path of spec.
func (s *Session) HasDependency(spec string) (string, bool) {
	ref, ok := s.record.Refs[spec]
	if !ok || ref.Path == "" {
		return "", false
	}
	return ref.Path, true
}

// RetrieveSummary returns the summary of the file spec resolves to, named
// by spec. An unknown specifier yields nil. A target that was never indexed
// is derived from its contents without being persisted. Staleness is only
// logged; CheckEntry is the place to act on it.
func (s *Session) RetrieveSummary(spec string) (*model.Summary, error) {
	path, ok := s.HasDependency(spec)
	if !ok {
		return nil, nil
	}
	sum, err := s.ix.Summary(s.ctx, path)
	switch {
	case errors.Is(err, ErrNotIndexed):
		sum, err = s.ix.derive(s.ctx, path)
		if err != nil {
			return nil, fmt.Errorf("deriving summary of %s: %w", path, err)
		}
		summaryLookupsTotal.WithLabelValues("derived").Inc()
	case err != nil:
		return nil, err
	default:
		if err := s.ix.CheckEntry(s.ctx, path); errors.Is(err, ErrStaleIndex) {
			s.ix.logger.Warn("using stale summary", slog.String("path", path), slog.String("from", s.record.Path))
		}
	}
	sum.Name = spec
	return sum, nil
}

// GlobalSummaries returns the persisted summaries of every global-kind
// file other than the session's own, keyed by path.
func (s *Session) GlobalSummaries() (map[string]*model.Summary, error) {
	paths, err := s.ix.Paths(s.ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.Summary)
	for _, p := range paths {
		if p == s.record.Path {
			continue
		}
		sum, err := s.ix.Summary(s.ctx, p)
		if err != nil {
			return nil, err
		}
		if sum.Kind == model.Global {
			out[p] = sum
		}
	}
	return out, nil
}
