// Package depgraph resolves module specifiers against a project directory
// and walks the dependency graph reachable from an entry file.
package depgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/jsguide/internal/model"
	"github.com/phobologic/jsguide/internal/modspec"
	"github.com/phobologic/jsguide/internal/parse"
)

// Options configures a Resolver.
type Options struct {
	// BaseURL is the directory, relative to the root, that bare specifiers
	// resolve against.
	BaseURL string
	// Paths rewrites specifier prefixes before resolution.
	Paths map[string]string
	// MaxFileSize bounds the files Contents returns. Zero means
	// parse.DefaultMaxFileSize.
	MaxFileSize int
	// Workers bounds concurrent file reads. Zero means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// Resolver maps specifiers to files under a root directory. Paths it
// returns are slash separated and relative to the root.
type Resolver struct {
	root string
	opts Options
	// prefixes holds the Paths keys, longest first.
	prefixes []string
}

// New returns a Resolver for the project at root.
func New(root string, opts Options) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", root, err)
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = parse.DefaultMaxFileSize
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Resolver{root: abs, opts: opts}
	for p := range opts.Paths {
		r.prefixes = append(r.prefixes, p)
	}
	sort.Slice(r.prefixes, func(i, j int) bool {
		if len(r.prefixes[i]) != len(r.prefixes[j]) {
			return len(r.prefixes[i]) > len(r.prefixes[j])
		}
		return r.prefixes[i] < r.prefixes[j]
	})
	return r, nil
}

// Root returns the absolute project directory.
func (r *Resolver) Root() string {
	return r.root
}

// Rel converts a filesystem path to the root-relative form used as a key.
func (r *Resolver) Rel(p string) (string, error) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.root, p)
	}
	rel, err := filepath.Rel(r.root, p)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside %s", p, r.root)
	}
	return rel, nil
}

// ResolveSpecifier returns the file spec names when written in from, and
// whether that file exists.
func (r *Resolver) ResolveSpecifier(from, spec string) (string, bool) {
	if spec == "" {
		return "", false
	}
	var target string
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		target = path.Join(path.Dir(from), spec)
	} else {
		target = path.Join(filepath.ToSlash(r.opts.BaseURL), r.rewrite(spec))
	}
	if path.Ext(target) == "" {
		target += ".js"
	}
	if target == ".." || strings.HasPrefix(target, "../") || path.IsAbs(target) {
		return "", false
	}
	info, err := os.Stat(filepath.Join(r.root, filepath.FromSlash(target)))
	if err != nil || info.IsDir() {
		return "", false
	}
	return target, true
}

func (r *Resolver) rewrite(spec string) string {
	for _, prefix := range r.prefixes {
		key := strings.TrimSuffix(prefix, "/")
		repl := strings.TrimSuffix(r.opts.Paths[prefix], "/")
		if spec == key {
			return repl
		}
		if rest, ok := strings.CutPrefix(spec, key+"/"); ok {
			return repl + "/" + rest
		}
	}
	return spec
}

// Contents returns the text of the root-relative path p.
func (r *Resolver) Contents(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full := filepath.Join(r.root, filepath.FromSlash(p))
	info, err := os.Stat(full)
	if err != nil {
		return "", err
	}
	if info.Size() > int64(r.opts.MaxFileSize) {
		return "", fmt.Errorf("%s: %w", p, parse.ErrFileTooLarge)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Dependencies parses the file at p and resolves the specifiers it uses.
// Unresolvable specifiers are left out of the record.
func (r *Resolver) Dependencies(ctx context.Context, p string) (*model.DependencyRecord, error) {
	rec := &model.DependencyRecord{Path: p, Refs: make(map[string]model.DependencyRef)}
	src, err := r.Contents(ctx, p)
	if errors.Is(err, parse.ErrFileTooLarge) {
		r.opts.Logger.Warn("file too large for graph", slog.String("path", p))
		return rec, nil
	}
	if err != nil {
		return nil, err
	}
	prog, err := parse.ParseString(src, parse.WithMaxFileSize(r.opts.MaxFileSize))
	if err != nil {
		// Analysis reports the syntax error; the graph keeps the file as a
		// leaf.
		r.opts.Logger.Debug("unparseable file in graph", slog.String("path", p), slog.String("error", err.Error()))
		return rec, nil
	}
	for _, spec := range modspec.Values(prog) {
		if target, ok := r.ResolveSpecifier(p, spec); ok {
			rec.Refs[spec] = model.DependencyRef{Name: spec, Path: target}
		}
	}
	return rec, nil
}

// Resolve walks the graph breadth first from entry and returns the record
// of every reachable file. Each level is read concurrently.
func (r *Resolver) Resolve(ctx context.Context, entry string) (map[string]*model.DependencyRecord, error) {
	start, err := r.Rel(entry)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(r.root, filepath.FromSlash(start))); err != nil {
		return nil, fmt.Errorf("entry %s: %w", entry, err)
	}

	records := make(map[string]*model.DependencyRecord)
	var mu sync.Mutex
	level := []string{start}
	seen := map[string]bool{start: true}

	for len(level) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Workers)
		for _, p := range level {
			g.Go(func() error {
				rec, err := r.Dependencies(gctx, p)
				if err != nil {
					return fmt.Errorf("reading %s: %w", p, err)
				}
				mu.Lock()
				records[p] = rec
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for _, p := range level {
			for _, ref := range records[p].Refs {
				if !seen[ref.Path] {
					seen[ref.Path] = true
					next = append(next, ref.Path)
				}
			}
		}
		sort.Strings(next)
		level = next
	}
	r.opts.Logger.Debug("dependency graph resolved", slog.String("entry", start), slog.Int("files", len(records)))
	return records, nil
}
