// Package infer performs name- and literal-driven type inference over a
// JavaScript buffer. It produces per-file summaries for the indexer and
// answers definition and hover queries.
package infer

import (
	"fmt"
	"sort"

	"github.com/phobologic/jsguide/internal/ast"
	"github.com/phobologic/jsguide/internal/model"
	"github.com/phobologic/jsguide/internal/parse"
)

// Options configures an analysis.
type Options struct {
	// Resolver supplies other files' summaries. May be nil.
	Resolver Resolver
	// Browser makes top-level this a Window regardless of pragmas.
	Browser bool
	// MaxFileSize is passed to the parser; zero keeps its default.
	MaxFileSize int
}

// Option is a functional option for analysis calls.
type Option func(*Options)

// WithResolver sets the cross-file summary source.
func WithResolver(r Resolver) Option {
	return func(o *Options) {
		o.Resolver = r
	}
}

// WithBrowser forces the browser global context.
func WithBrowser(browser bool) Option {
	return func(o *Options) {
		o.Browser = browser
	}
}

// WithMaxFileSize bounds the accepted buffer size.
func WithMaxFileSize(n int) Option {
	return func(o *Options) {
		o.MaxFileSize = n
	}
}

func analyse(src string, opts []Option) (*engine, *ast.Program, error) {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	var parseOpts []parse.Option
	if options.MaxFileSize > 0 {
		parseOpts = append(parseOpts, parse.WithMaxFileSize(options.MaxFileSize))
	}
	prog, err := parse.ParseString(src, parseOpts...)
	if err != nil {
		return nil, nil, err
	}
	e := newEngine([]byte(src), options)
	e.run(prog)
	return e, prog, nil
}

// ComputeSummary analyses src and returns the summary of the bindings the
// file provides. name is recorded as the summary name and as the path of
// every entry declared in src.
func ComputeSummary(src, name string, opts ...Option) (*model.Summary, error) {
	e, _, err := analyse(src, opts)
	if err != nil {
		return nil, fmt.Errorf("compute summary %s: %w", name, err)
	}
	return e.summary(name), nil
}

func (e *engine) summary(name string) *model.Summary {
	s := &model.Summary{
		Kind:     e.kind,
		Name:     name,
		Provided: make(map[string]model.Entry),
		Types:    make(map[string]map[string]model.Entry),
	}
	stamp := func(path string) string {
		if path == "" {
			return name
		}
		return path
	}

	var roots []string
	switch e.kind {
	case model.Global:
		names := make([]string, 0, len(e.program.vars))
		for n := range e.program.vars {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			b := e.program.vars[n]
			t := b.typ
			if t == "" {
				t = Undefined
			}
			s.Provided[n] = model.Entry{TypeName: t, Path: stamp(b.path), Range: copyRange(b.rng)}
			roots = append(roots, t)
		}
	default:
		export := e.export
		if e.kind == model.CommonJS {
			if m, ok := e.types[e.module].Get("exports"); ok {
				export = m.Type
			}
		}
		switch {
		case export == "" || export == Undefined:
		case IsGenerated(export):
			for _, m := range e.types.Ensure(export).Members {
				s.Provided[m.Name] = model.Entry{TypeName: m.Type, Path: stamp(m.Path), Range: copyRange(m.Range)}
				roots = append(roots, m.Type)
			}
		default:
			s.Exported = export
			roots = append(roots, export)
		}
	}

	// Reachable member tables, stamped with their declaring file.
	seen := make(map[string]bool)
	for len(roots) > 0 {
		t := roots[0]
		roots = roots[1:]
		if sig, ok := ParseFunction(t); ok {
			roots = append(roots, sig.Result)
		}
		if seen[t] || !canHold(t) {
			continue
		}
		seen[t] = true
		def, ok := e.types[t]
		if !ok || len(def.Members) == 0 {
			continue
		}
		members := make(map[string]model.Entry, len(def.Members))
		for _, m := range def.Members {
			members[m.Name] = model.Entry{TypeName: m.Type, Path: stamp(m.Path), Range: copyRange(m.Range)}
			roots = append(roots, m.Type)
		}
		s.Types[t] = members
	}
	return s
}

// FindDefinition resolves the identifier or this expression at offset in src.
// It returns nil, nil when nothing at offset has a determinable declaration.
func FindDefinition(src string, offset int, opts ...Option) (*model.Definition, error) {
	e, prog, err := analyse(src, opts)
	if err != nil {
		return nil, fmt.Errorf("find definition: %w", err)
	}
	n, _ := ast.Innermost(prog, offset)
	switch n := n.(type) {
	case *ast.ThisExpr:
		t, ok := e.thisType[n]
		if !ok {
			return nil, nil
		}
		return &model.Definition{TypeName: t, Hover: "this :: " + e.types.Render(t)}, nil
	case *ast.Identifier:
		return e.definition(n, n.Name), nil
	case *ast.Literal:
		return e.definition(n, n.Value), nil
	}
	return nil, nil
}

func (e *engine) definition(n ast.Node, name string) *model.Definition {
	res, ok := e.resolved[n]
	if !ok {
		return nil
	}
	return &model.Definition{
		TypeName: res.typ,
		Path:     res.path,
		Range:    copyRange(res.rng),
		Hover:    name + " :: " + e.types.Render(res.typ),
	}
}

// Hover returns only the hover text for the position, or "" when nothing
// resolves there.
func Hover(src string, offset int, opts ...Option) (string, error) {
	def, err := FindDefinition(src, offset, opts...)
	if err != nil || def == nil {
		return "", err
	}
	return def.Hover, nil
}
