// Package verify reports module specifiers that do not resolve and maps a
// specifier literal to the file it names.
package verify

import (
	"fmt"

	"github.com/phobologic/jsguide/internal/ast"
	"github.com/phobologic/jsguide/internal/model"
	"github.com/phobologic/jsguide/internal/modspec"
	"github.com/phobologic/jsguide/internal/parse"
)

// Dependencies resolves the specifiers written in one file.
type Dependencies interface {
	HasDependency(spec string) (string, bool)
}

// CheckModules returns one error diagnostic for every literal specifier in
// buffer that deps cannot resolve, positioned over the literal.
func CheckModules(buffer string, deps Dependencies, opts ...parse.Option) ([]model.Diagnostic, error) {
	prog, err := parse.ParseString(buffer, opts...)
	if err != nil {
		return nil, err
	}
	var diags []model.Diagnostic
	for _, site := range modspec.Sites(prog) {
		for _, spec := range site.Specifiers {
			if _, ok := deps.HasDependency(spec.Value); ok {
				continue
			}
			diags = append(diags, model.Diagnostic{
				Description: fmt.Sprintf("Cannot find module '%s'", spec.Value),
				Line:        spec.Line,
				Severity:    model.SeverityError,
				Start:       spec.Range.Start,
				End:         spec.Range.End,
			})
		}
	}
	return diags, nil
}

// FindModulePath returns the resolved path of the specifier literal that
// covers [start, end], or nil when no literal covers it or the specifier is
// unknown.
func FindModulePath(buffer string, deps Dependencies, start, end int, opts ...parse.Option) (*model.ModulePath, error) {
	prog, err := parse.ParseString(buffer, opts...)
	if err != nil {
		return nil, err
	}
	target := model.Range{Start: start, End: end}
	v, _ := ast.Walk(prog, func(c *ast.Cursor) ast.Step {
		n := c.Node()
		span := n.Span()
		if span.Start > end {
			return ast.StopWith(nil)
		}
		if span.End < start {
			return ast.Skip
		}
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return ast.Continue
		}
		site := modspec.Match(call)
		if site == nil {
			return ast.Continue
		}
		for _, spec := range site.Specifiers {
			if !spec.Range.Encloses(target) {
				continue
			}
			path, ok := deps.HasDependency(spec.Value)
			if !ok {
				return ast.StopWith(nil)
			}
			return ast.StopWith(&model.ModulePath{Path: path, Range: spec.Range})
		}
		return ast.Continue
	}, nil)
	mp, _ := v.(*model.ModulePath)
	return mp, nil
}
