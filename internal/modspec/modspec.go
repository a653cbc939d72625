// Package modspec recognises module declaration and require call sites and
// extracts the literal specifiers they name.
package modspec

import (
	"github.com/phobologic/jsguide/internal/ast"
	"github.com/phobologic/jsguide/internal/model"
)

// Entry point callee names.
const (
	Define    = "define"
	Require   = "require"
	RequireJS = "requirejs"
)

// Specifier is one literal module specifier found at a call site.
type Specifier struct {
	Value string
	Range model.Range
	Line  int
	// Index is the position of the specifier in an array argument, or 0.
	Index int
}

// Site is a recognised define/require call.
type Site struct {
	Call       *ast.CallExpr
	Callee     string
	Specifiers []Specifier
	// Array reports whether the specifiers came from an array argument,
	// the AMD form that passes modules to a callback.
	Array bool
	// Callback is the function argument following the specifier list, if
	// any.
	Callback *ast.FuncExpr
}

// IsEntryPoint reports whether name is a module entry point callee.
func IsEntryPoint(name string) bool {
	switch name {
	case Define, Require, RequireJS:
		return true
	}
	return false
}

// Match inspects a call expression. It returns nil when the callee is not an
// entry point or no literal specifier is present among the first two
// arguments.
func Match(call *ast.CallExpr) *Site {
	callee, ok := call.Callee.(*ast.Identifier)
	if !ok || !IsEntryPoint(callee.Name) {
		return nil
	}
	site := &Site{Call: call, Callee: callee.Name}
	limit := min(len(call.Args), 2)
	for i, arg := range call.Args[:limit] {
		arr, ok := arg.(*ast.ArrayExpr)
		if !ok {
			continue
		}
		for j, elem := range arr.Elems {
			if lit, ok := elem.(*ast.Literal); ok && lit.Kind == ast.LitString {
				site.Specifiers = append(site.Specifiers, specifier(lit, j))
			}
		}
		site.Array = true
		site.Callback = callbackAfter(call.Args, i)
		return site
	}
	// A leading string passed to define names the module itself.
	if site.Callee == Define {
		return nil
	}
	for _, arg := range call.Args[:limit] {
		if lit, ok := arg.(*ast.Literal); ok && lit.Kind == ast.LitString {
			site.Specifiers = append(site.Specifiers, specifier(lit, 0))
			return site
		}
	}
	return nil
}

func specifier(lit *ast.Literal, index int) Specifier {
	return Specifier{Value: lit.Value, Range: lit.Span(), Line: lit.Pos().Line, Index: index}
}

func callbackAfter(args []ast.Node, i int) *ast.FuncExpr {
	for _, arg := range args[i+1:] {
		if fn, ok := arg.(*ast.FuncExpr); ok {
			return fn
		}
	}
	return nil
}

// Sites returns every recognised call site in prog in source order.
func Sites(prog *ast.Program) []*Site {
	var out []*Site
	ast.Walk(prog, func(c *ast.Cursor) ast.Step {
		if call, ok := c.Node().(*ast.CallExpr); ok {
			if site := Match(call); site != nil {
				out = append(out, site)
			}
		}
		return ast.Continue
	}, nil)
	return out
}

// Values returns the distinct specifier strings used in prog, in first-seen
// order.
func Values(prog *ast.Program) []string {
	seen := make(map[string]bool)
	var out []string
	for _, site := range Sites(prog) {
		for _, s := range site.Specifiers {
			if !seen[s.Value] {
				seen[s.Value] = true
				out = append(out, s.Value)
			}
		}
	}
	return out
}
