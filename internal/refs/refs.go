// Package refs finds the occurrences of a variable that bind to the same
// declaration as a selected identifier.
package refs

import (
	"sort"

	"github.com/phobologic/jsguide/internal/ast"
	"github.com/phobologic/jsguide/internal/model"
	"github.com/phobologic/jsguide/internal/parse"
)

// FindVarReferences expands selection to the identifier under it and
// returns the ranges of every reference to the same variable, sorted by
// offset. It returns nil when no identifier is selected or the selection is
// not itself a reference.
func FindVarReferences(buffer string, selection model.Range, opts ...parse.Option) ([]model.Range, error) {
	word, ok := expandWord(buffer, selection)
	if !ok {
		return nil, nil
	}
	name := buffer[word.Start:word.End]

	prog, err := parse.ParseString(buffer, opts...)
	if err != nil {
		return nil, err
	}

	var (
		refs   []model.Range
		scopes []model.Range
	)
	ast.Walk(prog, func(c *ast.Cursor) ast.Step {
		id, ok := c.Node().(*ast.Identifier)
		if !ok || id.Name != name || !isReference(id, c.Parent()) {
			return ast.Continue
		}
		refs = append(refs, id.Span())
		if scope, ok := declarationScope(id, c.Ancestors()); ok {
			scopes = append(scopes, scope)
		}
		return ast.Continue
	}, nil)

	if !containsRange(refs, word) {
		return nil, nil
	}
	scopes = append(scopes, prog.Span())
	sort.SliceStable(scopes, func(i, j int) bool {
		return scopes[i].Len() < scopes[j].Len()
	})

	target, found := model.Range{}, false
	for _, s := range scopes {
		if s.Contains(word.Start) {
			target, found = s, true
			break
		}
	}
	if !found {
		return nil, nil
	}

	var out []model.Range
	for _, r := range refs {
		if target.Encloses(r) && !shadowed(r, target, scopes) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func isWordByte(b byte) bool {
	return b == '_' || b == '$' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// expandWord grows sel to the identifier word touching it.
func expandWord(buffer string, sel model.Range) (model.Range, bool) {
	start, end := sel.Start, sel.End
	if end < start {
		end = start
	}
	if start < 0 || end > len(buffer) {
		return model.Range{}, false
	}
	for start > 0 && isWordByte(buffer[start-1]) {
		start--
	}
	for end < len(buffer) && isWordByte(buffer[end]) {
		end++
	}
	if start == end {
		return model.Range{}, false
	}
	for i := start; i < end; i++ {
		if !isWordByte(buffer[i]) {
			return model.Range{}, false
		}
	}
	return model.Range{Start: start, End: end}, true
}

// isReference reports whether id sits in a slot that names a variable.
// Property names of non-computed member accesses and object keys do not, and
// neither do statement labels.
func isReference(id *ast.Identifier, parent ast.Node) bool {
	if id.PropertyName {
		return false
	}
	switch p := parent.(type) {
	case *ast.MemberExpr:
		return p.Computed || p.Property != ast.Node(id)
	case *ast.Property:
		return p.Computed || p.Key != ast.Node(id)
	case *ast.LabeledStmt, *ast.BreakStmt, *ast.ContinueStmt:
		return false
	}
	return true
}

// declarationScope returns the scope a declaring occurrence binds in: the
// nearest enclosing function or program. A function declaration's own name
// binds in the scope around the function.
func declarationScope(id *ast.Identifier, ancestors []ast.Node) (model.Range, bool) {
	if len(ancestors) == 0 {
		return model.Range{}, false
	}
	parent := ancestors[len(ancestors)-1]
	from := len(ancestors) - 1
	switch p := parent.(type) {
	case *ast.VarDeclarator:
		if p.ID != ast.Node(id) {
			return model.Range{}, false
		}
	case *ast.FuncDecl:
		if p.ID == id {
			from--
		} else if !isParam(id, p.Params) {
			return model.Range{}, false
		}
	case *ast.FuncExpr:
		// An arrow's expression body is a plain reference.
		if p.ID != id && !isParam(id, p.Params) {
			return model.Range{}, false
		}
	default:
		return model.Range{}, false
	}
	for i := from; i >= 0; i-- {
		if ast.IsScope(ancestors[i]) {
			return ancestors[i].Span(), true
		}
	}
	return model.Range{}, false
}

// shadowed reports whether r lies in a candidate scope nested inside target.
func shadowed(r, target model.Range, scopes []model.Range) bool {
	for _, s := range scopes {
		if s == target || s.Len() >= target.Len() {
			continue
		}
		if s.Encloses(r) {
			return true
		}
	}
	return false
}

func isParam(id *ast.Identifier, params []ast.Node) bool {
	for _, p := range params {
		if p == ast.Node(id) {
			return true
		}
	}
	return false
}

func containsRange(rs []model.Range, r model.Range) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}
