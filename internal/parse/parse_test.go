package parse

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/phobologic/jsguide/internal/ast"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := ParseString(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return prog
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()
	for _, src := range []string{"", "   \n\t"} {
		prog, err := ParseString(src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		if len(prog.Body) != 0 {
			t.Errorf("Parse(%q) body = %d nodes, want 0", src, len(prog.Body))
		}
		if prog.Span().End != len(src) {
			t.Errorf("program end = %d, want %d", prog.Span().End, len(src))
		}
	}
}

func TestParseSyntaxError(t *testing.T) {
	t.Parallel()
	_, err := ParseString("var x = 1;\nvar = ;\n")
	if err == nil {
		t.Fatal("expected syntax error")
	}
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("error %T is not *SyntaxError", err)
	}
	if se.Line != 2 {
		t.Errorf("line = %d, want 2", se.Line)
	}
	if !strings.HasPrefix(se.Error(), "syntax error at 2:") {
		t.Errorf("message = %q", se.Error())
	}
}

func TestParseFileTooLarge(t *testing.T) {
	t.Parallel()
	_, err := ParseString("var x = 1;", WithMaxFileSize(4))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("err = %v, want ErrFileTooLarge", err)
	}
}

func TestParseVarDecl(t *testing.T) {
	t.Parallel()
	src := "var x = 9, y;"
	prog := mustParse(t, src)
	if len(prog.Body) != 1 {
		t.Fatalf("body = %d nodes, want 1", len(prog.Body))
	}
	decl, ok := prog.Body[0].(*ast.VarDecl)
	if !ok {
		t.Fatalf("body[0] = %T, want *ast.VarDecl", prog.Body[0])
	}
	if decl.Kind != "var" {
		t.Errorf("kind = %q, want var", decl.Kind)
	}
	if len(decl.Decls) != 2 {
		t.Fatalf("declarators = %d, want 2", len(decl.Decls))
	}
	id, ok := decl.Decls[0].ID.(*ast.Identifier)
	if !ok || id.Name != "x" {
		t.Fatalf("first declarator id = %#v", decl.Decls[0].ID)
	}
	if got := src[id.Span().Start:id.Span().End]; got != "x" {
		t.Errorf("identifier range covers %q", got)
	}
	lit, ok := decl.Decls[0].Init.(*ast.Literal)
	if !ok || lit.Kind != ast.LitNumber {
		t.Errorf("init = %#v, want number literal", decl.Decls[0].Init)
	}
	if decl.Decls[1].Init != nil {
		t.Errorf("second declarator init = %#v, want nil", decl.Decls[1].Init)
	}
}

func TestParseFunctionShapes(t *testing.T) {
	t.Parallel()
	prog := mustParse(t, "function f(a, b) { return a; }\nvar g = function (c) {};\nvar h = d => d;")

	fd, ok := prog.Body[0].(*ast.FuncDecl)
	if !ok {
		t.Fatalf("body[0] = %T, want *ast.FuncDecl", prog.Body[0])
	}
	if fd.ID.Name != "f" || len(fd.Params) != 2 {
		t.Errorf("func decl = %s/%d params", fd.ID.Name, len(fd.Params))
	}
	if fd.Body == nil || len(fd.Body.Body) != 1 {
		t.Fatalf("func body = %#v", fd.Body)
	}
	if _, ok := fd.Body.Body[0].(*ast.ReturnStmt); !ok {
		t.Errorf("body stmt = %T, want *ast.ReturnStmt", fd.Body.Body[0])
	}

	g := prog.Body[1].(*ast.VarDecl).Decls[0].Init
	fe, ok := g.(*ast.FuncExpr)
	if !ok {
		t.Fatalf("g init = %T, want *ast.FuncExpr", g)
	}
	if fe.ID != nil || len(fe.Params) != 1 || fe.Arrow {
		t.Errorf("function expression = %#v", fe)
	}

	h := prog.Body[2].(*ast.VarDecl).Decls[0].Init
	arrow, ok := h.(*ast.FuncExpr)
	if !ok || !arrow.Arrow {
		t.Fatalf("h init = %#v, want arrow function", h)
	}
	if len(arrow.Params) != 1 {
		t.Errorf("arrow params = %d, want 1", len(arrow.Params))
	}
	if _, ok := arrow.Body.(*ast.Identifier); !ok {
		t.Errorf("arrow body = %T, want *ast.Identifier", arrow.Body)
	}
}

func TestParseObjectAndMember(t *testing.T) {
	t.Parallel()
	prog := mustParse(t, "var d = { c: 9, 'b': '', e };\nd.c;\nd['c'];")

	obj, ok := prog.Body[0].(*ast.VarDecl).Decls[0].Init.(*ast.ObjectExpr)
	if !ok {
		t.Fatal("init is not an object literal")
	}
	if len(obj.Props) != 3 {
		t.Fatalf("props = %d, want 3", len(obj.Props))
	}
	if key, ok := obj.Props[0].Key.(*ast.Identifier); !ok || key.Name != "c" || !key.PropertyName {
		t.Errorf("prop 0 key = %#v", obj.Props[0].Key)
	}
	if key, ok := obj.Props[1].Key.(*ast.Literal); !ok || key.Value != "b" {
		t.Errorf("prop 1 key = %#v", obj.Props[1].Key)
	}
	if !obj.Props[2].Shorthand || obj.Props[2].Key != nil {
		t.Errorf("prop 2 = %#v, want shorthand", obj.Props[2])
	}

	mem, ok := prog.Body[1].(*ast.ExprStmt).Expr.(*ast.MemberExpr)
	if !ok || mem.Computed {
		t.Fatalf("d.c = %#v", prog.Body[1])
	}
	if prop, ok := mem.Property.(*ast.Identifier); !ok || !prop.PropertyName {
		t.Errorf("d.c property = %#v", mem.Property)
	}

	sub, ok := prog.Body[2].(*ast.ExprStmt).Expr.(*ast.MemberExpr)
	if !ok || !sub.Computed {
		t.Fatalf("d['c'] = %#v", prog.Body[2])
	}
}

func TestParseCallsAndNew(t *testing.T) {
	t.Parallel()
	prog := mustParse(t, "define(['a', 'b'], function (a, b) {});\nnew Foo.Bar(1);")

	call, ok := prog.Body[0].(*ast.ExprStmt).Expr.(*ast.CallExpr)
	if !ok {
		t.Fatal("first statement is not a call")
	}
	if ast.CalleeName(call.Callee) != "define" {
		t.Errorf("callee = %q", ast.CalleeName(call.Callee))
	}
	if len(call.Args) != 2 {
		t.Fatalf("args = %d, want 2", len(call.Args))
	}
	arr, ok := call.Args[0].(*ast.ArrayExpr)
	if !ok || len(arr.Elems) != 2 {
		t.Fatalf("args[0] = %#v", call.Args[0])
	}
	if lit := arr.Elems[1].(*ast.Literal); lit.Value != "b" {
		t.Errorf("elem value = %q, want b", lit.Value)
	}

	nw, ok := prog.Body[1].(*ast.ExprStmt).Expr.(*ast.NewExpr)
	if !ok {
		t.Fatal("second statement is not a new expression")
	}
	if ast.CalleeName(nw.Callee) != "Bar" || len(nw.Args) != 1 {
		t.Errorf("new = %q/%d args", ast.CalleeName(nw.Callee), len(nw.Args))
	}
}

func TestParseStatements(t *testing.T) {
	t.Parallel()
	src := `outer: for (var i = 0; i < 3; i++) {
  if (i) { continue outer; } else { break; }
}
for (var k in o) {}
while (x) { x--; }
do { y = y + 1; } while (y < 2);
try { throw e; } catch (err) { err; } finally { z; }
switch (s) { case 1: a(); break; default: b(); }
with (o) { p; }
`
	prog := mustParse(t, src)
	want := []string{"*ast.LabeledStmt", "*ast.ForInStmt", "*ast.WhileStmt", "*ast.DoWhileStmt", "*ast.TryStmt", "*ast.SwitchStmt", "*ast.WithStmt"}
	if len(prog.Body) != len(want) {
		t.Fatalf("body = %d statements, want %d", len(prog.Body), len(want))
	}
	for i, w := range want {
		if got := fmt.Sprintf("%T", prog.Body[i]); got != w {
			t.Errorf("body[%d] = %s, want %s", i, got, w)
		}
	}

	forIn := prog.Body[1].(*ast.ForInStmt)
	if _, ok := forIn.Left.(*ast.VarDecl); !ok {
		t.Errorf("for-in left = %T, want *ast.VarDecl", forIn.Left)
	}

	try := prog.Body[4].(*ast.TryStmt)
	if try.Handler == nil || try.Finalizer == nil {
		t.Fatalf("try = %#v", try)
	}
	if p, ok := try.Handler.Param.(*ast.Identifier); !ok || p.Name != "err" {
		t.Errorf("catch param = %#v", try.Handler.Param)
	}

	sw := prog.Body[5].(*ast.SwitchStmt)
	if len(sw.Cases) != 2 {
		t.Fatalf("cases = %d, want 2", len(sw.Cases))
	}
	if sw.Cases[0].Test == nil || sw.Cases[1].Test != nil {
		t.Errorf("case tests = %#v / %#v", sw.Cases[0].Test, sw.Cases[1].Test)
	}
	if len(sw.Cases[0].Body) != 2 {
		t.Errorf("case body = %d statements, want 2", len(sw.Cases[0].Body))
	}
}

func TestParseComments(t *testing.T) {
	t.Parallel()
	prog := mustParse(t, "/*jslint browser:true*/\n// note\nvar a = 1;")
	if len(prog.Comments) != 2 {
		t.Fatalf("comments = %d, want 2", len(prog.Comments))
	}
	if !strings.Contains(prog.Comments[0].Text, "browser:true") {
		t.Errorf("first comment = %q", prog.Comments[0].Text)
	}
	if len(prog.Body) != 1 {
		t.Errorf("body = %d nodes, want 1", len(prog.Body))
	}
}

func TestParsePositions(t *testing.T) {
	t.Parallel()
	prog := mustParse(t, "var a;\n  a = 2;")
	stmt := prog.Body[1]
	if pos := stmt.Pos(); pos.Line != 2 || pos.Column != 2 {
		t.Errorf("pos = %+v, want line 2 column 2", pos)
	}
}

func TestUnquote(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want string
	}{
		{`'a/b'`, "a/b"},
		{`"x"`, "x"},
		{`'it\'s'`, "it's"},
		{`"a\nb"`, "a\nb"},
		{`''`, ""},
	}
	for _, tt := range tests {
		if got := unquote(tt.raw); got != tt.want {
			t.Errorf("unquote(%s) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
