package infer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/phobologic/jsguide/internal/ast"
	"github.com/phobologic/jsguide/internal/model"
	"github.com/phobologic/jsguide/internal/modspec"
)

// Resolver gives the engine access to other files' summaries. It is
// implemented by an indexer session; a nil Resolver confines inference to
// the buffer.
type Resolver interface {
	RetrieveSummary(spec string) (*model.Summary, error)
	GlobalSummaries() (map[string]*model.Summary, error)
}

// binding is a named value in a scope. Path is empty for bindings declared
// in the analysed buffer.
type binding struct {
	typ  string
	rng  *model.Range
	path string
	fn   *hoistedFunc
}

// hoistedFunc is a function declaration whose body has not been analysed
// yet. A reference reached before the declaration analyses it on demand in
// the scope it was declared in.
type hoistedFunc struct {
	decl  *ast.FuncDecl
	scope *scope
	done  bool
}

// resolution is what an identifier occurrence resolved to at the point the
// traversal reached it.
type resolution struct {
	typ  string
	rng  *model.Range
	path string
}

type scopeKind int

const (
	programScope scopeKind = iota
	functionScope
	blockScope
)

type scope struct {
	kind   scopeKind
	id     int
	vars   map[string]*binding
	parent *scope
	fn     *frame
}

func (s *scope) lookup(name string) *binding {
	for sc := s; sc != nil; sc = sc.parent {
		if b, ok := sc.vars[name]; ok {
			return b
		}
	}
	return nil
}

// hoisted returns the nearest program or function scope.
func (s *scope) hoisted() *scope {
	sc := s
	for sc.kind == blockScope {
		sc = sc.parent
	}
	return sc
}

// frame holds per-function state. Arrow functions share the this of the
// enclosing frame.
type frame struct {
	name     string
	this     string
	ret      string
	instance string
	arrow    bool
	parent   *frame
}

type engine struct {
	src      []byte
	hash     string
	types    TypeTable
	ordinal  int
	scopeSeq int
	cur      *scope
	program  *scope
	resolver Resolver
	browser  bool

	newTargets map[string]bool
	kind       model.ModuleKind

	resolved map[ast.Node]*resolution
	thisType map[ast.Node]string

	modules map[string]string
	globals map[string]*model.Summary

	// export is the AMD factory result.
	export    string
	exportSet bool
	module    string
}

func newEngine(src []byte, opts Options) *engine {
	return &engine{
		src:        src,
		hash:       fmt.Sprintf("%08x", uint32(xxh3.Hash(src))),
		types:      make(TypeTable),
		resolver:   opts.Resolver,
		browser:    opts.Browser,
		newTargets: make(map[string]bool),
		resolved:   make(map[ast.Node]*resolution),
		thisType:   make(map[ast.Node]string),
		modules:    make(map[string]string),
	}
}

// fresh allocates a new empty structural type in the current scope.
func (e *engine) fresh() string {
	e.ordinal++
	t := GeneratedType(e.hash, e.cur.id, e.ordinal)
	e.types.Ensure(t)
	return t
}

func (e *engine) push(kind scopeKind, fn *frame) *scope {
	s := &scope{kind: kind, vars: make(map[string]*binding), parent: e.cur, fn: fn}
	if kind != blockScope {
		s.id = e.scopeSeq
		e.scopeSeq++
	} else {
		s.id = e.cur.id
	}
	e.cur = s
	return s
}

func (e *engine) pop() {
	e.cur = e.cur.parent
}

func (e *engine) record(n ast.Node, typ string, rng *model.Range, path string) {
	e.resolved[n] = &resolution{typ: typ, rng: copyRange(rng), path: path}
}

func copyRange(r *model.Range) *model.Range {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func spanOf(n ast.Node) *model.Range {
	r := n.Span()
	return &r
}

// run analyses prog. It is called once per engine.
func (e *engine) run(prog *ast.Program) {
	e.prepass(prog)
	e.push(programScope, &frame{})
	e.program = e.cur
	if e.kind == model.CommonJS {
		e.declareCommonJS()
	}
	e.hoist(prog.Body)
	e.stmts(prog.Body)
}

// prepass collects constructor names and detects the browser pragma and the
// module idiom.
func (e *engine) prepass(prog *ast.Program) {
	for _, c := range prog.Comments {
		if isBrowserPragma(c.Text) {
			e.browser = true
		}
	}
	e.kind = model.Global
	for _, stmt := range prog.Body {
		if es, ok := stmt.(*ast.ExprStmt); ok {
			if call, ok := es.Expr.(*ast.CallExpr); ok && ast.CalleeName(call.Callee) == modspec.Define {
				if _, ok := call.Callee.(*ast.Identifier); ok {
					e.kind = model.AMD
				}
			}
		}
	}
	ast.Walk(prog, func(c *ast.Cursor) ast.Step {
		switch n := c.Node().(type) {
		case *ast.NewExpr:
			if name := ast.CalleeName(n.Callee); name != "" {
				e.newTargets[name] = true
			}
		case *ast.MemberExpr:
			if prop, ok := n.Property.(*ast.Identifier); ok && !n.Computed {
				if prop.Name == "prototype" {
					if name := ast.CalleeName(n.Object); name != "" {
						e.newTargets[name] = true
					}
				}
				if obj, ok := n.Object.(*ast.Identifier); ok && obj.Name == "module" && prop.Name == "exports" && e.kind == model.Global {
					e.kind = model.CommonJS
				}
			}
		case *ast.Identifier:
			if n.Name == "exports" && !n.PropertyName && e.kind == model.Global {
				e.kind = model.CommonJS
			}
		}
		return ast.Continue
	}, nil)
}

func isBrowserPragma(text string) bool {
	compact := strings.Join(strings.Fields(text), "")
	if (strings.Contains(compact, "jslint") || strings.Contains(compact, "jshint")) && strings.Contains(compact, "browser:true") {
		return true
	}
	trimmed := strings.TrimSpace(strings.TrimPrefix(text, "/*"))
	return strings.HasPrefix(trimmed, "global") && strings.Contains(trimmed, "window")
}

func (e *engine) declareCommonJS() {
	exports := e.fresh()
	module := e.fresh()
	e.types.Ensure(module).Set(Member{Name: "exports", Type: exports})
	e.cur.vars["module"] = &binding{typ: module}
	e.cur.vars["exports"] = &binding{typ: exports}
	e.module = module
}

// hoist pre-declares the var and function names of a scope body so that
// references resolve to the local binding before its declaration is reached.
// Parameter bindings already present are left alone.
func (e *engine) hoist(body []ast.Node) {
	s := e.cur.hoisted()
	declare := func(id *ast.Identifier, typ string) *binding {
		if b, ok := s.vars[id.Name]; ok {
			if typ != "" {
				b.typ = typ
				b.rng = spanOf(id)
			}
			return b
		}
		b := &binding{typ: typ, rng: spanOf(id)}
		s.vars[id.Name] = b
		return b
	}
	for _, stmt := range body {
		ast.Walk(stmt, func(c *ast.Cursor) ast.Step {
			switch n := c.Node().(type) {
			case *ast.FuncDecl:
				if n.ID != nil {
					b := declare(n.ID, e.provisional(n))
					b.fn = &hoistedFunc{decl: n, scope: s}
				}
				return ast.Skip
			case *ast.FuncExpr:
				return ast.Skip
			case *ast.VarDeclarator:
				for _, id := range patternNames(n.ID) {
					declare(id, "")
				}
			}
			return ast.Continue
		}, nil)
	}
}

// analyseHoisted types a function declaration ahead of its position in the
// source. Recursive references inside the body see the provisional type.
func (e *engine) analyseHoisted(h *hoistedFunc) {
	h.done = true
	saved := e.cur
	e.cur = h.scope
	e.function(h.decl, h.decl.ID.Name, nil)
	e.cur = saved
}

// provisional is the type a hoisted function declaration has before its body
// has been analysed.
func (e *engine) provisional(fn *ast.FuncDecl) string {
	params := paramNames(fn.Params)
	if e.newTargets[fn.ID.Name] {
		e.types.Ensure(fn.ID.Name)
		return ConstructorType(fn.ID.Name, params)
	}
	return FunctionType(Undefined, params)
}

func paramNames(params []ast.Node) []string {
	var out []string
	for _, p := range params {
		if id, ok := p.(*ast.Identifier); ok {
			out = append(out, id.Name)
		}
	}
	return out
}

// patternNames returns the identifiers bound by a declarator target.
func patternNames(n ast.Node) []*ast.Identifier {
	if id, ok := n.(*ast.Identifier); ok {
		return []*ast.Identifier{id}
	}
	var out []*ast.Identifier
	ast.Walk(n, func(c *ast.Cursor) ast.Step {
		if id, ok := c.Node().(*ast.Identifier); ok && !id.PropertyName {
			out = append(out, id)
		}
		return ast.Continue
	}, nil)
	return out
}

// pattern declares the names bound by a destructuring or defaulted
// parameter. Default value expressions are analysed as reads.
func (e *engine) pattern(p ast.Node) {
	if o, ok := p.(*ast.Other); ok && o.Type == "default_value" {
		for _, c := range o.Children {
			e.expr(c, "")
		}
		return
	}
	for _, id := range patternNames(p) {
		t := e.fresh()
		e.cur.vars[id.Name] = &binding{typ: t, rng: spanOf(id)}
		e.record(id, t, spanOf(id), "")
	}
}

func (e *engine) stmts(body []ast.Node) {
	for _, n := range body {
		e.stmt(n)
	}
}

func (e *engine) stmt(n ast.Node) {
	switch n := n.(type) {
	case nil:
	case *ast.Block:
		e.stmts(n.Body)
	case *ast.ExprStmt:
		e.expr(n.Expr, "")
	case *ast.VarDecl:
		for _, d := range n.Decls {
			e.declarator(d, "")
		}
	case *ast.FuncDecl:
		if b := e.cur.hoisted().vars[n.ID.Name]; b != nil && b.fn != nil && b.fn.decl == n {
			if b.fn.done {
				return
			}
			b.fn.done = true
		}
		e.function(n, n.ID.Name, nil)
	case *ast.ReturnStmt:
		if n.Arg == nil {
			return
		}
		var t string
		switch arg := n.Arg.(type) {
		case *ast.ObjectExpr:
			t = e.object(arg, e.cur.fn.name)
		case *ast.FuncExpr:
			// An anonymous function returned from a named one takes the
			// outer name, so objects it returns name their members after it.
			t = e.analyseFunction(arg, "", frameHints{name: e.cur.fn.name}, nil)
		default:
			t = e.expr(n.Arg, "")
		}
		if t != "" {
			e.cur.fn.ret = t
		}
	case *ast.IfStmt:
		e.expr(n.Test, "")
		e.stmt(n.Cons)
		e.stmt(n.Alt)
	case *ast.ForStmt:
		if _, ok := n.Init.(*ast.VarDecl); ok {
			e.stmt(n.Init)
		} else {
			e.expr(n.Init, "")
		}
		e.expr(n.Test, "")
		e.expr(n.Update, "")
		e.stmt(n.Body)
	case *ast.ForInStmt:
		e.expr(n.Right, "")
		key := String
		if n.Of {
			key = Object
		}
		switch left := n.Left.(type) {
		case *ast.VarDecl:
			for _, d := range left.Decls {
				e.declarator(d, key)
			}
		case *ast.Identifier:
			e.assignName(left, key)
		default:
			e.expr(left, "")
		}
		e.stmt(n.Body)
	case *ast.WhileStmt:
		e.expr(n.Test, "")
		e.stmt(n.Body)
	case *ast.DoWhileStmt:
		e.stmt(n.Body)
		e.expr(n.Test, "")
	case *ast.LabeledStmt:
		e.stmt(n.Body)
	case *ast.BreakStmt, *ast.ContinueStmt:
	case *ast.ThrowStmt:
		e.expr(n.Arg, "")
	case *ast.TryStmt:
		e.stmt(n.Block)
		if h := n.Handler; h != nil {
			e.push(blockScope, e.cur.fn)
			for _, id := range patternNames(h.Param) {
				t := e.fresh()
				e.cur.vars[id.Name] = &binding{typ: t, rng: spanOf(id)}
				e.record(id, t, spanOf(id), "")
			}
			e.stmt(h.Body)
			e.pop()
		}
		e.stmt(n.Finalizer)
	case *ast.SwitchStmt:
		e.expr(n.Disc, "")
		for _, c := range n.Cases {
			e.expr(c.Test, "")
			e.stmts(c.Body)
		}
	case *ast.WithStmt:
		e.expr(n.Object, "")
		e.stmt(n.Body)
	default:
		e.expr(n, "")
	}
}

// declarator analyses one var declarator. A non-empty override replaces the
// initialiser type, as for the key of a for-in loop.
func (e *engine) declarator(d *ast.VarDeclarator, override string) {
	id, ok := d.ID.(*ast.Identifier)
	if !ok {
		e.expr(d.Init, "")
		for _, pid := range patternNames(d.ID) {
			b := e.declare(pid)
			if b.typ == "" {
				b.typ = e.fresh()
			}
			e.record(pid, b.typ, b.rng, "")
		}
		return
	}
	var t string
	if d.Init != nil {
		t = e.expr(d.Init, id.Name)
	}
	if override != "" {
		t = override
	}
	b := e.declare(id)
	switch {
	case t != "":
		b.typ = t
	case b.typ == "":
		b.typ = e.fresh()
	}
	e.record(id, b.typ, b.rng, b.path)
}

// declare returns the hoisted binding for id and moves its declaration site
// to id, so later references resolve to the nearest preceding declaration.
func (e *engine) declare(id *ast.Identifier) *binding {
	s := e.cur.hoisted()
	b, ok := s.vars[id.Name]
	if !ok {
		b = &binding{}
		s.vars[id.Name] = b
	}
	b.rng = spanOf(id)
	b.path = ""
	b.fn = nil
	return b
}

// assignName binds t to an identifier target. Undeclared names become
// implicit globals.
func (e *engine) assignName(id *ast.Identifier, t string) {
	b := e.cur.lookup(id.Name)
	if b == nil {
		b = &binding{rng: spanOf(id)}
		e.program.vars[id.Name] = b
	}
	b.typ = t
	b.fn = nil
	e.record(id, b.typ, b.rng, b.path)
}

// expr returns the type of an expression. name is the naming path the value
// is being bound to, used to name constructors created as properties.
func (e *engine) expr(n ast.Node, name string) string {
	switch n := n.(type) {
	case nil:
		return ""
	case *ast.Literal:
		return literalType(n)
	case *ast.Identifier:
		return e.reference(n)
	case *ast.ThisExpr:
		t := e.this()
		e.thisType[n] = t
		return t
	case *ast.FuncExpr:
		return e.function(n, name, nil)
	case *ast.ObjectExpr:
		return e.object(n, name)
	case *ast.ArrayExpr:
		for _, el := range n.Elems {
			e.expr(el, "")
		}
		return Array
	case *ast.MemberExpr:
		return e.member(n)
	case *ast.CallExpr:
		return e.call(n)
	case *ast.NewExpr:
		return e.newExpr(n)
	case *ast.AssignExpr:
		return e.assign(n)
	case *ast.BinaryExpr:
		l := e.expr(n.Left, "")
		r := e.expr(n.Right, "")
		return binaryType(n.Op, l, r)
	case *ast.UnaryExpr:
		e.expr(n.Arg, "")
		switch n.Op {
		case "!", "delete":
			return Boolean
		case "typeof":
			return String
		case "void":
			return Undefined
		}
		return Number
	case *ast.UpdateExpr:
		e.expr(n.Arg, "")
		return Number
	case *ast.CondExpr:
		e.expr(n.Test, "")
		t := e.expr(n.Cons, name)
		e.expr(n.Alt, name)
		return t
	case *ast.SeqExpr:
		var t string
		for _, x := range n.Exprs {
			t = e.expr(x, "")
		}
		return t
	case *ast.Property:
		e.expr(n.Value, "")
		return ""
	case *ast.Other:
		for _, c := range n.Children {
			if isStatement(c) {
				e.stmt(c)
				continue
			}
			e.expr(c, "")
		}
		return Object
	}
	if isStatement(n) {
		e.stmt(n)
	}
	return ""
}

func isStatement(n ast.Node) bool {
	switch n.(type) {
	case *ast.Block, *ast.ExprStmt, *ast.VarDecl, *ast.FuncDecl, *ast.ReturnStmt,
		*ast.IfStmt, *ast.ForStmt, *ast.ForInStmt, *ast.WhileStmt, *ast.DoWhileStmt,
		*ast.LabeledStmt, *ast.BreakStmt, *ast.ContinueStmt, *ast.ThrowStmt,
		*ast.TryStmt, *ast.SwitchStmt, *ast.WithStmt:
		return true
	}
	return false
}

func literalType(n *ast.Literal) string {
	switch n.Kind {
	case ast.LitNumber:
		return Number
	case ast.LitString, ast.LitTemplate:
		return String
	case ast.LitBoolean:
		return Boolean
	case ast.LitRegExp:
		return RegExp
	case ast.LitUndefined:
		return Undefined
	}
	return Object
}

func binaryType(op, l, r string) string {
	switch op {
	case "==", "!=", "===", "!==", "<", ">", "<=", ">=", "in", "instanceof":
		return Boolean
	case "&&", "||", "??":
		if r == "" {
			return l
		}
		return r
	case "+":
		if l == String || r == String {
			return String
		}
	}
	return Number
}

// reference resolves an identifier read. Names without a local binding fall
// back to the global summaries of the project.
func (e *engine) reference(id *ast.Identifier) string {
	if id.PropertyName {
		return Object
	}
	if b := e.cur.lookup(id.Name); b != nil {
		if b.fn != nil && !b.fn.done {
			e.analyseHoisted(b.fn)
		}
		t := b.typ
		if t == "" {
			t = Undefined
		}
		e.record(id, t, b.rng, b.path)
		return t
	}
	if entry, ok := e.global(id.Name); ok {
		e.record(id, entry.TypeName, entry.Range, entry.Path)
		return entry.TypeName
	}
	return Object
}

func (e *engine) global(name string) (model.Entry, bool) {
	if e.resolver == nil {
		return model.Entry{}, false
	}
	if e.globals == nil {
		globals, err := e.resolver.GlobalSummaries()
		if err != nil || globals == nil {
			globals = map[string]*model.Summary{}
		}
		e.globals = globals
	}
	paths := make([]string, 0, len(e.globals))
	for p := range e.globals {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		s := e.globals[p]
		if entry, ok := s.Provided[name]; ok {
			e.types.Merge(s.Types)
			if entry.Path == "" {
				entry.Path = p
			}
			return entry, true
		}
	}
	return model.Entry{}, false
}

func (e *engine) this() string {
	fr := e.cur.fn
	for fr != nil && fr.arrow {
		fr = fr.parent
	}
	if fr == nil || fr.parent == nil {
		if e.browser {
			return Window
		}
		return Global
	}
	if fr.instance != "" {
		return fr.instance
	}
	if fr.this == "" {
		fr.this = e.fresh()
	}
	return fr.this
}

// function analyses a function declaration or expression and returns its
// type. paramTypes, when given, type the parameters positionally.
func (e *engine) function(n ast.Node, name string, paramTypes []string) string {
	return e.analyseFunction(n, name, frameHints{}, paramTypes)
}

// frameHints carries what the context of a function expression knows about
// its frame: a fallback name for functions that have neither a name nor a
// naming path, and the this of a prototype method.
type frameHints struct {
	name string
	this string
}

func (e *engine) analyseFunction(n ast.Node, name string, hints frameHints, paramTypes []string) string {
	id, params, body, _ := ast.FuncParts(n)
	_, isDecl := n.(*ast.FuncDecl)
	fe, _ := n.(*ast.FuncExpr)

	final := name
	if i := strings.LastIndexByte(final, '.'); i >= 0 {
		final = final[i+1:]
	}
	if id != nil && (isDecl || final == "") {
		final = id.Name
		if name == "" {
			name = id.Name
		}
	}

	fr := &frame{name: name, parent: e.cur.fn, arrow: fe != nil && fe.Arrow}
	if fr.name == "" {
		fr.name = hints.name
	}
	if !fr.arrow {
		fr.this = hints.this
	}
	if final != "" && e.newTargets[final] && !fr.arrow {
		fr.instance = name
		e.types.Ensure(name)
	}

	e.push(functionScope, fr)
	if fe != nil && id != nil {
		e.cur.vars[id.Name] = &binding{typ: FunctionType(Undefined, paramNames(params)), rng: spanOf(id)}
	}
	var names []string
	for i, p := range params {
		pid, ok := p.(*ast.Identifier)
		if !ok {
			e.pattern(p)
			continue
		}
		names = append(names, pid.Name)
		t := ""
		if i < len(paramTypes) {
			t = paramTypes[i]
		}
		if t == "" {
			t = e.fresh()
		}
		e.cur.vars[pid.Name] = &binding{typ: t, rng: spanOf(pid)}
		e.record(pid, t, spanOf(pid), "")
	}

	switch b := body.(type) {
	case *ast.Block:
		e.hoist(b.Body)
		e.stmts(b.Body)
	case nil:
	default:
		owner := ""
		if _, ok := b.(*ast.ObjectExpr); ok {
			owner = fr.name
		}
		if t := e.expr(b, owner); t != "" {
			fr.ret = t
		}
	}
	e.pop()

	var t string
	if fr.instance != "" {
		t = ConstructorType(fr.instance, names)
	} else {
		ret := fr.ret
		if ret == "" {
			ret = Undefined
		}
		t = FunctionType(ret, names)
	}

	if isDecl && id != nil {
		if b := e.cur.hoisted().vars[id.Name]; b != nil {
			b.typ = t
			b.rng = spanOf(id)
		}
		e.record(id, t, spanOf(id), "")
	} else if id != nil {
		e.record(id, t, spanOf(id), "")
	}
	return t
}

func propertyKey(n ast.Node) string {
	switch k := n.(type) {
	case *ast.Identifier:
		return k.Name
	case *ast.Literal:
		if k.Kind == ast.LitString {
			return k.Value
		}
		return k.Raw
	}
	return ""
}

// object analyses an object literal into a fresh structural type. Members
// that are functions are named after the owner path.
func (e *engine) object(n *ast.ObjectExpr, owner string) string {
	t := e.fresh()
	def := e.types.Ensure(t)
	for _, p := range n.Props {
		if p.Shorthand {
			id, ok := p.Value.(*ast.Identifier)
			if !ok {
				continue
			}
			vt := e.reference(id)
			def.Set(Member{Name: id.Name, Type: vt, Range: spanOf(id)})
			continue
		}
		if p.Computed || p.Key == nil {
			e.expr(p.Key, "")
			e.expr(p.Value, "")
			continue
		}
		key := propertyKey(p.Key)
		if key == "" {
			e.expr(p.Value, "")
			continue
		}
		vt := e.expr(p.Value, DottedType(owner, key))
		if vt == "" {
			vt = Object
		}
		m := def.Set(Member{Name: key, Type: vt, Range: spanOf(p.Key)})
		e.record(p.Key, m.Type, m.Range, m.Path)
	}
	return t
}

// targetPath is the naming path of an assignment target: identifiers and
// non-computed members joined by dots, calls and prototype hops stripped.
func (e *engine) targetPath(n ast.Node) string {
	switch n := n.(type) {
	case *ast.Identifier:
		return n.Name
	case *ast.ThisExpr:
		fr := e.cur.fn
		for fr != nil && fr.arrow {
			fr = fr.parent
		}
		if fr == nil {
			return ""
		}
		return fr.name
	case *ast.CallExpr:
		return e.targetPath(n.Callee)
	case *ast.MemberExpr:
		prop, ok := n.Property.(*ast.Identifier)
		if n.Computed || !ok {
			return ""
		}
		owner := e.targetPath(n.Object)
		if prop.Name == "prototype" {
			return owner
		}
		return DottedType(owner, prop.Name)
	}
	return ""
}

// isPrototype reports whether n is a non-computed .prototype access.
func isPrototype(n ast.Node) bool {
	m, ok := n.(*ast.MemberExpr)
	if !ok || m.Computed {
		return false
	}
	prop, ok := m.Property.(*ast.Identifier)
	return ok && prop.Name == "prototype"
}

// canHold reports whether values of type t carry a member table.
func canHold(t string) bool {
	return !IsPrimitive(t)
}

func (e *engine) member(n *ast.MemberExpr) string {
	objT := e.expr(n.Object, "")
	prop, ok := n.Property.(*ast.Identifier)
	if n.Computed || !ok {
		e.expr(n.Property, "")
		return Object
	}
	if prop.Name == "prototype" {
		if sig, ok := ParseFunction(objT); ok && sig.Constructor {
			return sig.Result
		}
	}
	if m, ok := e.lookupMember(objT, prop.Name); ok {
		e.record(prop, m.Type, m.Range, m.Path)
		return m.Type
	}
	return Object
}

func (e *engine) lookupMember(t, name string) (*Member, bool) {
	if !canHold(t) {
		return nil, false
	}
	return e.types[t].Get(name)
}

func (e *engine) assign(n *ast.AssignExpr) string {
	if n.Op != "=" {
		l := e.expr(n.Left, "")
		r := e.expr(n.Right, "")
		op := strings.TrimSuffix(n.Op, "=")
		return binaryType(op, l, r)
	}
	switch left := n.Left.(type) {
	case *ast.Identifier:
		t := e.expr(n.Right, left.Name)
		if t == "" {
			t = Object
		}
		e.assignName(left, t)
		return t
	case *ast.MemberExpr:
		prop, ok := left.Property.(*ast.Identifier)
		if left.Computed || !ok {
			e.expr(left, "")
			return e.expr(n.Right, "")
		}
		objT := e.expr(left.Object, "")
		var t string
		if fe, ok := n.Right.(*ast.FuncExpr); ok && isPrototype(left.Object) && canHold(objT) {
			t = e.analyseFunction(fe, e.targetPath(left), frameHints{this: objT}, nil)
		} else {
			t = e.expr(n.Right, e.targetPath(left))
		}
		if t == "" {
			t = Object
		}
		if prop.Name == "prototype" {
			if sig, ok := ParseFunction(objT); ok && sig.Constructor {
				e.augment(sig.Result, t)
				return t
			}
		}
		if !canHold(objT) {
			return t
		}
		m := e.types.Ensure(objT).Set(Member{Name: prop.Name, Type: t, Range: spanOf(prop)})
		e.record(prop, m.Type, m.Range, m.Path)
		return t
	}
	e.expr(n.Left, "")
	return e.expr(n.Right, "")
}

// augment copies the members of src into the instance table of a
// constructor.
func (e *engine) augment(instance, src string) {
	from, ok := e.types[src]
	if !ok || !canHold(src) {
		return
	}
	to := e.types.Ensure(instance)
	for _, m := range from.Members {
		to.Set(*m)
	}
}

func (e *engine) call(n *ast.CallExpr) string {
	if site := modspec.Match(n); site != nil {
		return e.moduleCall(n, site)
	}
	if id, ok := n.Callee.(*ast.Identifier); ok && id.Name == modspec.Define && e.cur == e.program {
		// define(factory) with no dependency list.
		e.define(n, nil)
		return Undefined
	}
	calleeT := e.expr(n.Callee, "")
	for _, a := range n.Args {
		e.expr(a, "")
	}
	if sig, ok := ParseFunction(calleeT); ok && !sig.Constructor {
		return sig.Result
	}
	return Object
}

// moduleCall types define/require call sites: array forms pass module types
// to the callback, the synchronous form evaluates to the module type.
func (e *engine) moduleCall(n *ast.CallExpr, site *modspec.Site) string {
	if !site.Array {
		for _, a := range n.Args {
			if _, ok := a.(*ast.Literal); !ok {
				e.expr(a, "")
			}
		}
		return e.moduleType(site.Specifiers[0].Value)
	}
	if site.Callee == modspec.Define {
		e.define(n, site)
		return Undefined
	}
	e.evalModuleArgs(n, site)
	return Undefined
}

func (e *engine) paramTypes(site *modspec.Site) []string {
	if site == nil {
		return nil
	}
	var types []string
	for _, s := range site.Specifiers {
		for len(types) < s.Index {
			types = append(types, "")
		}
		types = append(types, e.moduleType(s.Value))
	}
	return types
}

// evalModuleArgs analyses the arguments of a module call, typing the
// callback parameters and returning the callback result.
func (e *engine) evalModuleArgs(n *ast.CallExpr, site *modspec.Site) (string, bool) {
	var (
		result string
		found  bool
	)
	for _, a := range n.Args {
		switch a := a.(type) {
		case *ast.Literal, *ast.ArrayExpr:
			continue
		case *ast.FuncExpr:
			if site != nil && a == site.Callback || site == nil && !found {
				t := e.function(a, "", e.paramTypes(site))
				if sig, ok := ParseFunction(t); ok {
					result, found = sig.Result, true
				}
				continue
			}
			e.expr(a, "")
		default:
			result, found = e.expr(a, ""), true
		}
	}
	return result, found
}

func (e *engine) define(n *ast.CallExpr, site *modspec.Site) {
	result, found := e.evalModuleArgs(n, site)
	if found && !e.exportSet {
		e.export, e.exportSet = result, true
	}
}

// moduleType returns the type a module specifier evaluates to. Module member
// tables keep the path of the file declaring each member.
func (e *engine) moduleType(spec string) string {
	if t, ok := e.modules[spec]; ok {
		return t
	}
	t := e.fresh()
	e.modules[spec] = t
	if e.resolver == nil {
		return t
	}
	s, err := e.resolver.RetrieveSummary(spec)
	if err != nil || s == nil {
		return t
	}
	e.types.Merge(s.Types)
	if s.Exported != "" {
		e.modules[spec] = s.Exported
		return s.Exported
	}
	def := e.types.Ensure(t)
	keys := make([]string, 0, len(s.Provided))
	for k := range s.Provided {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		entry := s.Provided[k]
		def.Set(Member{Name: k, Type: entry.TypeName, Path: entry.Path, Range: copyRange(entry.Range)})
	}
	return t
}

func (e *engine) newExpr(n *ast.NewExpr) string {
	calleeT := e.expr(n.Callee, "")
	for _, a := range n.Args {
		e.expr(a, "")
	}
	name := ast.CalleeName(n.Callee)
	if sig, ok := ParseFunction(calleeT); ok && sig.Constructor {
		id, bare := n.Callee.(*ast.Identifier)
		if bare && id.Name != sig.Result && strings.Contains(sig.Result, ".") {
			// A dotted constructor reached through a local variable is
			// named after the variable and shares the member table.
			if _, ok := e.types[id.Name]; !ok {
				e.types[id.Name] = e.types.Ensure(sig.Result)
			}
			return id.Name
		}
		return sig.Result
	}
	if name == "" {
		return Object
	}
	e.types.Ensure(name)
	return name
}
