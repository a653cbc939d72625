package parse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/jsguide/internal/ast"
	"github.com/phobologic/jsguide/internal/lang"
	"github.com/phobologic/jsguide/internal/model"
)

// converter turns tree-sitter nodes into ast nodes. The result holds no
// references into the tree, which is closed once conversion finishes.
type converter struct {
	src      []byte
	comments []*ast.Comment
}

func (c *converter) base(n *sitter.Node) ast.Base {
	return ast.Base{
		R: model.Range{Start: int(n.StartByte()), End: int(n.EndByte())},
		Loc: ast.Position{
			Line:   int(n.StartPoint().Row) + 1,
			Column: int(n.StartPoint().Column),
		},
	}
}

func (c *converter) text(n *sitter.Node) string {
	return lang.NodeText(n, c.src)
}

// named returns the named children of n with comments collected aside.
func (c *converter) named(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		if child.Type() == "comment" {
			c.comments = append(c.comments, &ast.Comment{Base: c.base(child), Text: c.text(child)})
			continue
		}
		out = append(out, child)
	}
	return out
}

func (c *converter) program(n *sitter.Node) *ast.Program {
	prog := &ast.Program{Base: c.base(n)}
	// The program always spans the whole buffer so leading and trailing
	// whitespace still belongs to the top-level scope.
	prog.R = model.Range{Start: 0, End: len(c.src)}
	prog.Loc = ast.Position{Line: 1}
	prog.Body = c.list(c.named(n))
	prog.Comments = c.comments
	return prog
}

func (c *converter) list(nodes []*sitter.Node) []ast.Node {
	var out []ast.Node
	for _, n := range nodes {
		if conv := c.convert(n); conv != nil {
			out = append(out, conv)
		}
	}
	return out
}

func (c *converter) field(n *sitter.Node, name string) ast.Node {
	child := n.ChildByFieldName(name)
	if child == nil {
		return nil
	}
	return c.convert(child)
}

func (c *converter) ident(n *sitter.Node) *ast.Identifier {
	if n == nil {
		return nil
	}
	return &ast.Identifier{
		Base:         c.base(n),
		Name:         c.text(n),
		PropertyName: n.Type() == "property_identifier" || n.Type() == "private_property_identifier",
	}
}

func (c *converter) block(n *sitter.Node) *ast.Block {
	if n == nil {
		return nil
	}
	if n.Type() != "statement_block" {
		b := &ast.Block{Base: c.base(n)}
		if conv := c.convert(n); conv != nil {
			b.Body = []ast.Node{conv}
		}
		return b
	}
	return &ast.Block{Base: c.base(n), Body: c.list(c.named(n))}
}

// operator returns the operator token of n, looked up by field name or, for
// grammars without the field, as the first anonymous child.
func (c *converter) operator(n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return c.text(op)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child != nil && !child.IsNamed() {
			return c.text(child)
		}
	}
	return ""
}

// convert maps a single tree-sitter node. It returns nil for nodes that carry
// no semantic content (punctuation, empty statements).
func (c *converter) convert(n *sitter.Node) ast.Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "comment":
		c.comments = append(c.comments, &ast.Comment{Base: c.base(n), Text: c.text(n)})
		return nil
	case "empty_statement", "hash_bang_line", ";":
		return nil

	case "identifier", "property_identifier", "private_property_identifier",
		"shorthand_property_identifier_pattern", "statement_identifier", "undefined":
		if n.Type() == "undefined" {
			return &ast.Literal{Base: c.base(n), Kind: ast.LitUndefined, Raw: "undefined"}
		}
		return c.ident(n)

	case "this":
		return &ast.ThisExpr{Base: c.base(n)}
	case "number":
		return &ast.Literal{Base: c.base(n), Kind: ast.LitNumber, Raw: c.text(n), Value: c.text(n)}
	case "string":
		raw := c.text(n)
		return &ast.Literal{Base: c.base(n), Kind: ast.LitString, Raw: raw, Value: unquote(raw)}
	case "template_string":
		return &ast.Literal{Base: c.base(n), Kind: ast.LitTemplate, Raw: c.text(n)}
	case "regex":
		return &ast.Literal{Base: c.base(n), Kind: ast.LitRegExp, Raw: c.text(n)}
	case "true", "false":
		return &ast.Literal{Base: c.base(n), Kind: ast.LitBoolean, Raw: c.text(n), Value: c.text(n)}
	case "null":
		return &ast.Literal{Base: c.base(n), Kind: ast.LitNull, Raw: "null"}

	case "parenthesized_expression":
		inner := c.named(n)
		if len(inner) == 1 {
			return c.convert(inner[0])
		}
		return c.other(n)

	case "expression_statement":
		inner := c.named(n)
		if len(inner) == 0 {
			return nil
		}
		return &ast.ExprStmt{Base: c.base(n), Expr: c.convert(inner[0])}

	case "variable_declaration", "lexical_declaration":
		decl := &ast.VarDecl{Base: c.base(n), Kind: "var"}
		if kind := n.ChildByFieldName("kind"); kind != nil {
			decl.Kind = c.text(kind)
		} else if n.ChildCount() > 0 {
			decl.Kind = c.text(n.Child(0))
		}
		for _, child := range c.named(n) {
			if child.Type() != "variable_declarator" {
				continue
			}
			decl.Decls = append(decl.Decls, &ast.VarDeclarator{
				Base: c.base(child),
				ID:   c.field(child, "name"),
				Init: c.field(child, "value"),
			})
		}
		return decl

	case "function_declaration", "generator_function_declaration":
		return &ast.FuncDecl{
			Base:   c.base(n),
			ID:     c.ident(n.ChildByFieldName("name")),
			Params: c.params(n),
			Body:   c.block(n.ChildByFieldName("body")),
		}

	case "function", "function_expression", "generator_function":
		fn := &ast.FuncExpr{
			Base:   c.base(n),
			ID:     c.ident(n.ChildByFieldName("name")),
			Params: c.params(n),
		}
		if body := c.block(n.ChildByFieldName("body")); body != nil {
			fn.Body = body
		}
		return fn

	case "arrow_function":
		fn := &ast.FuncExpr{Base: c.base(n), Arrow: true, Params: c.params(n)}
		body := n.ChildByFieldName("body")
		if body != nil && body.Type() == "statement_block" {
			fn.Body = c.block(body)
		} else {
			fn.Body = c.convert(body)
		}
		return fn

	case "method_definition":
		// Methods are modelled as a property holding a function expression.
		fn := &ast.FuncExpr{Base: c.base(n), Params: c.params(n)}
		if body := c.block(n.ChildByFieldName("body")); body != nil {
			fn.Body = body
		}
		return &ast.Property{Base: c.base(n), Key: c.field(n, "name"), Value: fn}

	case "object", "object_pattern":
		if n.Type() == "object_pattern" {
			return c.other(n)
		}
		obj := &ast.ObjectExpr{Base: c.base(n)}
		for _, child := range c.named(n) {
			switch child.Type() {
			case "pair":
				key := child.ChildByFieldName("key")
				prop := &ast.Property{Base: c.base(child), Value: c.field(child, "value")}
				if key != nil && key.Type() == "computed_property_name" {
					prop.Computed = true
					if inner := c.named(key); len(inner) > 0 {
						prop.Key = c.convert(inner[0])
					}
				} else {
					prop.Key = c.convert(key)
					if id, ok := prop.Key.(*ast.Identifier); ok {
						id.PropertyName = true
					}
				}
				obj.Props = append(obj.Props, prop)
			case "shorthand_property_identifier":
				id := &ast.Identifier{Base: c.base(child), Name: c.text(child)}
				obj.Props = append(obj.Props, &ast.Property{Base: c.base(child), Value: id, Shorthand: true})
			case "method_definition":
				if prop, ok := c.convert(child).(*ast.Property); ok {
					obj.Props = append(obj.Props, prop)
				}
			default:
				conv := c.convert(child)
				if conv != nil {
					obj.Props = append(obj.Props, &ast.Property{Base: c.base(child), Value: conv, Computed: true})
				}
			}
		}
		return obj

	case "array":
		return &ast.ArrayExpr{Base: c.base(n), Elems: c.list(c.named(n))}

	case "member_expression":
		return &ast.MemberExpr{
			Base:     c.base(n),
			Object:   c.field(n, "object"),
			Property: c.field(n, "property"),
		}
	case "subscript_expression":
		return &ast.MemberExpr{
			Base:     c.base(n),
			Object:   c.field(n, "object"),
			Property: c.field(n, "index"),
			Computed: true,
		}

	case "call_expression":
		call := &ast.CallExpr{Base: c.base(n), Callee: c.field(n, "function")}
		if args := n.ChildByFieldName("arguments"); args != nil {
			if args.Type() == "arguments" {
				call.Args = c.list(c.named(args))
			} else {
				// tagged template
				call.Args = []ast.Node{c.convert(args)}
			}
		}
		return call

	case "new_expression":
		nw := &ast.NewExpr{Base: c.base(n), Callee: c.field(n, "constructor")}
		if args := n.ChildByFieldName("arguments"); args != nil {
			nw.Args = c.list(c.named(args))
		}
		return nw

	case "assignment_expression", "augmented_assignment_expression":
		op := "="
		if n.Type() == "augmented_assignment_expression" {
			op = c.operator(n)
		}
		return &ast.AssignExpr{
			Base:  c.base(n),
			Op:    op,
			Left:  c.field(n, "left"),
			Right: c.field(n, "right"),
		}

	case "binary_expression":
		return &ast.BinaryExpr{
			Base:  c.base(n),
			Op:    c.operator(n),
			Left:  c.field(n, "left"),
			Right: c.field(n, "right"),
		}

	case "unary_expression":
		return &ast.UnaryExpr{Base: c.base(n), Op: c.operator(n), Arg: c.field(n, "argument")}

	case "update_expression":
		prefix := n.ChildCount() > 0 && !n.Child(0).IsNamed()
		return &ast.UpdateExpr{Base: c.base(n), Op: c.operator(n), Arg: c.field(n, "argument"), Prefix: prefix}

	case "ternary_expression":
		return &ast.CondExpr{
			Base: c.base(n),
			Test: c.field(n, "condition"),
			Cons: c.field(n, "consequence"),
			Alt:  c.field(n, "alternative"),
		}

	case "sequence_expression":
		seq := &ast.SeqExpr{Base: c.base(n)}
		for _, child := range c.list(c.named(n)) {
			// Older grammars nest sequences to the right.
			if inner, ok := child.(*ast.SeqExpr); ok {
				seq.Exprs = append(seq.Exprs, inner.Exprs...)
				continue
			}
			seq.Exprs = append(seq.Exprs, child)
		}
		return seq

	case "statement_block":
		return c.block(n)

	case "return_statement":
		ret := &ast.ReturnStmt{Base: c.base(n)}
		if inner := c.named(n); len(inner) > 0 {
			ret.Arg = c.convert(inner[0])
		}
		return ret

	case "if_statement":
		stmt := &ast.IfStmt{
			Base: c.base(n),
			Test: c.field(n, "condition"),
			Cons: c.field(n, "consequence"),
		}
		if alt := n.ChildByFieldName("alternative"); alt != nil {
			if alt.Type() == "else_clause" {
				if inner := c.named(alt); len(inner) > 0 {
					stmt.Alt = c.convert(inner[0])
				}
			} else {
				stmt.Alt = c.convert(alt)
			}
		}
		return stmt

	case "for_statement":
		return &ast.ForStmt{
			Base:   c.base(n),
			Init:   c.field(n, "initializer"),
			Test:   c.field(n, "condition"),
			Update: c.field(n, "increment"),
			Body:   c.field(n, "body"),
		}

	case "for_in_statement":
		stmt := &ast.ForInStmt{
			Base:  c.base(n),
			Left:  c.field(n, "left"),
			Right: c.field(n, "right"),
			Body:  c.field(n, "body"),
		}
		if op := n.ChildByFieldName("operator"); op != nil {
			stmt.Of = c.text(op) == "of"
		}
		// for (var x in o): the declaration keyword is a sibling of left.
		if kind := n.ChildByFieldName("kind"); kind != nil {
			if id, ok := stmt.Left.(*ast.Identifier); ok {
				stmt.Left = &ast.VarDecl{
					Base:  ast.Base{R: model.Range{Start: int(kind.StartByte()), End: id.R.End}, Loc: c.base(kind).Loc},
					Kind:  c.text(kind),
					Decls: []*ast.VarDeclarator{{Base: id.Base, ID: id}},
				}
			}
		}
		return stmt

	case "while_statement":
		return &ast.WhileStmt{Base: c.base(n), Test: c.field(n, "condition"), Body: c.field(n, "body")}
	case "do_statement":
		return &ast.DoWhileStmt{Base: c.base(n), Body: c.field(n, "body"), Test: c.field(n, "condition")}

	case "break_statement":
		return &ast.BreakStmt{Base: c.base(n), Label: c.ident(n.ChildByFieldName("label"))}
	case "continue_statement":
		return &ast.ContinueStmt{Base: c.base(n), Label: c.ident(n.ChildByFieldName("label"))}
	case "labeled_statement":
		return &ast.LabeledStmt{Base: c.base(n), Label: c.ident(n.ChildByFieldName("label")), Body: c.field(n, "body")}

	case "throw_statement":
		stmt := &ast.ThrowStmt{Base: c.base(n)}
		if inner := c.named(n); len(inner) > 0 {
			stmt.Arg = c.convert(inner[0])
		}
		return stmt

	case "try_statement":
		stmt := &ast.TryStmt{Base: c.base(n), Block: c.block(n.ChildByFieldName("body"))}
		if h := n.ChildByFieldName("handler"); h != nil {
			stmt.Handler = &ast.CatchClause{
				Base:  c.base(h),
				Param: c.field(h, "parameter"),
				Body:  c.block(h.ChildByFieldName("body")),
			}
		}
		if f := n.ChildByFieldName("finalizer"); f != nil {
			stmt.Finalizer = c.block(f.ChildByFieldName("body"))
		}
		return stmt

	case "switch_statement":
		stmt := &ast.SwitchStmt{Base: c.base(n), Disc: c.field(n, "value")}
		if body := n.ChildByFieldName("body"); body != nil {
			for _, child := range c.named(body) {
				sc := &ast.SwitchCase{Base: c.base(child)}
				value := child.ChildByFieldName("value")
				if child.Type() == "switch_case" && value != nil {
					sc.Test = c.convert(value)
				}
				for _, stmtNode := range c.named(child) {
					if value != nil && stmtNode.StartByte() == value.StartByte() && stmtNode.EndByte() == value.EndByte() {
						continue
					}
					if conv := c.convert(stmtNode); conv != nil {
						sc.Body = append(sc.Body, conv)
					}
				}
				stmt.Cases = append(stmt.Cases, sc)
			}
		}
		return stmt

	case "with_statement":
		return &ast.WithStmt{Base: c.base(n), Object: c.field(n, "object"), Body: c.field(n, "body")}
	}

	return c.other(n)
}

func (c *converter) other(n *sitter.Node) ast.Node {
	o := &ast.Other{Base: c.base(n), Type: n.Type()}
	o.Children = c.list(c.named(n))
	return o
}

// params converts formal parameters. Arrow functions with a single bare
// parameter expose it through the "parameter" field instead.
func (c *converter) params(n *sitter.Node) []ast.Node {
	if single := n.ChildByFieldName("parameter"); single != nil {
		if conv := c.convert(single); conv != nil {
			return []ast.Node{conv}
		}
		return nil
	}
	formal := n.ChildByFieldName("parameters")
	if formal == nil {
		return nil
	}
	var out []ast.Node
	for _, p := range c.named(formal) {
		// Default values: keep the bound name, the initializer is walked
		// as part of an Other wrapper so its references are still seen.
		if p.Type() == "assignment_pattern" {
			left := c.field(p, "left")
			if id, ok := left.(*ast.Identifier); ok {
				out = append(out, id)
				if right := c.field(p, "right"); right != nil {
					out = append(out, &ast.Other{Base: c.base(p), Type: "default_value", Children: []ast.Node{right}})
				}
				continue
			}
		}
		if conv := c.convert(p); conv != nil {
			out = append(out, conv)
		}
	}
	return out
}

// unquote strips the quotes of a string literal and resolves the escapes
// that occur in module specifiers and property keys.
func unquote(raw string) string {
	if len(raw) < 2 {
		return raw
	}
	body := raw[1 : len(raw)-1]
	if !strings.Contains(body, `\`) {
		return body
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		ch := body[i]
		if ch != '\\' || i+1 >= len(body) {
			b.WriteByte(ch)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(body[i])
		}
	}
	return b.String()
}
