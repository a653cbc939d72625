// Package ast declares the JavaScript syntax tree used by the analysis engine.
//
// The tree is a closed set of node types converted from the tree-sitter
// concrete syntax tree by package parse. Every node carries its byte range and
// the line/column of its first byte. Constructs the engine does not reason
// about are kept as *Other so identifiers nested inside them are still
// reachable by a walk.
package ast

import "github.com/phobologic/jsguide/internal/model"

// Position is a 1-based line and 0-based byte column.
type Position struct {
	Line   int
	Column int
}

// Node is implemented by every syntax tree node.
type Node interface {
	Span() model.Range
	Pos() Position
	node()
}

// Base carries the location shared by all nodes.
type Base struct {
	R   model.Range
	Loc Position
}

func (b *Base) Span() model.Range { return b.R }
func (b *Base) Pos() Position { return b.Loc }
func (*Base) node()           {}

// LitKind classifies a Literal.
type LitKind int

const (
	LitNumber LitKind = iota
	LitString
	LitBoolean
	LitNull
	LitUndefined
	LitRegExp
	LitTemplate
)

type (
	// Program is the root of a parsed buffer.
	Program struct {
		Base
		Body     []Node
		Comments []*Comment
	}

	// Comment is a line or block comment. Comments are not walked.
	Comment struct {
		Base
		Text string
	}

	// Identifier is a name. PropertyName marks tree-sitter property
	// identifiers, which never denote a variable on their own.
	Identifier struct {
		Base
		Name         string
		PropertyName bool
	}

	// Literal is a number, string, boolean, null, regex or template literal.
	// Value holds the unquoted string contents for string literals.
	Literal struct {
		Base
		Kind  LitKind
		Raw   string
		Value string
	}

	ThisExpr struct {
		Base
	}

	// VarDecl is a var, let or const statement.
	VarDecl struct {
		Base
		Kind  string
		Decls []*VarDeclarator
	}

	VarDeclarator struct {
		Base
		ID   Node
		Init Node
	}

	FuncDecl struct {
		Base
		ID     *Identifier
		Params []Node
		Body   *Block
	}

	// FuncExpr is a function expression or an arrow function. Arrow
	// functions with an expression body carry that expression as Body.
	FuncExpr struct {
		Base
		ID     *Identifier
		Params []Node
		Body   Node
		Arrow  bool
	}

	ObjectExpr struct {
		Base
		Props []*Property
	}

	// Property is an object literal member. Shorthand properties have a
	// nil Key and the referenced identifier as Value.
	Property struct {
		Base
		Key       Node
		Value     Node
		Computed  bool
		Shorthand bool
	}

	ArrayExpr struct {
		Base
		Elems []Node
	}

	MemberExpr struct {
		Base
		Object   Node
		Property Node
		Computed bool
	}

	CallExpr struct {
		Base
		Callee Node
		Args   []Node
	}

	NewExpr struct {
		Base
		Callee Node
		Args   []Node
	}

	AssignExpr struct {
		Base
		Op    string
		Left  Node
		Right Node
	}

	// BinaryExpr covers arithmetic, comparison and logical operators.
	BinaryExpr struct {
		Base
		Op    string
		Left  Node
		Right Node
	}

	UnaryExpr struct {
		Base
		Op  string
		Arg Node
	}

	UpdateExpr struct {
		Base
		Op     string
		Arg    Node
		Prefix bool
	}

	CondExpr struct {
		Base
		Test Node
		Cons Node
		Alt  Node
	}

	SeqExpr struct {
		Base
		Exprs []Node
	}

	Block struct {
		Base
		Body []Node
	}

	ExprStmt struct {
		Base
		Expr Node
	}

	ReturnStmt struct {
		Base
		Arg Node
	}

	IfStmt struct {
		Base
		Test Node
		Cons Node
		Alt  Node
	}

	ForStmt struct {
		Base
		Init   Node
		Test   Node
		Update Node
		Body   Node
	}

	// ForInStmt is a for-in or, with Of set, a for-of loop.
	ForInStmt struct {
		Base
		Left  Node
		Right Node
		Body  Node
		Of    bool
	}

	WhileStmt struct {
		Base
		Test Node
		Body Node
	}

	DoWhileStmt struct {
		Base
		Body Node
		Test Node
	}

	BreakStmt struct {
		Base
		Label *Identifier
	}

	ContinueStmt struct {
		Base
		Label *Identifier
	}

	LabeledStmt struct {
		Base
		Label *Identifier
		Body  Node
	}

	ThrowStmt struct {
		Base
		Arg Node
	}

	TryStmt struct {
		Base
		Block     *Block
		Handler   *CatchClause
		Finalizer *Block
	}

	CatchClause struct {
		Base
		Param Node
		Body  *Block
	}

	SwitchStmt struct {
		Base
		Disc  Node
		Cases []*SwitchCase
	}

	// SwitchCase is a case clause; Test is nil for default.
	SwitchCase struct {
		Base
		Test Node
		Body []Node
	}

	WithStmt struct {
		Base
		Object Node
		Body   Node
	}

	// Other is any construct without a dedicated node type, identified by
	// its tree-sitter node type.
	Other struct {
		Base
		Type     string
		Children []Node
	}
)

// IsFunction reports whether n introduces a function scope.
func IsFunction(n Node) bool {
	switch n.(type) {
	case *FuncDecl, *FuncExpr:
		return true
	}
	return false
}

// IsScope reports whether n is a hoisting boundary for var and function
// declarations.
func IsScope(n Node) bool {
	if _, ok := n.(*Program); ok {
		return true
	}
	return IsFunction(n)
}

// FuncParts returns the name, parameters and body of a function node.
func FuncParts(n Node) (id *Identifier, params []Node, body Node, ok bool) {
	switch f := n.(type) {
	case *FuncDecl:
		if f.Body == nil {
			return f.ID, f.Params, nil, true
		}
		return f.ID, f.Params, f.Body, true
	case *FuncExpr:
		return f.ID, f.Params, f.Body, true
	}
	return nil, nil, nil, false
}

// CalleeName returns the final name of a call or new target: the identifier
// itself or the property of a non-computed member expression.
func CalleeName(n Node) string {
	switch c := n.(type) {
	case *Identifier:
		return c.Name
	case *MemberExpr:
		if id, ok := c.Property.(*Identifier); ok && !c.Computed {
			return id.Name
		}
	}
	return ""
}
