package ast

type stepKind int

const (
	stepContinue stepKind = iota
	stepSkip
	stepStop
)

// Step is the result of an enter callback.
type Step struct {
	kind  stepKind
	value any
}

var (
	// Continue descends into the node's children.
	Continue = Step{}
	// Skip does not descend into the node's children. The exit callback is
	// still called for the node.
	Skip = Step{kind: stepSkip}
)

// StopWith ends the whole walk. Walk returns v and true. No further enter or
// exit callbacks run, including exits of the nodes on the current path.
func StopWith(v any) Step {
	return Step{kind: stepStop, value: v}
}

// Cursor exposes the node being visited and its ancestors.
type Cursor struct {
	stack []Node
}

// Node returns the node being visited.
func (c *Cursor) Node() Node {
	return c.stack[len(c.stack)-1]
}

// Parent returns the parent of the current node, or nil at the root.
func (c *Cursor) Parent() Node {
	if len(c.stack) < 2 {
		return nil
	}
	return c.stack[len(c.stack)-2]
}

// Ancestors returns the path from the root to the parent of the current
// node. The slice is owned by the cursor and is only valid during the
// callback.
func (c *Cursor) Ancestors() []Node {
	return c.stack[:len(c.stack)-1]
}

// Depth returns the number of ancestors of the current node.
func (c *Cursor) Depth() int {
	return len(c.stack) - 1
}

// Walk traverses the tree rooted at root in depth-first pre-order, calling
// enter before a node's children and exit (if non-nil) after them.
// It returns the value passed to StopWith and whether the walk was stopped.
func Walk(root Node, enter func(*Cursor) Step, exit func(*Cursor)) (any, bool) {
	if root == nil {
		return nil, false
	}
	w := &walker{enter: enter, exit: exit}
	w.walk(root)
	return w.value, w.stopped
}

type walker struct {
	cur     Cursor
	enter   func(*Cursor) Step
	exit    func(*Cursor)
	value   any
	stopped bool
}

func (w *walker) walk(n Node) bool {
	w.cur.stack = append(w.cur.stack, n)
	defer func() { w.cur.stack = w.cur.stack[:len(w.cur.stack)-1] }()

	step := w.enter(&w.cur)
	switch step.kind {
	case stepStop:
		w.value, w.stopped = step.value, true
		return false
	case stepContinue:
		for _, child := range Children(n) {
			if !w.walk(child) {
				return false
			}
		}
	}

	if w.exit != nil {
		w.exit(&w.cur)
	}
	return true
}

// Children returns the direct children of n in their declared field order.
// Nil fields are omitted.
func Children(n Node) []Node {
	var out []Node
	add := func(nodes ...Node) {
		for _, c := range nodes {
			if c != nil {
				out = append(out, c)
			}
		}
	}
	ident := func(id *Identifier) {
		if id != nil {
			out = append(out, id)
		}
	}
	block := func(b *Block) {
		if b != nil {
			out = append(out, b)
		}
	}

	switch n := n.(type) {
	case *Program:
		add(n.Body...)
	case *VarDecl:
		for _, d := range n.Decls {
			out = append(out, d)
		}
	case *VarDeclarator:
		add(n.ID, n.Init)
	case *FuncDecl:
		ident(n.ID)
		add(n.Params...)
		block(n.Body)
	case *FuncExpr:
		ident(n.ID)
		add(n.Params...)
		add(n.Body)
	case *ObjectExpr:
		for _, p := range n.Props {
			out = append(out, p)
		}
	case *Property:
		add(n.Key, n.Value)
	case *ArrayExpr:
		add(n.Elems...)
	case *MemberExpr:
		add(n.Object, n.Property)
	case *CallExpr:
		add(n.Callee)
		add(n.Args...)
	case *NewExpr:
		add(n.Callee)
		add(n.Args...)
	case *AssignExpr:
		add(n.Left, n.Right)
	case *BinaryExpr:
		add(n.Left, n.Right)
	case *UnaryExpr:
		add(n.Arg)
	case *UpdateExpr:
		add(n.Arg)
	case *CondExpr:
		add(n.Test, n.Cons, n.Alt)
	case *SeqExpr:
		add(n.Exprs...)
	case *Block:
		add(n.Body...)
	case *ExprStmt:
		add(n.Expr)
	case *ReturnStmt:
		add(n.Arg)
	case *IfStmt:
		add(n.Test, n.Cons, n.Alt)
	case *ForStmt:
		add(n.Init, n.Test, n.Update, n.Body)
	case *ForInStmt:
		add(n.Left, n.Right, n.Body)
	case *WhileStmt:
		add(n.Test, n.Body)
	case *DoWhileStmt:
		add(n.Body, n.Test)
	case *BreakStmt:
		ident(n.Label)
	case *ContinueStmt:
		ident(n.Label)
	case *LabeledStmt:
		ident(n.Label)
		add(n.Body)
	case *ThrowStmt:
		add(n.Arg)
	case *TryStmt:
		block(n.Block)
		if n.Handler != nil {
			out = append(out, n.Handler)
		}
		block(n.Finalizer)
	case *CatchClause:
		add(n.Param)
		block(n.Body)
	case *SwitchStmt:
		add(n.Disc)
		for _, c := range n.Cases {
			out = append(out, c)
		}
	case *SwitchCase:
		add(n.Test)
		add(n.Body...)
	case *WithStmt:
		add(n.Object, n.Body)
	case *Other:
		add(n.Children...)
	}
	return out
}

// Innermost returns the deepest node whose range contains off, together with
// its ancestors (root first). Ranges are treated as end-inclusive so a cursor
// placed just after an identifier still selects it.
func Innermost(root Node, off int) (Node, []Node) {
	var (
		found Node
		path  []Node
	)
	Walk(root, func(c *Cursor) Step {
		n := c.Node()
		if !n.Span().Contains(off) {
			return Skip
		}
		found = n
		path = append(path[:0], c.Ancestors()...)
		return Continue
	}, nil)
	return found, path
}
