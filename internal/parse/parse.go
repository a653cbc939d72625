// Package parse converts JavaScript source into the jsguide syntax tree using
// tree-sitter.
package parse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/jsguide/internal/ast"
	"github.com/phobologic/jsguide/internal/lang"
	"github.com/phobologic/jsguide/internal/model"
)

// DefaultMaxFileSize bounds the buffers Parse accepts.
const DefaultMaxFileSize = 10 * 1024 * 1024

// ErrFileTooLarge is returned for buffers above the configured size limit.
var ErrFileTooLarge = errors.New("file too large")

// SyntaxError reports the first malformed construct in a buffer.
type SyntaxError struct {
	Line   int
	Column int
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d:%d: %s", e.Line, e.Column, e.Msg)
}

// Options configures Parse.
type Options struct {
	MaxFileSize int
}

// Option is a functional option for Parse.
type Option func(*Options)

// WithMaxFileSize sets the largest accepted buffer in bytes.
func WithMaxFileSize(n int) Option {
	return func(o *Options) {
		o.MaxFileSize = n
	}
}

// Parse parses src as a JavaScript program. An empty buffer yields an empty
// program. A buffer tree-sitter could only parse with error recovery yields a
// *SyntaxError and no tree.
func Parse(src []byte, opts ...Option) (*ast.Program, error) {
	options := Options{MaxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(&options)
	}
	if options.MaxFileSize > 0 && len(src) > options.MaxFileSize {
		return nil, ErrFileTooLarge
	}
	if len(strings.TrimSpace(string(src))) == 0 {
		return &ast.Program{Base: ast.Base{R: model.Range{Start: 0, End: len(src)}, Loc: ast.Position{Line: 1}}}, nil
	}

	parser := lang.Languages[lang.JavaScript].NewParser()
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, firstError(root, src)
	}

	c := &converter{src: src}
	prog := c.program(root)
	return prog, nil
}

// ParseString is Parse for string buffers.
func ParseString(src string, opts ...Option) (*ast.Program, error) {
	return Parse([]byte(src), opts...)
}

func firstError(root *sitter.Node, src []byte) *SyntaxError {
	var bad *sitter.Node
	var find func(n *sitter.Node) bool
	find = func(n *sitter.Node) bool {
		if n.IsMissing() || n.Type() == "ERROR" {
			bad = n
			return true
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child == nil || !(child.HasError() || child.IsMissing()) {
				continue
			}
			if find(child) {
				return true
			}
		}
		return false
	}
	if !find(root) {
		bad = root
	}

	msg := "unexpected input"
	if bad.IsMissing() {
		msg = fmt.Sprintf("missing %q", bad.Type())
	} else if bad.EndByte() > bad.StartByte() {
		text := lang.NodeText(bad, src)
		if len(text) > 20 {
			text = text[:20] + "..."
		}
		msg = fmt.Sprintf("unexpected %q", text)
	}
	return &SyntaxError{
		Line:   int(bad.StartPoint().Row) + 1,
		Column: int(bad.StartPoint().Column),
		Offset: int(bad.StartByte()),
		Msg:    msg,
	}
}
