// Package lang registers the tree-sitter grammars jsguide can read and maps
// file extensions onto them.
package lang

import (
	"fmt"
	"slices"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Language is a registered grammar.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language
}

// GetLanguage returns the tree-sitter grammar.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser returns a parser for l. Parsers are not safe for concurrent use,
// so callers take one per parse.
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// HasExtension reports whether ext (including the dot) belongs to l.
func (l *Language) HasExtension(ext string) bool {
	return slices.Contains(l.Extensions, ext)
}

var (
	mu    sync.RWMutex
	byExt = map[string]*Language{}

	// Languages holds every registered grammar by name.
	Languages = map[string]*Language{}
)

// register adds l to the registry. A second grammar claiming an extension is
// a programming error.
func register(l *Language) {
	mu.Lock()
	defer mu.Unlock()
	for _, ext := range l.Extensions {
		if prev, ok := byExt[ext]; ok {
			panic(fmt.Sprintf("lang: %s already registered by %s", ext, prev.Name))
		}
		byExt[ext] = l
	}
	Languages[l.Name] = l
}

// ForExtension returns the name of the grammar owning ext, or "".
func ForExtension(ext string) string {
	mu.RLock()
	defer mu.RUnlock()
	if l, ok := byExt[ext]; ok {
		return l.Name
	}
	return ""
}

// NodeText returns the source text spanned by node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}
