package infer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/phobologic/jsguide/internal/model"
)

// Primitive type names.
const (
	Number    = "Number"
	String    = "String"
	Boolean   = "Boolean"
	Object    = "Object"
	Global    = "Global"
	Window    = "Window"
	Array     = "Array"
	RegExp    = "RegExp"
	Undefined = "undefined"
)

const generatedPrefix = "gen~"

// IsPrimitive reports whether t names a built-in type that never carries
// members of its own.
func IsPrimitive(t string) bool {
	switch t {
	case Number, String, Boolean, Object, Global, Window, Array, RegExp, Undefined, "":
		return true
	}
	return false
}

// IsGenerated reports whether t is a synthetic structural type name.
func IsGenerated(t string) bool {
	return strings.HasPrefix(t, generatedPrefix)
}

// GeneratedType builds a synthetic type name. The content hash keeps names
// from different buffers apart; scope and ordinal keep them apart within one.
func GeneratedType(hash string, scope, ordinal int) string {
	return fmt.Sprintf("%s%s~%d~%d", generatedPrefix, hash, scope, ordinal)
}

// DottedType names a constructor reached through a property path.
func DottedType(owner, member string) string {
	if owner == "" {
		return member
	}
	return owner + "." + member
}

// FunctionType encodes a function returning ret.
func FunctionType(ret string, params []string) string {
	return "?" + ret + ":" + strings.Join(params, ",")
}

// ConstructorType encodes a constructor producing instances of inst.
func ConstructorType(inst string, params []string) string {
	return "*" + inst + ":" + strings.Join(params, ",")
}

// Signature is a decoded function or constructor type.
type Signature struct {
	Constructor bool
	// Result is the return type, or the instance type of a constructor.
	Result string
	Params []string
}

// ParseFunction decodes a function or constructor type name. Parameter
// names never contain ':', so the last colon separates the result from the
// parameter list.
func ParseFunction(t string) (Signature, bool) {
	if len(t) < 2 || (t[0] != '?' && t[0] != '*') {
		return Signature{}, false
	}
	i := strings.LastIndexByte(t, ':')
	if i < 1 {
		return Signature{}, false
	}
	sig := Signature{Constructor: t[0] == '*', Result: t[1:i]}
	if rest := t[i+1:]; rest != "" {
		sig.Params = strings.Split(rest, ",")
	}
	return sig, true
}

// Member is one entry of a type's member table.
type Member struct {
	Name  string
	Type  string
	Path  string
	Range *model.Range
}

// TypeDef is an ordered member table.
type TypeDef struct {
	Members []*Member
	index   map[string]int
}

func newTypeDef() *TypeDef {
	return &TypeDef{index: make(map[string]int)}
}

// Get returns the named member.
func (d *TypeDef) Get(name string) (*Member, bool) {
	if d == nil {
		return nil, false
	}
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.Members[i], true
}

// Set adds a member or, when it exists, replaces its type. The first
// declaration keeps its position and range.
func (d *TypeDef) Set(m Member) *Member {
	if i, ok := d.index[m.Name]; ok {
		cur := d.Members[i]
		cur.Type = m.Type
		if cur.Range == nil {
			cur.Range = m.Range
		}
		return cur
	}
	d.index[m.Name] = len(d.Members)
	nm := m
	d.Members = append(d.Members, &nm)
	return &nm
}

// TypeTable maps type names to member tables. Several names may share one
// table.
type TypeTable map[string]*TypeDef

// Ensure returns the table for t, creating it if needed.
func (tt TypeTable) Ensure(t string) *TypeDef {
	d, ok := tt[t]
	if !ok {
		d = newTypeDef()
		tt[t] = d
	}
	return d
}

// Merge imports persisted type entries without overwriting existing tables.
func (tt TypeTable) Merge(types map[string]map[string]model.Entry) {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := tt[name]; ok {
			continue
		}
		tt[name] = defFromEntries(types[name])
	}
}

func defFromEntries(entries map[string]model.Entry) *TypeDef {
	d := newTypeDef()
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e := entries[k]
		d.Set(Member{Name: k, Type: e.TypeName, Path: e.Path, Range: e.Range})
	}
	return d
}

// Render produces the human readable form of t used in hover text.
func (tt TypeTable) Render(t string) string {
	return tt.render(t, 0)
}

func (tt TypeTable) render(t string, depth int) string {
	if sig, ok := ParseFunction(t); ok {
		params := strings.Join(sig.Params, ",")
		if sig.Constructor {
			return "new (" + params + ") -> " + tt.render(sig.Result, depth+1)
		}
		return "(" + params + ") -> " + tt.render(sig.Result, depth+1)
	}
	if !IsGenerated(t) {
		return t
	}
	if depth > 1 {
		return "{...}"
	}
	var parts []string
	if d := tt[t]; d != nil {
		for _, m := range d.Members {
			parts = append(parts, m.Name+":"+tt.render(m.Type, depth+1))
		}
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// RenderSummaryType renders t against the member tables persisted in s.
func RenderSummaryType(s *model.Summary, t string) string {
	tt := make(TypeTable)
	if s != nil {
		tt.Merge(s.Types)
	}
	return tt.Render(t)
}
