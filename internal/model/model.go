// Package model defines core data structures for jsguide.
package model

import (
	"encoding/json"
	"fmt"
)

// ModuleKind describes which module idiom a file uses.
type ModuleKind string

const (
	AMD      ModuleKind = "AMD"
	CommonJS ModuleKind = "commonjs"
	Global   ModuleKind = "global"
)

// Range is a [start, end) byte offset span into a buffer.
// It serializes as a two-element JSON array.
type Range struct {
	Start int
	End   int
}

// Contains reports whether off lies within r (end inclusive).
func (r Range) Contains(off int) bool {
	return off >= r.Start && off <= r.End
}

// Encloses reports whether o lies entirely within r.
func (r Range) Encloses(o Range) bool {
	return o.Start >= r.Start && o.End <= r.End
}

// Len returns the width of the span.
func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Start, r.End})
}

func (r *Range) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("range: %w", err)
	}
	r.Start, r.End = pair[0], pair[1]
	return nil
}

// Entry is one member of a summary: the inferred type of a binding, the file
// that declares it, and where.
type Entry struct {
	TypeName string `json:"typeName"`
	Path     string `json:"path"`
	Range    *Range `json:"range,omitempty"`
}

// Summary is the per-file analysis artifact persisted by the indexer.
type Summary struct {
	Kind     ModuleKind                  `json:"kind"`
	Name     string                      `json:"name"`
	Provided map[string]Entry            `json:"provided"`
	Types    map[string]map[string]Entry `json:"types"`
	Exported string                      `json:"exported,omitempty"`
}

// DependencyRef is the resolution of a single specifier written in a file.
type DependencyRef struct {
	Kind ModuleKind `json:"kind"`
	Name string     `json:"name"`
	Path string     `json:"path"`
}

// DependencyRecord maps the specifiers used in a file to resolved paths.
type DependencyRecord struct {
	Path string                   `json:"path"`
	Kind ModuleKind               `json:"kind"`
	Refs map[string]DependencyRef `json:"refs"`
}

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a positioned problem report for the problem-markers UI.
type Diagnostic struct {
	Description string   `json:"description"`
	Line        int      `json:"line"`
	Severity    Severity `json:"severity"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
}

// Definition answers a point-in-file query. An empty Path means the
// declaration lives in the queried buffer.
type Definition struct {
	TypeName string `json:"typeName"`
	Path     string `json:"path,omitempty"`
	Range    *Range `json:"range,omitempty"`
	Hover    string `json:"hover"`
}

// ModulePath is the resolved target of a module specifier literal.
type ModulePath struct {
	Path  string `json:"path"`
	Range Range  `json:"range"`
}

// FileInfo holds ranking metadata for one indexed file.
type FileInfo struct {
	Path    string
	Kind    ModuleKind
	Summary *Summary
	Rank    float64
}

// Dependency represents an edge in the dependency graph:
// Source imports Target through the listed specifiers.
type Dependency struct {
	Source     string
	Target     string
	Specifiers []string
}

// ProjectMap is the complete analyzed project, ready for serialization.
type ProjectMap struct {
	Name         string
	Root         string
	Files        []FileInfo
	Dependencies []Dependency
}
