// Package toon encodes a project map as TOON (Token-Oriented Object
// Notation) tables.
package toon

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/phobologic/jsguide/internal/infer"
	"github.com/phobologic/jsguide/internal/model"
)

// exportedName labels the row of a module whose export is a single value.
const exportedName = "(exports)"

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts pm into TOON with three tables: files, symbols (the
// members each file provides, with rendered types) and dependencies.
func Encode(pm *model.ProjectMap) string {
	parts := []string{
		"project: " + encodeValue(pm.Name),
		"root: " + encodeValue(pm.Root),
	}

	fileRows := make([][]string, 0, len(pm.Files))
	for _, f := range pm.Files {
		fileRows = append(fileRows, []string{f.Path, string(f.Kind), fmt.Sprintf("%.4f", f.Rank)})
	}
	parts = append(parts, formatTabular("files", []string{"path", "kind", "rank"}, fileRows))

	var symbolRows [][]string
	for _, f := range pm.Files {
		symbolRows = append(symbolRows, symbols(f)...)
	}
	parts = append(parts, formatTabular("symbols", []string{"file", "name", "type", "offset"}, symbolRows))

	depRows := make([][]string, 0, len(pm.Dependencies))
	for _, d := range pm.Dependencies {
		depRows = append(depRows, []string{d.Source, d.Target, strings.Join(d.Specifiers, " ")})
	}
	parts = append(parts, formatTabular("dependencies", []string{"source", "target", "specifiers"}, depRows))

	return strings.Join(parts, "\n")
}

func symbols(f model.FileInfo) [][]string {
	s := f.Summary
	if s == nil {
		return nil
	}
	var rows [][]string
	if s.Exported != "" {
		rows = append(rows, []string{f.Path, exportedName, infer.RenderSummaryType(s, s.Exported), ""})
	}
	names := make([]string, 0, len(s.Provided))
	for n := range s.Provided {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		e := s.Provided[n]
		offset := ""
		if e.Range != nil {
			offset = strconv.Itoa(e.Range.Start)
		}
		rows = append(rows, []string{f.Path, n, infer.RenderSummaryType(s, e.TypeName), offset})
	}
	return rows
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	switch {
	case value == "":
		return `""`
	case value != strings.TrimSpace(value), strings.ContainsAny(value, "\n\r\t"):
		return quote(value)
	}
	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}
	if looksNumeric.MatchString(value) {
		return value
	}
	if needsQuoting.MatchString(value) || strings.HasPrefix(value, "-") {
		return quote(value)
	}
	return value
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func quote(value string) string {
	return `"` + quoteReplacer.Replace(value) + `"`
}
