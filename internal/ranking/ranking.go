// Package ranking narrows a ranked project map to the files worth showing.
package ranking

import (
	"strings"

	"github.com/phobologic/jsguide/internal/model"
)

// SelectFiles returns a map holding only the first maxFiles files, which
// are assumed to be sorted by rank. If maxFiles is <= 0 or covers every
// file, pm itself is returned.
func SelectFiles(pm *model.ProjectMap, maxFiles int) *model.ProjectMap {
	if maxFiles <= 0 || maxFiles >= len(pm.Files) {
		return pm
	}
	return keep(pm, pm.Files[:maxFiles], true)
}

// Exclude drops the files for which drop returns true.
func Exclude(pm *model.ProjectMap, drop func(path string) bool) *model.ProjectMap {
	var files []model.FileInfo
	for _, f := range pm.Files {
		if !drop(f.Path) {
			files = append(files, f)
		}
	}
	return keep(pm, files, true)
}

// FilterByFile keeps files whose path contains substr, case-insensitively,
// with every edge touching them.
func FilterByFile(pm *model.ProjectMap, substr string) *model.ProjectMap {
	lower := strings.ToLower(substr)
	var files []model.FileInfo
	for _, f := range pm.Files {
		if strings.Contains(strings.ToLower(f.Path), lower) {
			files = append(files, f)
		}
	}
	return keep(pm, files, false)
}

// FilterBySymbol keeps the files that provide a member whose name contains
// substr (case-insensitively) together with the files that import them.
// Summaries of providing files are trimmed to the matching members;
// importers keep no members so the symbols table stays focused.
func FilterBySymbol(pm *model.ProjectMap, substr string) *model.ProjectMap {
	lower := strings.ToLower(substr)

	providers := make(map[string]map[string]model.Entry)
	for _, f := range pm.Files {
		if f.Summary == nil {
			continue
		}
		for name, e := range f.Summary.Provided {
			if strings.Contains(strings.ToLower(name), lower) {
				if providers[f.Path] == nil {
					providers[f.Path] = make(map[string]model.Entry)
				}
				providers[f.Path][name] = e
			}
		}
	}

	importers := make(map[string]struct{})
	for _, d := range pm.Dependencies {
		if _, ok := providers[d.Target]; ok {
			importers[d.Source] = struct{}{}
		}
	}

	var files []model.FileInfo
	for _, f := range pm.Files {
		matched, isProvider := providers[f.Path]
		_, isImporter := importers[f.Path]
		if !isProvider && !isImporter {
			continue
		}
		if f.Summary != nil {
			trimmed := *f.Summary
			trimmed.Provided = matched
			trimmed.Types = nil
			f.Summary = &trimmed
		}
		files = append(files, f)
	}

	var deps []model.Dependency
	for _, d := range pm.Dependencies {
		if _, ok := providers[d.Target]; ok {
			deps = append(deps, d)
		}
	}
	return &model.ProjectMap{Name: pm.Name, Root: pm.Root, Files: files, Dependencies: deps}
}

// keep builds a map over files. With both set, an edge survives only when
// both ends are kept; otherwise touching one kept file is enough.
func keep(pm *model.ProjectMap, files []model.FileInfo, both bool) *model.ProjectMap {
	kept := make(map[string]struct{}, len(files))
	for _, f := range files {
		kept[f.Path] = struct{}{}
	}
	var deps []model.Dependency
	for _, d := range pm.Dependencies {
		_, srcOK := kept[d.Source]
		_, tgtOK := kept[d.Target]
		if (both && srcOK && tgtOK) || (!both && (srcOK || tgtOK)) {
			deps = append(deps, d)
		}
	}
	return &model.ProjectMap{Name: pm.Name, Root: pm.Root, Files: files, Dependencies: deps}
}
