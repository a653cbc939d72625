package ranking

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/jsguide/internal/model"
)

func summary(names ...string) *model.Summary {
	s := &model.Summary{Kind: model.AMD, Provided: map[string]model.Entry{}}
	for _, n := range names {
		s.Provided[n] = model.Entry{TypeName: "Number"}
	}
	return s
}

func makeProjectMap() *model.ProjectMap {
	return &model.ProjectMap{
		Name: "test",
		Root: "test",
		Files: []model.FileInfo{
			{Path: "a.js", Rank: 0.5, Summary: summary("start")},
			{Path: "b.js", Rank: 0.3, Summary: summary("parseConfig", "other")},
			{Path: "c.js", Rank: 0.15, Summary: summary("helper")},
			{Path: "test/c.test.js", Rank: 0.05},
		},
		Dependencies: []model.Dependency{
			{Source: "a.js", Target: "b.js", Specifiers: []string{"./b"}},
			{Source: "a.js", Target: "c.js", Specifiers: []string{"./c"}},
			{Source: "b.js", Target: "c.js", Specifiers: []string{"./c"}},
			{Source: "test/c.test.js", Target: "c.js", Specifiers: []string{"../c"}},
		},
	}
}

func paths(pm *model.ProjectMap) []string {
	var out []string
	for _, f := range pm.Files {
		out = append(out, f.Path)
	}
	return out
}

func TestSelectFilesAll(t *testing.T) {
	t.Parallel()

	pm := makeProjectMap()
	for _, n := range []int{0, 4, 10} {
		if got := SelectFiles(pm, n); got != pm {
			t.Errorf("SelectFiles(%d) should return the original", n)
		}
	}
}

func TestSelectFilesSubset(t *testing.T) {
	t.Parallel()

	got := SelectFiles(makeProjectMap(), 2)
	if diff := cmp.Diff([]string{"a.js", "b.js"}, paths(got)); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	want := []model.Dependency{{Source: "a.js", Target: "b.js", Specifiers: []string{"./b"}}}
	if diff := cmp.Diff(want, got.Dependencies); diff != "" {
		t.Errorf("deps mismatch (-want +got):\n%s", diff)
	}
}

func TestExclude(t *testing.T) {
	t.Parallel()

	got := Exclude(makeProjectMap(), func(p string) bool { return strings.HasPrefix(p, "test/") })
	if diff := cmp.Diff([]string{"a.js", "b.js", "c.js"}, paths(got)); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	if len(got.Dependencies) != 3 {
		t.Errorf("expected 3 deps, got %d", len(got.Dependencies))
	}
}

func TestFilterByFile(t *testing.T) {
	t.Parallel()

	got := FilterByFile(makeProjectMap(), "C.JS")
	if diff := cmp.Diff([]string{"c.js", "test/c.test.js"}, paths(got)); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	if len(got.Dependencies) != 3 {
		t.Errorf("expected 3 deps touching c.js, got %d", len(got.Dependencies))
	}
}

func TestFilterBySymbol(t *testing.T) {
	t.Parallel()

	got := FilterBySymbol(makeProjectMap(), "config")
	if diff := cmp.Diff([]string{"a.js", "b.js"}, paths(got)); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	b := got.Files[1].Summary
	if _, ok := b.Provided["parseConfig"]; !ok || len(b.Provided) != 1 {
		t.Errorf("b.js provided = %v", b.Provided)
	}
	if len(got.Files[0].Summary.Provided) != 0 {
		t.Errorf("importer kept members: %v", got.Files[0].Summary.Provided)
	}
	want := []model.Dependency{{Source: "a.js", Target: "b.js", Specifiers: []string{"./b"}}}
	if diff := cmp.Diff(want, got.Dependencies); diff != "" {
		t.Errorf("deps mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterBySymbolNoMatch(t *testing.T) {
	t.Parallel()

	got := FilterBySymbol(makeProjectMap(), "nothing")
	if len(got.Files) != 0 || len(got.Dependencies) != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	pm := makeProjectMap()
	FilterBySymbol(pm, "config")
	if len(pm.Files[1].Summary.Provided) != 2 {
		t.Errorf("input summary was trimmed: %v", pm.Files[1].Summary.Provided)
	}
}
