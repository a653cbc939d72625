package graph

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/jsguide/internal/model"
)

func record(path string, refs map[string]string) *model.DependencyRecord {
	rec := &model.DependencyRecord{Path: path, Refs: map[string]model.DependencyRef{}}
	for spec, target := range refs {
		rec.Refs[spec] = model.DependencyRef{Name: spec, Path: target}
	}
	return rec
}

func TestBuildGraph(t *testing.T) {
	t.Parallel()

	records := []*model.DependencyRecord{
		record("main.js", map[string]string{"lib/a": "lib/a.js", "./lib/a": "lib/a.js", "lib/b": "lib/b.js"}),
		record("lib/a.js", map[string]string{"./b": "lib/b.js"}),
		record("lib/b.js", nil),
		nil,
	}

	want := []model.Dependency{
		{Source: "lib/a.js", Target: "lib/b.js", Specifiers: []string{"./b"}},
		{Source: "main.js", Target: "lib/a.js", Specifiers: []string{"./lib/a", "lib/a"}},
		{Source: "main.js", Target: "lib/b.js", Specifiers: []string{"lib/b"}},
	}
	if diff := cmp.Diff(want, BuildGraph(records)); diff != "" {
		t.Errorf("deps mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildGraphNoSelfEdge(t *testing.T) {
	t.Parallel()

	deps := BuildGraph([]*model.DependencyRecord{
		record("a.js", map[string]string{"./a": "a.js"}),
	})
	if len(deps) != 0 {
		t.Errorf("expected 0 deps (no self-edges), got %d", len(deps))
	}
}

func TestRankUniform(t *testing.T) {
	t.Parallel()

	files := []model.FileInfo{{Path: "c.js"}, {Path: "a.js"}, {Path: "b.js"}}
	Rank(files, nil)

	expected := 1.0 / 3.0
	for _, fi := range files {
		if math.Abs(fi.Rank-expected) > 1e-9 {
			t.Errorf("%s rank = %f, want %f", fi.Path, fi.Rank, expected)
		}
	}
	if files[0].Path != "a.js" {
		t.Errorf("ties should sort by path, got %s first", files[0].Path)
	}
}

func TestRankWithEdges(t *testing.T) {
	t.Parallel()

	files := []model.FileInfo{{Path: "a.js"}, {Path: "b.js"}, {Path: "c.js"}}
	deps := []model.Dependency{
		{Source: "a.js", Target: "b.js", Specifiers: []string{"./b"}},
		{Source: "c.js", Target: "b.js", Specifiers: []string{"./b"}},
		{Source: "c.js", Target: "gone.js", Specifiers: []string{"./gone"}},
	}
	Rank(files, deps)

	if files[0].Path != "b.js" {
		t.Errorf("expected b.js first, got %s", files[0].Path)
	}
	var sum float64
	for _, fi := range files {
		sum += fi.Rank
	}
	if math.Abs(sum-1.0) > 0.01 {
		t.Errorf("ranks sum to %f, expected ~1.0", sum)
	}
	if files[0].Rank <= files[1].Rank {
		t.Errorf("b.js rank (%f) should be > second file rank (%f)", files[0].Rank, files[1].Rank)
	}
}

func TestRankSpecifierWeight(t *testing.T) {
	t.Parallel()

	files := []model.FileInfo{{Path: "main.js"}, {Path: "x.js"}, {Path: "y.js"}}
	deps := []model.Dependency{
		{Source: "main.js", Target: "x.js", Specifiers: []string{"x", "./x", "../app/x"}},
		{Source: "main.js", Target: "y.js", Specifiers: []string{"y"}},
	}
	Rank(files, deps)

	if files[0].Path != "x.js" || files[1].Path != "y.js" {
		t.Errorf("order = %s, %s, %s", files[0].Path, files[1].Path, files[2].Path)
	}
}

func TestRankEmpty(t *testing.T) {
	t.Parallel()
	Rank(nil, nil)
}
