// Package graph turns dependency records into file edges and ranks files
// with PageRank.
package graph

import (
	"math"
	"sort"

	"github.com/phobologic/jsguide/internal/model"
)

// BuildGraph returns one edge per (source, target) pair named by records,
// carrying the specifiers that resolve to the target. Self edges are
// dropped. The result is sorted by source then target.
func BuildGraph(records []*model.DependencyRecord) []model.Dependency {
	type edgeKey struct{ src, tgt string }
	specs := make(map[edgeKey][]string)

	for _, rec := range records {
		if rec == nil {
			continue
		}
		for spec, ref := range rec.Refs {
			if ref.Path == "" || ref.Path == rec.Path {
				continue
			}
			key := edgeKey{rec.Path, ref.Path}
			specs[key] = append(specs[key], spec)
		}
	}

	deps := make([]model.Dependency, 0, len(specs))
	for key, s := range specs {
		sort.Strings(s)
		deps = append(deps, model.Dependency{Source: key.src, Target: key.tgt, Specifiers: s})
	}
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Source != deps[j].Source {
			return deps[i].Source < deps[j].Source
		}
		return deps[i].Target < deps[j].Target
	})
	return deps
}

// Rank sets the PageRank of every file and sorts files by rank descending,
// breaking ties by path. Each specifier counts as one edge, so a module
// imported under several names weighs more.
func Rank(files []model.FileInfo, deps []model.Dependency) {
	if len(files) == 0 {
		return
	}
	if len(deps) == 0 {
		uniform := 1.0 / float64(len(files))
		for i := range files {
			files[i].Rank = uniform
		}
		sortByRank(files)
		return
	}

	index := make(map[string]int, len(files))
	for i := range files {
		index[files[i].Path] = i
	}
	out := make([][]int, len(files))
	for _, d := range deps {
		src, okS := index[d.Source]
		tgt, okT := index[d.Target]
		if !okS || !okT {
			continue
		}
		for range d.Specifiers {
			out[src] = append(out[src], tgt)
		}
	}

	ranks := pageRank(out, 0.85, 100, 1e-6)
	for i := range files {
		files[i].Rank = ranks[i]
	}
	sortByRank(files)
}

func sortByRank(files []model.FileInfo) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Rank != files[j].Rank {
			return files[i].Rank > files[j].Rank
		}
		return files[i].Path < files[j].Path
	})
}

// pageRank iterates the power method over an adjacency list where out[i]
// holds the targets of node i, with repeats for parallel edges. Rank held
// by nodes without out edges is spread evenly.
func pageRank(out [][]int, alpha float64, maxIter int, tol float64) []float64 {
	n := len(out)
	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}
	teleport := (1.0 - alpha) / float64(n)

	next := make([]float64, n)
	for range maxIter {
		var dangling float64
		for i, targets := range out {
			if len(targets) == 0 {
				dangling += rank[i]
			}
		}
		base := teleport + alpha*dangling/float64(n)
		for i := range next {
			next[i] = base
		}
		for i, targets := range out {
			if len(targets) == 0 {
				continue
			}
			share := alpha * rank[i] / float64(len(targets))
			for _, t := range targets {
				next[t] += share
			}
		}

		var diff float64
		for i := range rank {
			diff += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		if diff < tol {
			break
		}
	}
	return rank
}
