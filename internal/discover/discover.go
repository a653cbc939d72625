// Package discover lists the JavaScript files of a project.
package discover

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/jsguide/internal/lang"
)

// FileEntry is one discovered source file.
type FileEntry struct {
	Path     string // slash separated, relative to root
	Language string
}

var skipDirs = map[string]struct{}{
	"node_modules":     {},
	"bower_components": {},
	"jspm_packages":    {},
	".git":             {},
	".hg":              {},
	".svn":             {},
	"coverage":         {},
	".nyc_output":      {},
	".cache":           {},
}

// SkipDir reports whether a directory named name is never scanned:
// package manager trees and hidden directories.
func SkipDir(name string) bool {
	if _, skip := skipDirs[name]; skip {
		return true
	}
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// Files lists the source files under root. Only files whose extension is in
// extensions are returned; an empty list means every extension a registered
// language claims. Files excluded by git (or by .gitignore outside a git
// checkout) are skipped, as are hidden files and directories.
func Files(root string, extensions []string) ([]FileEntry, error) {
	allowed := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[e] = struct{}{}
	}

	tracked := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if tracked == nil {
		gi = loadGitignore(root)
	}

	var out []FileEntry
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if SkipDir(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if tracked != nil {
			if _, ok := tracked[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		ext := filepath.Ext(name)
		langName := lang.ForExtension(ext)
		if len(allowed) > 0 {
			if _, ok := allowed[ext]; !ok {
				return nil
			}
			if langName == "" {
				langName = lang.JavaScript
			}
		} else if langName == "" {
			return nil
		}
		// Minified bundles are not worth analysing.
		if strings.HasSuffix(name, ".min"+ext) {
			return nil
		}
		out = append(out, FileEntry{Path: rel, Language: langName})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// gitLsFiles returns the files git considers part of the checkout, or nil
// when root is not a git work tree.
func gitLsFiles(root string) map[string]struct{} {
	info, err := os.Stat(filepath.Join(root, ".git"))
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	raw, err := cmd.Output()
	if err != nil {
		return nil
	}
	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(raw), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

var testDirs = map[string]struct{}{
	"test":      {},
	"tests":     {},
	"spec":      {},
	"__tests__": {},
	"__mocks__": {},
	"fixtures":  {},
}

// IsTestFile reports whether the slash separated path p looks like a test
// or fixture file.
func IsTestFile(p string) bool {
	parts := strings.Split(p, "/")
	for _, dir := range parts[:len(parts)-1] {
		if _, ok := testDirs[dir]; ok {
			return true
		}
	}
	base := parts[len(parts)-1]
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.HasSuffix(stem, ".test") || strings.HasSuffix(stem, ".spec") ||
		strings.HasSuffix(stem, "_test") || strings.HasSuffix(stem, "_spec")
}
