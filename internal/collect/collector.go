// Package collect discovers source files for a build. It walks a
// billy.Filesystem so tests can run against an in-memory tree and production
// runs against the real disk.
package collect

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"

	"github.com/agentic-research/bundlekit/api"
)

// Collector reads every file with the configured extension under a set of
// roots. Discovery order is irrelevant for correctness; results are sorted by
// path so downstream stages see a deterministic sequence.
type Collector struct {
	FS        billy.Filesystem
	Extension string // e.g. ".purs", leading dot required
}

// CollectDirs recursively gathers Primary sources under each directory root.
// A missing or unreadable root fails the whole collection; there are no
// partial results.
func (c *Collector) CollectDirs(dirs []string) ([]api.SourceFile, error) {
	var out []api.SourceFile
	for _, dir := range dirs {
		if _, err := c.FS.Stat(dir); err != nil {
			return nil, api.NewBuildError(api.KindCollection, fmt.Sprintf("source directory %s", dir), err)
		}
		if err := c.walk(dir, api.KindPrimary, &out); err != nil {
			return nil, err
		}
	}
	sortByPath(out)
	return out, nil
}

// CollectGlobs gathers Dependency sources matching the given patterns.
// Patterns support *, ** and ? (see Match). Patterns are rooted at the
// filesystem root; a pattern that matches nothing yields nothing.
func (c *Collector) CollectGlobs(patterns []string) ([]api.SourceFile, error) {
	var out []api.SourceFile
	seen := make(map[string]bool)
	for _, pat := range patterns {
		root := globRoot(pat)
		if _, err := c.FS.Stat(root); err != nil {
			return nil, api.NewBuildError(api.KindCollection, fmt.Sprintf("dependency root %s", root), err)
		}
		var matched []api.SourceFile
		if err := c.walkMatching(root, pat, &matched); err != nil {
			return nil, err
		}
		for _, f := range matched {
			if !seen[f.Path] {
				seen[f.Path] = true
				out = append(out, f)
			}
		}
	}
	sortByPath(out)
	return out, nil
}

func (c *Collector) walk(dir string, kind api.SourceKind, out *[]api.SourceFile) error {
	entries, err := c.FS.ReadDir(dir)
	if err != nil {
		return api.NewBuildError(api.KindCollection, fmt.Sprintf("read directory %s", dir), err)
	}
	for _, e := range entries {
		name := e.Name()
		if name == "." || name == ".." {
			continue
		}
		p := c.FS.Join(dir, name)
		if e.IsDir() {
			if err := c.walk(p, kind, out); err != nil {
				return err
			}
			continue
		}
		if filepath.Ext(name) != c.Extension {
			continue
		}
		f, err := c.read(p, kind, e.ModTime())
		if err != nil {
			return err
		}
		*out = append(*out, f)
	}
	return nil
}

// walkMatching is walk restricted to paths matching a glob pattern.
func (c *Collector) walkMatching(dir, pattern string, out *[]api.SourceFile) error {
	entries, err := c.FS.ReadDir(dir)
	if err != nil {
		return api.NewBuildError(api.KindCollection, fmt.Sprintf("read directory %s", dir), err)
	}
	for _, e := range entries {
		name := e.Name()
		if name == "." || name == ".." {
			continue
		}
		p := c.FS.Join(dir, name)
		if e.IsDir() {
			if err := c.walkMatching(p, pattern, out); err != nil {
				return err
			}
			continue
		}
		if filepath.Ext(name) != c.Extension || !Match(p, pattern) {
			continue
		}
		f, err := c.read(p, api.KindDependency, e.ModTime())
		if err != nil {
			return err
		}
		*out = append(*out, f)
	}
	return nil
}

func (c *Collector) read(path string, kind api.SourceKind, modTime time.Time) (api.SourceFile, error) {
	fh, err := c.FS.Open(path)
	if err != nil {
		return api.SourceFile{}, api.NewBuildError(api.KindCollection, fmt.Sprintf("open %s", path), err)
	}
	defer func() { _ = fh.Close() }()
	content, err := io.ReadAll(fh)
	if err != nil {
		return api.SourceFile{}, api.NewBuildError(api.KindCollection, fmt.Sprintf("read %s", path), err)
	}
	return api.SourceFile{
		Path:    path,
		Content: content,
		Kind:    kind,
		ModTime: modTime,
	}, nil
}

// globRoot returns the longest literal directory prefix of a glob pattern,
// the point from which the walk starts.
func globRoot(pattern string) string {
	pat := filepath.ToSlash(pattern)
	segs := strings.Split(pat, "/")
	var lit []string
	for _, s := range segs[:len(segs)-1] {
		if strings.ContainsAny(s, "*?") {
			break
		}
		lit = append(lit, s)
	}
	if len(lit) == 0 {
		return "."
	}
	root := strings.Join(lit, "/")
	if strings.HasPrefix(pat, "/") && !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	return root
}

func sortByPath(files []api.SourceFile) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}

var moduleHeader = regexp.MustCompile(`(?m)^\s*module\s+([A-Za-z][A-Za-z0-9_']*(?:\.[A-Za-z][A-Za-z0-9_']*)*)`)

// ParseModuleName extracts the module declaration from a source file. This is
// the linkage convention only; everything else about the source language is
// the compiler's business.
func ParseModuleName(f api.SourceFile) (api.ModuleName, error) {
	m := moduleHeader.FindSubmatch(f.Content)
	if m == nil {
		return "", api.NewBuildError(api.KindParse, fmt.Sprintf("%s: no module declaration", f.Path), nil)
	}
	return api.ModuleName(m[1]), nil
}
