// Package bundle links compiled modules into one self-contained JavaScript
// artifact. Modules reference each other through the linker symbol $PS; the
// bundler rebinds that symbol to the configured top-level namespace, drops
// everything unreachable from the root set, and never invokes an entry point.
package bundle

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/bundlekit/api"
)

// DefaultNamespace is the shared top-level identifier modules are registered
// under when the target does not configure one.
const DefaultNamespace = "PS"

// moduleRef matches cross-module references in generated or foreign code.
var moduleRef = regexp.MustCompile(`\$PS\["([A-Za-z][A-Za-z0-9_']*(?:\.[A-Za-z][A-Za-z0-9_']*)*)"\]`)

// Bundle links mods into one output. primary lists the module names that came
// from Primary sources; when roots.All is set they seed reachability,
// otherwise roots.Names does, regardless of origin. A module and its foreign
// companion are one reachability unit.
func Bundle(mods []api.CompiledModule, primary []api.ModuleName, roots api.RootSet, namespace string) ([]byte, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	g, err := buildGraph(mods)
	if err != nil {
		return nil, err
	}

	rootNames := roots.Names
	if roots.All {
		rootNames = primary
	}
	kept, err := g.reachable(rootNames)
	if err != nil {
		return nil, err
	}

	order, err := g.topoOrder(kept)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "var %s = %s || {};\n", namespace, namespace)
	for _, idx := range order {
		emit(&out, g.mods[idx], namespace)
	}
	return out.Bytes(), nil
}

// emit wraps one module so it is addressable by name under the namespace.
// Foreign code is evaluated first into a $foreign object the generated code
// can see; nothing is invoked beyond the defining wrappers themselves.
func emit(out *bytes.Buffer, m api.CompiledModule, namespace string) {
	fmt.Fprintf(out, "// %s\n", m.Name)
	out.WriteString("(function($PS) {\n")
	out.WriteString("  \"use strict\";\n")
	fmt.Fprintf(out, "  var exports = $PS[\"%s\"] = $PS[\"%s\"] || {};\n", m.Name, m.Name)
	if len(m.Foreign) > 0 {
		out.WriteString("  var $foreign = {};\n")
		out.WriteString("  (function(exports) {\n")
		writeIndented(out, m.Foreign)
		out.WriteString("  })($foreign);\n")
	}
	writeIndented(out, m.Generated)
	fmt.Fprintf(out, "})(%s);\n", namespace)
}

func writeIndented(out *bytes.Buffer, code []byte) {
	for _, line := range strings.Split(strings.TrimRight(string(code), "\n"), "\n") {
		if line == "" {
			out.WriteByte('\n')
			continue
		}
		out.WriteString("  ")
		out.WriteString(line)
		out.WriteByte('\n')
	}
}

// depGraph is the module dependency graph over dense indices, inferred from
// cross-module references in the emitted code.
type depGraph struct {
	mods  []api.CompiledModule
	index map[api.ModuleName]uint32
	deps  []*roaring.Bitmap // deps[i] = modules that mods[i] references
}

func buildGraph(mods []api.CompiledModule) (*depGraph, error) {
	sorted := make([]api.CompiledModule, len(mods))
	copy(sorted, mods)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	g := &depGraph{
		mods:  sorted,
		index: make(map[api.ModuleName]uint32, len(sorted)),
		deps:  make([]*roaring.Bitmap, len(sorted)),
	}
	for i, m := range sorted {
		if prev, dup := g.index[m.Name]; dup {
			return nil, api.ModuleError(api.KindBundle, m.Name,
				"duplicate module: compiled from both %s and %s", g.mods[prev].SourcePath, m.SourcePath)
		}
		g.index[m.Name] = uint32(i)
	}
	for i, m := range sorted {
		bm := roaring.New()
		for _, ref := range references(m) {
			j, ok := g.index[ref]
			if !ok {
				return nil, api.ModuleError(api.KindBundle, m.Name, "unresolved reference to module %s", ref)
			}
			if j != uint32(i) {
				bm.Add(j)
			}
		}
		g.deps[i] = bm
	}
	return g, nil
}

// references scans a module's generated and foreign code for linker-symbol
// accesses. The two code bodies are a single reachability unit.
func references(m api.CompiledModule) []api.ModuleName {
	var refs []api.ModuleName
	for _, body := range [][]byte{m.Generated, m.Foreign} {
		for _, match := range moduleRef.FindAllSubmatch(body, -1) {
			refs = append(refs, api.ModuleName(match[1]))
		}
	}
	return refs
}

// reachable returns the bitmap of modules transitively reachable from the
// named roots. An unknown root name is a bundle error.
func (g *depGraph) reachable(rootNames []api.ModuleName) (*roaring.Bitmap, error) {
	kept := roaring.New()
	var frontier []uint32
	for _, name := range rootNames {
		idx, ok := g.index[name]
		if !ok {
			return nil, api.ModuleError(api.KindBundle, name, "root module not found among compiled modules")
		}
		if kept.CheckedAdd(idx) {
			frontier = append(frontier, idx)
		}
	}
	for len(frontier) > 0 {
		cur := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		it := g.deps[cur].Iterator()
		for it.HasNext() {
			next := it.Next()
			if kept.CheckedAdd(next) {
				frontier = append(frontier, next)
			}
		}
	}
	return kept, nil
}

// topoOrder returns kept modules dependencies-first, ties broken by name so
// identical inputs always produce byte-identical bundles. A cycle among kept
// modules fails the bundle.
func (g *depGraph) topoOrder(kept *roaring.Bitmap) ([]uint32, error) {
	indegree := make(map[uint32]int)
	it := kept.Iterator()
	for it.HasNext() {
		indegree[it.Next()] = 0
	}
	it = kept.Iterator()
	for it.HasNext() {
		i := it.Next()
		dit := g.deps[i].Iterator()
		for dit.HasNext() {
			j := dit.Next()
			if kept.Contains(j) {
				indegree[i]++
			}
		}
	}

	// dependents[j] = kept modules that reference j
	dependents := make(map[uint32][]uint32)
	it = kept.Iterator()
	for it.HasNext() {
		i := it.Next()
		dit := g.deps[i].Iterator()
		for dit.HasNext() {
			j := dit.Next()
			if kept.Contains(j) {
				dependents[j] = append(dependents[j], i)
			}
		}
	}

	var ready []uint32
	for idx, deg := range indegree {
		if deg == 0 {
			ready = append(ready, idx)
		}
	}
	// Indices are assigned in name order, so sorting by index is sorting
	// by module name.
	sort.Slice(ready, func(a, b int) bool { return ready[a] < ready[b] })

	var order []uint32
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)
		released := false
		for _, dep := range dependents[cur] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
				released = true
			}
		}
		if released {
			sort.Slice(ready, func(a, b int) bool { return ready[a] < ready[b] })
		}
	}

	if len(order) != len(indegree) {
		var stuck []string
		for idx, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, string(g.mods[idx].Name))
			}
		}
		sort.Strings(stuck)
		return nil, api.NewBuildError(api.KindBundle,
			fmt.Sprintf("import cycle among modules: %s", strings.Join(stuck, ", ")), nil)
	}
	return order, nil
}
