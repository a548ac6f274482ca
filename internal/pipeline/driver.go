// Package pipeline wires collection, compilation, caching, bundling and
// minification into one build driver. A driver is constructed once per
// registered target and serializes overlapping builds against its
// mode-scoped cache.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"go.uber.org/zap"

	"github.com/agentic-research/bundlekit/api"
	"github.com/agentic-research/bundlekit/internal/bundle"
	"github.com/agentic-research/bundlekit/internal/cache"
	"github.com/agentic-research/bundlekit/internal/collect"
)

// Stage is the driver's position in the build state machine.
type Stage int

const (
	StageIdle Stage = iota
	StageCollecting
	StageCompiling
	StageBundling
	StageMinifying
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageCollecting:
		return "collecting"
	case StageCompiling:
		return "compiling"
	case StageBundling:
		return "bundling"
	case StageMinifying:
		return "minifying"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Options configure one build target. Route plus Mode identify the target;
// everything else describes where its sources live and which external
// capabilities it uses.
type Options struct {
	Route           string
	Mode            api.Mode
	FS              billy.Filesystem
	SourceDirs      []string         // Primary sources
	DependencyGlobs []string         // Dependency sources
	Extension       string           // default ".purs"
	Namespace       string           // default bundle.DefaultNamespace
	Roots           []api.ModuleName // empty means all Primary modules
	NoPrelude       bool
	CacheRoot       string
	Compiler        api.Compiler
	Minifier        api.Minifier // ignored in Development
	Logger          *zap.Logger
}

// Driver runs the build state machine for one target.
type Driver struct {
	opts Options
	log  *zap.Logger

	mu    sync.Mutex // at most one in-flight build per (route, mode)
	stage Stage
}

// New validates options and returns an idle driver.
func New(opts Options) (*Driver, error) {
	if opts.Route == "" {
		return nil, errors.New("pipeline: route is required")
	}
	if len(opts.SourceDirs) == 0 {
		return nil, errors.New("pipeline: at least one source directory is required")
	}
	if opts.FS == nil {
		return nil, errors.New("pipeline: filesystem is required")
	}
	if opts.Compiler == nil {
		return nil, errors.New("pipeline: compiler is required")
	}
	if opts.CacheRoot == "" {
		return nil, errors.New("pipeline: cache root is required")
	}
	if opts.Extension == "" {
		opts.Extension = ".purs"
	}
	if opts.Namespace == "" {
		opts.Namespace = bundle.DefaultNamespace
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Driver{
		opts:  opts,
		log:   opts.Logger.With(zap.String("route", opts.Route), zap.Stringer("mode", opts.Mode)),
		stage: StageIdle,
	}, nil
}

// Stage reports the driver's current position in the state machine.
func (d *Driver) Stage() Stage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stage
}

// Build runs one complete pipeline pass. Overlapping calls are serialized;
// a request arriving mid-build waits for its own full build behind the
// in-flight one. Once started a build runs to completion or failure.
func (d *Driver) Build(ctx context.Context) (*api.Artifact, error) {
	art, _, err := d.run(ctx)
	return art, err
}

// Registration exposes the target to a host static-asset registry. The
// Production producer propagates failures so the host build aborts; the
// Development producer substitutes the diagnostic text for the artifact body
// and never fails, so the host process keeps serving.
func (d *Driver) Registration() api.Registration {
	return api.Registration{
		Route: d.opts.Route,
		MIME:  api.MIMEJavaScript,
		Production: func(ctx context.Context) (*api.Artifact, error) {
			return d.Build(ctx)
		},
		Development: func(ctx context.Context) *api.Artifact {
			art, diags, err := d.run(ctx)
			if err == nil {
				return art
			}
			body := diags.String()
			if body == "" {
				body = err.Error() + "\n"
			}
			return &api.Artifact{Route: d.opts.Route, MIME: api.MIMEJavaScript, Body: []byte(body)}
		},
	}
}

func (d *Driver) run(ctx context.Context) (*api.Artifact, api.Diagnostics, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	art, diags, err := d.runLocked(ctx)
	if err != nil {
		failed := d.stage
		d.transition(StageFailed)
		d.log.Error("build failed",
			zap.Stringer("stage", failed), zap.Error(err), zap.Int("diagnostics", len(diags)))
		return nil, diags, err
	}
	d.transition(StageDone)
	d.log.Info("build complete", zap.Int("bytes", len(art.Body)))
	return art, diags, nil
}

func (d *Driver) runLocked(ctx context.Context) (*api.Artifact, api.Diagnostics, error) {
	d.stage = StageIdle
	d.transition(StageCollecting)

	collector := &collect.Collector{FS: d.opts.FS, Extension: d.opts.Extension}
	primaryFiles, err := collector.CollectDirs(d.opts.SourceDirs)
	if err != nil {
		return nil, nil, err
	}
	depFiles, err := collector.CollectGlobs(d.opts.DependencyGlobs)
	if err != nil {
		return nil, nil, err
	}
	files := append(primaryFiles, depFiles...)
	d.log.Debug("sources collected",
		zap.Int("primary", len(primaryFiles)), zap.Int("dependency", len(depFiles)))

	d.transition(StageCompiling)
	mods, primaryNames, diags, err := d.compile(ctx, files)
	if err != nil {
		return nil, diags, err
	}

	d.transition(StageBundling)
	roots := api.AllPrimary()
	if len(d.opts.Roots) > 0 {
		roots = api.ExplicitRoots(d.opts.Roots...)
	}
	body, err := bundle.Bundle(mods, primaryNames, roots, d.opts.Namespace)
	if err != nil {
		return nil, nil, err
	}

	// Minification is a Production-only stage: Development skips it even
	// when a minifier is configured.
	if d.opts.Mode == api.Production && d.opts.Minifier != nil {
		d.transition(StageMinifying)
		body, err = d.opts.Minifier.Minify(body)
		if err != nil {
			return nil, nil, api.NewBuildError(api.KindMinify, "minify bundle", err)
		}
	}

	return &api.Artifact{Route: d.opts.Route, MIME: api.MIMEJavaScript, Body: body}, diags, nil
}

// compile resolves every source module through the cache, invokes the
// compiler once for the misses, and returns the full module set.
func (d *Driver) compile(ctx context.Context, files []api.SourceFile) ([]api.CompiledModule, []api.ModuleName, api.Diagnostics, error) {
	names := make([]api.ModuleName, len(files))
	byName := make(map[api.ModuleName]int, len(files))
	var primaryNames []api.ModuleName
	for i, f := range files {
		name, err := collect.ParseModuleName(f)
		if err != nil {
			return nil, nil, nil, err
		}
		if prev, dup := byName[name]; dup {
			return nil, nil, nil, api.ModuleError(api.KindParse, name,
				"declared in both %s and %s", files[prev].Path, f.Path)
		}
		names[i] = name
		byName[name] = i
		if f.Kind == api.KindPrimary {
			primaryNames = append(primaryNames, name)
		}
	}

	store, err := cache.Open(d.opts.CacheRoot, d.opts.Mode)
	if err != nil {
		return nil, nil, nil, err
	}
	defer func() { _ = store.Close() }()

	var (
		mods   []api.CompiledModule
		misses []api.SourceFile
	)
	for i, f := range files {
		m, err := store.Lookup(names[i], f.Path, f.ModTime)
		switch {
		case err == nil:
			mods = append(mods, m)
		case errors.Is(err, cache.ErrMiss):
			misses = append(misses, f)
		default:
			return nil, nil, nil, err
		}
	}
	d.log.Debug("cache resolved",
		zap.Int("hits", len(mods)), zap.Int("misses", len(misses)))

	if len(misses) == 0 {
		// Nothing to compile, so no compiler run will re-emit injected
		// support modules; restore the ones the last compile recorded.
		injected, err := store.Injected()
		if err != nil {
			return nil, nil, nil, err
		}
		return append(mods, injected...), primaryNames, nil, nil
	}

	opts := api.CompileOptions{
		NoOptimizations: d.opts.Mode == api.Development,
		VerboseErrors:   d.opts.Mode == api.Development,
		NoPrelude:       d.opts.NoPrelude,
	}
	compiled, diags, err := d.opts.Compiler.Compile(ctx, misses, opts)
	for _, w := range diags.Warnings() {
		d.log.Warn("compiler warning",
			zap.String("module", w.Module), zap.String("path", w.Path), zap.String("message", w.Message))
	}
	if err != nil {
		return nil, nil, diags, api.NewBuildError(api.KindCompile, "compile sources", err)
	}
	if errs := diags.Errors(); len(errs) > 0 {
		return nil, nil, diags, api.NewBuildError(api.KindCompile,
			fmt.Sprintf("%d error(s) reported", len(errs)), nil)
	}

	modTimes := make(map[string]api.SourceFile, len(misses))
	for _, f := range misses {
		modTimes[f.Path] = f
	}
	// The compile just run re-emitted any injected support modules, so the
	// set recorded by the previous one is stale.
	if err := store.DropInjected(); err != nil {
		return nil, nil, diags, err
	}
	for _, m := range compiled {
		switch src, staged := modTimes[m.SourcePath]; {
		case staged:
			if err := store.Put(m, src.ModTime); err != nil {
				return nil, nil, diags, err
			}
		case m.SourcePath == "":
			// Compiler-injected support code such as a prelude: cached
			// under its name alone, replaced on every compile.
			if err := store.Put(m, time.Time{}); err != nil {
				return nil, nil, diags, err
			}
		}
		mods = append(mods, m)
	}
	return mods, primaryNames, diags, nil
}

// transition advances the state machine. The next build re-enters Idle from
// either terminal state; nothing besides the on-disk cache survives between
// builds.
func (d *Driver) transition(next Stage) {
	d.log.Debug("stage transition", zap.Stringer("from", d.stage), zap.Stringer("to", next))
	d.stage = next
}
