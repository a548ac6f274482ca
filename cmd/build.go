package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentic-research/bundlekit/api"
	"github.com/agentic-research/bundlekit/internal/compiler"
	"github.com/agentic-research/bundlekit/internal/config"
	"github.com/agentic-research/bundlekit/internal/minify"
	"github.com/agentic-research/bundlekit/internal/pipeline"
	"github.com/agentic-research/bundlekit/internal/sink"
)

var outDir string

func init() {
	buildCmd.Flags().StringVarP(&outDir, "out", "o", "public", "Output directory for built assets")
	rootCmd.AddCommand(buildCmd)
}

var buildCmd = &cobra.Command{
	Use:   "build [bundle.hcl]",
	Short: "Build every target in the configuration and write assets to disk",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath := "bundle.hcl"
		if len(args) == 1 {
			cfgPath = args[0]
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}

		log, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		dest := &sink.Dir{Root: outDir}
		baseDir, err := filepath.Abs(filepath.Dir(cfgPath))
		if err != nil {
			return err
		}

		start := time.Now()
		for _, t := range cfg.Targets {
			drv, mode, err := newDriver(t, baseDir, log)
			if err != nil {
				return fmt.Errorf("target %q: %w", t.Name, err)
			}
			reg := drv.Registration()
			if mode == api.Development {
				// A one-shot preview build: development semantics,
				// so a failure lands in the asset body, not here.
				dev := reg.Development
				reg.Production = func(ctx context.Context) (*api.Artifact, error) {
					return dev(ctx), nil
				}
			}
			if err := dest.Add(reg); err != nil {
				return fmt.Errorf("target %q: %w", t.Name, err)
			}
			log.Info("target built", zap.String("target", t.Name), zap.String("route", t.Route))
		}
		log.Info("all targets built",
			zap.Int("targets", len(cfg.Targets)), zap.Duration("elapsed", time.Since(start)))
		return nil
	},
}

// newDriver assembles the pipeline for one configured target. Relative
// source, cache and output paths are resolved against the config file's
// directory.
func newDriver(t config.Target, baseDir string, log *zap.Logger) (*pipeline.Driver, api.Mode, error) {
	mode, err := t.BuildMode()
	if err != nil {
		return nil, mode, err
	}

	dirs := make([]string, len(t.SourceDirs))
	for i, d := range t.SourceDirs {
		dirs[i] = resolve(baseDir, d)
	}
	globs := make([]string, len(t.DependencyGlobs))
	for i, g := range t.DependencyGlobs {
		globs[i] = resolve(baseDir, g)
	}
	cacheRoot := resolve(baseDir, t.CacheDir)
	if t.CacheDir == "" {
		cacheRoot = filepath.Join(baseDir, ".bundlekit-cache")
	}

	comp := &compiler.Exec{Command: t.Compiler.Command, Args: t.Compiler.Args, OutDir: t.Compiler.OutDir}
	var min api.Minifier
	if t.Minifier != nil {
		min = &minify.Exec{Command: t.Minifier.Command, Args: t.Minifier.Args}
	}

	drv, err := pipeline.New(pipeline.Options{
		Route:           t.Route,
		Mode:            mode,
		FS:              osfs.New("/"),
		SourceDirs:      dirs,
		DependencyGlobs: globs,
		Extension:       t.Extension,
		Namespace:       t.Namespace,
		Roots:           t.Roots,
		NoPrelude:       t.NoPrelude,
		CacheRoot:       cacheRoot,
		Compiler:        comp,
		Minifier:        min,
		Logger:          log,
	})
	return drv, mode, err
}

func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
