// Package compiler adapts an external source-language toolchain to the
// api.Compiler capability. The toolchain is invoked as a subprocess per
// compile call; bundlekit never parses the source language itself.
package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/agentic-research/bundlekit/api"
	"github.com/agentic-research/bundlekit/internal/collect"
)

// Exec runs an external compiler binary. The binary is expected to accept
// source file paths as trailing arguments, write one directory per module
// under the output directory (index.js plus optional foreign.js), and report
// diagnostics as JSON on stderr.
type Exec struct {
	// Command is the compiler binary, e.g. "psc".
	Command string
	// Args are fixed arguments placed before the generated flags.
	Args []string
	// OutDir receives per-module output; a temp directory when empty.
	OutDir string
}

var _ api.Compiler = (*Exec)(nil)

// Compile implements api.Compiler.
func (e *Exec) Compile(ctx context.Context, files []api.SourceFile, opts api.CompileOptions) ([]api.CompiledModule, api.Diagnostics, error) {
	outDir := e.OutDir
	if outDir == "" {
		dir, err := os.MkdirTemp("", "bundlekit-out-")
		if err != nil {
			return nil, nil, fmt.Errorf("create output directory: %w", err)
		}
		defer func() { _ = os.RemoveAll(dir) }()
		outDir = dir
	}

	staging, err := os.MkdirTemp("", "bundlekit-src-")
	if err != nil {
		return nil, nil, fmt.Errorf("create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	// Sources may live on a virtual filesystem; the subprocess needs real
	// paths. Module name -> original path is recovered from the headers.
	sourceByName := make(map[api.ModuleName]string, len(files))
	paths := make([]string, 0, len(files))
	for i, f := range files {
		name, err := collect.ParseModuleName(f)
		if err != nil {
			return nil, nil, err
		}
		sourceByName[name] = f.Path
		staged := filepath.Join(staging, fmt.Sprintf("%03d_%s", i, filepath.Base(f.Path)))
		if err := os.WriteFile(staged, f.Content, 0o644); err != nil {
			return nil, nil, fmt.Errorf("stage %s: %w", f.Path, err)
		}
		paths = append(paths, staged)
	}

	args := append([]string{}, e.Args...)
	args = append(args, "--output", outDir)
	if opts.NoOptimizations {
		args = append(args, "--no-opts")
	}
	if opts.VerboseErrors {
		args = append(args, "--verbose-errors")
	}
	if opts.NoPrelude {
		args = append(args, "--no-prelude")
	}
	args = append(args, paths...)

	cmd := exec.CommandContext(ctx, e.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	diags := ParseDiagnostics(stderr.Bytes())
	if runErr != nil {
		return nil, diags, fmt.Errorf("%s: %w", e.Command, runErr)
	}
	if len(diags.Errors()) > 0 {
		return nil, diags, fmt.Errorf("%s reported errors", e.Command)
	}

	mods, err := readOutput(outDir, sourceByName)
	if err != nil {
		return nil, diags, err
	}
	return mods, diags, nil
}

// readOutput collects one CompiledModule per subdirectory of the compiler's
// output tree. Modules without a staged source (toolchain-injected support
// code) keep an empty SourcePath.
func readOutput(outDir string, sourceByName map[api.ModuleName]string) ([]api.CompiledModule, error) {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("read output directory: %w", err)
	}
	var mods []api.CompiledModule
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := api.ModuleName(e.Name())
		generated, err := os.ReadFile(filepath.Join(outDir, e.Name(), "index.js"))
		if err != nil {
			return nil, fmt.Errorf("module %s has no index.js: %w", name, err)
		}
		var foreign []byte
		if b, err := os.ReadFile(filepath.Join(outDir, e.Name(), "foreign.js")); err == nil {
			foreign = b
		}
		mods = append(mods, api.CompiledModule{
			Name:       name,
			SourcePath: sourceByName[name],
			Generated:  generated,
			Foreign:    foreign,
		})
	}
	return mods, nil
}
