package compiler

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/bundlekit/api"
)

func TestParseDiagnostics_JSON(t *testing.T) {
	raw := []byte(`{
  "errors": [
    {"moduleName": "Main", "filename": "src/Main.purs", "message": "Unknown value frobnicate"}
  ],
  "warnings": [
    {"moduleName": "Util", "filename": "src/Util.purs", "message": "Unused import Prelude"},
    {"message": "orphan warning"}
  ]
}`)

	diags := ParseDiagnostics(raw)
	require.Len(t, diags, 3)

	errs := diags.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "Main", errs[0].Module)
	assert.Equal(t, "src/Main.purs", errs[0].Path)
	assert.Equal(t, "Unknown value frobnicate", errs[0].Message)

	warns := diags.Warnings()
	require.Len(t, warns, 2)
	assert.Equal(t, "Util", warns[0].Module)
	assert.Empty(t, warns[1].Module)
	assert.Equal(t, "orphan warning", warns[1].Message)
}

func TestParseDiagnostics_NonJSONFallsBack(t *testing.T) {
	diags := ParseDiagnostics([]byte("panic: the compiler crashed\n"))
	require.Len(t, diags, 1)
	assert.Equal(t, api.SeverityError, diags[0].Severity)
	assert.Contains(t, diags[0].Message, "compiler crashed")
}

func TestParseDiagnostics_Empty(t *testing.T) {
	assert.Empty(t, ParseDiagnostics(nil))
	assert.Empty(t, ParseDiagnostics([]byte("  \n")))
}

// fakeToolchain writes a shell script that mimics a compiler: it emits one
// output directory per staged source and a warning on stderr.
func fakeToolchain(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	script := `#!/bin/sh
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then out="$a"; fi
  prev="$a"
done
for a in "$@"; do
  case "$a" in
    --*) continue ;;
    "$out") continue ;;
  esac
  name=$(sed -n 's/^module \([A-Za-z0-9.]*\).*/\1/p' "$a" | head -n1)
  [ -z "$name" ] && continue
  mkdir -p "$out/$name"
  printf 'exports.moduleName = "%s";\n' "$name" > "$out/$name/index.js"
done
printf '{"errors": [], "warnings": [{"moduleName": "Main", "message": "fixture warning"}]}' >&2
exit 0
`
	path := filepath.Join(t.TempDir(), "fake-psc")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestExec_CompileRoundTrip(t *testing.T) {
	e := &Exec{Command: fakeToolchain(t), OutDir: t.TempDir()}

	files := []api.SourceFile{
		{Path: "src/Main.purs", Content: []byte("module Main\n\nimport Util\n")},
		{Path: "src/Util.purs", Content: []byte("module Util\n")},
	}
	mods, diags, err := e.Compile(context.Background(), files, api.CompileOptions{NoOptimizations: true})
	require.NoError(t, err)

	require.Len(t, mods, 2)
	byName := map[api.ModuleName]api.CompiledModule{}
	for _, m := range mods {
		byName[m.Name] = m
	}
	assert.Equal(t, "src/Main.purs", byName["Main"].SourcePath)
	assert.Equal(t, "src/Util.purs", byName["Util"].SourcePath)
	assert.Contains(t, string(byName["Main"].Generated), "Main")

	require.Len(t, diags, 1)
	assert.Equal(t, api.SeverityWarning, diags[0].Severity)
	assert.Equal(t, "fixture warning", diags[0].Message)
}

func TestExec_MissingBinary(t *testing.T) {
	e := &Exec{Command: "/no/such/compiler", OutDir: t.TempDir()}
	_, _, err := e.Compile(context.Background(), []api.SourceFile{
		{Path: "src/Main.purs", Content: []byte("module Main\n")},
	}, api.CompileOptions{})
	assert.Error(t, err)
}
