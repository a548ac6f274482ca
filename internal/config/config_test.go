package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/bundlekit/api"
)

const validConfig = `
target "app" {
  route            = "assets/app.js"
  mode             = "development"
  source_dirs      = ["purs/src"]
  dependency_globs = ["purs/deps/*/src/**/*.purs"]
  namespace        = "App"
  roots            = ["Main"]
  cache_dir        = ".cache"

  compiler {
    command = "psc"
    args    = ["--comments"]
  }

  minifier {
    command = "terser"
  }
}

target "admin" {
  route       = "assets/admin.js"
  mode        = "production"
  source_dirs = ["admin/src"]

  compiler {
    command = "psc"
  }
}
`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(validConfig), "bundle.hcl")
	require.NoError(t, err)
	require.Len(t, cfg.Targets, 2)

	app := cfg.Targets[0]
	assert.Equal(t, "app", app.Name)
	assert.Equal(t, "assets/app.js", app.Route)
	assert.Equal(t, []string{"purs/src"}, app.SourceDirs)
	assert.Equal(t, "App", app.Namespace)
	assert.Equal(t, []string{"Main"}, app.Roots)
	require.NotNil(t, app.Minifier)
	assert.Equal(t, "terser", app.Minifier.Command)

	mode, err := app.BuildMode()
	require.NoError(t, err)
	assert.Equal(t, api.Development, mode)

	admin := cfg.Targets[1]
	mode, err = admin.BuildMode()
	require.NoError(t, err)
	assert.Equal(t, api.Production, mode)
	assert.Nil(t, admin.Minifier)
}

func TestParse_ModeDefaultsToDevelopment(t *testing.T) {
	cfg, err := Parse([]byte(`
target "t" {
  route       = "a.js"
  source_dirs = ["src"]
  compiler { command = "psc" }
}
`), "bundle.hcl")
	require.NoError(t, err)

	mode, err := cfg.Targets[0].BuildMode()
	require.NoError(t, err)
	assert.Equal(t, api.Development, mode)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"no targets": ``,
		"missing route": `
target "t" {
  route       = ""
  source_dirs = ["src"]
  compiler { command = "psc" }
}`,
		"no source dirs": `
target "t" {
  route       = "a.js"
  source_dirs = []
  compiler { command = "psc" }
}`,
		"no compiler": `
target "t" {
  route       = "a.js"
  source_dirs = ["src"]
}`,
		"bad mode": `
target "t" {
  route       = "a.js"
  mode        = "staging"
  source_dirs = ["src"]
  compiler { command = "psc" }
}`,
		"duplicate route": `
target "a" {
  route       = "a.js"
  source_dirs = ["src"]
  compiler { command = "psc" }
}
target "b" {
  route       = "a.js"
  source_dirs = ["other"]
  compiler { command = "psc" }
}`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src), "bundle.hcl")
			assert.Error(t, err)
		})
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.hcl")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Targets, 2)

	_, err = Load(filepath.Join(dir, "missing.hcl"))
	assert.Error(t, err)
}
