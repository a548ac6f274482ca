// Package config loads bundle target definitions from HCL.
package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/agentic-research/bundlekit/api"
)

// Config is the decoded root of a bundle.hcl file.
type Config struct {
	Targets []Target `hcl:"target,block"`
}

// Target declares one bundle route and where its inputs come from.
type Target struct {
	Name string `hcl:"name,label"`

	Route           string   `hcl:"route"`
	Mode            string   `hcl:"mode,optional"`
	SourceDirs      []string `hcl:"source_dirs"`
	DependencyGlobs []string `hcl:"dependency_globs,optional"`
	Extension       string   `hcl:"extension,optional"`
	Namespace       string   `hcl:"namespace,optional"`
	Roots           []string `hcl:"roots,optional"`
	NoPrelude       bool     `hcl:"no_prelude,optional"`
	CacheDir        string   `hcl:"cache_dir,optional"`

	Compiler *Command `hcl:"compiler,block"`
	Minifier *Command `hcl:"minifier,block"`
}

// Command names an external toolchain invocation.
type Command struct {
	Command string   `hcl:"command"`
	Args    []string `hcl:"args,optional"`
	OutDir  string   `hcl:"out_dir,optional"`
}

// BuildMode resolves the target's mode string, defaulting to Development.
func (t Target) BuildMode() (api.Mode, error) {
	if t.Mode == "" {
		return api.Development, nil
	}
	return api.ParseMode(t.Mode)
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", path, diags)
	}
	return decode(file.Body, path)
}

// Parse decodes configuration from a byte slice, for tests and embedding.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", filename, diags)
	}
	return decode(file.Body, filename)
}

func decode(body hcl.Body, filename string) (*Config, error) {
	var cfg Config
	if diags := gohcl.DecodeBody(body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %w", filename, diags)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("no target blocks defined")
	}
	routes := make(map[string]string)
	for _, t := range c.Targets {
		if t.Route == "" {
			return fmt.Errorf("target %q: route is required", t.Name)
		}
		if prev, dup := routes[t.Route]; dup {
			return fmt.Errorf("targets %q and %q share route %q", prev, t.Name, t.Route)
		}
		routes[t.Route] = t.Name
		if len(t.SourceDirs) == 0 {
			return fmt.Errorf("target %q: at least one source directory is required", t.Name)
		}
		if t.Compiler == nil || t.Compiler.Command == "" {
			return fmt.Errorf("target %q: compiler command is required", t.Name)
		}
		if _, err := t.BuildMode(); err != nil {
			return fmt.Errorf("target %q: %w", t.Name, err)
		}
	}
	return nil
}
