package api

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MIMEJavaScript is the content type of every artifact the pipeline emits,
// including Development-mode diagnostic bodies.
const MIMEJavaScript = "application/javascript"

// Mode selects the build strategy for a registered target.
type Mode int

const (
	// Development rebuilds on every request, skips minification and keeps
	// the incremental cache across builds.
	Development Mode = iota
	// Production builds once, minifies, and starts from an empty cache.
	Production
)

func (m Mode) String() string {
	switch m {
	case Development:
		return "development"
	case Production:
		return "production"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev":
		return Development, nil
	case "production", "prod":
		return Production, nil
	default:
		return Development, fmt.Errorf("unknown build mode %q", s)
	}
}

// SourceKind classifies where a source file came from.
type SourceKind int

const (
	// KindPrimary sources come from the project's own source directories.
	// Only these seed the default root set.
	KindPrimary SourceKind = iota
	// KindDependency sources come from externally supplied glob patterns.
	KindDependency
	// KindForeign marks native-code companion files.
	KindForeign
)

func (k SourceKind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindDependency:
		return "dependency"
	case KindForeign:
		return "foreign"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ModuleName identifies one compiled module. Derived from the `module <Name>`
// header of its source file; unique across Primary and Dependency sources.
type ModuleName = string

// SourceFile is one discovered input, immutable once read.
type SourceFile struct {
	Path    string
	Content []byte
	Kind    SourceKind
	ModTime time.Time
}

// CompiledModule is the linkable output the Compiler produces for one source
// file. Foreign holds the optional native-code companion; a module and its
// foreign code form a single reachability unit during bundling.
type CompiledModule struct {
	Name       ModuleName
	SourcePath string
	Generated  []byte
	Foreign    []byte
}

// CompileOptions are the knobs the pipeline forwards to the Compiler.
type CompileOptions struct {
	NoOptimizations bool
	VerboseErrors   bool
	NoPrelude       bool
}

// Severity of a compiler diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic is one message reported by the Compiler.
type Diagnostic struct {
	Severity Severity
	Module   ModuleName
	Path     string
	Message  string
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Severity.String())
	if d.Module != "" {
		fmt.Fprintf(&b, " in module %s", d.Module)
	}
	if d.Path != "" {
		fmt.Fprintf(&b, " (%s)", d.Path)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// Diagnostics is the full set of messages from one compiler invocation.
type Diagnostics []Diagnostic

// Errors returns only the error-severity diagnostics.
func (ds Diagnostics) Errors() Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// Warnings returns only the warning-severity diagnostics.
func (ds Diagnostics) Warnings() Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Severity == SeverityWarning {
			out = append(out, d)
		}
	}
	return out
}

// String pretty-prints the diagnostics one per line. In Development mode this
// text becomes the artifact body when a build fails.
func (ds Diagnostics) String() string {
	var b strings.Builder
	for _, d := range ds {
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Compiler turns a set of source files into linkable modules. It is an
// external capability; bundlekit never parses the source language itself
// beyond the module header line. Warnings may accompany a successful result.
type Compiler interface {
	Compile(ctx context.Context, files []SourceFile, opts CompileOptions) ([]CompiledModule, Diagnostics, error)
}

// Minifier shrinks a finished bundle. Only ever invoked for Production builds.
type Minifier interface {
	Minify(src []byte) ([]byte, error)
}

// RootSet names the modules used as dead-code-elimination roots.
// Construct with AllPrimary or ExplicitRoots.
type RootSet struct {
	// All keeps every module reachable from any Primary source module.
	All bool
	// Names, when All is false, keeps modules reachable from these names
	// regardless of Primary/Dependency origin.
	Names []ModuleName
}

// AllPrimary is the default root set: every Primary module is a root.
func AllPrimary() RootSet { return RootSet{All: true} }

// ExplicitRoots builds a root set from a fixed name list.
func ExplicitRoots(names ...ModuleName) RootSet { return RootSet{Names: names} }

// Artifact is the terminal output of one build, never mutated after creation.
type Artifact struct {
	Route string
	MIME  string
	Body  []byte
}

// Registration is what a build target hands to the host's static-asset
// registry. The registry calls Production once at host build time and
// Development on every matching request.
type Registration struct {
	Route string
	MIME  string

	// Production runs the full pipeline and propagates any failure.
	Production func(ctx context.Context) (*Artifact, error)

	// Development runs the full pipeline but never fails: on error the
	// artifact body is the pretty-printed diagnostic text instead of code.
	Development func(ctx context.Context) *Artifact
}

// Sink is the host framework's static-asset registry.
type Sink interface {
	Add(reg Registration) error
}
