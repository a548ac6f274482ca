package api

import "fmt"

// ErrorKind discriminates build failures by pipeline stage concern.
type ErrorKind string

const (
	KindCollection ErrorKind = "collection"
	KindParse      ErrorKind = "parse"
	KindCompile    ErrorKind = "compile"
	KindBundle     ErrorKind = "bundle"
	KindMinify     ErrorKind = "minify"
	KindCache      ErrorKind = "cache"
)

// BuildError is the terminal failure of one build attempt. Module is set when
// the failure can be pinned to a single module.
type BuildError struct {
	Kind   ErrorKind
	Module ModuleName
	Msg    string
	Err    error
}

func (e *BuildError) Error() string {
	s := string(e.Kind)
	if e.Module != "" {
		s += " [" + e.Module + "]"
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *BuildError) Unwrap() error { return e.Err }

// NewBuildError wraps err (which may be nil) with a kind and message.
func NewBuildError(kind ErrorKind, msg string, err error) *BuildError {
	return &BuildError{Kind: kind, Msg: msg, Err: err}
}

// ModuleError pins a failure to a single module.
func ModuleError(kind ErrorKind, module ModuleName, format string, args ...any) *BuildError {
	return &BuildError{Kind: kind, Module: module, Msg: fmt.Sprintf(format, args...)}
}
