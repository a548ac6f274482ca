package compiler

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/bundlekit/api"
)

var (
	errorsPath   = jp.MustParseString("$.errors[*]")
	warningsPath = jp.MustParseString("$.warnings[*]")
)

// ParseDiagnostics decodes a compiler's JSON diagnostics stream, the shape
// toolchains emit under a --json-errors style flag:
//
//	{"errors": [{"moduleName": ..., "filename": ..., "message": ...}], "warnings": [...]}
//
// Non-JSON input is folded into a single error diagnostic carrying the raw
// text, so a crashing compiler still surfaces something readable.
func ParseDiagnostics(raw []byte) api.Diagnostics {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil
	}
	data, err := oj.Parse([]byte(trimmed))
	if err != nil {
		return api.Diagnostics{{Severity: api.SeverityError, Message: trimmed}}
	}

	var diags api.Diagnostics
	for _, item := range errorsPath.Get(data) {
		diags = append(diags, decodeDiagnostic(item, api.SeverityError))
	}
	for _, item := range warningsPath.Get(data) {
		diags = append(diags, decodeDiagnostic(item, api.SeverityWarning))
	}
	return diags
}

func decodeDiagnostic(item any, sev api.Severity) api.Diagnostic {
	d := api.Diagnostic{Severity: sev}
	obj, ok := item.(map[string]any)
	if !ok {
		d.Message = fmt.Sprintf("%v", item)
		return d
	}
	d.Module, _ = obj["moduleName"].(string)
	d.Path, _ = obj["filename"].(string)
	d.Message, _ = obj["message"].(string)
	if d.Message == "" {
		d.Message = fmt.Sprintf("%v", item)
	}
	return d
}
