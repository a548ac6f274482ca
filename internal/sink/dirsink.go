// Package sink provides a filesystem-backed static-asset registry for hosts
// that embed bundles from disk rather than through a web framework.
package sink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/bundlekit/api"
)

// Dir writes each registered artifact under Root at its route and keeps a
// manifest.json describing everything written so far.
type Dir struct {
	Root string
}

var _ api.Sink = (*Dir)(nil)

// Add implements api.Sink: it invokes the registration's production producer
// once and persists the result. A production failure aborts the host build,
// so the error is propagated as-is.
func (s *Dir) Add(reg api.Registration) error {
	art, err := reg.Production(context.Background())
	if err != nil {
		return err
	}
	dest := filepath.Join(s.Root, filepath.FromSlash(reg.Route))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create asset directory: %w", err)
	}
	if err := os.WriteFile(dest, art.Body, 0o644); err != nil {
		return fmt.Errorf("write asset %s: %w", reg.Route, err)
	}
	return s.record(reg.Route, art)
}

// record updates manifest.json with the artifact's route, type and digest.
func (s *Dir) record(route string, art *api.Artifact) error {
	manifestPath := filepath.Join(s.Root, "manifest.json")
	entries := map[string]any{}
	if raw, err := os.ReadFile(manifestPath); err == nil {
		if parsed, err := oj.Parse(raw); err == nil {
			if m, ok := parsed.(map[string]any); ok {
				entries = m
			}
		}
	}

	sum := sha256.Sum256(art.Body)
	entries[route] = map[string]any{
		"mime":     art.MIME,
		"size":     len(art.Body),
		"sha256":   hex.EncodeToString(sum[:]),
		"built_at": time.Now().UTC().Format(time.RFC3339),
	}

	if err := os.WriteFile(manifestPath, []byte(oj.JSON(entries, 2)), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
