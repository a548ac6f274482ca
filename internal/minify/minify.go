// Package minify adapts an external minifier command to the api.Minifier
// capability. Production builds pipe the finished bundle through it;
// Development builds never touch it.
package minify

import (
	"bytes"
	"fmt"
	"os/exec"

	"github.com/agentic-research/bundlekit/api"
)

// Exec pipes the bundle through a command's stdin and reads the minified
// result from stdout.
type Exec struct {
	Command string
	Args    []string
}

var _ api.Minifier = (*Exec)(nil)

// Minify implements api.Minifier.
func (e *Exec) Minify(src []byte) ([]byte, error) {
	cmd := exec.Command(e.Command, e.Args...)
	cmd.Stdin = bytes.NewReader(src)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w (%s)", e.Command, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}
