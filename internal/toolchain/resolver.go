// Package toolchain locates external compiler and interpreter binaries.
package toolchain

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotFound indicates that none of the candidate binaries exist on PATH.
var ErrNotFound = errors.New("no toolchain found")

// Find returns the absolute path of the first candidate binary present on the
// OS search path. Candidates are tried in order.
//
// Results are never cached: toolchain availability can change between runs on
// a live host, so every execution attempt resolves fresh.
func Find(candidates ...string) (string, error) {
	tried := make([]string, 0, len(candidates))
	for _, name := range candidates {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tried = append(tried, name)
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if len(tried) == 0 {
		return "", fmt.Errorf("no toolchain candidates given: %w", ErrNotFound)
	}
	return "", fmt.Errorf("none of [%s] found on PATH: %w", strings.Join(tried, ", "), ErrNotFound)
}
