package sidecar

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/guseggert/sidecarshell/internal/files"
)

// LookupRuntime returns the path of the runtime binary.
// An explicit override is used as-is if it contains a path separator, or looked up on PATH otherwise.
// Without an override the bundled binary next to the executable is preferred over PATH.
func LookupRuntime(override string) (string, error) {
	if override == "" {
		p, err := files.FindSidecar(RuntimeName)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrRuntimeNotFound, err)
		}
		return p, nil
	}
	if filepath.Base(override) != override {
		fi, err := os.Stat(override)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrRuntimeNotFound, err)
		}
		if fi.IsDir() {
			return "", fmt.Errorf("%w: %s is a directory", ErrRuntimeNotFound, override)
		}
		return filepath.Abs(override)
	}
	p, err := exec.LookPath(override)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrRuntimeNotFound, err)
	}
	return p, nil
}
