package files

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ErrNotFound is returned when no candidate binary exists.
var ErrNotFound = errors.New("binary not found")

// SidecarNames returns the file names a bundled binary called name may have on this platform,
// in lookup order. App bundlers ship sidecars either bare or suffixed with the target platform.
func SidecarNames(name string) []string {
	names := []string{
		name,
		fmt.Sprintf("%s-%s-%s", name, runtime.GOOS, runtime.GOARCH),
	}
	if runtime.GOOS == "windows" {
		for i := range names {
			names[i] += ".exe"
		}
	}
	return names
}

// FindIn looks for any of SidecarNames(name) in dir and returns the first regular file found.
func FindIn(dir, name string) string {
	for _, n := range SidecarNames(name) {
		p := filepath.Join(dir, n)
		fi, err := os.Stat(p)
		if err == nil && fi.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

// FindSidecar finds a bundled binary next to the running executable, and falls back to PATH.
func FindSidecar(name string) (string, error) {
	exe, err := os.Executable()
	if err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		if p := FindIn(filepath.Dir(exe), name); p != "" {
			return p, nil
		}
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %s", ErrNotFound, name, err)
	}
	return p, nil
}
