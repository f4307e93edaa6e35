package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// OSPaths resolves app directories the way desktop app frameworks do:
// the data dir is <platform data dir>/<Identifier>, the resource dir is next to the executable
// (or Contents/Resources inside a macOS app bundle).
// DataDir and ResourceRoot override the platform defaults when set.
type OSPaths struct {
	Identifier   string
	DataDir      string
	ResourceRoot string
}

func (p OSPaths) AppDataDir() (string, error) {
	if p.DataDir != "" {
		return p.DataDir, nil
	}
	if p.Identifier == "" {
		return "", errors.New("no app identifier")
	}
	base, err := platformDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, p.Identifier), nil
}

func (p OSPaths) ResourceDir() (string, error) {
	if p.ResourceRoot != "" {
		return p.ResourceRoot, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	dir := filepath.Dir(exe)
	if runtime.GOOS == "darwin" && strings.HasSuffix(dir, filepath.Join("Contents", "MacOS")) {
		return filepath.Join(filepath.Dir(dir), "Resources"), nil
	}
	return dir, nil
}

func platformDataDir() (string, error) {
	switch runtime.GOOS {
	case "darwin", "windows":
		// ~/Library/Application Support and %AppData% respectively
		return os.UserConfigDir()
	}
	if dir := os.Getenv("XDG_DATA_HOME"); filepath.IsAbs(dir) {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share"), nil
}
