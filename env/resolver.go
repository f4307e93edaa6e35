package env

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	// DirName is the backend project directory name, both next to the working directory and inside the resource bundle.
	DirName = "api"
	// ManifestFile is the dependency manifest of the backend project.
	ManifestFile = "pyproject.toml"
	// EntryFile is the script the runtime serves.
	EntryFile = "app.py"
)

// PathService is the host application's path resolution.
type PathService interface {
	// AppDataDir is the per-install private data directory.
	AppDataDir() (string, error)
	// ResourceDir is the root of the packaged, read-only resources.
	ResourceDir() (string, error)
}

// Environment is a resolved backend environment. It is immutable once resolved.
type Environment struct {
	Mode Mode
	// Path is the absolute backend project root.
	Path string
	// Entry is the absolute path of the entry script.
	Entry string
	// BundleDir is the packaged backend directory. It is empty in Development.
	BundleDir string
}

// Manifest is the manifest path inside the project root.
func (e Environment) Manifest() string {
	return filepath.Join(e.Path, ManifestFile)
}

// BundledManifest is the packaged manifest that gets copied into the project root, or "" in Development.
func (e Environment) BundledManifest() string {
	if e.BundleDir == "" {
		return ""
	}
	return filepath.Join(e.BundleDir, ManifestFile)
}

type Resolver struct {
	Mode  Mode
	Paths PathService
	Getwd func() (string, error)
	Log   *zap.SugaredLogger
}

// NewResolver builds a resolver for the compiled-in BuildMode.
func NewResolver(paths PathService, log *zap.SugaredLogger) *Resolver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Resolver{
		Mode:  BuildMode,
		Paths: paths,
		Getwd: os.Getwd,
		Log:   log.Named("resolver"),
	}
}

// Resolve determines the backend environment. Any failure is returned as-is; there are no fallbacks.
func (r *Resolver) Resolve() (Environment, error) {
	var (
		e   Environment
		err error
	)
	switch r.Mode {
	case Development:
		e, err = r.resolveDevelopment()
	case Production:
		e, err = r.resolveProduction()
	default:
		err = fmt.Errorf("unsupported mode %s", r.Mode)
	}
	if err != nil {
		return Environment{}, err
	}
	r.Log.Infow("resolved environment", "Mode", e.Mode, "Path", e.Path, "Entry", e.Entry, "BundleDir", e.BundleDir)
	return e, nil
}

func (r *Resolver) resolveDevelopment() (Environment, error) {
	getwd := r.Getwd
	if getwd == nil {
		getwd = os.Getwd
	}
	wd, err := getwd()
	if err != nil {
		return Environment{}, fmt.Errorf("getting working directory: %w", err)
	}
	if wd == "" {
		return Environment{}, errors.New("empty working directory")
	}
	wd, err = filepath.Abs(wd)
	if err != nil {
		return Environment{}, fmt.Errorf("making working directory absolute: %w", err)
	}
	r.Log.Debugw("resolving from working directory", "WD", wd)

	path := filepath.Join(filepath.Dir(wd), DirName)
	return Environment{
		Mode:  Development,
		Path:  path,
		Entry: filepath.Join(path, EntryFile),
	}, nil
}

func (r *Resolver) resolveProduction() (Environment, error) {
	if r.Paths == nil {
		return Environment{}, errors.New("no path service")
	}
	dataDir, err := absDir(r.Paths.AppDataDir, "app data dir")
	if err != nil {
		return Environment{}, err
	}
	resourceDir, err := absDir(r.Paths.ResourceDir, "resource dir")
	if err != nil {
		return Environment{}, err
	}
	bundle := filepath.Join(resourceDir, DirName)
	return Environment{
		Mode:      Production,
		Path:      dataDir,
		Entry:     filepath.Join(bundle, EntryFile),
		BundleDir: bundle,
	}, nil
}

func absDir(f func() (string, error), what string) (string, error) {
	dir, err := f()
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", what, err)
	}
	if dir == "" {
		return "", fmt.Errorf("resolving %s: empty path", what)
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("making %s absolute: %w", what, err)
	}
	return dir, nil
}
