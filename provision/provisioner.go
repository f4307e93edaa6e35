// Package provision makes sure the backend's dependency environment exists and matches its manifest before the
// backend is started.
package provision

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/guseggert/sidecarshell/env"
	"github.com/guseggert/sidecarshell/sidecar"
	"go.uber.org/zap"
)

const (
	// StampFile records the manifest digest of the last successful sync.
	StampFile = ".sidecar-sync"
	// VenvDir is the environment directory created by a sync.
	VenvDir = ".venv"
)

var (
	// ErrManifestMissing is returned when there is no manifest to provision from.
	ErrManifestMissing = errors.New("manifest missing")
	// ErrEntryMissing is returned when the backend's entry script does not exist.
	ErrEntryMissing = errors.New("entry script missing")
)

type Provisioner struct {
	Env     env.Environment
	Runtime string
	// SkipWhenCurrent skips the sync when the last successful sync used the same manifest and the environment exists.
	// The stamp recording the last sync is only written when it is set.
	SkipWhenCurrent bool
	Log             *zap.SugaredLogger
}

// Provision installs the manifest (Production only) and syncs the environment, waiting for the sync to finish.
// It is safe to repeat.
func (p *Provisioner) Provision(ctx context.Context) error {
	log := p.logger()

	if p.Env.Mode == env.Production {
		err := p.installManifest()
		if err != nil {
			return err
		}
	}

	digest, err := fileDigest(p.Env.Manifest())
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrManifestMissing, p.Env.Manifest())
	}
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	err = checkEntry(p.Env.Entry)
	if err != nil {
		return err
	}

	if p.SkipWhenCurrent && p.isCurrent(digest) {
		log.Infow("environment is current, skipping sync", "Path", p.Env.Path)
		return nil
	}

	cmd := sidecar.SyncCommand(p.Runtime, p.Env.Path)
	log.Infow("syncing environment", "Command", cmd.String())
	err = sidecar.Run(ctx, log, cmd)
	if err != nil {
		return fmt.Errorf("syncing environment at %s: %w", p.Env.Path, err)
	}

	if p.SkipWhenCurrent {
		err = os.WriteFile(filepath.Join(p.Env.Path, StampFile), []byte(digest), 0o644)
		if err != nil {
			log.Warnf("unable to write sync stamp: %s", err)
		}
	}
	log.Infow("environment synced", "Path", p.Env.Path)
	return nil
}

func (p *Provisioner) logger() *zap.SugaredLogger {
	if p.Log == nil {
		return zap.NewNop().Sugar()
	}
	return p.Log.Named("provisioner")
}

// installManifest copies the bundled manifest over the one in the project root.
// The copy is unconditional so that a new app version brings its new dependencies along.
func (p *Provisioner) installManifest() error {
	src := p.Env.BundledManifest()
	if src == "" {
		return fmt.Errorf("%w: no bundle dir", ErrManifestMissing)
	}
	dst := p.Env.Manifest()
	p.logger().Debugw("installing manifest", "Src", src, "Dest", dst)

	in, err := os.Open(src)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrManifestMissing, src)
	}
	if err != nil {
		return fmt.Errorf("opening bundled manifest: %w", err)
	}
	defer in.Close()

	err = os.MkdirAll(p.Env.Path, 0o755)
	if err != nil {
		return fmt.Errorf("creating environment dir: %w", err)
	}

	// an interrupted copy must not leave a truncated manifest behind
	tmp, err := os.CreateTemp(p.Env.Path, ".manifest-*")
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, in)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("copying manifest: %w", err)
	}
	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("closing temp manifest: %w", err)
	}
	err = os.Rename(tmp.Name(), dst)
	if err != nil {
		return fmt.Errorf("replacing manifest: %w", err)
	}
	return nil
}

func checkEntry(entry string) error {
	if entry == "" {
		return fmt.Errorf("%w: no entry configured", ErrEntryMissing)
	}
	fi, err := os.Stat(entry)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrEntryMissing, entry)
	}
	if err != nil {
		return fmt.Errorf("checking entry script: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrEntryMissing, entry)
	}
	return nil
}

func (p *Provisioner) isCurrent(digest string) bool {
	stamp, err := os.ReadFile(filepath.Join(p.Env.Path, StampFile))
	if err != nil || !bytes.Equal(stamp, []byte(digest)) {
		return false
	}
	fi, err := os.Stat(filepath.Join(p.Env.Path, VenvDir))
	return err == nil && fi.IsDir()
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	_, err = io.Copy(h, f)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
