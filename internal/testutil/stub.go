// Package testutil holds helpers for tests that need a fake runtime binary.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteScript writes an executable sh script called name into dir and returns its path.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755)
	if err != nil {
		t.Fatalf("writing script %s: %s", p, err)
	}
	return p
}

// StubRuntime writes a fake "uv" into a new temp dir.
// "sync" records its arguments to <dir>/sync.log and creates <env>/.venv.
// "run" executes runBody with the original arguments available as "$@".
func StubRuntime(t *testing.T, runBody string) string {
	t.Helper()
	dir := t.TempDir()
	body := `cmd="$1"
shift
case "$cmd" in
sync)
	echo "sync $*" >> "` + filepath.Join(dir, "sync.log") + `"
	mkdir -p "$2/.venv"
	;;
run)
	` + runBody + `
	;;
*)
	echo "unknown command $cmd" 1>&2
	exit 2
	;;
esac`
	return WriteScript(t, dir, "uv", body)
}
