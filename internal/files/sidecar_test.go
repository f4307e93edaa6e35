package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindIn(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "", FindIn(dir, "uv"))

	suffixed := filepath.Join(dir, SidecarNames("uv")[1])
	require.NoError(t, os.WriteFile(suffixed, []byte("bin"), 0o755))
	assert.Equal(t, suffixed, FindIn(dir, "uv"))

	bare := filepath.Join(dir, SidecarNames("uv")[0])
	require.NoError(t, os.WriteFile(bare, []byte("bin"), 0o755))
	assert.Equal(t, bare, FindIn(dir, "uv"))
}

func TestFindInIgnoresDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, SidecarNames("uv")[0]), 0o755))
	assert.Equal(t, "", FindIn(dir, "uv"))
}

func TestFindSidecarNotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := FindSidecar("definitely-not-a-real-sidecar-binary")
	assert.ErrorIs(t, err, ErrNotFound)
}
