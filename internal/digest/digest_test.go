package digest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/huitest/liota/internal/digest"
)

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.src")
	require.NoError(t, os.WriteFile(path, []byte("hello package"), 0o644))

	sum, err := digest.File(path)
	require.NoError(t, err)
	require.Equal(t, "921a5e14fe6e25cbbdd0cd4d3b9db737f0b45254", sum.String())

	sum2, err := digest.File(path)
	require.NoError(t, err)
	require.Equal(t, sum, sum2)
}

func TestFileMissing(t *testing.T) {
	_, err := digest.File(filepath.Join(t.TempDir(), "missing.src"))
	require.Error(t, err)
}
