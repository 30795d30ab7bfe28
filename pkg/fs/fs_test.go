package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.bcmp")

	f, err := CreateAtomic(path, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)

	ok, err := Exists(path)
	require.NoError(t, err)
	assert.False(t, ok, "destination must not exist before commit")

	require.NoError(t, f.Commit())
	require.NoError(t, f.Abort(), "abort after commit is a no-op")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = os.Stat(f.TempName())
	assert.True(t, os.IsNotExist(err))

	_, err = f.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrFileDone)
	assert.ErrorIs(t, f.Commit(), ErrFileDone)
}

func TestAtomicAbort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bcmp")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	f, err := CreateAtomic(path, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, f.Abort())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data), "abort leaves the destination untouched")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEnsureParentDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	require.NoError(t, EnsureParentDir(filepath.Join(dir, "a", "b", "c.txt")))
	assert.Error(t, EnsureParentDir(filepath.Join(blocker, "c.txt")))
}

func TestPartName(t *testing.T) {
	assert.Equal(t, "out/data.bcmp.000001", PartName("out/data.bcmp", 1))
	assert.Equal(t, "data.1234567", PartName("data", 1234567))
}
