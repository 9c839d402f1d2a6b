package wizard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "wizard")
	store := NewFileStore(dir)

	_, err := store.Load("cbam-q1")
	require.ErrorIs(t, err, ErrNoSession)

	s := sessionAt(t, StepRetention)
	s.Name = "cbam-q1"
	require.NoError(t, store.Save(s))

	info, err := os.Stat(filepath.Join(dir, "cbam-q1.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Load("cbam-q1")
	require.NoError(t, err)
	assert.Equal(t, s, got)

	// No temp files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, store.Clear("cbam-q1"))
	_, err = store.Load("cbam-q1")
	require.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, store.Clear("cbam-q1"), "clearing twice is fine")
}

func TestFileStore_RejectsBadNames(t *testing.T) {
	t.Parallel()

	store := NewFileStore(t.TempDir())
	for _, name := range []string{"", "../escape", "a/b", "with space"} {
		_, err := store.Load(name)
		require.Error(t, err, name)
		assert.NotErrorIs(t, err, ErrNoSession, name)
	}
}
