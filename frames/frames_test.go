package frames

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestList_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b_frame_000900.jpg", "a_frame_000000.PNG", "notes.txt", "c.jpeg", "video.mp4"} {
		touch(t, filepath.Join(dir, name))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755))

	got, err := List(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a_frame_000000.PNG"),
		filepath.Join(dir, "b_frame_000900.jpg"),
		filepath.Join(dir, "c.jpeg"),
	}, got)
}

func TestList_MissingDirectory(t *testing.T) {
	got, err := List(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestList_EmptyDirectory(t *testing.T) {
	got, err := List(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("x.JPG"))
	assert.True(t, IsImage("x.jpeg"))
	assert.False(t, IsImage("x.gif"))
	assert.False(t, IsImage("jpg"))
}
