package localfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "song.mp3"), []byte("data"))
	write(t, filepath.Join(dir, "other.flac"), []byte("data"))
	write(t, filepath.Join(dir, "empty.mp3"), nil)

	l := New(dir)

	t.Run("exact", func(t *testing.T) {
		f, err := l.Locate("song.mp3")
		require.NoError(t, err)
		assert.Equal(t, "song", f.Title)
		assert.Equal(t, int64(4), f.Size)
	})

	t.Run("alternate extension", func(t *testing.T) {
		f, err := l.Locate("other.mp3")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "other.flac"), f.Path)
	})

	t.Run("absolute", func(t *testing.T) {
		f, err := New("").Locate(filepath.Join(dir, "song.mp3"))
		require.NoError(t, err)
		assert.Equal(t, "song", f.Title)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := l.Locate("empty.mp3")
		assert.True(t, errors.Is(err, ErrEmpty))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := l.Locate("nope.mp3")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("directory", func(t *testing.T) {
		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
		_, err := l.Locate("sub")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}
