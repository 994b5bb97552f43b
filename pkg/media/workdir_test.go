package media

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkDir_TempPathAndRemove(t *testing.T) {
	w, err := NewWorkDir(filepath.Join(t.TempDir(), "nested", "work"))
	require.NoError(t, err)

	path, err := w.TempPath("acq_*")
	require.NoError(t, err)
	assert.Equal(t, w.Dir(), filepath.Dir(path))

	w.Remove(path)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// files outside the work dir are left alone
	outside := filepath.Join(t.TempDir(), "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0600))
	w.Remove(outside)
	_, err = os.Stat(outside)
	assert.NoError(t, err)
}

func TestWorkDir_CleanupOldFiles(t *testing.T) {
	w, err := NewWorkDir(t.TempDir())
	require.NoError(t, err)

	old := filepath.Join(w.Dir(), "old.mp4")
	fresh := filepath.Join(w.Dir(), "fresh.mp4")
	require.NoError(t, os.WriteFile(old, []byte("o"), 0600))
	require.NoError(t, os.WriteFile(fresh, []byte("f"), 0600))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Mkdir(filepath.Join(w.Dir(), "subdir"), 0750))

	removed, err := w.CleanupOldFiles(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestWorkDir_CleanupMissingDir(t *testing.T) {
	w := &WorkDir{dir: filepath.Join(t.TempDir(), "missing")}
	_, err := w.CleanupOldFiles(time.Hour)
	assert.Error(t, err)
}

func TestSibling(t *testing.T) {
	assert.Equal(t, "/tmp/work/acq_1_720p.mp4", sibling("/tmp/work/acq_1", "_720p", ".mp4"))
	assert.Equal(t, "/tmp/work/clip_540p.mp4", sibling("/tmp/work/clip.mov", "_540p", ".mp4"))
}
