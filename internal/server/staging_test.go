package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagingReplacesPreviousSelection(t *testing.T) {
	s, err := newStaging(t.TempDir())
	require.NoError(t, err)

	first, err := s.stage("sess", "a.txt", strings.NewReader("one"), 1024)
	require.NoError(t, err)
	second, err := s.stage("sess", "../../b.png", strings.NewReader(string(pngBytes)), 1024)
	require.NoError(t, err)

	assert.NoFileExists(t, first.Path)
	assert.FileExists(t, second.Path)
	assert.Equal(t, "b.png", second.Name)
	assert.True(t, second.IsImage)
	assert.Equal(t, filepath.Clean(s.dir), filepath.Dir(second.Path))

	got, ok := s.get("sess")
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)

	// A stale id does not release the newer file.
	s.release("sess", first.ID)
	_, ok = s.get("sess")
	assert.True(t, ok)

	s.release("sess", second.ID)
	_, ok = s.get("sess")
	assert.False(t, ok)
	assert.NoFileExists(t, second.Path)
}

func TestStagingRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	s, err := newStaging(dir)
	require.NoError(t, err)

	_, err = s.stage("sess", "big.bin", strings.NewReader(strings.Repeat("x", 11)), 10)
	assert.ErrorIs(t, err, errUploadTooLarge)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)

	_, err = s.stage("sess", "  ", strings.NewReader("x"), 10)
	assert.Error(t, err)
}

func TestStagingSweep(t *testing.T) {
	dir := t.TempDir()
	s, err := newStaging(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leftover"+stagedSuffix), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.me"), []byte("x"), 0o600))

	live, err := s.stage("sess", "a.txt", strings.NewReader("a"), 10)
	require.NoError(t, err)

	n, err := s.sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, live.Path)
	assert.FileExists(t, filepath.Join(dir, "keep.me"))

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = s.sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, live.Path)
	_, ok := s.get("sess")
	assert.False(t, ok)
}

func TestInflightGuard(t *testing.T) {
	g := newInflight()

	release, ok := g.begin("s1", "delete", "f1")
	require.True(t, ok)

	_, ok = g.begin("s1", "delete", "f1")
	assert.False(t, ok, "same row twice")

	other, ok := g.begin("s1", "delete", "f2")
	assert.True(t, ok, "different row")
	other()

	otherSession, ok := g.begin("s2", "delete", "f1")
	assert.True(t, ok, "different session")
	otherSession()

	release()
	again, ok := g.begin("s1", "delete", "f1")
	assert.True(t, ok)
	again()
}
