package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
}

func TestDiscoverDrawings(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "Electrical", "E101.pdf"))
	touch(t, filepath.Join(root, "A101.PDF"))
	touch(t, filepath.Join(root, "Mechanical", "sub", "M201.pdf"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, "output", "Electrical", "E101_structured.pdf"))

	files, err := DiscoverDrawings(root, filepath.Join(root, "output"))

	require.NoError(t, err)
	var rel []string
	for _, f := range files {
		rel = append(rel, f.RelativePath)
		assert.True(t, filepath.IsAbs(f.Path))
		assert.Empty(t, f.Discipline)
	}
	assert.Equal(t, []string{"A101.PDF", "Electrical/E101.pdf", "Mechanical/sub/M201.pdf"}, rel)
}

func TestDiscoverDrawingsRelativeSkip(t *testing.T) {
	t.Chdir(t.TempDir())
	touch(t, filepath.Join("in", "E101.pdf"))
	touch(t, filepath.Join("in", "out", "Electrical", "E101_raw.pdf"))

	files, err := DiscoverDrawings("in", filepath.Join("in", "out"))

	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "E101.pdf", files[0].RelativePath)
}

func TestDiscoverDrawingsMissingInput(t *testing.T) {
	_, err := DiscoverDrawings(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrInputMissing)

	file := filepath.Join(t.TempDir(), "E1.pdf")
	touch(t, file)
	_, err = DiscoverDrawings(file)
	assert.ErrorIs(t, err, ErrInputMissing)
}

func TestDiscoverDrawingsEmpty(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "readme.md"))

	_, err := DiscoverDrawings(root)
	assert.ErrorIs(t, err, ErrNoDrawings)
}
