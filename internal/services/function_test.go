package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDrawingObject(t *testing.T) {
	tests := map[string]bool{
		"jobs/123/E101.pdf":  true,
		"A101.PDF":           true,
		"jobs/123/notes.txt": false,
		"jobs/123.pdf/":      false,
		"E101":               false,
	}
	for name, want := range tests {
		assert.Equal(t, want, isDrawingObject(name), name)
	}
}

func TestOutputPrefix(t *testing.T) {
	assert.Equal(t, "", outputPrefix("E101.pdf"))
	assert.Equal(t, "jobs/123", outputPrefix("jobs/123/E101.pdf"))
}

func TestCalculateFileHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "E101.pdf")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	got, err := calculateFileHash(path)

	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)

	_, err = calculateFileHash(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}
