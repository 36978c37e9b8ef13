package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorePutCreatesFolders(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStore(root)

	require.NoError(t, s.Put(context.Background(), "Electrical/E101_structured.json", []byte(`{}`)))

	got, err := os.ReadFile(filepath.Join(root, "Electrical", "E101_structured.json"))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(got))
	assert.Equal(t, filepath.Join(root, "Electrical", "E101_structured.json"), s.Location("Electrical/E101_structured.json"))
}

func TestLocalStoreConcurrentWritersSameFile(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStore(root)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Put(context.Background(), "Architectural/e_rooms_details_floor_.json", []byte(`{"rooms":[]}`)))
		}()
	}
	wg.Wait()

	entries, err := os.ReadDir(filepath.Join(root, "Architectural"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
	got, err := os.ReadFile(filepath.Join(root, "Architectural", "e_rooms_details_floor_.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"rooms":[]}`, string(got))
}

func TestLocalStoreFailsWhenRootIsAFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o644))

	err := NewLocalStore(root).Put(context.Background(), "Electrical/x.json", []byte("{}"))
	assert.Error(t, err)
}

func TestMultiStoreMirrorFailureIsReported(t *testing.T) {
	primary := newMemStore()
	mirror := newMemStore()
	mirror.fail["A/x.json"] = errors.New("bucket unavailable")
	var reported []string

	m := &MultiStore{
		Primary: primary,
		Mirrors: []Store{mirror},
		OnMirrorError: func(loc string, err error) {
			reported = append(reported, loc)
		},
	}

	require.NoError(t, m.Put(context.Background(), "A/x.json", []byte("{}")))
	_, ok := primary.Get("A/x.json")
	assert.True(t, ok)
	assert.Equal(t, []string{"mem://A/x.json"}, reported)
	assert.Equal(t, "mem://A/x.json", m.Location("A/x.json"))
}

func TestMultiStorePrimaryFailureFails(t *testing.T) {
	primary := newMemStore()
	primary.fail["A/x.json"] = errors.New("disk full")
	mirror := newMemStore()
	m := &MultiStore{Primary: primary, Mirrors: []Store{mirror}}

	assert.Error(t, m.Put(context.Background(), "A/x.json", []byte("{}")))
	_, ok := mirror.Get("A/x.json")
	assert.False(t, ok)
}
