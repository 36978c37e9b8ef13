package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/drawingflow/internal/gcp"
)

// Store persists run artifacts under slash-separated relative paths such as
// "Electrical/E101_structured.json".
type Store interface {
	Put(ctx context.Context, relPath string, data []byte) error
	Location(relPath string) string
}

// LocalStore writes artifacts below Root on the local filesystem.
type LocalStore struct {
	Root string
}

// NewLocalStore returns a store rooted at dir.
func NewLocalStore(dir string) *LocalStore { return &LocalStore{Root: dir} }

// Put writes data through a temp file and rename so concurrent writers of the
// same artifact never leave a torn file; the last writer wins. Directory
// creation is idempotent.
func (s *LocalStore) Put(ctx context.Context, relPath string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest := s.Location(relPath)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", dest, err)
	}
	return nil
}

// Location returns the absolute filesystem path of relPath.
func (s *LocalStore) Location(relPath string) string {
	return filepath.Join(s.Root, filepath.FromSlash(relPath))
}

// GCSStore mirrors artifacts into a bucket under Prefix. Objects are created
// once; an existing object is left untouched.
type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
	Prefix string
}

// NewGCSStore returns a store writing to gs://bucket/prefix/.
func NewGCSStore(client *storage.Client, bucket, prefix string) *GCSStore {
	return &GCSStore{bucket: client.Bucket(bucket), name: bucket, Prefix: prefix}
}

func (s *GCSStore) Put(ctx context.Context, relPath string, data []byte) error {
	return gcp.SaveToGCSAtomically(ctx, s.bucket, s.object(relPath), string(data))
}

func (s *GCSStore) Location(relPath string) string {
	return fmt.Sprintf("gs://%s/%s", s.name, s.object(relPath))
}

func (s *GCSStore) object(relPath string) string {
	return path.Join(s.Prefix, relPath)
}

// MultiStore writes to a primary store and then to each mirror. Only the
// primary's failure fails the write; mirror failures are reported through OnMirrorError.
type MultiStore struct {
	Primary       Store
	Mirrors       []Store
	OnMirrorError func(location string, err error)
}

func (m *MultiStore) Put(ctx context.Context, relPath string, data []byte) error {
	if err := m.Primary.Put(ctx, relPath, data); err != nil {
		return err
	}
	for _, mirror := range m.Mirrors {
		if err := mirror.Put(ctx, relPath, data); err != nil && m.OnMirrorError != nil {
			m.OnMirrorError(mirror.Location(relPath), err)
		}
	}
	return nil
}

func (m *MultiStore) Location(relPath string) string { return m.Primary.Location(relPath) }
