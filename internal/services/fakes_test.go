package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/drawingflow/internal/models"
)

// fakeClock advances instantly on Sleep and records every requested wait.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// scriptedGenerator returns errs in order, then text forever.
type scriptedGenerator struct {
	mu    sync.Mutex
	errs  []error
	text  string
	calls int
	reqs  []*models.ExtractionRequest
}

func (g *scriptedGenerator) Generate(_ context.Context, req *models.ExtractionRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.reqs = append(g.reqs, req)
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return "", err
	}
	return g.text, nil
}

func (g *scriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// callerFunc adapts a function to Caller.
type callerFunc func(ctx context.Context, req *models.ExtractionRequest) (string, error)

func (f callerFunc) Call(ctx context.Context, req *models.ExtractionRequest) (string, error) {
	return f(ctx, req)
}

// memStore keeps written artifacts in memory.
type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
	fail  map[string]error
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}, fail: map[string]error{}}
}

func (s *memStore) Put(_ context.Context, relPath string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[relPath]; ok {
		return err
	}
	s.files[relPath] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) Location(relPath string) string { return "mem://" + relPath }

func (s *memStore) Get(relPath string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[relPath]
	return b, ok
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
