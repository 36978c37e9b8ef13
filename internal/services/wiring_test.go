package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Lllllllleong/drawingflow/internal/config"
	"github.com/Lllllllleong/drawingflow/internal/discipline"
	"github.com/Lllllllleong/drawingflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyFromConfig(t *testing.T) {
	got := RetryPolicyFromConfig(config.Defaults())

	assert.Equal(t, DefaultRetryPolicy().MaxAttempts, got.MaxAttempts)
	assert.Equal(t, time.Second, got.InitialBackoff)
	assert.Equal(t, 60*time.Second, got.MaxBackoff)
	assert.Equal(t, 5*time.Second, got.RetryDelay)
	assert.Equal(t, time.Second, got.MaxJitter)
	assert.Equal(t, 300*time.Second, got.CallTimeout)
}

func TestComponentsPipelineEndToEnd(t *testing.T) {
	cfg := config.Defaults()
	cfg.ClassifyMode = config.ClassifyPath
	cfg.FloorNumber = "2"
	gen := &scriptedGenerator{text: `{"rooms":[{"number":"201","name":"Office"}]}`}

	c, err := NewComponents(cfg, gen, discardLogger())
	require.NoError(t, err)
	c.Extractor = basenameContent

	root := t.TempDir()
	store := NewLocalStore(filepath.Join(root, "output"))
	p := c.Pipeline(c.Classifier(root), store)

	got := p.Process(context.Background(), models.DrawingFile{Path: filepath.Join(root, "arch", "L2 PLAN.pdf")})

	require.Equal(t, models.OutcomeSuccess, got.Kind, got.Reason)
	assert.Equal(t, discipline.Architectural, got.File.Discipline)
	assert.True(t, got.RoomTemplates)
	_, err = os.Stat(filepath.Join(root, "output", "Architectural", "a_rooms_details_floor_2.json"))
	assert.NoError(t, err)

	require.Len(t, gen.reqs, 1)
	assert.InDelta(t, 0.2, gen.reqs[0].Temperature, 1e-6)
	assert.Equal(t, "L2 PLAN", gen.reqs[0].Content)

	s := c.Scheduler()
	assert.Equal(t, 10, s.BatchSize)
	assert.Equal(t, 60, s.RateLimit)
	assert.Equal(t, time.Minute, s.Window)
}

func TestNewComponentsBadDisciplineTable(t *testing.T) {
	cfg := config.Defaults()
	cfg.DisciplinesPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewComponents(cfg, &scriptedGenerator{}, discardLogger())
	assert.Error(t, err)
}
