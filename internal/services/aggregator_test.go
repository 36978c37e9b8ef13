package services

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/drawingflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTracker struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *recordingTracker) Track(_ context.Context, runID string, o models.ExtractionOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, runID+":"+o.File.Path)
	return r.err
}

func failEvery(n int) Processor {
	return ProcessorFunc(func(ctx context.Context, f models.DrawingFile) models.ExtractionOutcome {
		idx, _ := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(f.Path, "/job/E"), ".pdf"))
		if idx%n == 0 {
			return models.CallFailure(f, models.ErrExtractionCallFailed, errors.New("quota"))
		}
		return succeed(ctx, f)
	})
}

func TestRunAggregatorTallies(t *testing.T) {
	tracker := &recordingTracker{}
	s := NewScheduler(4, 60, time.Minute, newFakeClock(), discardLogger())
	agg := NewRunAggregator(s, failEvery(3), tracker, "run-1", discardLogger())

	tally, err := agg.Run(context.Background(), makeFiles(10))

	require.NoError(t, err)
	assert.Equal(t, 7, tally.Successes())
	assert.Equal(t, 10, tally.Total())
	var failed []string
	for _, f := range tally.Failures() {
		failed = append(failed, f.File)
		assert.Equal(t, models.ErrExtractionCallFailed, f.Kind)
		assert.Equal(t, "quota", f.Reason)
	}
	assert.Equal(t, []string{"/job/E003.pdf", "/job/E006.pdf", "/job/E009.pdf"}, failed)
	assert.Len(t, tracker.paths, 10)
	assert.Equal(t, "run-1:/job/E001.pdf", tracker.paths[0])
}

func TestRunAggregatorZeroSuccessesIsNotAnError(t *testing.T) {
	s := NewScheduler(10, 60, time.Minute, newFakeClock(), discardLogger())
	agg := NewRunAggregator(s, failEvery(1), nil, "run-2", discardLogger())

	tally, err := agg.Run(context.Background(), makeFiles(5))

	require.NoError(t, err)
	assert.Equal(t, 0, tally.Successes())
	assert.Len(t, tally.Failures(), 5)
}

func TestRunAggregatorTrackerErrorsDoNotFailRun(t *testing.T) {
	tracker := &recordingTracker{err: errors.New("firestore unavailable")}
	s := NewScheduler(10, 60, time.Minute, newFakeClock(), discardLogger())
	agg := NewRunAggregator(s, ProcessorFunc(succeed), tracker, "run-3", discardLogger())

	tally, err := agg.Run(context.Background(), makeFiles(3))

	require.NoError(t, err)
	assert.Equal(t, 3, tally.Successes())
}

func TestRunAggregatorKeepsOutcomesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := ProcessorFunc(func(ctx context.Context, f models.DrawingFile) models.ExtractionOutcome {
		if f.Path == "/job/E002.pdf" {
			cancel()
		}
		return succeed(ctx, f)
	})
	tracker := &recordingTracker{}
	s := NewScheduler(2, 60, time.Minute, newFakeClock(), discardLogger())
	agg := NewRunAggregator(s, proc, tracker, "run-4", discardLogger())

	tally, err := agg.Run(ctx, makeFiles(6))

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, tally.Successes())
	assert.Len(t, tracker.paths, 2)
}

func TestWriteSummary(t *testing.T) {
	tally := &models.RunTally{}
	tally.Record(models.Success(models.DrawingFile{Path: "/job/A1.pdf"}, nil, ""))
	o := models.Success(models.DrawingFile{Path: "/job/A2.pdf"}, nil, "")
	o.RoomTemplates = true
	tally.Record(o)
	tally.Record(models.ParseFailure(models.DrawingFile{Path: "/job/E1.pdf"}, "x", "", errors.New("invalid character 'x'")))

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, tally))

	want := "Processing complete. Successes: 2, Failures: 1\n" +
		"Room templates created for floor plans.\n" +
		"Failures:\n" +
		"  /job/E1.pdf [ResponseNotValidJSON]: Failed to parse JSON: invalid character 'x'\n"
	assert.Equal(t, want, buf.String())
}

func TestSummarize(t *testing.T) {
	tally := &models.RunTally{}
	tally.Record(models.CallFailure(models.DrawingFile{Path: "/job/E1.pdf"}, models.ErrOutputWriteFailed, errors.New("disk full")))

	got := Summarize("run-5", "/in", "/out", tally)

	assert.Equal(t, models.RunSummary{
		RunID:        "run-5",
		InputFolder:  "/in",
		OutputFolder: "/out",
		Successes:    0,
		Failures:     []models.FailureSummary{{File: "/job/E1.pdf", Kind: "OutputWriteFailed", Reason: "disk full"}},
	}, got)

	empty := Summarize("run-6", "/in", "/out", &models.RunTally{})
	assert.NotNil(t, empty.Failures)
}
