package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Lllllllleong/drawingflow/internal/models"
)

// RunAggregator drives the scheduler over a run's files and owns the RunTally.
type RunAggregator struct {
	scheduler *Scheduler
	processor Processor
	tracker   Tracker // optional
	runID     string
	logger    *slog.Logger
}

// NewRunAggregator returns an aggregator. tracker may be nil.
func NewRunAggregator(scheduler *Scheduler, processor Processor, tracker Tracker, runID string, logger *slog.Logger) *RunAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunAggregator{
		scheduler: scheduler,
		processor: processor,
		tracker:   tracker,
		runID:     runID,
		logger:    logger.With("runId", runID),
	}
}

// Run processes files and returns the tally. Outcomes are recorded after each
// batch join, batch by batch, so the failure list is in file order. A run with
// no successes is still a result; the error is non-nil only when the run was
// cut short, in which case the tally holds everything computed so far.
func (a *RunAggregator) Run(ctx context.Context, files []models.DrawingFile) (*models.RunTally, error) {
	tally := &models.RunTally{}
	a.logger.Info("Starting run.", "fileCount", len(files))

	// Tracking runs on a context detached from cancellation so outcomes
	// computed before an abort are still recorded.
	trackCtx := context.WithoutCancel(ctx)

	err := a.scheduler.Run(ctx, files, a.processor, func(b BatchResult) {
		successes, failures := 0, 0
		for _, o := range b.Outcomes {
			tally.Record(o)
			a.track(trackCtx, o)
			if o.Succeeded() {
				successes++
				continue
			}
			failures++
			a.logger.Warn("Document failed.",
				"batch", b.Index,
				"file", o.File.Path,
				"outcome", o.Kind.String(),
				"errorKind", string(o.ErrorKind),
				"reason", o.Reason,
			)
		}
		a.logger.Info(fmt.Sprintf("Batch %d of %d complete.", b.Index, b.Total),
			"successes", successes,
			"failures", failures,
		)
	})

	a.report(tally)
	if err != nil {
		a.logger.Error("Run stopped before all files were processed.", "processed", tally.Total(), "fileCount", len(files), "error", err)
		return tally, fmt.Errorf("run %s aborted: %w", a.runID, err)
	}
	return tally, nil
}

func (a *RunAggregator) track(ctx context.Context, o models.ExtractionOutcome) {
	if a.tracker == nil {
		return
	}
	if err := a.tracker.Track(ctx, a.runID, o); err != nil {
		a.logger.Error("Failed to record document outcome.", "file", o.File.Path, "error", err)
	}
}

func (a *RunAggregator) report(tally *models.RunTally) {
	failures := tally.Failures()
	a.logger.Info("Processing complete.",
		"successes", tally.Successes(),
		"failures", len(failures),
		"roomTemplatesCreated", tally.RoomTemplatesCreated(),
	)
	for _, f := range failures {
		a.logger.Warn("Failed document.", "file", f.File, "errorKind", string(f.Kind), "reason", f.Reason)
	}
}

// WriteSummary prints the operator-facing summary of tally to w.
func WriteSummary(w io.Writer, tally *models.RunTally) error {
	failures := tally.Failures()
	if _, err := fmt.Fprintf(w, "Processing complete. Successes: %d, Failures: %d\n", tally.Successes(), len(failures)); err != nil {
		return err
	}
	if tally.RoomTemplatesCreated() {
		if _, err := fmt.Fprintln(w, "Room templates created for floor plans."); err != nil {
			return err
		}
	}
	if len(failures) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Failures:"); err != nil {
		return err
	}
	for _, f := range failures {
		if _, err := fmt.Fprintf(w, "  %s [%s]: %s\n", f.File, f.Kind, f.Reason); err != nil {
			return err
		}
	}
	return nil
}

// Summarize converts tally into the hand-off payload.
func Summarize(runID, inputFolder, outputFolder string, tally *models.RunTally) models.RunSummary {
	summary := models.RunSummary{
		RunID:        runID,
		InputFolder:  inputFolder,
		OutputFolder: outputFolder,
		Successes:    tally.Successes(),
		Failures:     []models.FailureSummary{},
	}
	for _, f := range tally.Failures() {
		summary.Failures = append(summary.Failures, models.FailureSummary{
			File:   f.File,
			Kind:   string(f.Kind),
			Reason: f.Reason,
		})
	}
	return summary
}
