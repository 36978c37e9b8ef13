package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/drawingflow/internal/models"
	"golang.org/x/sync/errgroup"
)

// Processor turns one drawing into exactly one outcome. It must not panic and
// must not return early on failure; failures are data.
type Processor interface {
	Process(ctx context.Context, file models.DrawingFile) models.ExtractionOutcome
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, file models.DrawingFile) models.ExtractionOutcome

func (f ProcessorFunc) Process(ctx context.Context, file models.DrawingFile) models.ExtractionOutcome {
	return f(ctx, file)
}

// BatchResult is delivered once per batch after all of its files have finished.
// Outcomes are in the batch's file order.
type BatchResult struct {
	Index    int // 1-based
	Total    int
	Outcomes []models.ExtractionOutcome
}

// Scheduler processes files in fixed-size concurrent batches while holding call
// issuance to RateLimit dispatches per Window across the whole file list.
type Scheduler struct {
	BatchSize int
	RateLimit int
	Window    time.Duration

	clock  Clock
	logger *slog.Logger
}

// NewScheduler returns a Scheduler. A nil clock uses wall time; a nil logger uses slog.Default().
func NewScheduler(batchSize, rateLimit int, window time.Duration, clock Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		BatchSize: batchSize,
		RateLimit: rateLimit,
		Window:    window,
		clock:     clock,
		logger:    logger,
	}
}

// Run processes files and calls onBatch, in batch order, after each batch join.
// A cancelled ctx stops the run between batches or during a throttle sleep; the
// outcomes already gathered for a partially dispatched batch are still delivered
// and ctx's error is returned.
func (s *Scheduler) Run(ctx context.Context, files []models.DrawingFile, proc Processor, onBatch func(BatchResult)) error {
	if s.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive, got %d", s.BatchSize)
	}
	if s.RateLimit < 1 {
		return fmt.Errorf("rate limit must be positive, got %d", s.RateLimit)
	}

	totalBatches := (len(files) + s.BatchSize - 1) / s.BatchSize
	windowStart := s.clock.Now()

	for batch := 0; batch < totalBatches; batch++ {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("Run cancelled between batches.", "completedBatches", batch, "totalBatches", totalBatches)
			return err
		}

		start := batch * s.BatchSize
		end := min(start+s.BatchSize, len(files))
		members := files[start:end]
		s.logger.Info(fmt.Sprintf("Processing batch %d of %d", batch+1, totalBatches), "files", len(members))

		outcomes := make([]models.ExtractionOutcome, len(members))
		var g errgroup.Group
		var throttleErr error
		dispatched := 0
		for i, file := range members {
			index := start + i
			if index > 0 && index%s.RateLimit == 0 {
				windowStart, throttleErr = s.throttle(ctx, windowStart, index)
				if throttleErr != nil {
					break
				}
			}
			dispatched++
			g.Go(func() error {
				outcomes[i] = proc.Process(ctx, file)
				return nil
			})
		}
		_ = g.Wait()

		if onBatch != nil {
			onBatch(BatchResult{Index: batch + 1, Total: totalBatches, Outcomes: outcomes[:dispatched]})
		}
		if throttleErr != nil {
			s.logger.Warn("Run cancelled during rate-limit wait.", "batch", batch+1, "dispatched", dispatched)
			return throttleErr
		}
	}
	return nil
}

// throttle sleeps out the rest of the current window if it has not elapsed and
// returns the start of the next window.
func (s *Scheduler) throttle(ctx context.Context, windowStart time.Time, index int) (time.Time, error) {
	elapsed := s.clock.Now().Sub(windowStart)
	if elapsed < s.Window {
		wait := s.Window - elapsed
		s.logger.Info("Rate limit window budget reached, waiting.", "nextFile", index+1, "wait", wait.String())
		if err := s.clock.Sleep(ctx, wait); err != nil {
			return windowStart, err
		}
	}
	return s.clock.Now(), nil
}
