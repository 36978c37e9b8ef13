package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/drawingflow/internal/config"
	"github.com/Lllllllleong/drawingflow/internal/gcp"
	"github.com/Lllllllleong/drawingflow/internal/models"
	"github.com/Lllllllleong/drawingflow/internal/runlog"
	"github.com/Lllllllleong/drawingflow/internal/services"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

// newGenerator creates the structured-extraction backend. Tests replace it.
var newGenerator = func(ctx context.Context, cfg config.Config) (services.Generator, func() error, error) {
	if cfg.ProjectID == "" {
		return nil, nil, errors.New("PROJECT_ID must be set to reach Vertex AI")
	}
	client, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.Model)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "drawing-ingest",
		Usage:     "Extract structured JSON from a folder of engineering drawings",
		ArgsUsage: "<input_folder> [output_folder]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"CONFIG_PATH"},
			},
			&cli.StringFlag{
				Name:  "classify-mode",
				Usage: "Discipline classification mode (prefix, path)",
			},
			&cli.StringFlag{
				Name:  "merge-mode",
				Usage: "Room merge mode (permissive, strict)",
			},
			&cli.StringFlag{
				Name:  "floor",
				Usage: "Floor number used in room artifact names",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "track",
				Usage: "Record per-document outcomes in Firestore",
			},
		},
		Action: ingest,
	}
}

func ingest(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: drawing-ingest <input_folder> [output_folder]", 2)
	}
	input := c.Args().Get(0)
	output := c.Args().Get(1)
	if output == "" {
		output = filepath.Join(input, "output")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	files, err := services.DiscoverDrawings(input, output)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	level, err := runlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	rl, err := runlog.Open(output, time.Now(), c.App.ErrWriter, level)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer rl.Close()
	logger := rl.Logger

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	logger.Info("Found drawings.", "runId", runID, "count", len(files), "input", input, "output", output, "logFile", rl.Path)

	gen, closeGen, err := newGenerator(ctx, cfg)
	if err != nil {
		logger.Error("Failed to create extraction client.", "error", err)
		return cli.Exit(err.Error(), 1)
	}
	if closeGen != nil {
		defer closeGen()
	}

	components, err := services.NewComponents(cfg, gen, logger)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	store, closeStore, err := openStore(ctx, cfg, output, runID, logger)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer closeStore()

	var tracker services.Tracker
	if c.Bool("track") {
		fsClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer fsClient.Close()
		tracker = services.NewFirestoreTracker(fsClient, cfg.FirestoreCollection)
	}

	pipeline := components.Pipeline(components.Classifier(input), store)
	agg := services.NewRunAggregator(components.Scheduler(), pipeline, tracker, runID, logger)
	tally, runErr := agg.Run(ctx, files)

	if err := services.WriteSummary(c.App.Writer, tally); err != nil {
		logger.Error("Failed to print summary.", "error", err)
	}

	if cfg.WorkflowID != "" {
		notify(context.WithoutCancel(ctx), cfg, services.Summarize(runID, input, output, tally), logger)
	}

	if runErr != nil {
		return cli.Exit(runErr.Error(), 1)
	}
	return nil
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if v := c.String("classify-mode"); v != "" {
		cfg.ClassifyMode = v
	}
	if v := c.String("merge-mode"); v != "" {
		cfg.MergeMode = v
	}
	if v := c.String("floor"); v != "" {
		cfg.FloorNumber = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, cfg.Validate()
}

// openStore returns the local output store, mirrored to OUTPUT_BUCKET when set.
func openStore(ctx context.Context, cfg config.Config, output, runID string, logger *slog.Logger) (services.Store, func(), error) {
	local := services.NewLocalStore(output)
	if cfg.OutputBucket == "" {
		return local, func() {}, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	store := &services.MultiStore{
		Primary: local,
		Mirrors: []services.Store{services.NewGCSStore(client, cfg.OutputBucket, runID)},
		OnMirrorError: func(location string, err error) {
			logger.Error("Failed to mirror artifact.", "location", location, "error", err)
		},
	}
	return store, func() { _ = client.Close() }, nil
}

func notify(ctx context.Context, cfg config.Config, summary models.RunSummary, logger *slog.Logger) {
	client, err := gcp.NewExecutionsClient(ctx)
	if err != nil {
		logger.Error("Failed to create workflow client.", "error", err)
		return
	}
	defer client.Close()

	target := services.WorkflowTarget{ProjectID: cfg.ProjectID, Location: cfg.WorkflowLocation, WorkflowID: cfg.WorkflowID}
	if _, err := services.NewWorkflowNotifier(client, target, logger).Notify(ctx, summary); err != nil {
		logger.Error("Failed to hand off run summary.", "error", err)
	}
}
