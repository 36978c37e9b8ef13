package services

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/Lllllllleong/drawingflow/internal/config"
	"github.com/Lllllllleong/drawingflow/internal/discipline"
	"github.com/Lllllllleong/drawingflow/internal/extract"
)

// Components are the long-lived parts shared by every pipeline of a process.
type Components struct {
	Config    config.Config
	Table     *discipline.Table
	Extractor extract.Extractor
	Client    *ExtractionClient
	Rooms     *RoomsEngine
	Logger    *slog.Logger
}

// NewComponents builds the shared components from cfg around gen.
func NewComponents(cfg config.Config, gen Generator, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	table, err := discipline.Load(cfg.DisciplinesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load discipline table: %w", err)
	}

	var templates fs.FS
	if cfg.TemplatesDir != "" {
		templates = os.DirFS(cfg.TemplatesDir)
	}

	return &Components{
		Config:    cfg,
		Table:     table,
		Extractor: extract.NewPDFExtractor(),
		Client:    NewExtractionClient(gen, RetryPolicyFromConfig(cfg), WithClientLogger(logger)),
		Rooms:     NewRoomsEngine(templates, cfg.MergeMode, cfg.FloorNumber, logger),
		Logger:    logger,
	}, nil
}

// RetryPolicyFromConfig maps the retry settings of cfg onto a RetryPolicy.
func RetryPolicyFromConfig(cfg config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff(),
		MaxBackoff:     cfg.MaxBackoff(),
		MaxJitter:      time.Second,
		RetryDelay:     cfg.RetryDelay(),
		CallTimeout:    cfg.CallTimeout(),
	}
}

// Classifier returns the configured classifier for a job rooted at root.
func (c *Components) Classifier(root string) discipline.Classifier {
	return discipline.New(c.Config.ClassifyMode, c.Table, root, c.Logger)
}

// Pipeline returns a document pipeline writing to store.
func (c *Components) Pipeline(classifier discipline.Classifier, store Store) *DocumentPipeline {
	return NewDocumentPipeline(PipelineDeps{
		Classifier: classifier,
		Table:      c.Table,
		Extractor:  c.Extractor,
		Caller:     c.Client,
		Store:      store,
		Rooms:      c.Rooms,
		Params: ModelParams{
			Temperature:     c.Config.Temperature,
			MaxOutputTokens: c.Config.MaxOutputTokens,
		},
		Logger: c.Logger,
	})
}

// Scheduler returns a scheduler using the configured batch and rate settings.
func (c *Components) Scheduler() *Scheduler {
	return NewScheduler(c.Config.BatchSize, c.Config.RateLimit, c.Config.RateWindow(), nil, c.Logger)
}
