package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/drawingflow/internal/config"
	"github.com/Lllllllleong/drawingflow/internal/gcp"
	"github.com/Lllllllleong/drawingflow/internal/models"
	"github.com/google/uuid"
)

// GCSEvent is the payload of a storage object finalize event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// DrawingFunction ingests one uploaded drawing per event through the same
// document pipeline as the batch CLI, writing artifacts to the output bucket.
type DrawingFunction struct {
	storageClient *storage.Client
	tracker       *FirestoreTracker
	components    *Components
	outputBucket  string
	logger        *slog.Logger
}

// NewDrawingFunction creates the clients the function needs from cfg.
func NewDrawingFunction(ctx context.Context, cfg config.Config, logger *slog.Logger) (*DrawingFunction, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if cfg.OutputBucket == "" {
		return nil, fmt.Errorf("OUTPUT_BUCKET environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	vertex, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}
	components, err := NewComponents(cfg, vertex, logger)
	if err != nil {
		return nil, err
	}

	f := &DrawingFunction{
		storageClient: storageClient,
		tracker:       NewFirestoreTracker(firestoreClient, cfg.FirestoreCollection),
		components:    components,
		outputBucket:  cfg.OutputBucket,
		logger:        logger,
	}
	logger.Info("Drawing ingest function initialized.", "outputBucket", cfg.OutputBucket, "model", cfg.Model)
	return f, nil
}

// Process handles one finalize event. Non-PDF objects and drawings already
// processed (same content hash) are skipped without error.
func (f *DrawingFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := f.logger.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !isDrawingObject(e.Name) {
		logCtx.Info("Object is not a PDF drawing, skipping.")
		return nil
	}
	logCtx.Info("Processing new GCS object.")

	tempDir, err := os.MkdirTemp("", "drawing-ingest-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	localPath := filepath.Join(tempDir, path.Base(e.Name))
	if err := gcp.DownloadObject(ctx, f.storageClient, e.Bucket, e.Name, localPath); err != nil {
		logCtx.Error("Failed to download drawing", "error", err)
		return err
	}

	fileHash, err := calculateFileHash(localPath)
	if err != nil {
		logCtx.Error("Failed to calculate file hash", "error", err)
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	isDuplicate, docID, err := f.tracker.IsDuplicate(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate drawing detected. Skipping.", "existingDocId", docID)
		return nil
	}

	runID := uuid.NewString()
	classifier := f.components.Classifier("")
	file := models.DrawingFile{Path: localPath, RelativePath: e.Name, FileHash: fileHash}
	file = file.WithDiscipline(classifier.Classify(e.Name))
	logCtx = logCtx.With("runId", runID, "discipline", file.Discipline)

	if err := f.tracker.MarkProcessing(ctx, runID, file); err != nil {
		logCtx.Error("Failed to create Firestore document", "error", err)
		return err
	}

	store := NewGCSStore(f.storageClient, f.outputBucket, outputPrefix(e.Name))
	outcome := f.components.Pipeline(classifier, store).Process(ctx, file)
	if err := f.tracker.Track(context.WithoutCancel(ctx), runID, outcome); err != nil {
		logCtx.Error("CRITICAL: Failed to record drawing outcome.", "error", err)
	}

	switch outcome.Kind {
	case models.OutcomeSuccess:
		logCtx.Info("Drawing ingested.", "output", outcome.OutputPath, "roomTemplates", outcome.RoomTemplates)
	case models.OutcomeParseFailure:
		logCtx.Warn("Drawing response was not valid JSON; raw response kept.", "output", outcome.OutputPath)
	default:
		logCtx.Error("Drawing ingestion failed.", "errorKind", string(outcome.ErrorKind), "reason", outcome.Reason)
		return fmt.Errorf("%s: %s", outcome.ErrorKind, outcome.Reason)
	}
	return nil
}

func isDrawingObject(name string) bool {
	return !strings.HasSuffix(name, "/") && strings.EqualFold(path.Ext(name), ".pdf")
}

// outputPrefix mirrors the uploaded object's folder in the output bucket.
func outputPrefix(name string) string {
	dir := path.Dir(name)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
