package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/drawingflow/internal/models"
)

// Tracker records per-document outcomes outside the run log.
type Tracker interface {
	Track(ctx context.Context, runID string, o models.ExtractionOutcome) error
}

// FirestoreTracker keeps one models.Document per drawing in a collection.
type FirestoreTracker struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// NewFirestoreTracker returns a tracker writing to collection.
func NewFirestoreTracker(client *firestore.Client, collection string) *FirestoreTracker {
	return &FirestoreTracker{client: client, collection: collection, now: time.Now}
}

// Track overwrites the drawing's document with the outcome of this run.
func (t *FirestoreTracker) Track(ctx context.Context, runID string, o models.ExtractionOutcome) error {
	doc := documentFor(runID, o, t.now())
	if _, err := t.client.Collection(t.collection).Doc(documentID(o.File)).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to write outcome document: %w", err)
	}
	return nil
}

// MarkProcessing records that a drawing has entered the pipeline.
func (t *FirestoreTracker) MarkProcessing(ctx context.Context, runID string, file models.DrawingFile) error {
	doc := models.Document{
		RunID:            runID,
		FileHash:         file.FileHash,
		OriginalFilename: filepath.Base(file.Path),
		RelativePath:     file.RelativePath,
		Discipline:       file.Discipline,
		Status:           models.StatusProcessing,
		CreatedAt:        t.now(),
	}
	if _, err := t.client.Collection(t.collection).Doc(documentID(file)).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to create processing document: %w", err)
	}
	return nil
}

// IsDuplicate reports whether a drawing with fileHash was already processed or
// is in flight. Failed drawings are not duplicates so they can be re-uploaded.
func (t *FirestoreTracker) IsDuplicate(ctx context.Context, fileHash string) (bool, string, error) {
	docs, err := t.client.Collection(t.collection).Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) == 0 {
		return false, "", nil
	}
	var existing models.Document
	if err := docs[0].DataTo(&existing); err != nil {
		return false, "", fmt.Errorf("failed to decode existing document %s: %w", docs[0].Ref.ID, err)
	}
	if existing.Status == models.StatusFailed {
		return false, docs[0].Ref.ID, nil
	}
	return true, docs[0].Ref.ID, nil
}

// documentID is the content hash when known, else a hash of the path, so the
// same drawing maps to the same document across runs.
func documentID(file models.DrawingFile) string {
	if file.FileHash != "" {
		return file.FileHash
	}
	sum := sha256.Sum256([]byte(file.Path))
	return hex.EncodeToString(sum[:])
}

func documentFor(runID string, o models.ExtractionOutcome, now time.Time) models.Document {
	doc := models.Document{
		RunID:            runID,
		FileHash:         o.File.FileHash,
		OriginalFilename: filepath.Base(o.File.Path),
		RelativePath:     o.File.RelativePath,
		Discipline:       o.File.Discipline,
		ErrorKind:        string(o.ErrorKind),
		ErrorDetails:     o.Reason,
		OutputPath:       o.OutputPath,
		CreatedAt:        now,
	}
	switch o.Kind {
	case models.OutcomeSuccess:
		doc.Status = models.StatusSucceeded
	case models.OutcomeParseFailure:
		doc.Status = models.StatusParseFailed
	default:
		doc.Status = models.StatusFailed
	}
	return doc
}
