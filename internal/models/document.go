package models

import (
	"path/filepath"
	"strings"
	"time"
)

// Document is the Firestore record kept for every drawing that passes through the pipeline.
// It tracks the outcome of the most recent run that touched the file.
type Document struct {
	RunID            string    `firestore:"runId,omitempty"`
	FileHash         string    `firestore:"fileHash,omitempty"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	RelativePath     string    `firestore:"relativePath,omitempty"`
	Discipline       string    `firestore:"discipline,omitempty"`
	Status           string    `firestore:"status,omitempty"`
	ErrorKind        string    `firestore:"errorKind,omitempty"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty"`
	OutputPath       string    `firestore:"outputPath,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
}

// Firestore document statuses.
const (
	StatusProcessing  = "PROCESSING"
	StatusSucceeded   = "SUCCEEDED"
	StatusParseFailed = "PARSE_FAILED"
	StatusFailed      = "FAILED"
)

// DrawingFile is a single drawing discovered under the job folder.
// It is created at walk time and never modified afterwards.
type DrawingFile struct {
	Path         string // absolute path on disk
	RelativePath string // path relative to the job root
	Discipline   string // empty until classified
	FileHash     string // sha256 of the content, when known
}

// Basename returns the file name without its directory or extension.
func (f DrawingFile) Basename() string {
	name := filepath.Base(f.Path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// WithDiscipline returns a copy of f tagged with the given discipline.
func (f DrawingFile) WithDiscipline(discipline string) DrawingFile {
	f.Discipline = discipline
	return f
}
