package models

import (
	"fmt"
	"sync"
)

// ErrorKind names the failure taxonomy shared by the pipeline components.
type ErrorKind string

const (
	ErrClassificationAmbiguous  ErrorKind = "ClassificationAmbiguous"
	ErrContentExtractionFailed  ErrorKind = "ContentExtractionFailed"
	ErrExtractionCallFailed     ErrorKind = "ExtractionCallFailed"
	ErrResponseNotValidJSON     ErrorKind = "ResponseNotValidJSON"
	ErrTemplateMissingOrInvalid ErrorKind = "TemplateMissingOrInvalid"
	ErrOutputWriteFailed        ErrorKind = "OutputWriteFailed"
	ErrUnexpected               ErrorKind = "UnexpectedFailure"
)

// OutcomeKind discriminates ExtractionOutcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeParseFailure
	OutcomeCallFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "Success"
	case OutcomeParseFailure:
		return "ParseFailure"
	case OutcomeCallFailure:
		return "CallFailure"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// ExtractionOutcome is the single result produced for every DrawingFile.
// Exactly one of Parsed (Success), RawText (ParseFailure) or ErrorKind/Reason
// (CallFailure) is meaningful, according to Kind.
type ExtractionOutcome struct {
	Kind       OutcomeKind
	File       DrawingFile
	Parsed     map[string]any
	RawText    string
	ErrorKind  ErrorKind
	Reason     string
	OutputPath string
	// RoomTemplates is set when room artifacts were written for the document.
	RoomTemplates bool
}

// Succeeded reports whether the outcome is a Success.
func (o ExtractionOutcome) Succeeded() bool { return o.Kind == OutcomeSuccess }

// Success builds a Success outcome.
func Success(file DrawingFile, parsed map[string]any, outputPath string) ExtractionOutcome {
	return ExtractionOutcome{Kind: OutcomeSuccess, File: file, Parsed: parsed, OutputPath: outputPath}
}

// ParseFailure builds a ParseFailure outcome carrying the raw model text.
func ParseFailure(file DrawingFile, raw, outputPath string, cause error) ExtractionOutcome {
	reason := "Failed to parse JSON"
	if cause != nil {
		reason = fmt.Sprintf("Failed to parse JSON: %v", cause)
	}
	return ExtractionOutcome{
		Kind:       OutcomeParseFailure,
		File:       file,
		RawText:    raw,
		ErrorKind:  ErrResponseNotValidJSON,
		Reason:     reason,
		OutputPath: outputPath,
	}
}

// CallFailure builds a CallFailure outcome.
func CallFailure(file DrawingFile, kind ErrorKind, err error) ExtractionOutcome {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return ExtractionOutcome{Kind: OutcomeCallFailure, File: file, ErrorKind: kind, Reason: reason}
}

// Failure is one itemized entry in the run tally.
type Failure struct {
	File   string
	Kind   ErrorKind
	Reason string
}

// RunTally accumulates outcomes monotonically across all batches.
type RunTally struct {
	mu                   sync.Mutex
	successes            int
	failures             []Failure
	roomTemplatesCreated bool
}

// Record adds one outcome to the tally.
func (t *RunTally) Record(o ExtractionOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if o.RoomTemplates {
		t.roomTemplatesCreated = true
	}
	if o.Succeeded() {
		t.successes++
		return
	}
	t.failures = append(t.failures, Failure{File: o.File.Path, Kind: o.ErrorKind, Reason: o.Reason})
}

// Successes returns the number of successful documents recorded so far.
func (t *RunTally) Successes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.successes
}

// Failures returns a copy of the failures in the order they were recorded.
func (t *RunTally) Failures() []Failure {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Failure, len(t.failures))
	copy(out, t.failures)
	return out
}

// Total returns the number of outcomes recorded.
func (t *RunTally) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.successes + len(t.failures)
}

// RoomTemplatesCreated reports whether any document produced room artifacts.
func (t *RunTally) RoomTemplatesCreated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roomTemplatesCreated
}
