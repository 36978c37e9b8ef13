package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Lllllllleong/drawingflow/internal/discipline"
	"github.com/Lllllllleong/drawingflow/internal/extract"
	"github.com/Lllllllleong/drawingflow/internal/gcp"
	"github.com/Lllllllleong/drawingflow/internal/models"
)

// ErrNotJSONObject is returned by parseObject for valid JSON that is not an object.
var ErrNotJSONObject = errors.New("response is not a JSON object")

// ModelParams are the generation settings sent with every request.
type ModelParams struct {
	Temperature     float32
	MaxOutputTokens int32
}

// PipelineDeps are the collaborators of a DocumentPipeline.
type PipelineDeps struct {
	Classifier discipline.Classifier
	Table      *discipline.Table
	Extractor  extract.Extractor
	Caller     Caller
	Store      Store
	Rooms      *RoomsEngine // nil disables room artifacts
	Params     ModelParams
	Logger     *slog.Logger
}

// DocumentPipeline runs one drawing through extraction, parsing and persistence.
type DocumentPipeline struct {
	deps   PipelineDeps
	logger *slog.Logger
}

// NewDocumentPipeline returns a pipeline over deps.
func NewDocumentPipeline(deps PipelineDeps) *DocumentPipeline {
	if deps.Table == nil {
		deps.Table = discipline.Default()
	}
	if deps.Classifier == nil {
		deps.Classifier = discipline.NewPrefixClassifier(deps.Table)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentPipeline{deps: deps, logger: logger}
}

// BuildRequest assembles the extraction request for content of the given discipline.
func (p *DocumentPipeline) BuildRequest(disc, content string) *models.ExtractionRequest {
	return &models.ExtractionRequest{
		Discipline:        disc,
		SystemInstruction: gcp.DrawingSystemPrompt(disc, p.deps.Table.Guidance(disc)),
		Content:           content,
		Temperature:       p.deps.Params.Temperature,
		MaxOutputTokens:   p.deps.Params.MaxOutputTokens,
		RequireJSON:       true,
	}
}

// Process produces exactly one outcome for file. Failures of any stage are
// returned as data and never escape as errors or panics.
func (p *DocumentPipeline) Process(ctx context.Context, file models.DrawingFile) (out models.ExtractionOutcome) {
	logger := p.logger.With("file", file.Path)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Unexpected failure while processing document.", "panic", r)
			out = models.CallFailure(file, models.ErrUnexpected, fmt.Errorf("unexpected failure: %v", r))
		}
	}()

	if file.Discipline == "" {
		file = file.WithDiscipline(p.deps.Classifier.Classify(file.Path))
	}
	logger = logger.With("discipline", file.Discipline)
	logger.Info("Processing document.")

	content, err := p.deps.Extractor.Extract(ctx, file.Path)
	if err != nil {
		logger.Error("Failed to extract document content.", "error", err)
		return models.CallFailure(file, models.ErrContentExtractionFailed, fmt.Errorf("failed to extract content: %w", err))
	}

	text, err := p.deps.Caller.Call(ctx, p.BuildRequest(file.Discipline, content))
	if err != nil {
		logger.Error("Extraction call failed.", "error", err)
		return models.CallFailure(file, models.ErrExtractionCallFailed, err)
	}

	folder := file.Discipline
	parsed, parseErr := parseObject(text)
	if parseErr != nil {
		rel := folder + "/" + file.Basename() + "_raw_response.json"
		if err := p.deps.Store.Put(ctx, rel, []byte(text)); err != nil {
			logger.Error("Failed to save raw response.", "error", err)
			return models.CallFailure(file, models.ErrOutputWriteFailed, err)
		}
		loc := p.deps.Store.Location(rel)
		logger.Warn("Response was not valid JSON, raw response saved.", "path", loc, "error", parseErr)
		return models.ParseFailure(file, text, loc, parseErr)
	}

	data, err := encodeJSON(parsed)
	if err != nil {
		return models.CallFailure(file, models.ErrOutputWriteFailed, fmt.Errorf("failed to encode structured JSON: %w", err))
	}
	rel := folder + "/" + file.Basename() + "_structured.json"
	if err := p.deps.Store.Put(ctx, rel, data); err != nil {
		logger.Error("Failed to save structured JSON.", "error", err)
		return models.CallFailure(file, models.ErrOutputWriteFailed, err)
	}
	out = models.Success(file, parsed, p.deps.Store.Location(rel))
	logger.Info("Saved structured JSON.", "path", out.OutputPath)

	if file.Discipline == discipline.Architectural && p.deps.Rooms != nil {
		if _, err := p.deps.Rooms.WriteArtifacts(ctx, p.deps.Store, folder, file, parsed); err != nil {
			logger.Error("Failed to write room artifacts.", "error", err)
			return models.CallFailure(file, models.ErrOutputWriteFailed, err)
		}
		out.RoomTemplates = true
	}
	return out
}

// parseObject decodes exactly one JSON object from text, ignoring a
// surrounding markdown code fence. Numbers are kept as json.Number so
// re-encoding does not alter them.
func parseObject(text string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(gcp.StripCodeFence(text))))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level JSON value")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotJSONObject
	}
	return obj, nil
}

// encodeJSON renders v with a 2-space indent and without HTML escaping.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
