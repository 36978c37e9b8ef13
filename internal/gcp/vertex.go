package gcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/drawingflow/internal/models"
)

// --- Drawing parser prompt ---
const drawingSystemPromptTemplate = `Parse this %s drawing/schedule into a structured JSON format. Guidelines:
1. For text: Extract key information, categorize elements.
2. For tables: Preserve structure, use nested arrays/objects.
3. Create a hierarchical structure, use consistent key names.
4. Include metadata (drawing number, scale, date) if available.
5. %s
Ensure the entire response is a valid JSON object.`

// DrawingSystemPrompt renders the system instruction for one discipline.
func DrawingSystemPrompt(discipline, guidance string) string {
	return fmt.Sprintf(drawingSystemPromptTemplate, discipline, guidance)
}

// ErrEmptyResponse is returned when the model answers without any text part.
var ErrEmptyResponse = errors.New("model returned an empty response")

// VertexClient issues structured-extraction calls against a Gemini model.
// A fresh GenerativeModel is configured per request, so one client is safe
// to share between concurrent documents.
type VertexClient struct {
	modelName  string
	baseClient *genai.Client
}

// NewVertexClient creates a client for the given project, region and model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexClient{modelName: modelName, baseClient: baseClient}, nil
}

// Generate sends the request content under its system instruction and
// returns the text of the first candidate.
func (c *VertexClient) Generate(ctx context.Context, req *models.ExtractionRequest) (string, error) {
	model := c.baseClient.GenerativeModel(c.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.SystemInstruction)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: genai.Ptr(req.MaxOutputTokens),
	}
	if req.RequireJSON {
		model.GenerationConfig.ResponseMIMEType = "application/json"
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Content))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	text := ResponseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// ResponseText concatenates the text parts of the first candidate as the
// model returned them.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

// StripCodeFence removes a leading ```json (or ```) and trailing ``` fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
