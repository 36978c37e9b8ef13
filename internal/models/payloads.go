package models

// These structs define the payloads that cross a process boundary: the
// extraction request handed to the model and the run summary handed to the
// downstream workflow.

// ExtractionRequest is built per file and discarded once the call returns.
type ExtractionRequest struct {
	Discipline        string
	SystemInstruction string
	Content           string
	Temperature       float32
	MaxOutputTokens   int32
	RequireJSON       bool
}

// RunSummary is the argument passed to the hand-off workflow after a run.
type RunSummary struct {
	RunID        string           `json:"runId"`
	InputFolder  string           `json:"inputFolder"`
	OutputFolder string           `json:"outputFolder"`
	Successes    int              `json:"successes"`
	Failures     []FailureSummary `json:"failures"`
}

// FailureSummary is the JSON form of a single failed document.
type FailureSummary struct {
	File   string `json:"file"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}
