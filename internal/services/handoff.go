package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/drawingflow/internal/models"
)

// WorkflowTarget names the workflow that receives run summaries.
type WorkflowTarget struct {
	ProjectID  string
	Location   string
	WorkflowID string
}

func (t WorkflowTarget) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s/workflows/%s", t.ProjectID, t.Location, t.WorkflowID)
}

// WorkflowNotifier starts one workflow execution per finished run.
type WorkflowNotifier struct {
	client *executions.Client
	target WorkflowTarget
	logger *slog.Logger
}

// NewWorkflowNotifier returns a notifier for target.
func NewWorkflowNotifier(client *executions.Client, target WorkflowTarget, logger *slog.Logger) *WorkflowNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowNotifier{client: client, target: target, logger: logger}
}

// Notify hands summary to the workflow and returns the execution name.
func (n *WorkflowNotifier) Notify(ctx context.Context, summary models.RunSummary) (string, error) {
	req, err := executionRequest(n.target, summary)
	if err != nil {
		return "", err
	}
	exec, err := n.client.CreateExecution(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	n.logger.Info("Triggered workflow.", "runId", summary.RunID, "execution", exec.GetName())
	return exec.GetName(), nil
}

func executionRequest(target WorkflowTarget, summary models.RunSummary) (*executionspb.CreateExecutionRequest, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	return &executionspb.CreateExecutionRequest{
		Parent: target.parent(),
		Execution: &executionspb.Execution{
			Argument: string(payload),
		},
	}, nil
}
