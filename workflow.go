package mastra

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// Workflow is a handle on one server-side workflow.
type Workflow struct {
	client *Client
	id     string
}

// WorkflowDetails describes a workflow and its steps.
type WorkflowDetails struct {
	Name  string                     `json:"name"`
	Steps map[string]json.RawMessage `json:"steps"`
}

// Details fetches the workflow's configuration.
func (w *Workflow) Details(ctx context.Context) (*WorkflowDetails, error) {
	var out WorkflowDetails
	if err := w.client.getJSON(ctx, "/api/workflows/"+w.id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WorkflowRun identifies one run of a workflow.
type WorkflowRun struct {
	RunID string `json:"runId"`
}

// CreateRun registers a new run and returns its id.
func (w *Workflow) CreateRun(ctx context.Context) (*WorkflowRun, error) {
	var out WorkflowRun
	if err := w.client.postJSON(ctx, "/api/workflows/"+w.id+"/create-run", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartParams are the inputs to Workflow.Start.
type StartParams struct {
	RunID string `json:"-"`
	Input any    `json:"inputData"`
}

// WorkflowResult is the buffered outcome of a workflow run.
type WorkflowResult struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Start launches a run and waits for its buffered result.
func (w *Workflow) Start(ctx context.Context, params StartParams) (*WorkflowResult, error) {
	query := url.Values{}
	if params.RunID != "" {
		query.Set("runId", params.RunID)
	}
	var out WorkflowResult
	if err := w.client.do(ctx, http.MethodPost, "/api/workflows/"+w.id+"/start", query, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResumeParams are the inputs to Workflow.Resume.
type ResumeParams struct {
	RunID string `json:"-"`
	// Step identifies the suspended step to resume.
	Step       string `json:"step"`
	ResumeData any    `json:"resumeData,omitempty"`
}

// Resume continues a suspended run and waits for its buffered result.
func (w *Workflow) Resume(ctx context.Context, params ResumeParams) (*WorkflowResult, error) {
	query := url.Values{"runId": {params.RunID}}
	var out WorkflowResult
	if err := w.client.do(ctx, http.MethodPost, "/api/workflows/"+w.id+"/resume", query, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Runs lists the workflow's runs.
func (w *Workflow) Runs(ctx context.Context) ([]WorkflowRun, error) {
	var out struct {
		Runs []WorkflowRun `json:"runs"`
	}
	if err := w.client.getJSON(ctx, "/api/workflows/"+w.id+"/runs", nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}
