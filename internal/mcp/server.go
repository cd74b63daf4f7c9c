// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the task ledger, gate and compliance reports to the external agent.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/ai-dev-relay/internal/core"
	"github.com/valter-silva-au/ai-dev-relay/internal/observability"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

// Services are the components the server reads from. Metrics may be nil if
// no event log is configured.
type Services struct {
	Ledger   core.TaskLedger
	Progress core.ProgressTracker
	Deps     core.DependencyLedger
	Gate     core.GateEvaluator
	Reports  storage.ReportStore
	Metrics  observability.MetricsCalculator
}

// Server wraps relay services and exposes them as MCP tools. Every tool is
// read-only; documents change only through a state-update cycle.
type Server struct {
	server *gomcp.Server
	svc    Services
}

// NewServer creates a new MCP server over svc.
func NewServer(svc Services, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{svc: svc}
	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "relay", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client
// disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type taskIDInput struct {
	TaskID int `json:"task_id" jsonschema:"the numeric task id from a '## Task <N>: <Title>' plan header"`
}

type listTasksInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter tasks by status (PENDING or COMPLETE)"`
}

type taskOutput struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Recorded bool   `json:"progress_recorded"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type getTaskOutput struct {
	ID        int      `json:"id"`
	Title     string   `json:"title"`
	Status    string   `json:"status"`
	Recorded  bool     `json:"progress_recorded"`
	Workspace string   `json:"workspace,omitempty"`
	Exports   string   `json:"exports,omitempty"`
	Packages  []string `json:"packages,omitempty"`
}

type gateOutput struct {
	State            string   `json:"state"`
	CurrentTaskID    int      `json:"current_task_id"`
	NextTaskID       int      `json:"next_task_id,omitempty"`
	NextTaskTitle    string   `json:"next_task_title,omitempty"`
	TotalTasks       int      `json:"total_tasks"`
	CompletedTasks   int      `json:"completed_tasks"`
	Reasons          []string `json:"reasons,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	AvailableImports string   `json:"available_imports,omitempty"`
}

type violationOutput struct {
	Path   string `json:"path"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
	Lines  int    `json:"lines,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type reportOutput struct {
	TaskID      int               `json:"task_id"`
	Attempt     int               `json:"attempt"`
	MaxAttempts int               `json:"max_attempts"`
	State       string            `json:"state"`
	CheckedAt   string            `json:"checked_at"`
	Checked     []string          `json:"checked"`
	Violations  []violationOutput `json:"violations"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	CyclesStarted    int            `json:"cycles_started"`
	CyclesCompleted  int            `json:"cycles_completed"`
	CyclesFailed     int            `json:"cycles_failed"`
	FailuresByKind   map[string]int `json:"failures_by_kind"`
	CompliancePassed int            `json:"compliance_passed"`
	ComplianceFailed int            `json:"compliance_failed"`
	GateOutcomes     map[string]int `json:"gate_outcomes"`
	LastGateTask     int            `json:"last_gate_task,omitempty"`
	LastGateState    string         `json:"last_gate_state,omitempty"`
	EventCount       int            `json:"event_count"`
	OldestEvent      string         `json:"oldest_event,omitempty"`
	NewestEvent      string         `json:"newest_event,omitempty"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List the tasks in the plan with an optional status filter (PENDING or COMPLETE).",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get one task by numeric id, including the exports it recorded in the dependency document.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "evaluate_gate",
		Description: "Evaluate the deployment gate after a task. Returns READY with the next task and its available imports, ALL_COMPLETE, or BLOCKED with reasons.",
	}, s.handleEvaluateGate)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_compliance_report",
		Description: "Get the last file-compliance report for a task: attempt number, state and every violation.",
	}, s.handleGetComplianceReport)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated cycle, compliance and gate metrics from the event log.",
	}, s.handleGetMetrics)
}

// --- Tool handlers ---

func (s *Server) handleListTasks(_ context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	if input.Status != "" && input.Status != string(models.StatusPending) && input.Status != string(models.StatusComplete) {
		return errorResult(fmt.Sprintf("invalid status %q: must be PENDING or COMPLETE", input.Status)), listTasksOutput{}, nil
	}

	tasks, err := s.svc.Ledger.Tasks()
	if err != nil {
		return errorResult(fmt.Sprintf("listing tasks: %s", err)), listTasksOutput{}, nil
	}

	out := listTasksOutput{Tasks: []taskOutput{}}
	for _, t := range tasks {
		if input.Status != "" && string(t.Status) != input.Status {
			continue
		}
		to, err := s.taskToOutput(t)
		if err != nil {
			return errorResult(fmt.Sprintf("listing tasks: %s", err)), listTasksOutput{}, nil
		}
		out.Tasks = append(out.Tasks, to)
	}
	out.Count = len(out.Tasks)

	return nil, out, nil
}

func (s *Server) handleGetTask(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, getTaskOutput, error) {
	if input.TaskID <= 0 {
		return errorResult("task_id must be a positive integer"), getTaskOutput{}, nil
	}

	tasks, err := s.svc.Ledger.Tasks()
	if err != nil {
		return errorResult(fmt.Sprintf("getting task %d: %s", input.TaskID, err)), getTaskOutput{}, nil
	}
	var task *models.Task
	for i := range tasks {
		if tasks[i].ID == input.TaskID {
			task = &tasks[i]
			break
		}
	}
	if task == nil {
		return errorResult(fmt.Sprintf("task %d is not in the plan", input.TaskID)), getTaskOutput{}, nil
	}

	to, err := s.taskToOutput(*task)
	if err != nil {
		return errorResult(fmt.Sprintf("getting task %d: %s", input.TaskID, err)), getTaskOutput{}, nil
	}
	out := getTaskOutput{ID: to.ID, Title: to.Title, Status: to.Status, Recorded: to.Recorded}

	records, err := s.svc.Deps.Exports()
	if err != nil {
		return errorResult(fmt.Sprintf("reading exports for task %d: %s", input.TaskID, err)), getTaskOutput{}, nil
	}
	// A repeated cycle leaves several subsections; the last one is current.
	for _, r := range records {
		if r.TaskID == input.TaskID {
			out.Workspace = r.Workspace
			out.Exports = r.Exports
			out.Packages = r.Packages
		}
	}

	return nil, out, nil
}

func (s *Server) handleEvaluateGate(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, gateOutput, error) {
	outcome, err := s.svc.Gate.Evaluate(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating gate after task %d: %s", input.TaskID, err)), gateOutput{}, nil
	}

	out := gateOutput{
		State:            string(outcome.State),
		CurrentTaskID:    outcome.CurrentTaskID,
		NextTaskID:       outcome.NextTaskID,
		NextTaskTitle:    outcome.NextTaskTitle,
		TotalTasks:       outcome.TotalTasks,
		CompletedTasks:   outcome.CompletedTasks,
		Reasons:          outcome.Reasons,
		Warnings:         outcome.Warnings,
		AvailableImports: outcome.AvailableImports,
	}
	return nil, out, nil
}

func (s *Server) handleGetComplianceReport(_ context.Context, _ *gomcp.CallToolRequest, input taskIDInput) (*gomcp.CallToolResult, reportOutput, error) {
	if input.TaskID <= 0 {
		return errorResult("task_id must be a positive integer"), reportOutput{}, nil
	}

	report, err := s.svc.Reports.LoadReport(input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("loading compliance report for task %d: %s", input.TaskID, err)), reportOutput{}, nil
	}
	if report == nil {
		return errorResult(fmt.Sprintf("no compliance report for task %d; run 'relay check %d --output <file>'", input.TaskID, input.TaskID)), reportOutput{}, nil
	}

	out := reportOutput{
		TaskID:      report.TaskID,
		Attempt:     report.Attempt,
		MaxAttempts: report.MaxAttempts,
		State:       string(report.State),
		CheckedAt:   report.CheckedAt.Format(time.RFC3339),
		Checked:     report.Checked,
		Violations:  make([]violationOutput, len(report.Violations)),
	}
	for i, v := range report.Violations {
		out.Violations[i] = violationOutput{
			Path:   v.Path,
			Kind:   string(v.Kind),
			Detail: v.Detail,
			Lines:  v.Lines,
			Limit:  v.Limit,
		}
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.svc.Metrics == nil {
		return errorResult("metrics calculator not available (no event log configured)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := ParseSince(sinceStr, time.Now())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.svc.Metrics.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		CyclesStarted:    metrics.CyclesStarted,
		CyclesCompleted:  metrics.CyclesCompleted,
		CyclesFailed:     metrics.CyclesFailed,
		FailuresByKind:   metrics.FailuresByKind,
		CompliancePassed: metrics.CompliancePassed,
		ComplianceFailed: metrics.ComplianceFailed,
		GateOutcomes:     metrics.GateOutcomes,
		EventCount:       metrics.EventCount,
	}
	if metrics.LastGate != nil {
		out.LastGateTask = metrics.LastGate.TaskID
		out.LastGateState = metrics.LastGate.State
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

// --- Helpers ---

func (s *Server) taskToOutput(t models.Task) (taskOutput, error) {
	out := taskOutput{ID: t.ID, Title: t.Title, Status: string(t.Status)}
	if s.svc.Progress != nil {
		recorded, err := s.svc.Progress.HasCompletion(t.ID)
		if err != nil {
			return taskOutput{}, err
		}
		out.Recorded = recorded
	}
	return out, nil
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		FailuresByKind: make(map[string]int),
		GateOutcomes:   make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// ParseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time before now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	now = now.UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
