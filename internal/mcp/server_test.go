package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/ai-dev-relay/internal/core"
	"github.com/valter-silva-au/ai-dev-relay/internal/observability"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

// --- Test helpers ---

type fixture struct {
	srv     *Server
	ledger  core.TaskLedger
	deps    core.DependencyLedger
	reports storage.ReportStore
	events  observability.EventLog
}

// newFixture wires a server over an initialized three-task workspace.
func newFixture(t *testing.T, withMetrics bool) *fixture {
	t.Helper()
	dir := t.TempDir()

	docs := storage.NewDocumentStore(dir, map[storage.DocumentName]string{
		storage.DocPlan:         "docs/TASKS.md",
		storage.DocProgress:     "docs/PROGRESS.md",
		storage.DocDependencies: "docs/DEPENDENCIES.md",
		storage.DocExecutionLog: "docs/EXECUTION_LOG.md",
	})
	if err := storage.InitializeDocuments(docs, []string{"Setup", "Auth", "API"}, time.Now(), false); err != nil {
		t.Fatalf("initializing documents: %v", err)
	}

	f := &fixture{reports: storage.NewReportStore(filepath.Join(dir, ".relay", "reports"))}
	f.ledger = core.NewTaskLedger(docs)
	progress := core.NewProgressTracker(docs, time.Now)
	f.deps = core.NewDependencyLedger(docs, f.ledger, core.DependencyOptions{Workspace: "."})
	gate := core.NewGateEvaluator(docs, f.ledger, f.deps, f.reports, nil, ".")

	svc := Services{
		Ledger:   f.ledger,
		Progress: progress,
		Deps:     f.deps,
		Gate:     gate,
		Reports:  f.reports,
	}
	if withMetrics {
		events, err := observability.NewJSONLEventLog(filepath.Join(dir, ".relay", "events.jsonl"))
		if err != nil {
			t.Fatalf("creating event log: %v", err)
		}
		t.Cleanup(func() { _ = events.Close() })
		f.events = events
		svc.Metrics = observability.NewMetricsCalculator(events)
	}
	f.srv = NewServer(svc, "test")
	return f
}

// callTool is a helper that connects a client to the server and calls a tool.
func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()

	// Connect server (non-blocking).
	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}

	return result
}

// decode unmarshals the structured content, falling back to the text content.
func decode(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()
	if result.StructuredContent != nil {
		data, _ := json.Marshal(result.StructuredContent)
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("unmarshalling structured content: %v", err)
		}
		return
	}
	text := extractText(result)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		t.Fatalf("unmarshalling text content: %v (text was: %s)", err, text)
	}
}

// --- Tests ---

func TestListTasks(t *testing.T) {
	f := newFixture(t, false)
	if _, err := f.ledger.MarkComplete(1); err != nil {
		t.Fatal(err)
	}

	result := callTool(t, f.srv, "list_tasks", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out listTasksOutput
	decode(t, result, &out)
	if out.Count != 3 {
		t.Errorf("expected 3 tasks, got %d", out.Count)
	}
	if len(out.Tasks) == 3 && (out.Tasks[0].Status != "COMPLETE" || out.Tasks[2].Title != "API") {
		t.Errorf("unexpected tasks: %+v", out.Tasks)
	}

	result = callTool(t, f.srv, "list_tasks", map[string]any{"status": "PENDING"})
	decode(t, result, &out)
	if out.Count != 2 {
		t.Errorf("expected 2 pending tasks, got %d", out.Count)
	}
}

func TestListTasksInvalidStatus(t *testing.T) {
	f := newFixture(t, false)

	result := callTool(t, f.srv, "list_tasks", map[string]any{"status": "done"})
	if !result.IsError {
		t.Fatal("expected error for invalid status")
	}
}

func TestGetTask(t *testing.T) {
	f := newFixture(t, false)
	err := f.deps.RecordExports(models.ExportRecord{TaskID: 2, Workspace: "src/auth", Exports: "- func Login()", Packages: []string{"golang.org/x/crypto"}})
	if err != nil {
		t.Fatal(err)
	}

	result := callTool(t, f.srv, "get_task", map[string]any{"task_id": 2})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out getTaskOutput
	decode(t, result, &out)
	if out.ID != 2 || out.Title != "Auth" || out.Status != "PENDING" {
		t.Errorf("unexpected task %+v", out)
	}
	if out.Workspace != "src/auth" || out.Exports != "- func Login()" || len(out.Packages) != 1 {
		t.Errorf("exports not attached: %+v", out)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	f := newFixture(t, false)

	result := callTool(t, f.srv, "get_task", map[string]any{"task_id": 9})
	if !result.IsError {
		t.Fatal("expected error result for a task outside the plan")
	}
	if !strings.Contains(extractText(result), "not in the plan") {
		t.Errorf("unexpected message %q", extractText(result))
	}
}

func TestEvaluateGate(t *testing.T) {
	f := newFixture(t, false)
	for _, id := range []int{1, 2} {
		if _, err := f.ledger.MarkComplete(id); err != nil {
			t.Fatal(err)
		}
	}

	result := callTool(t, f.srv, "evaluate_gate", map[string]any{"task_id": 2})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out gateOutput
	decode(t, result, &out)
	if out.State != "READY" || out.NextTaskID != 3 || out.NextTaskTitle != "API" {
		t.Errorf("unexpected gate %+v", out)
	}

	result = callTool(t, f.srv, "evaluate_gate", map[string]any{"task_id": 3})
	decode(t, result, &out)
	if out.State != "BLOCKED" || len(out.Reasons) == 0 {
		t.Errorf("task 3 is not complete; want BLOCKED, got %+v", out)
	}
}

func TestEvaluateGateInvalidID(t *testing.T) {
	f := newFixture(t, false)

	result := callTool(t, f.srv, "evaluate_gate", map[string]any{"task_id": 0})
	if !result.IsError {
		t.Fatal("expected error for task id 0")
	}
}

func TestGetComplianceReport(t *testing.T) {
	f := newFixture(t, false)

	result := callTool(t, f.srv, "get_compliance_report", map[string]any{"task_id": 1})
	if !result.IsError || !strings.Contains(extractText(result), "relay check 1") {
		t.Fatalf("missing report should point at the check command, got %q", extractText(result))
	}

	err := f.reports.SaveReport(&models.ComplianceReport{
		TaskID:      1,
		Attempt:     2,
		MaxAttempts: 3,
		State:       models.ComplianceFailed,
		CheckedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Checked:     []string{"src/big.go"},
		Violations: []models.Violation{{
			Path: "src/big.go", Kind: models.ViolationSize, Detail: "612 lines", Lines: 612, Limit: 500, Content: "...",
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	result = callTool(t, f.srv, "get_compliance_report", map[string]any{"task_id": 1})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out reportOutput
	decode(t, result, &out)
	if out.Attempt != 2 || out.State != "FAILED" || out.CheckedAt != "2025-03-01T12:00:00Z" {
		t.Errorf("unexpected report %+v", out)
	}
	if len(out.Violations) != 1 || out.Violations[0].Lines != 612 || out.Violations[0].Kind != "size" {
		t.Errorf("unexpected violations %+v", out.Violations)
	}
}

func TestGetMetrics(t *testing.T) {
	f := newFixture(t, true)
	now := time.Now().UTC()
	for _, e := range []observability.Event{
		{Time: now, Level: "INFO", Type: observability.EventCycleStarted, TaskID: 1},
		{Time: now, Level: "INFO", Type: observability.EventCycleCompleted, TaskID: 1},
	} {
		if err := f.events.Write(e); err != nil {
			t.Fatal(err)
		}
	}
	core.RecordGate(f.events, func() time.Time { return now }, "c1", &models.GateOutcome{State: models.GateReady, CurrentTaskID: 1, NextTaskID: 2})

	result := callTool(t, f.srv, "get_metrics", map[string]any{"since": "24h"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var m metricsOutput
	decode(t, result, &m)
	if m.CyclesStarted != 1 || m.CyclesCompleted != 1 {
		t.Errorf("unexpected cycle counts %+v", m)
	}
	if m.GateOutcomes["READY"] != 1 || m.LastGateTask != 1 || m.LastGateState != "READY" {
		t.Errorf("unexpected gate metrics %+v", m)
	}
	if m.EventCount != 3 {
		t.Errorf("expected 3 events, got %d", m.EventCount)
	}
}

func TestGetMetricsDisabled(t *testing.T) {
	f := newFixture(t, false)

	result := callTool(t, f.srv, "get_metrics", map[string]any{})
	if !result.IsError {
		t.Fatal("expected error when metrics calculator is nil")
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{"7d", now.AddDate(0, 0, -7), false},
		{"24h", now.Add(-24 * time.Hour), false},
		{"", time.Time{}, true},
		{"x", time.Time{}, true},
		{"7x", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSince(tt.input, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSince(%q) error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseSince(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// extractText extracts the text from the first TextContent in a CallToolResult.
func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
