package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/ai-dev-relay/internal/core"
	"github.com/valter-silva-au/ai-dev-relay/internal/observability"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
)

// wireWorkspace points every package-level service at a fresh workspace
// under t.TempDir and restores the previous values when the test ends.
// With titles set the workflow documents are initialized.
func wireWorkspace(t *testing.T, maxAttempts int, titles ...string) string {
	t.Helper()
	origBase, origConfig, origDocs, origBackups, origReports, origExecLog := BasePath, Config, Docs, Backups, Reports, ExecLog
	origLedger, origProgress, origDeps, origCompliance, origGate, origCycle := Ledger, Progress, Deps, Compliance, Gate, Cycle
	origEvents, origMetrics := EventLog, MetricsCalc
	t.Cleanup(func() {
		BasePath, Config, Docs, Backups, Reports, ExecLog = origBase, origConfig, origDocs, origBackups, origReports, origExecLog
		Ledger, Progress, Deps, Compliance, Gate, Cycle = origLedger, origProgress, origDeps, origCompliance, origGate, origCycle
		EventLog, MetricsCalc = origEvents, origMetrics
	})

	dir := t.TempDir()
	cfg := core.DefaultConfig()
	cfg.Compliance.MaxAttempts = maxAttempts

	BasePath = dir
	Config = cfg
	Docs = storage.NewDocumentStore(dir, map[storage.DocumentName]string{
		storage.DocPlan:         cfg.Documents.Plan,
		storage.DocProgress:     cfg.Documents.Progress,
		storage.DocDependencies: cfg.Documents.Dependencies,
		storage.DocExecutionLog: cfg.Documents.ExecutionLog,
	})
	Backups = storage.NewBackupManager(filepath.Join(dir, cfg.Backups.Dir), Docs)
	Reports = storage.NewReportStore(filepath.Join(dir, cfg.Reports.Dir))

	var err error
	ExecLog, err = storage.NewExecutionLog(Docs.Path(storage.DocExecutionLog))
	if err != nil {
		t.Fatalf("creating execution log: %v", err)
	}
	events, err := observability.NewJSONLEventLog(filepath.Join(dir, cfg.Events.Path))
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	t.Cleanup(func() { _ = events.Close() })
	EventLog = events
	MetricsCalc = observability.NewMetricsCalculator(events)

	Ledger = core.NewTaskLedger(Docs)
	Progress = core.NewProgressTracker(Docs, time.Now)
	Deps = core.NewDependencyLedger(Docs, Ledger, core.DependencyOptions{Workspace: ".", Now: time.Now})
	checker := core.NewComplianceChecker(storage.NewWorkspace(dir), core.ComplianceRules{
		MaxLines:     cfg.Compliance.MaxLines,
		AllowedRoots: cfg.Compliance.AllowedRoots,
	}, time.Now)
	Compliance = core.NewComplianceGate(checker, Reports, EventLog, maxAttempts, time.Now)
	Gate = core.NewGateEvaluator(Docs, Ledger, Deps, Reports, nil, ".")
	Cycle = core.NewCycle(core.CycleDeps{
		Docs:       Docs,
		Backups:    Backups,
		ExecLog:    ExecLog,
		Events:     EventLog,
		Ledger:     Ledger,
		Progress:   Progress,
		Deps:       Deps,
		Compliance: Compliance,
		Gate:       Gate,
	})

	if len(titles) > 0 {
		if err := storage.InitializeDocuments(Docs, titles, time.Now(), false); err != nil {
			t.Fatalf("initializing documents: %v", err)
		}
	}
	return dir
}

// writeFile writes content under dir, creating parent directories.
func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// lines returns n newline-terminated lines.
func lines(n int) string {
	var b bytes.Buffer
	for i := 0; i < n; i++ {
		b.WriteString("x\n")
	}
	return b.String()
}

// run executes cmd's RunE with its output captured.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	t.Cleanup(func() {
		cmd.SetOut(nil)
		cmd.SetErr(nil)
	})
	err := cmd.RunE(cmd, args)
	return out.String(), err
}
