package core

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/valter-silva-au/ai-dev-relay/internal/markdown"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

// blockingMarkerPattern matches the explicit forms of a blocking tag: a
// bracketed tag, a tag leading the line after an optional list bullet, or a
// Status field carrying the tag. A tag mentioned mid-sentence is prose.
var blockingMarkerPattern = regexp.MustCompile(
	`\[(INCOMPLETE|FAILED)\]|^\s*(?:[-*]\s+)?(INCOMPLETE|FAILED)\b|\bStatus\b[*:\s]*(INCOMPLETE|FAILED)\b`)

// GateInput is everything the gate decision depends on.
type GateInput struct {
	CurrentTaskID    int
	Tasks            []models.Task
	ProgressText     string
	DependenciesText string
	KnownIssues      []string
	Report           *models.ComplianceReport
	// MissingManifest names the ecosystem whose required manifest is absent.
	MissingManifest *Ecosystem
	Exports         []models.ExportRecord
}

// Decide computes the gate outcome. It is pure: the same input always yields
// the same outcome. BLOCKED takes precedence over ALL_COMPLETE, which takes
// precedence over READY.
func Decide(in GateInput) models.GateOutcome {
	out := models.GateOutcome{
		CurrentTaskID: in.CurrentTaskID,
		TotalTasks:    len(in.Tasks),
	}

	var current *models.Task
	nextID := 0
	nextTitle := ""
	for i := range in.Tasks {
		t := in.Tasks[i]
		if t.ID <= in.CurrentTaskID && t.IsComplete() {
			out.CompletedTasks++
		}
		if t.ID < in.CurrentTaskID && !t.IsComplete() {
			out.Warnings = append(out.Warnings, fmt.Sprintf("task %d precedes task %d but is not marked COMPLETE", t.ID, in.CurrentTaskID))
		}
		if t.ID == in.CurrentTaskID {
			current = &in.Tasks[i]
		}
		if t.ID > in.CurrentTaskID && (nextID == 0 || t.ID < nextID) {
			nextID = t.ID
			nextTitle = t.Title
		}
	}

	var reasons []string
	switch {
	case current == nil:
		reasons = append(reasons, fmt.Sprintf("task %d is not in the plan", in.CurrentTaskID))
	case !current.IsComplete():
		reasons = append(reasons, fmt.Sprintf("task %d is not marked COMPLETE in the plan", in.CurrentTaskID))
	}
	reasons = append(reasons, markerReasons("progress", in.ProgressText)...)
	reasons = append(reasons, markerReasons("dependency", in.DependenciesText)...)
	for _, issue := range in.KnownIssues {
		reasons = append(reasons, "known issue: "+issue)
	}
	if in.Report != nil && len(in.Report.Violations) > 0 {
		reasons = append(reasons, fmt.Sprintf("compliance report for task %d has %d violation(s) (attempt %s)",
			in.Report.TaskID, len(in.Report.Violations), attemptLabel(in.Report.Attempt, in.Report.MaxAttempts)))
	}
	if in.MissingManifest != nil {
		reasons = append(reasons, fmt.Sprintf("required %s manifest missing: expected one of %s",
			in.MissingManifest.Name, strings.Join(in.MissingManifest.Manifests, ", ")))
	}

	switch {
	case len(reasons) > 0:
		out.State = models.GateBlocked
		out.Reasons = reasons
	case nextID == 0:
		out.State = models.GateAllComplete
	default:
		out.State = models.GateReady
		out.NextTaskID = nextID
		out.NextTaskTitle = nextTitle
		out.AvailableImports = RenderAvailableImports(in.Exports)
	}
	return out
}

// markerReasons returns one reason per line carrying a blocking tag. Fenced
// blocks and "### Agent N Exports" bodies hold agent-written code and are not
// scanned.
func markerReasons(doc, text string) []string {
	var reasons []string
	inFence, inExports := false, false
	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, markdown.Fence) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			inExports = exportHeaderPattern.MatchString(trimmed)
		}
		if inExports {
			continue
		}
		if tag := blockingTag(line); tag != "" {
			reasons = append(reasons, fmt.Sprintf("%s document line %d is tagged %s: %s", doc, i+1, tag, trimmed))
		}
	}
	return reasons
}

func blockingTag(line string) string {
	for _, g := range blockingMarkerPattern.FindStringSubmatch(line) {
		if g == "INCOMPLETE" || g == "FAILED" {
			return g
		}
	}
	return ""
}

// GateEvaluator gathers the gate inputs from the documents and stores.
type GateEvaluator interface {
	Evaluate(taskID int) (*models.GateOutcome, error)
}

type gateEvaluator struct {
	docs      storage.DocumentStore
	ledger    TaskLedger
	deps      DependencyLedger
	reports   storage.ReportStore
	ecosystem *Ecosystem
	workspace string
}

// NewGateEvaluator creates a GateEvaluator. ecosystem may be nil when the
// project type is not configured; the manifest check is then skipped.
func NewGateEvaluator(docs storage.DocumentStore, ledger TaskLedger, deps DependencyLedger, reports storage.ReportStore, ecosystem *Ecosystem, workspace string) GateEvaluator {
	return &gateEvaluator{
		docs:      docs,
		ledger:    ledger,
		deps:      deps,
		reports:   reports,
		ecosystem: ecosystem,
		workspace: workspace,
	}
}

func (g *gateEvaluator) Evaluate(taskID int) (*models.GateOutcome, error) {
	if taskID <= 0 {
		return nil, invalidTaskID(taskID)
	}

	tasks, err := g.ledger.Tasks()
	if err != nil {
		return nil, fmt.Errorf("evaluating gate: %w", err)
	}
	progress, err := readDocument(g.docs, storage.DocProgress, "progress")
	if err != nil {
		return nil, fmt.Errorf("evaluating gate: %w", err)
	}
	deps, err := readDocument(g.docs, storage.DocDependencies, "dependency")
	if err != nil {
		return nil, fmt.Errorf("evaluating gate: %w", err)
	}
	report, err := g.reports.LoadReport(taskID)
	if err != nil {
		return nil, fmt.Errorf("evaluating gate: %w", err)
	}

	in := GateInput{
		CurrentTaskID:    taskID,
		Tasks:            tasks,
		ProgressText:     progress.String(),
		DependenciesText: deps.String(),
		KnownIssues:      knownIssues(deps),
		Report:           report,
		Exports:          ParseExports(deps),
	}
	if g.ecosystem != nil {
		present := g.ecosystem.HasManifest(func(name string) bool {
			_, ok := g.docs.ModTime(filepath.Join(g.workspace, name))
			return ok
		})
		if !present {
			eco := *g.ecosystem
			in.MissingManifest = &eco
		}
	}

	outcome := Decide(in)
	return &outcome, nil
}

func knownIssues(doc *markdown.Document) []string {
	var issues []string
	for _, l := range doc.ContentLines(SectionKnownIssues) {
		issues = append(issues, strings.TrimSpace(l))
	}
	return issues
}

func invalidTaskID(taskID int) error {
	return &ValidationError{
		Artifact: "task id",
		Problem:  fmt.Sprintf("%d is not a positive integer", taskID),
		Remedy:   "pass the numeric id from a '## Task <N>: <Title>' header",
	}
}
