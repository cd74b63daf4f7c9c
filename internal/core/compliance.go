package core

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/valter-silva-au/ai-dev-relay/internal/logging"
	"github.com/valter-silva-au/ai-dev-relay/internal/observability"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

// DefaultMaxLines is the line limit applied when none is configured.
const DefaultMaxLines = 500

// ComplianceRules are the constraints every generated file must meet.
type ComplianceRules struct {
	MaxLines     int
	AllowedRoots []string
	// Extensions is the allowed set; empty disables the extension rule.
	Extensions []string
}

// ComplianceChecker verifies an explicit list of generated files.
type ComplianceChecker interface {
	Check(taskID int, files []string) (*models.ComplianceReport, error)
}

type complianceChecker struct {
	workspace *storage.Workspace
	rules     ComplianceRules
	now       func() time.Time
}

// NewComplianceChecker creates a ComplianceChecker over workspace.
func NewComplianceChecker(workspace *storage.Workspace, rules ComplianceRules, now func() time.Time) ComplianceChecker {
	if rules.MaxLines <= 0 {
		rules.MaxLines = DefaultMaxLines
	}
	if now == nil {
		now = time.Now
	}
	return &complianceChecker{workspace: workspace, rules: rules, now: now}
}

// CountLines counts newline-terminated lines plus a final unterminated one.
func CountLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte("\n"))
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// Check reports every violation in files. A listed file that does not exist
// is a validation error: the manifest is wrong, not the file.
func (c *complianceChecker) Check(taskID int, files []string) (*models.ComplianceReport, error) {
	report := &models.ComplianceReport{
		TaskID:    taskID,
		State:     models.CompliancePassed,
		CheckedAt: c.now().UTC(),
	}

	for _, f := range files {
		if strings.TrimSpace(f) == "" {
			continue
		}
		rel, inside := c.workspace.Rel(f)
		display := f
		if inside {
			display = rel
		}
		report.Checked = append(report.Checked, display)

		if !inside {
			report.Violations = append(report.Violations, models.Violation{
				Path:   f,
				Kind:   models.ViolationLocation,
				Detail: "outside the workspace " + c.workspace.Root(),
			})
		} else if !underAllowedRoot(rel, c.rules.AllowedRoots) {
			report.Violations = append(report.Violations, models.Violation{
				Path:   rel,
				Kind:   models.ViolationLocation,
				Detail: "not under an allowed root (" + strings.Join(c.rules.AllowedRoots, ", ") + ")",
			})
		}

		if len(c.rules.Extensions) > 0 {
			ext := path.Ext(display)
			if !AllowsExtension(c.rules.Extensions, ext) {
				report.Violations = append(report.Violations, models.Violation{
					Path:   display,
					Kind:   models.ViolationExtension,
					Detail: fmt.Sprintf("extension %q not in %s", ext, strings.Join(c.rules.Extensions, ", ")),
				})
			}
		}

		data, err := c.workspace.ReadFile(f)
		if err != nil {
			return nil, &ValidationError{
				Artifact: f,
				Problem:  "listed in the agent output but cannot be read: " + err.Error(),
				Remedy:   "fix the files list in the agent output manifest",
			}
		}
		if lines := CountLines(data); lines > c.rules.MaxLines {
			report.Violations = append(report.Violations, models.Violation{
				Path:    display,
				Kind:    models.ViolationSize,
				Detail:  fmt.Sprintf("%d lines exceeds the limit of %d", lines, c.rules.MaxLines),
				Lines:   lines,
				Limit:   c.rules.MaxLines,
				Content: string(data),
			})
		}
	}

	if len(report.Violations) > 0 {
		report.State = models.ComplianceFailed
	}
	return report, nil
}

func underAllowedRoot(rel string, roots []string) bool {
	for _, r := range roots {
		r = strings.Trim(path.Clean(strings.ReplaceAll(r, "\\", "/")), "/")
		if r == "" || r == "." {
			return true
		}
		if rel == r || strings.HasPrefix(rel, r+"/") {
			return true
		}
	}
	return false
}

// ComplianceGate runs the check as a retry state machine. Every failing
// check is one attempt; a pass or an operator reset starts the count again.
// With maxAttempts > 0 a size failure on the last allowed attempt moves the
// task to EXHAUSTED.
type ComplianceGate struct {
	checker     ComplianceChecker
	reports     storage.ReportStore
	events      observability.EventLog
	maxAttempts int
	now         func() time.Time
}

// NewComplianceGate creates a ComplianceGate. events may be nil, in which
// case the attempt count comes from the last stored report.
func NewComplianceGate(checker ComplianceChecker, reports storage.ReportStore, events observability.EventLog, maxAttempts int, now func() time.Time) *ComplianceGate {
	if now == nil {
		now = time.Now
	}
	return &ComplianceGate{
		checker:     checker,
		reports:     reports,
		events:      events,
		maxAttempts: maxAttempts,
		now:         now,
	}
}

// MaxAttempts returns the configured bound; zero means unbounded.
func (g *ComplianceGate) MaxAttempts() int {
	return g.maxAttempts
}

// FailedAttempts counts failing checks for the task since its last pass or reset.
func (g *ComplianceGate) FailedAttempts(taskID int) (int, error) {
	if g.events == nil {
		prev, err := g.reports.LoadReport(taskID)
		if err != nil || prev == nil || prev.State == models.CompliancePassed {
			return 0, err
		}
		return prev.Attempt, nil
	}

	events, err := g.events.Read(observability.EventFilter{TaskID: taskID})
	if err != nil {
		return 0, fmt.Errorf("counting compliance attempts for task %d: %w", taskID, err)
	}
	count := 0
	for _, e := range events {
		switch e.Type {
		case observability.EventComplianceFailed:
			count++
		case observability.EventCompliancePassed, observability.EventComplianceReset:
			count = 0
		}
	}
	return count, nil
}

// Enforce checks files, persists the report and records the attempt. Size
// violations return *ComplianceError, or *RetryExhaustedError once the bound
// is reached. Location and extension violations are returned in the report
// only; the gate blocks on them.
func (g *ComplianceGate) Enforce(cycleID string, taskID int, files []string) (*models.ComplianceReport, error) {
	log := logging.WithTask("compliance", taskID)

	prior, err := g.FailedAttempts(taskID)
	if err != nil {
		return nil, err
	}
	report, err := g.checker.Check(taskID, files)
	if err != nil {
		return nil, err
	}
	report.Attempt = prior + 1
	report.MaxAttempts = g.maxAttempts

	size := report.SizeViolations()
	if len(size) > 0 && g.maxAttempts > 0 && report.Attempt >= g.maxAttempts {
		report.State = models.ComplianceExhausted
	}

	if err := g.reports.SaveReport(report); err != nil {
		return nil, err
	}

	if report.Passed() {
		log.Info().Int("attempt", report.Attempt).Int("files", len(report.Checked)).Msg("file compliance passed")
		g.record(observability.Event{
			Level:   "INFO",
			Type:    observability.EventCompliancePassed,
			CycleID: cycleID,
			TaskID:  taskID,
			Message: fmt.Sprintf("file compliance passed on attempt %d", report.Attempt),
			Data:    map[string]any{"attempt": report.Attempt, "files": len(report.Checked)},
		})
		return report, nil
	}

	log.Warn().Int("attempt", report.Attempt).Int("max_attempts", g.maxAttempts).
		Int("violations", len(report.Violations)).Str("state", string(report.State)).Msg("file compliance failed")
	g.record(observability.Event{
		Level:   "WARN",
		Type:    observability.EventComplianceFailed,
		CycleID: cycleID,
		TaskID:  taskID,
		Message: fmt.Sprintf("file compliance failed on attempt %s", attemptLabel(report.Attempt, g.maxAttempts)),
		Data: map[string]any{
			"attempt":    report.Attempt,
			"violations": len(report.Violations),
			"size":       len(size),
			"state":      string(report.State),
		},
	})

	switch {
	case report.State == models.ComplianceExhausted:
		return report, &RetryExhaustedError{Report: report}
	case len(size) > 0:
		return report, &ComplianceError{Report: report}
	default:
		return report, nil
	}
}

// Reset clears the attempt counter for a task after manual intervention.
func (g *ComplianceGate) Reset(cycleID string, taskID int) error {
	if g.events == nil {
		return fmt.Errorf("resetting compliance attempts for task %d: no event log configured", taskID)
	}
	return g.events.Write(observability.Event{
		Time:    g.now().UTC(),
		Level:   "INFO",
		Type:    observability.EventComplianceReset,
		CycleID: cycleID,
		TaskID:  taskID,
		Message: "compliance attempt counter reset by operator",
	})
}

func (g *ComplianceGate) record(e observability.Event) {
	if g.events == nil {
		return
	}
	e.Time = g.now().UTC()
	if err := g.events.Write(e); err != nil {
		log := logging.Component("compliance")
		log.Warn().Err(err).Msg("writing event")
	}
}
