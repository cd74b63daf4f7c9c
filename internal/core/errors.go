package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

// Process exit codes. Each fatal error class has its own code so the
// orchestrating caller can tell a correctable compliance failure from a
// corrupted document.
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitValidation     = 2
	ExitCompliance     = 3
	ExitCorruption     = 4
	ExitRetryExhausted = 5
	ExitBlocked        = 6
)

// ValidationError reports missing or malformed input. No work has been done
// when it is returned.
type ValidationError struct {
	Artifact string
	Problem  string
	Remedy   string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Artifact, e.Problem)
	if e.Remedy != "" {
		msg += " (fix: " + e.Remedy + ")"
	}
	return msg
}

// CorruptionError reports a document whose required section or fenced block
// is not in the expected shape. It is never repaired automatically.
type CorruptionError struct {
	Document string
	Path     string
	Detail   string
	Remedy   string
	Err      error
}

func (e *CorruptionError) Error() string {
	msg := fmt.Sprintf("%s document %s is corrupted: %s", e.Document, e.Path, e.Detail)
	if e.Remedy != "" {
		msg += " (fix: " + e.Remedy + ")"
	}
	return msg
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// ComplianceError is returned when generated files exceed the line limit.
// The report carries every offending path, its line count and its content so
// a corrective rewrite can be requested.
type ComplianceError struct {
	Report *models.ComplianceReport
}

func (e *ComplianceError) Error() string {
	var sb strings.Builder
	size := e.Report.SizeViolations()
	fmt.Fprintf(&sb, "task %d failed file compliance (attempt %s): %d file(s) over the line limit",
		e.Report.TaskID, attemptLabel(e.Report.Attempt, e.Report.MaxAttempts), len(size))
	for _, v := range size {
		fmt.Fprintf(&sb, "; %s has %d lines (limit %d)", v.Path, v.Lines, v.Limit)
	}
	sb.WriteString(fmt.Sprintf(" (fix: split the files, then run 'relay check %d --output <file.yaml>' to finish the cycle)", e.Report.TaskID))
	return sb.String()
}

// RetryExhaustedError is returned when the corrective loop hit
// compliance.max_attempts without a passing check.
type RetryExhaustedError struct {
	Report *models.ComplianceReport
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("task %d failed file compliance %d times (max_attempts %d); manual intervention required (fix: correct the files, then reset with 'relay check %d --reset')",
		e.Report.TaskID, e.Report.Attempt, e.Report.MaxAttempts, e.Report.TaskID)
}

func (e *RetryExhaustedError) Unwrap() error { return &ComplianceError{Report: e.Report} }

// GateBlockedError is returned by commands whose caller must not deploy the
// next task because the gate is BLOCKED.
type GateBlockedError struct {
	Outcome *models.GateOutcome
}

func (e *GateBlockedError) Error() string {
	return fmt.Sprintf("gate BLOCKED after task %d: %s", e.Outcome.CurrentTaskID, strings.Join(e.Outcome.Reasons, "; "))
}

// ExitCode maps an error returned by a core operation to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		exhausted  *RetryExhaustedError
		compliance *ComplianceError
		corruption *CorruptionError
		validation *ValidationError
		blocked    *GateBlockedError
	)
	switch {
	case errors.As(err, &exhausted):
		return ExitRetryExhausted
	case errors.As(err, &compliance):
		return ExitCompliance
	case errors.As(err, &corruption):
		return ExitCorruption
	case errors.As(err, &validation):
		return ExitValidation
	case errors.As(err, &blocked):
		return ExitBlocked
	default:
		return ExitFailure
	}
}

// FailureKind names the error class for event logs and metrics.
func FailureKind(err error) string {
	switch ExitCode(err) {
	case ExitValidation:
		return "validation"
	case ExitCompliance:
		return "compliance"
	case ExitCorruption:
		return "corruption"
	case ExitRetryExhausted:
		return "exhausted"
	case ExitBlocked:
		return "blocked"
	default:
		return "io"
	}
}

func attemptLabel(attempt, maxAttempts int) string {
	if maxAttempts > 0 {
		return fmt.Sprintf("%d/%d", attempt, maxAttempts)
	}
	return fmt.Sprintf("%d", attempt)
}
