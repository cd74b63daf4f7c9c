package models

import "time"

// GateState is the terminal outcome of evaluating whether the next task may start.
type GateState string

const (
	GateAllComplete GateState = "ALL_COMPLETE"
	GateBlocked     GateState = "BLOCKED"
	GateReady       GateState = "READY"
)

// GateOutcome is the result of a gate evaluation.
type GateOutcome struct {
	State            GateState `yaml:"state" json:"state"`
	CurrentTaskID    int       `yaml:"current_task_id" json:"current_task_id"`
	NextTaskID       int       `yaml:"next_task_id,omitempty" json:"next_task_id,omitempty"`
	NextTaskTitle    string    `yaml:"next_task_title,omitempty" json:"next_task_title,omitempty"`
	TotalTasks       int       `yaml:"total_tasks" json:"total_tasks"`
	CompletedTasks   int       `yaml:"completed_tasks" json:"completed_tasks"`
	Reasons          []string  `yaml:"reasons,omitempty" json:"reasons,omitempty"`
	Warnings         []string  `yaml:"warnings,omitempty" json:"warnings,omitempty"`
	AvailableImports string    `yaml:"available_imports,omitempty" json:"available_imports,omitempty"`
}

// ViolationKind classifies a file-compliance failure.
type ViolationKind string

const (
	ViolationLocation  ViolationKind = "location"
	ViolationSize      ViolationKind = "size"
	ViolationExtension ViolationKind = "extension"
)

// Violation describes one file that failed a compliance rule.
type Violation struct {
	Path    string        `yaml:"path" json:"path"`
	Kind    ViolationKind `yaml:"kind" json:"kind"`
	Detail  string        `yaml:"detail" json:"detail"`
	Lines   int           `yaml:"lines,omitempty" json:"lines,omitempty"`
	Limit   int           `yaml:"limit,omitempty" json:"limit,omitempty"`
	Content string        `yaml:"content,omitempty" json:"content,omitempty"`
}

// ComplianceState is the position of a task in the corrective retry loop.
type ComplianceState string

const (
	CompliancePassed    ComplianceState = "PASSED"
	ComplianceFailed    ComplianceState = "FAILED"
	ComplianceExhausted ComplianceState = "EXHAUSTED"
)

// ComplianceReport is the persisted result of the file-compliance check for a task.
type ComplianceReport struct {
	TaskID      int             `yaml:"task_id" json:"task_id"`
	Attempt     int             `yaml:"attempt" json:"attempt"`
	MaxAttempts int             `yaml:"max_attempts" json:"max_attempts"`
	State       ComplianceState `yaml:"state" json:"state"`
	CheckedAt   time.Time       `yaml:"checked_at" json:"checked_at"`
	Checked     []string        `yaml:"checked" json:"checked"`
	Violations  []Violation     `yaml:"violations,omitempty" json:"violations,omitempty"`
}

// Passed reports whether no file violated any rule.
func (r *ComplianceReport) Passed() bool {
	return r != nil && len(r.Violations) == 0
}

// SizeViolations returns the violations that exceeded the line limit.
func (r *ComplianceReport) SizeViolations() []Violation {
	if r == nil {
		return nil
	}
	var out []Violation
	for _, v := range r.Violations {
		if v.Kind == ViolationSize {
			out = append(out, v)
		}
	}
	return out
}
