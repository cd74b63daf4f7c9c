package models

import "time"

// TaskStatus represents the lifecycle state of a planned task.
type TaskStatus string

const (
	StatusPending  TaskStatus = "PENDING"
	StatusComplete TaskStatus = "COMPLETE"
)

// Task is one unit of planned work, identified by a positive integer assigned
// when the plan document is authored.
type Task struct {
	ID     int        `yaml:"id" json:"id"`
	Title  string     `yaml:"title" json:"title"`
	Status TaskStatus `yaml:"status" json:"status"`
}

// IsComplete reports whether the task has been marked complete in the plan.
func (t Task) IsComplete() bool {
	return t.Status == StatusComplete
}

// ProgressEntry records the completion of a task in the progress document.
type ProgressEntry struct {
	TaskID      int       `yaml:"task_id"`
	Title       string    `yaml:"title"`
	CompletedAt time.Time `yaml:"completed_at"`
	Summary     string    `yaml:"summary,omitempty"`
}

// ExportRecord documents what a completed task makes available to later tasks.
type ExportRecord struct {
	TaskID    int      `yaml:"task_id" json:"task_id"`
	Workspace string   `yaml:"workspace" json:"workspace"`
	Exports   string   `yaml:"exports" json:"exports"`
	Packages  []string `yaml:"packages,omitempty" json:"packages,omitempty"`
	Notes     []string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// Snapshot is an immutable backup copy of a document taken before a mutation.
type Snapshot struct {
	Document string    `yaml:"document"`
	TaskID   int       `yaml:"task_id"`
	TakenAt  time.Time `yaml:"taken_at"`
	Path     string    `yaml:"path"`
}

// AgentOutput is the manifest the external agent hands back after finishing a
// task: what it built, where, and which files it touched.
type AgentOutput struct {
	TaskID           int      `yaml:"task_id"`
	Workspace        string   `yaml:"workspace"`
	Summary          string   `yaml:"summary"`
	Exports          string   `yaml:"exports"`
	IntegrationNotes string   `yaml:"integration_notes,omitempty"`
	Packages         []string `yaml:"packages,omitempty"`
	Files            []string `yaml:"files"`
}
