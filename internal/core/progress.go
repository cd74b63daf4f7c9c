package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/valter-silva-au/ai-dev-relay/internal/markdown"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
)

// Progress document sections.
const (
	SectionAgentStatus         = "## Agent Status"
	SectionTaskProgress        = "## Task Progress"
	SectionCompletedComponents = "## Completed Components"
	SectionTimeline            = "## Timeline"
)

// TimelineAnchor is the line after which timeline entries are inserted.
const TimelineAnchor = "Workflow initialized"

// ProgressTracker records task completion in the progress document.
type ProgressTracker interface {
	RecordStatus(taskID int, title string, nextTaskID int) error
	RecordCompletion(taskID int, title string) error
	RecordComponentSummary(taskID int, title, summary string) error
	RecordTimeline(taskID int, title string) (bool, error)
	HasCompletion(taskID int) (bool, error)
}

type progressTracker struct {
	docs storage.DocumentStore
	now  func() time.Time
}

// NewProgressTracker creates a ProgressTracker over the progress document.
func NewProgressTracker(docs storage.DocumentStore, now func() time.Time) ProgressTracker {
	if now == nil {
		now = time.Now
	}
	return &progressTracker{docs: docs, now: now}
}

func (p *progressTracker) timestamp() string {
	return p.now().UTC().Format(time.RFC3339)
}

// update reads the progress document, applies fn and writes it back atomically.
func (p *progressTracker) update(op string, fn func(doc *markdown.Document)) error {
	doc, err := readDocument(p.docs, storage.DocProgress, "progress")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	fn(doc)
	if err := p.docs.Write(storage.DocProgress, doc.String()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RecordStatus replaces the Agent Status banner. nextTaskID 0 means no task remains.
func (p *progressTracker) RecordStatus(taskID int, title string, nextTaskID int) error {
	next := "none, all tasks complete"
	if nextTaskID > 0 {
		next = fmt.Sprintf("Task %d", nextTaskID)
	}
	return p.update("recording status", func(doc *markdown.Document) {
		doc.SetBody(SectionAgentStatus, []string{
			fmt.Sprintf("**Last completed:** Task %d: %s", taskID, title),
			"**Next expected:** " + next,
			"**Updated:** " + p.timestamp(),
		})
	})
}

func completionPrefix(taskID int) string {
	return fmt.Sprintf("- [x] Task %d:", taskID)
}

func (p *progressTracker) RecordCompletion(taskID int, title string) error {
	entry := fmt.Sprintf("%s %s (completed %s)", completionPrefix(taskID), title, p.timestamp())
	return p.update("recording completion", func(doc *markdown.Document) {
		patchSection(doc, SectionTaskProgress, entry)
	})
}

func (p *progressTracker) RecordComponentSummary(taskID int, title, summary string) error {
	body := strings.TrimSpace(summary)
	if body == "" {
		body = "No summary provided."
	}
	block := fmt.Sprintf("### Task %d: %s\n%s", taskID, title, body)
	return p.update("recording component summary", func(doc *markdown.Document) {
		patchSection(doc, SectionCompletedComponents, block)
	})
}

// RecordTimeline inserts an entry directly after the anchor line, so the
// newest entry comes first. It returns false, writing nothing, when the
// anchor is missing.
func (p *progressTracker) RecordTimeline(taskID int, title string) (bool, error) {
	line := fmt.Sprintf("- %s: Task %d (%s) completed", p.timestamp(), taskID, title)
	doc, err := readDocument(p.docs, storage.DocProgress, "progress")
	if err != nil {
		return false, fmt.Errorf("recording timeline: %w", err)
	}
	if !doc.InsertAfterAnchor(SectionTimeline, TimelineAnchor, line) {
		return false, nil
	}
	if err := p.docs.Write(storage.DocProgress, doc.String()); err != nil {
		return false, fmt.Errorf("recording timeline: %w", err)
	}
	return true, nil
}

func (p *progressTracker) HasCompletion(taskID int) (bool, error) {
	doc, err := readDocument(p.docs, storage.DocProgress, "progress")
	if err != nil {
		return false, err
	}
	prefix := completionPrefix(taskID)
	for _, l := range doc.ContentLines(SectionTaskProgress) {
		if strings.HasPrefix(strings.TrimSpace(l), prefix) {
			return true, nil
		}
	}
	return false, nil
}

// readDocument loads and parses a required document.
func readDocument(docs storage.DocumentStore, name storage.DocumentName, label string) (*markdown.Document, error) {
	if !docs.Exists(name) {
		return nil, &ValidationError{
			Artifact: docs.Path(name),
			Problem:  label + " document not found",
			Remedy:   "run 'relay init' or set documents." + string(name) + " in " + ConfigFileName,
		}
	}
	text, err := docs.Read(name)
	if err != nil {
		return nil, err
	}
	return markdown.Parse(text), nil
}

// patchSection patches block into header. A missing section is created at
// end of file so later patches find it.
func patchSection(doc *markdown.Document, header, block string) markdown.Placement {
	if !doc.HasSection(header) {
		return doc.Patch(header, header+"\n"+block)
	}
	return doc.Patch(header, block)
}
