package core

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/valter-silva-au/ai-dev-relay/internal/logging"
	"github.com/valter-silva-au/ai-dev-relay/internal/markdown"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

// CompleteMarker prefixes the title of a task header once the task is done.
const CompleteMarker = "COMPLETE - "

// taskHeaderPattern matches "## Task 3: Title", "## Task 3: COMPLETE - Title"
// and the legacy "## COMPLETE - Task 3: Title".
var taskHeaderPattern = regexp.MustCompile(`^##\s+(COMPLETE\s+-\s+)?Task\s+(\d+)\s*:\s*(COMPLETE\s+-\s+)?(.*?)\s*$`)

// TaskLedger reads and marks tasks in the plan document.
type TaskLedger interface {
	TitleOf(taskID int) string
	Exists(taskID int) (bool, error)
	Tasks() ([]models.Task, error)
	MarkComplete(taskID int) (bool, error)
}

type taskLedger struct {
	docs storage.DocumentStore
}

// NewTaskLedger creates a TaskLedger over the plan document in docs.
func NewTaskLedger(docs storage.DocumentStore) TaskLedger {
	return &taskLedger{docs: docs}
}

// ParseTaskHeader extracts the task from a plan header line.
func ParseTaskHeader(line string) (models.Task, bool) {
	m := taskHeaderPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return models.Task{}, false
	}
	id, err := strconv.Atoi(m[2])
	if err != nil || id <= 0 {
		return models.Task{}, false
	}
	status := models.StatusPending
	if m[1] != "" || m[3] != "" {
		status = models.StatusComplete
	}
	return models.Task{ID: id, Title: m[4], Status: status}, true
}

// FormatTaskHeader renders the plan header for t.
func FormatTaskHeader(t models.Task) string {
	if t.IsComplete() {
		return fmt.Sprintf("## Task %d: %s%s", t.ID, CompleteMarker, t.Title)
	}
	return fmt.Sprintf("## Task %d: %s", t.ID, t.Title)
}

// SyntheticTitle is the title used for a task missing from the plan.
func SyntheticTitle(taskID int) string {
	return fmt.Sprintf("Task %d", taskID)
}

func (l *taskLedger) readPlan() (*markdown.Document, error) {
	if !l.docs.Exists(storage.DocPlan) {
		return nil, &ValidationError{
			Artifact: l.docs.Path(storage.DocPlan),
			Problem:  "task plan document not found",
			Remedy:   "run 'relay init' or set documents.plan in " + ConfigFileName,
		}
	}
	text, err := l.docs.Read(storage.DocPlan)
	if err != nil {
		return nil, fmt.Errorf("reading task plan: %w", err)
	}
	return markdown.Parse(text), nil
}

// TitleOf never fails: a missing plan or task yields a synthesized title.
func (l *taskLedger) TitleOf(taskID int) string {
	tasks, err := l.Tasks()
	if err != nil {
		return SyntheticTitle(taskID)
	}
	for _, t := range tasks {
		if t.ID == taskID && t.Title != "" {
			return t.Title
		}
	}
	return SyntheticTitle(taskID)
}

func (l *taskLedger) Exists(taskID int) (bool, error) {
	tasks, err := l.Tasks()
	if err != nil {
		return false, err
	}
	for _, t := range tasks {
		if t.ID == taskID {
			return true, nil
		}
	}
	return false, nil
}

// Tasks returns the plan's tasks ordered by id. A repeated id keeps its
// first header.
func (l *taskLedger) Tasks() ([]models.Task, error) {
	doc, err := l.readPlan()
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	var tasks []models.Task
	for _, s := range doc.Sections {
		t, ok := ParseTaskHeader(s.Header)
		if !ok || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// MarkComplete rewrites the task's header with the completion marker. It
// returns false, logging a warning, when the task is already marked.
func (l *taskLedger) MarkComplete(taskID int) (bool, error) {
	doc, err := l.readPlan()
	if err != nil {
		return false, err
	}

	var target *models.Task
	for _, s := range doc.Sections {
		if t, ok := ParseTaskHeader(s.Header); ok && t.ID == taskID {
			target = &t
			break
		}
	}
	if target == nil {
		return false, &ValidationError{
			Artifact: l.docs.Path(storage.DocPlan),
			Problem:  fmt.Sprintf("task %d has no '## Task %d: <Title>' header", taskID, taskID),
			Remedy:   "add the task to the plan or pass an existing task id",
		}
	}
	if target.IsComplete() {
		log := logging.WithTask("ledger", taskID)
		log.Warn().Msg("task already marked complete; header left unchanged")
		return false, nil
	}

	target.Status = models.StatusComplete
	doc.ReplaceLine(func(line string) bool {
		t, ok := ParseTaskHeader(line)
		return ok && t.ID == taskID && markdown.IsHeader(line)
	}, FormatTaskHeader(*target))

	if err := l.docs.Write(storage.DocPlan, doc.String()); err != nil {
		return false, fmt.Errorf("marking task %d complete: %w", taskID, err)
	}
	return true, nil
}
