package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valter-silva-au/ai-dev-relay/internal/logging"
	"github.com/valter-silva-au/ai-dev-relay/internal/observability"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

// Cycle phases, in execution order.
const (
	PhaseValidate      = "validate inputs"
	PhaseProgress      = "update progress"
	PhaseDependencies  = "update dependencies"
	PhaseIntegration   = "analyze integration"
	PhaseFileStructure = "validate file structure"
	PhasePrepareNext   = "prepare next task"
)

// CycleResult summarizes a completed state-update cycle.
type CycleResult struct {
	CycleID       string                   `json:"cycle_id"`
	TaskID        int                      `json:"task_id"`
	Title         string                   `json:"title"`
	Phases        []string                 `json:"phases"`
	Snapshots     []models.Snapshot        `json:"snapshots"`
	Warnings      []string                 `json:"warnings,omitempty"`
	PackageUpdate bool                     `json:"package_update"`
	Marked        bool                     `json:"marked"`
	Report        *models.ComplianceReport `json:"report,omitempty"`
	Gate          *models.GateOutcome      `json:"gate,omitempty"`
}

// CycleDeps are the collaborators a Cycle drives. Events may be nil.
type CycleDeps struct {
	Docs       storage.DocumentStore
	Backups    storage.BackupManager
	ExecLog    *storage.ExecutionLog
	Events     observability.EventLog
	Ledger     TaskLedger
	Progress   ProgressTracker
	Deps       DependencyLedger
	Compliance *ComplianceGate
	Gate       GateEvaluator
	Now        func() time.Time
	NewID      func() string
	// LockPath, when set, is locked for the whole run so concurrent
	// invocations over the same documents serialize.
	LockPath   string
}

// Cycle runs the fixed, ordered state-update pipeline for one task. Phases
// run to completion or abort the cycle; no phase swallows an error.
type Cycle struct {
	d CycleDeps
}

// NewCycle creates a Cycle.
func NewCycle(d CycleDeps) *Cycle {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = func() string { return uuid.NewString() }
	}
	return &Cycle{d: d}
}

// cycleRun is the state of one Run call.
type cycleRun struct {
	out     *models.AgentOutput
	result  *CycleResult
	tasks   []models.Task
	log     zerolog.Logger
	pending []logLine
}

type logLine struct {
	level storage.LogLevel
	msg   string
}

type phase struct {
	name string
	run  func(*cycleRun) error
}

func (c *Cycle) phases() []phase {
	return []phase{
		{PhaseValidate, c.validate},
		{PhaseProgress, c.updateProgress},
		{PhaseDependencies, c.updateDependencies},
		{PhaseIntegration, c.analyzeIntegration},
		{PhaseFileStructure, c.validateFileStructure},
		{PhasePrepareNext, c.prepareNext},
	}
}

// Run executes every phase for out.TaskID. On failure the documents are left
// as the last completed phase wrote them; the snapshots taken so far are on
// the result.
func (c *Cycle) Run(ctx context.Context, out *models.AgentOutput) (*CycleResult, error) {
	return c.run(ctx, out, c.phases())
}

// Resume finishes a cycle that stopped at the file-structure phase. Once the
// task's files pass the compliance check, it marks the task COMPLETE and
// evaluates the gate without recording progress or exports a second time.
func (c *Cycle) Resume(ctx context.Context, taskID int) (*CycleResult, error) {
	return c.run(ctx, &models.AgentOutput{TaskID: taskID}, []phase{
		{PhaseValidate, c.validateResume},
		{PhasePrepareNext, c.prepareNext},
	})
}

// Resumable reports whether taskID has a progress record but no COMPLETE
// header, which is what an aborted compliance phase leaves behind.
func (c *Cycle) Resumable(taskID int) (bool, error) {
	recorded, err := c.d.Progress.HasCompletion(taskID)
	if err != nil || !recorded {
		return false, err
	}
	tasks, err := c.d.Ledger.Tasks()
	if err != nil {
		return false, err
	}
	for _, t := range tasks {
		if t.ID == taskID {
			return !t.IsComplete(), nil
		}
	}
	return false, nil
}

func (c *Cycle) run(ctx context.Context, out *models.AgentOutput, phases []phase) (*CycleResult, error) {
	r := &cycleRun{
		out:    out,
		result: &CycleResult{CycleID: c.d.NewID()},
	}
	if out != nil {
		r.result.TaskID = out.TaskID
	}
	r.log = logging.WithTask("cycle", r.result.TaskID).With().Str("cycle_id", r.result.CycleID).Logger()

	if c.d.LockPath != "" {
		unlock, err := lockFile(c.d.LockPath)
		if err != nil {
			return r.result, fmt.Errorf("locking workspace: %w", err)
		}
		defer func() {
			if err := unlock(); err != nil {
				r.log.Warn().Err(err).Msg("releasing workspace lock")
			}
		}()
	}

	c.event(r, "INFO", observability.EventCycleStarted, "state-update cycle started", nil)
	if err := c.flush(r, storage.LevelInfo, "Task %d: cycle %s started", r.result.TaskID, r.result.CycleID); err != nil {
		return r.result, c.fail(r, phases[0].name, err)
	}

	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return r.result, c.fail(r, p.name, fmt.Errorf("cycle cancelled before %s: %w", p.name, err))
		}
		if err := p.run(r); err != nil {
			return r.result, c.fail(r, p.name, err)
		}
		if err := c.flush(r, storage.LevelInfo, "Task %d: %s complete", r.result.TaskID, p.name); err != nil {
			return r.result, c.fail(r, p.name, err)
		}
		r.result.Phases = append(r.result.Phases, p.name)
		r.log.Info().Str("phase", p.name).Msg("phase complete")
		c.event(r, "INFO", observability.EventCyclePhase, p.name+" complete", map[string]any{"phase": p.name})
	}

	state := ""
	if r.result.Gate != nil {
		state = string(r.result.Gate.State)
	}
	if err := c.flush(r, storage.LevelInfo, "Task %d: cycle %s completed, gate %s", r.result.TaskID, r.result.CycleID, state); err != nil {
		return r.result, c.fail(r, phases[len(phases)-1].name, err)
	}
	c.event(r, "INFO", observability.EventCycleCompleted, "state-update cycle completed",
		map[string]any{"gate": state, "warnings": len(r.result.Warnings)})
	return r.result, nil
}

// fail records the abort. The execution log write here is best effort: the
// cycle is already failing and err is what the caller sees.
func (c *Cycle) fail(r *cycleRun, phase string, err error) error {
	kind := FailureKind(err)
	r.log.Error().Err(err).Str("phase", phase).Str("kind", kind).Msg("cycle aborted")
	if logErr := c.flush(r, storage.LevelError, "Task %d: %s failed: %v", r.result.TaskID, phase, err); logErr != nil {
		r.log.Warn().Err(logErr).Msg("writing execution log")
	}
	c.event(r, "ERROR", observability.EventCycleFailed, err.Error(), map[string]any{"phase": phase, "kind": kind})
	return fmt.Errorf("%s: %w", phase, err)
}

func (c *Cycle) warn(r *cycleRun, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.result.Warnings = append(r.result.Warnings, msg)
	r.log.Warn().Msg(msg)
	c.note(r, storage.LevelWarn, "Task %d: %s", r.result.TaskID, msg)
}

// note queues an execution log line for the next phase boundary.
func (c *Cycle) note(r *cycleRun, level storage.LogLevel, format string, args ...any) {
	r.pending = append(r.pending, logLine{level: level, msg: fmt.Sprintf(format, args...)})
}

// flush writes the queued lines followed by one boundary line.
func (c *Cycle) flush(r *cycleRun, level storage.LogLevel, format string, args ...any) error {
	c.note(r, level, format, args...)
	lines := r.pending
	r.pending = nil
	if c.d.ExecLog == nil {
		return nil
	}
	for _, l := range lines {
		if err := c.d.ExecLog.Append(l.level, l.msg); err != nil {
			return fmt.Errorf("writing execution log %s: %w", c.d.ExecLog.Path(), err)
		}
	}
	return nil
}

func (c *Cycle) event(r *cycleRun, level, typ, msg string, data map[string]any) {
	if c.d.Events == nil {
		return
	}
	err := c.d.Events.Write(observability.Event{
		Time:    c.d.Now().UTC(),
		Level:   level,
		Type:    typ,
		CycleID: r.result.CycleID,
		TaskID:  r.result.TaskID,
		Message: msg,
		Data:    data,
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("writing event")
	}
}

func (c *Cycle) snapshot(r *cycleRun, name storage.DocumentName) error {
	snap, err := c.d.Backups.Snapshot(name, r.result.TaskID)
	if err != nil {
		return fmt.Errorf("backing up %s before mutation: %w", name, err)
	}
	r.result.Snapshots = append(r.result.Snapshots, snap)
	r.log.Debug().Str("document", string(name)).Str("backup", snap.Path).Msg("snapshot taken")
	return nil
}

func (c *Cycle) validate(r *cycleRun) error {
	if r.out == nil {
		return &ValidationError{Artifact: "agent output", Problem: "no manifest supplied", Remedy: "pass --output <file.yaml>"}
	}
	id := r.out.TaskID
	if id <= 0 {
		return invalidTaskID(id)
	}
	for _, d := range []struct {
		name  storage.DocumentName
		label string
	}{
		{storage.DocPlan, "task plan"},
		{storage.DocProgress, "progress"},
		{storage.DocDependencies, "dependency"},
	} {
		if !c.d.Docs.Exists(d.name) {
			return &ValidationError{
				Artifact: c.d.Docs.Path(d.name),
				Problem:  d.label + " document not found",
				Remedy:   "run 'relay init' or set documents." + string(d.name) + " in " + ConfigFileName,
			}
		}
	}

	tasks, err := c.d.Ledger.Tasks()
	if err != nil {
		return err
	}
	r.tasks = tasks
	var prev *models.Task
	found := false
	for i := range tasks {
		if tasks[i].ID == id {
			found = true
		}
		if tasks[i].ID == id-1 {
			prev = &tasks[i]
		}
	}
	if !found {
		return &ValidationError{
			Artifact: c.d.Docs.Path(storage.DocPlan),
			Problem:  fmt.Sprintf("task %d has no '## Task %d: <Title>' header", id, id),
			Remedy:   "run 'relay task list' and pass an existing task id",
		}
	}
	r.result.Title = c.d.Ledger.TitleOf(id)

	if prev != nil {
		if !prev.IsComplete() {
			c.warn(r, "previous task %d is not marked COMPLETE", prev.ID)
		}
		recorded, err := c.d.Progress.HasCompletion(prev.ID)
		if err != nil {
			return err
		}
		if !recorded {
			c.warn(r, "previous task %d has no progress record", prev.ID)
		}
	}
	again, err := c.d.Progress.HasCompletion(id)
	if err != nil {
		return err
	}
	if again {
		c.warn(r, "task %d already has a progress record; this run adds duplicate entries", id)
	}
	return nil
}

// validateResume checks that taskID went through the earlier phases of a
// previous cycle and only the compliance phase stopped it.
func (c *Cycle) validateResume(r *cycleRun) error {
	id := r.result.TaskID
	if id <= 0 {
		return invalidTaskID(id)
	}
	tasks, err := c.d.Ledger.Tasks()
	if err != nil {
		return err
	}
	r.tasks = tasks
	var task *models.Task
	for i := range tasks {
		if tasks[i].ID == id {
			task = &tasks[i]
		}
	}
	if task == nil {
		return &ValidationError{
			Artifact: c.d.Docs.Path(storage.DocPlan),
			Problem:  fmt.Sprintf("task %d has no '## Task %d: <Title>' header", id, id),
			Remedy:   "run 'relay task list' and pass an existing task id",
		}
	}
	if task.IsComplete() {
		return &ValidationError{
			Artifact: c.d.Docs.Path(storage.DocPlan),
			Problem:  fmt.Sprintf("task %d is already marked COMPLETE", id),
			Remedy:   "run 'relay gate' to see the next task",
		}
	}
	recorded, err := c.d.Progress.HasCompletion(id)
	if err != nil {
		return err
	}
	if !recorded {
		return &ValidationError{
			Artifact: c.d.Docs.Path(storage.DocProgress),
			Problem:  fmt.Sprintf("task %d has no progress record", id),
			Remedy:   fmt.Sprintf("run 'relay update %d --output <file.yaml>' first", id),
		}
	}
	r.result.Title = c.d.Ledger.TitleOf(id)
	return nil
}

func (c *Cycle) nextTaskID(r *cycleRun) int {
	next := 0
	for _, t := range r.tasks {
		if t.ID > r.result.TaskID && (next == 0 || t.ID < next) {
			next = t.ID
		}
	}
	return next
}

func (c *Cycle) updateProgress(r *cycleRun) error {
	if err := c.snapshot(r, storage.DocProgress); err != nil {
		return err
	}
	id, title := r.result.TaskID, r.result.Title
	if err := c.d.Progress.RecordCompletion(id, title); err != nil {
		return err
	}
	if err := c.d.Progress.RecordComponentSummary(id, title, r.out.Summary); err != nil {
		return err
	}
	ok, err := c.d.Progress.RecordTimeline(id, title)
	if err != nil {
		return err
	}
	if !ok {
		c.warn(r, "timeline anchor %q not found; timeline entry for task %d dropped", TimelineAnchor, id)
	}
	return c.d.Progress.RecordStatus(id, title, c.nextTaskID(r))
}

func (c *Cycle) updateDependencies(r *cycleRun) error {
	if err := c.snapshot(r, storage.DocDependencies); err != nil {
		return err
	}
	id := r.result.TaskID
	err := c.d.Deps.RecordExports(models.ExportRecord{
		TaskID:    id,
		Workspace: r.out.Workspace,
		Exports:   r.out.Exports,
		Packages:  r.out.Packages,
	})
	if err != nil {
		return err
	}

	completed := []int{id}
	for _, t := range r.tasks {
		if t.IsComplete() {
			completed = append(completed, t.ID)
		}
	}
	if err := c.d.Deps.RebuildDependencyTree(completed); err != nil {
		return err
	}

	noted, err := c.d.Deps.NotePackageUpdate(id)
	if err != nil {
		return err
	}
	r.result.PackageUpdate = noted
	return nil
}

func (c *Cycle) analyzeIntegration(r *cycleRun) error {
	if err := c.snapshot(r, storage.DocDependencies); err != nil {
		return err
	}
	var notes []string
	for _, l := range strings.Split(r.out.IntegrationNotes, "\n") {
		if strings.TrimSpace(l) != "" {
			notes = append(notes, l)
		}
	}
	if len(notes) == 0 {
		prev := 0
		for _, t := range r.tasks {
			if t.ID < r.result.TaskID && t.ID > prev {
				prev = t.ID
			}
		}
		if prev > 0 {
			notes = append(notes, fmt.Sprintf("Builds on the exports of Agent %d", prev))
		}
	}
	return c.d.Deps.RecordIntegrationNotes(r.result.TaskID, notes)
}

func (c *Cycle) validateFileStructure(r *cycleRun) error {
	report, err := c.d.Compliance.Enforce(r.result.CycleID, r.result.TaskID, r.out.Files)
	r.result.Report = report
	if err != nil {
		return err
	}
	if !report.Passed() {
		c.warn(r, "file compliance found %d violation(s) on attempt %s; the gate will block",
			len(report.Violations), attemptLabel(report.Attempt, report.MaxAttempts))
	}
	return nil
}

func (c *Cycle) prepareNext(r *cycleRun) error {
	if err := c.snapshot(r, storage.DocPlan); err != nil {
		return err
	}
	marked, err := c.d.Ledger.MarkComplete(r.result.TaskID)
	if err != nil {
		return err
	}
	r.result.Marked = marked
	if !marked {
		c.warn(r, "task %d was already marked COMPLETE in the plan", r.result.TaskID)
	}

	outcome, err := c.d.Gate.Evaluate(r.result.TaskID)
	if err != nil {
		return err
	}
	r.result.Gate = outcome
	for _, w := range outcome.Warnings {
		c.warn(r, "%s", w)
	}
	RecordGate(c.d.Events, c.d.Now, r.result.CycleID, outcome)
	c.note(r, storage.LevelInfo, "Task %d: gate %s", r.result.TaskID, describeGate(outcome))
	return nil
}

// RecordGate writes a gate.evaluated event. events may be nil.
func RecordGate(events observability.EventLog, now func() time.Time, cycleID string, outcome *models.GateOutcome) {
	if events == nil || outcome == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	level := "INFO"
	if outcome.State == models.GateBlocked {
		level = "WARN"
	}
	err := events.Write(observability.Event{
		Time:    now().UTC(),
		Level:   level,
		Type:    observability.EventGateEvaluated,
		CycleID: cycleID,
		TaskID:  outcome.CurrentTaskID,
		Message: describeGate(outcome),
		Data: map[string]any{
			"state":   string(outcome.State),
			"next":    outcome.NextTaskID,
			"reasons": len(outcome.Reasons),
		},
	})
	if err != nil {
		log := logging.Component("gate")
		log.Warn().Err(err).Msg("writing event")
	}
}

func describeGate(o *models.GateOutcome) string {
	switch o.State {
	case models.GateReady:
		return fmt.Sprintf("READY, next task %d", o.NextTaskID)
	case models.GateBlocked:
		return fmt.Sprintf("BLOCKED (%s)", strings.Join(o.Reasons, "; "))
	default:
		return string(o.State)
	}
}
