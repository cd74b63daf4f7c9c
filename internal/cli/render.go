package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/valter-silva-au/ai-dev-relay/internal/core"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	stateReady    = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	stateComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("141")).Bold(true)
	stateBlocked  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	statePending  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func styleForState(state string) lipgloss.Style {
	switch state {
	case string(models.GateReady), string(models.StatusComplete), string(models.CompliancePassed):
		return stateReady
	case string(models.GateAllComplete):
		return stateComplete
	case string(models.GateBlocked), string(models.ComplianceFailed), string(models.ComplianceExhausted):
		return stateBlocked
	default:
		return statePending
	}
}

// parseTaskID parses a positional task id; ids are positive integers.
func parseTaskID(arg string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || id < 1 {
		return 0, &core.ValidationError{
			Artifact: "task id",
			Problem:  fmt.Sprintf("%q is not a positive integer", arg),
			Remedy:   "pass the number from the plan header, e.g. 3 for '## Task 3: ...'",
		}
	}
	return id, nil
}

// renderGate writes a gate outcome as a bordered panel.
func renderGate(w io.Writer, o *models.GateOutcome) {
	var b strings.Builder
	state := string(o.State)
	fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("Gate:"), styleForState(state).Render(state))
	fmt.Fprintf(&b, "Task %d done, %d/%d tasks complete\n", o.CurrentTaskID, o.CompletedTasks, o.TotalTasks)

	switch o.State {
	case models.GateReady:
		fmt.Fprintf(&b, "Next: Task %d: %s\n", o.NextTaskID, o.NextTaskTitle)
	case models.GateBlocked:
		b.WriteString("\nReasons:\n")
		for _, r := range o.Reasons {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	if len(o.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, wn := range o.Warnings {
			fmt.Fprintf(&b, "  %s\n", warnStyle.Render("! "+wn))
		}
	}
	if o.AvailableImports != "" {
		b.WriteString("\nAvailable imports:\n")
		b.WriteString(o.AvailableImports)
		if !strings.HasSuffix(o.AvailableImports, "\n") {
			b.WriteString("\n")
		}
	}
	fmt.Fprintln(w, panelStyle.Render(strings.TrimRight(b.String(), "\n")))
}

// renderReport writes a compliance report, one line per violation.
func renderReport(w io.Writer, r *models.ComplianceReport) {
	state := string(r.State)
	attempt := strconv.Itoa(r.Attempt)
	if r.MaxAttempts > 0 {
		attempt += "/" + strconv.Itoa(r.MaxAttempts)
	}
	fmt.Fprintf(w, "%s %s (task %d, attempt %s, %d file(s) checked)\n",
		headerStyle.Render("Compliance:"), styleForState(state).Render(state), r.TaskID, attempt, len(r.Checked))
	for _, v := range r.Violations {
		fmt.Fprintf(w, "  %-9s %s: %s\n", string(v.Kind), v.Path, v.Detail)
	}
}

// renderCycle writes the summary of a finished state-update cycle.
func renderCycle(w io.Writer, res *core.CycleResult) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Task %d: %s", res.TaskID, res.Title)))
	fmt.Fprintf(w, "%s %s\n", helpStyle.Render("cycle"), res.CycleID)
	for _, p := range res.Phases {
		fmt.Fprintf(w, "  %s %s\n", stateReady.Render("ok"), p)
	}
	fmt.Fprintf(w, "%d snapshot(s) taken", len(res.Snapshots))
	if res.PackageUpdate {
		fmt.Fprint(w, ", package manifest change recorded")
	}
	fmt.Fprintln(w)
	for _, wn := range res.Warnings {
		fmt.Fprintln(w, warnStyle.Render("! "+wn))
	}
	if res.Report != nil {
		renderReport(w, res.Report)
	}
	if res.Gate != nil {
		renderGate(w, res.Gate)
	}
}
