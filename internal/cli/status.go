package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	relaymcp "github.com/valter-silva-au/ai-dev-relay/internal/mcp"
	"github.com/valter-silva-au/ai-dev-relay/internal/observability"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

var (
	statusSince string
	statusJSON  bool
	statusTail  int
)

type statusReport struct {
	Tasks     []models.Task          `json:"tasks"`
	Completed int                    `json:"completed"`
	Metrics   *observability.Metrics `json:"metrics,omitempty"`
	Recent    []string               `json:"recent,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show plan progress, cycle metrics and recent log lines",
	Long: `Show every planned task with its status, the cycle and gate metrics
derived from the event log (--since, default 7d) and the last lines of the
execution log.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Ledger == nil {
			return fmt.Errorf("task ledger not initialized")
		}

		tasks, err := Ledger.Tasks()
		if err != nil {
			return fmt.Errorf("fetching tasks: %w", err)
		}
		report := statusReport{Tasks: tasks}
		for _, t := range tasks {
			if t.IsComplete() {
				report.Completed++
			}
		}

		if MetricsCalc != nil {
			since, err := relaymcp.ParseSince(statusSince, time.Now())
			if err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}
			report.Metrics, err = MetricsCalc.Calculate(since)
			if err != nil {
				return fmt.Errorf("calculating metrics: %w", err)
			}
		}

		report.Recent, err = ExecLog.Tail(statusTail)
		if err != nil {
			return err
		}

		if statusJSON {
			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting status as JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		printStatus(cmd, report)
		return nil
	},
}

func printStatus(cmd *cobra.Command, r statusReport) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Plan: %d/%d tasks complete", r.Completed, len(r.Tasks))))
	if len(r.Tasks) == 0 {
		fmt.Fprintln(w, "No tasks found.")
	}
	for _, t := range r.Tasks {
		status := string(t.Status)
		fmt.Fprintf(w, "  %-4d %s %s\n", t.ID, styleForState(status).Render(fmt.Sprintf("%-8s", status)), t.Title)
	}

	if m := r.Metrics; m != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "%-22s %d started, %d completed, %d failed\n", "Cycles:", m.CyclesStarted, m.CyclesCompleted, m.CyclesFailed)
		fmt.Fprintf(&b, "%-22s %d passed, %d failed\n", "Compliance checks:", m.CompliancePassed, m.ComplianceFailed)
		for kind, n := range m.FailuresByKind {
			fmt.Fprintf(&b, "  %-20s %d\n", kind+":", n)
		}
		if m.LastGate != nil {
			fmt.Fprintf(&b, "%-22s task %d %s at %s\n", "Last gate:", m.LastGate.TaskID,
				styleForState(m.LastGate.State).Render(m.LastGate.State), m.LastGate.Time.Format(time.RFC3339))
		}
		fmt.Fprintf(&b, "%-22s %d", "Events recorded:", m.EventCount)
		fmt.Fprintln(w)
		fmt.Fprintln(w, panelStyle.Render(headerStyle.Render("Metrics")+"\n"+b.String()))
	}

	if len(r.Recent) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Execution log"))
		for _, line := range r.Recent {
			fmt.Fprintln(w, helpStyle.Render(line))
		}
	}
}

func init() {
	statusCmd.Flags().StringVar(&statusSince, "since", "7d", "Metrics window (e.g. 7d, 24h)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print status as JSON")
	statusCmd.Flags().IntVar(&statusTail, "tail", 10, "Number of execution log lines to show")
	rootCmd.AddCommand(statusCmd)
}
