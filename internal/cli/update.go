package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/ai-dev-relay/internal/core"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

var (
	updateOutput string
	updateJSON   bool
)

var updateCmd = &cobra.Command{
	Use:   "update <task-id>",
	Short: "Run the state-update cycle for a finished task",
	Long: `Run the state-update cycle after an agent finishes a task.

The agent's output manifest (--output) names the workspace, the exports, the
integration notes and every file written. The cycle then runs six phases in
order: validate inputs, update progress, update dependencies, analyze
integration, validate file structure and prepare next task. Each document is
backed up before it is changed; the first failing phase stops the cycle.

Exit codes: 2 invalid input, 3 files over the line limit, 4 corrupted
document, 5 retry limit reached, 6 gate BLOCKED.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Cycle == nil {
			return fmt.Errorf("state-update cycle not initialized")
		}
		taskID, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		out, err := loadAgentOutput(updateOutput, taskID)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		result, err := Cycle.Run(ctx, out)
		if err != nil {
			if result != nil && len(result.Snapshots) > 0 && Backups != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Backups taken before the failure are in %s\n", Backups.Dir())
			}
			return err
		}

		if updateJSON {
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting cycle result as JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		} else {
			renderCycle(cmd.OutOrStdout(), result)
		}

		if result.Gate != nil && result.Gate.State == models.GateBlocked {
			return &core.GateBlockedError{Outcome: result.Gate}
		}
		return nil
	},
}

// loadAgentOutput reads the manifest at path and binds it to taskID. A
// manifest without a task id takes the positional one; a different id is
// rejected.
func loadAgentOutput(path string, taskID int) (*models.AgentOutput, error) {
	if path == "" {
		return nil, &core.ValidationError{
			Artifact: "agent output",
			Problem:  "no manifest supplied",
			Remedy:   "pass --output <file.yaml>",
		}
	}
	out, err := storage.LoadAgentOutput(path)
	if err != nil {
		return nil, &core.ValidationError{
			Artifact: path,
			Problem:  err.Error(),
			Remedy:   "write the manifest as YAML with task_id, workspace, summary, exports and files",
		}
	}
	switch {
	case out.TaskID == 0:
		out.TaskID = taskID
	case out.TaskID != taskID:
		return nil, &core.ValidationError{
			Artifact: path,
			Problem:  fmt.Sprintf("manifest is for task %d, not task %d", out.TaskID, taskID),
			Remedy:   "pass the matching task id or fix task_id in the manifest",
		}
	}
	return out, nil
}

func init() {
	updateCmd.Flags().StringVarP(&updateOutput, "output", "o", "", "Agent output manifest (YAML)")
	updateCmd.Flags().BoolVar(&updateJSON, "json", false, "Print the cycle result as JSON")
	rootCmd.AddCommand(updateCmd)
}
