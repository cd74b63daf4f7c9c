package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/ai-dev-relay/internal/core"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

var (
	checkOutput string
	checkReset  bool
)

var checkCmd = &cobra.Command{
	Use:   "check <task-id>",
	Short: "Check the files a task wrote against the compliance rules",
	Long: `Run the file-compliance check on the files listed in the agent output
manifest without running the rest of the cycle. Use it after a corrective
rewrite: every failing check counts as one attempt against
compliance.max_attempts.

When 'relay update' stopped at the file-structure phase and the check now
passes, the cycle is finished: the task is marked COMPLETE and the gate is
evaluated. Progress and exports are not recorded again.

Once the limit is reached the task needs manual intervention; fix the files,
then clear the counter with --reset.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Compliance == nil {
			return fmt.Errorf("compliance gate not initialized")
		}
		taskID, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		if checkReset {
			if err := Compliance.Reset(uuid.NewString(), taskID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Compliance attempts for task %d reset.\n", taskID)
			return nil
		}

		out, err := loadAgentOutput(checkOutput, taskID)
		if err != nil {
			return err
		}
		report, err := Compliance.Enforce(uuid.NewString(), taskID, out.Files)
		if report != nil {
			renderReport(cmd.OutOrStdout(), report)
		}
		if err != nil {
			return err
		}
		if !report.Passed() {
			return fmt.Errorf("task %d has %d compliance violation(s); the gate stays BLOCKED until they are fixed (fix: move or rename the files, then run 'relay check %d')",
				taskID, len(report.Violations), taskID)
		}
		return finishCycle(cmd, taskID)
	},
}

// finishCycle runs the prepare-next phase for a task whose update cycle
// stopped on compliance. Tasks with nothing pending are left alone.
func finishCycle(cmd *cobra.Command, taskID int) error {
	if Cycle == nil {
		return nil
	}
	resumable, err := Cycle.Resumable(taskID)
	if err != nil || !resumable {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := Cycle.Resume(ctx, taskID)
	if err != nil {
		return err
	}
	renderCycle(cmd.OutOrStdout(), result)
	if result.Gate != nil && result.Gate.State == models.GateBlocked {
		return &core.GateBlockedError{Outcome: result.Gate}
	}
	return nil
}

func init() {
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "", "Agent output manifest (YAML)")
	checkCmd.Flags().BoolVar(&checkReset, "reset", false, "Clear the attempt counter after manual intervention")
	rootCmd.AddCommand(checkCmd)
}
