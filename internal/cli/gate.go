package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/ai-dev-relay/internal/core"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

var gateJSON bool

var gateCmd = &cobra.Command{
	Use:   "gate <task-id>",
	Short: "Decide whether the task after <task-id> may start",
	Long: `Evaluate the gate for a finished task without changing any document.

READY names the next task; ALL_COMPLETE means every planned task is done;
BLOCKED lists each reason (known issues, failure markers, an unmarked task,
compliance violations or a missing package manifest) and exits with code 6.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Gate == nil {
			return fmt.Errorf("gate evaluator not initialized")
		}
		taskID, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		outcome, err := Gate.Evaluate(taskID)
		if err != nil {
			return err
		}
		core.RecordGate(EventLog, time.Now, uuid.NewString(), outcome)

		if gateJSON {
			data, err := json.MarshalIndent(outcome, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting gate outcome as JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		} else {
			renderGate(cmd.OutOrStdout(), outcome)
		}

		if outcome.State == models.GateBlocked {
			return &core.GateBlockedError{Outcome: outcome}
		}
		return nil
	},
}

func init() {
	gateCmd.Flags().BoolVar(&gateJSON, "json", false, "Print the outcome as JSON")
	rootCmd.AddCommand(gateCmd)
}
