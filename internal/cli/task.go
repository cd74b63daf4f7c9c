package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/ai-dev-relay/internal/core"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
	"github.com/valter-silva-au/ai-dev-relay/pkg/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Query and update the task plan",
	Long: `Commands that read the plan document or mark a task complete.

'task complete' is the only one that changes the plan; it backs the plan up
first and leaves it untouched when the task is already complete.`,
}

var taskTitleCmd = &cobra.Command{
	Use:   "title <task-id>",
	Short: "Print the title of a task",
	Long:  `Print the title from the task's plan header, or "Task N" when the plan has no such task.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Ledger == nil {
			return fmt.Errorf("task ledger not initialized")
		}
		taskID, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), Ledger.TitleOf(taskID))
		return nil
	},
}

var taskExistsCmd = &cobra.Command{
	Use:   "exists <task-id>",
	Short: "Exit 0 when the plan contains the task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Ledger == nil {
			return fmt.Errorf("task ledger not initialized")
		}
		taskID, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		ok, err := Ledger.Exists(taskID)
		if err != nil {
			return err
		}
		if !ok {
			return &core.ValidationError{
				Artifact: Docs.Path(storage.DocPlan),
				Problem:  fmt.Sprintf("task %d is not in the plan", taskID),
				Remedy:   "add a '## Task N: <title>' header or use 'relay task list'",
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %d exists\n", taskID)
		return nil
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <task-id>",
	Short: "Mark a task complete in the plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Ledger == nil || Backups == nil {
			return fmt.Errorf("task ledger not initialized")
		}
		taskID, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		snap, err := Backups.Snapshot(storage.DocPlan, taskID)
		if err != nil {
			return err
		}
		changed, err := Ledger.MarkComplete(taskID)
		if err != nil {
			return err
		}
		if !changed {
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d was already complete.\n", taskID)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %d marked complete (backup %s)\n", taskID, snap.Path)
		return nil
	},
}

var taskListStatus string

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List planned tasks",
	Long:  `List every task in the plan. Use --status PENDING or --status COMPLETE to filter.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Ledger == nil {
			return fmt.Errorf("task ledger not initialized")
		}
		filter := models.TaskStatus(strings.ToUpper(taskListStatus))
		switch filter {
		case "", models.StatusPending, models.StatusComplete:
		default:
			return &core.ValidationError{
				Artifact: "--status",
				Problem:  fmt.Sprintf("unknown status %q", taskListStatus),
				Remedy:   "use PENDING or COMPLETE",
			}
		}

		tasks, err := Ledger.Tasks()
		if err != nil {
			return fmt.Errorf("fetching tasks: %w", err)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "  %-4s %-8s %s\n", "ID", "STATUS", "TITLE")
		fmt.Fprintf(w, "  %-4s %-8s %s\n", "--", "------", "-----")
		for _, t := range tasks {
			if filter != "" && t.Status != filter {
				continue
			}
			fmt.Fprintf(w, "  %-4d %-8s %s\n", t.ID, t.Status, t.Title)
		}
		return nil
	},
}

func init() {
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "Only show tasks with this status")
	taskCmd.AddCommand(taskTitleCmd, taskExistsCmd, taskCompleteCmd, taskListCmd)
	rootCmd.AddCommand(taskCmd)
}
