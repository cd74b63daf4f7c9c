package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/ai-dev-relay/internal/core"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
)

var backupTaskID int

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create and list document snapshots",
	Long: `Snapshots are immutable copies of a document taken before it is changed.
Restore one by copying it back over the document.`,
}

var backupCreateCmd = &cobra.Command{
	Use:       "create <document>",
	Short:     "Snapshot a document (plan, progress, dependencies, execution_log)",
	Args:      cobra.ExactArgs(1),
	ValidArgs: documentNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backups == nil {
			return fmt.Errorf("backup manager not initialized")
		}
		name, err := parseDocumentName(args[0])
		if err != nil {
			return err
		}
		snap, err := Backups.Snapshot(name, backupTaskID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Snapshot of %s written to %s\n", snap.Document, snap.Path)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, oldest first",
	Long:  `List snapshots for the task given by --task, or every snapshot when --task is 0.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Backups == nil {
			return fmt.Errorf("backup manager not initialized")
		}
		snaps, err := Backups.List(backupTaskID)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(snaps) == 0 {
			fmt.Fprintln(w, "No snapshots found.")
			return nil
		}
		fmt.Fprintf(w, "  %-4s %-20s %-24s %s\n", "TASK", "TAKEN", "DOCUMENT", "PATH")
		for _, s := range snaps {
			fmt.Fprintf(w, "  %-4d %-20s %-24s %s\n", s.TaskID, s.TakenAt.Format(time.RFC3339), s.Document, s.Path)
		}
		return nil
	},
}

func documentNames() []string {
	return []string{
		string(storage.DocPlan),
		string(storage.DocProgress),
		string(storage.DocDependencies),
		string(storage.DocExecutionLog),
	}
}

func parseDocumentName(arg string) (storage.DocumentName, error) {
	for _, n := range documentNames() {
		if arg == n {
			return storage.DocumentName(n), nil
		}
	}
	return "", &core.ValidationError{
		Artifact: "document",
		Problem:  fmt.Sprintf("unknown document %q", arg),
		Remedy:   "use one of plan, progress, dependencies, execution_log",
	}
}

func init() {
	backupCreateCmd.Flags().IntVar(&backupTaskID, "task", 0, "Task the snapshot is taken for")
	backupListCmd.Flags().IntVar(&backupTaskID, "task", 0, "Only list snapshots for this task (0 for all)")
	backupCmd.AddCommand(backupCreateCmd, backupListCmd)
	rootCmd.AddCommand(backupCmd)
}
