package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moyu-x/file-organizer/app"
)

var undoCmd = &cobra.Command{
	Use:   "undo <journal>",
	Short: "Reverse the operations recorded in a journal",
	Long: `Reverse the operations recorded in a journal written with --save-log,
newest first. Moved files go back to where they came from, copies are
deleted. Entries that cannot be reversed are reported and skipped.

When the journal is missing but an interrupted run left <journal>.partial,
the partial journal is used.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runUndo,
}

func init() {
	undoCmd.Flags().BoolP("dry-run", "n", false, "report what would be undone without changing anything")
	rootCmd.AddCommand(undoCmd)
}

func runUndo(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	return undoJournal(cmd, env, args[0], dryRun)
}

func undoJournal(cmd *cobra.Command, env *environment, path string, dryRun bool) error {
	summary, err := app.RunUndo(cmd.Context(), app.UndoOptions{Journal: path, DryRun: dryRun}, env.deps())
	if summary != nil && summary.Summary != nil {
		fmt.Fprint(cmd.OutOrStdout(), renderUndoSummary(summary))
	}
	return err
}
