package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/moyu-x/file-organizer/pkg/journal"
)

var journalCmd = &cobra.Command{
	Use:           "journal <path>",
	Short:         "Print a saved journal",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runJournal,
}

func init() {
	rootCmd.AddCommand(journalCmd)
}

func runJournal(cmd *cobra.Command, args []string) error {
	j, partial, err := journal.Open(afero.NewOsFs(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if partial {
		fmt.Fprintln(out, hintStyle.Render("partial journal of an interrupted run: "+journal.PartialPath(args[0])))
	}
	fmt.Fprint(out, renderJournal(j))
	return nil
}
