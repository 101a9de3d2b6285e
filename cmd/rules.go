package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/moyu-x/file-organizer/pkg/classifier"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the active category rules",
	Long: `Print the category rules in the order they are applied: the categories
of the --config document first, then the built-in ones it does not name.
Extensions claimed by more than one category are listed as conflicts; the
first category keeps them.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRules,
}

func init() {
	rulesCmd.Flags().String("config", "", "category rules file (JSON or YAML)")
	rootCmd.AddCommand(rulesCmd)
}

func runRules(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	rules := classifier.DefaultRules()
	var conflicts []classifier.Conflict
	if path := env.cfg.Organize.Rules; path != "" {
		if rules, conflicts, err = classifier.LoadRules(afero.NewOsFs(), path); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderRules(rules))
	for _, c := range conflicts {
		fmt.Fprintln(out, failureStyle.Render("conflict: "+c.String()))
	}
	return nil
}
