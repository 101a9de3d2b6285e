package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/moyu-x/file-organizer/app"
	"github.com/moyu-x/file-organizer/config"
	"github.com/moyu-x/file-organizer/internal"
	"github.com/moyu-x/file-organizer/internal/errs"
	"github.com/moyu-x/file-organizer/internal/logger"
	"github.com/moyu-x/file-organizer/pkg/filter"
)

var rootCmd = &cobra.Command{
	Use:   "file-organizer [source]",
	Short: "Sort files into category folders by extension",
	Long: `file-organizer sorts the files of a directory into category folders
(Images, Documents, Videos, ...) chosen by file extension.

Files are moved, or copied with --copy. Every performed operation can be
written to a journal with --save-log and reversed later with --undo.

Examples:
  file-organizer ~/Downloads --dest ~/Sorted
  file-organizer ~/Downloads --dry-run --recursive
  file-organizer ~/Documents --pattern '\.pdf$' --copy
  file-organizer --undo operations.json`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runOrganize,
}

// Execute runs the command tree and exits 1 on any returned error. Per-file
// failures are part of the summary, not errors.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, failureStyle.Render("Error: "+err.Error()))
		if hint := errorHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hintStyle.Render(hint))
		}
		os.Exit(1)
	}
}

// errorHint suggests a next step for the kind of error that ended the run.
func errorHint(err error) string {
	if errors.Is(err, context.Canceled) {
		return "interrupted, files already handled stay where they are"
	}
	switch errs.Kind(err) {
	case errs.ErrConfig:
		return "check the settings file, the category rules file and the filter flags"
	case errs.ErrSetup:
		return "check that the paths exist and that no other run holds the destination"
	case errs.ErrUndo:
		return "inspect the journal with 'file-organizer journal <file>'"
	}
	return ""
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("settings", "", "settings file (default $HOME/.file-organizer/config.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warning or error")
	pf.String("log-file", "", "also write logs to this file")

	f := rootCmd.Flags()
	f.StringP("dest", "d", internal.DefaultDestDir, "destination directory")
	f.BoolP("dry-run", "n", false, "show what would be done without changing anything")
	f.Bool("copy", false, "copy files instead of moving them")
	f.BoolP("recursive", "r", false, "process subdirectories recursively")
	f.String("pattern", "", "only process files whose name matches this regex")
	f.String("exclude", "", "skip files whose name matches this regex")
	f.Int64("min-size", 0, "minimum file size in bytes")
	f.Int64("max-size", 0, "maximum file size in bytes")
	f.String("config", "", "category rules file (JSON or YAML)")
	f.String("save-log", "", "save the undo journal to this file")
	f.String("undo", "", "undo the operations recorded in this journal")
	f.Bool("sniff", false, "detect the type of unrecognized files from their content")
	f.Bool("verify", false, "re-read copies and compare checksums")
	f.Bool("no-progress", false, "disable the progress bar")
}

type environment struct {
	cfg     *config.Config
	log     zerolog.Logger
	console *consoleWriter
	close   func() error
}

// setup loads settings and builds the logger. Both failures are
// configuration errors.
func setup(cmd *cobra.Command) (*environment, error) {
	settings, _ := cmd.Flags().GetString("settings")
	cfg, err := config.Load(settings, cmd.Flags())
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfig, "cli", "settings", settings, err)
	}

	console := &consoleWriter{out: cmd.ErrOrStderr()}
	log, closeFn, err := logger.New(cfg.Logging.Level, cfg.Logging.File, console)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfig, "cli", "logging", "", err)
	}
	return &environment{cfg: cfg, log: log, console: console, close: closeFn}, nil
}

func (e *environment) deps() app.Deps {
	return app.Deps{Fs: afero.NewOsFs(), Log: e.log}
}

func (e *environment) Close() {
	if err := e.close(); err != nil {
		fmt.Fprintln(os.Stderr, "close log file:", err)
	}
}

func runOrganize(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	if journalPath, _ := cmd.Flags().GetString("undo"); journalPath != "" {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return undoJournal(cmd, env, journalPath, dryRun)
	}

	if len(args) == 0 {
		return errs.Wrap(errs.ErrSetup, "cli", "args", "a source directory is required unless --undo is given", nil)
	}

	opts, err := organizeOptions(cmd, env.cfg, args[0])
	if err != nil {
		return err
	}

	deps := env.deps()
	deps.NewProgress = progressFactory(env.console, env.cfg.Organize.Progress)

	summary, err := app.RunOrganize(cmd.Context(), opts, deps)
	if summary != nil {
		out := cmd.OutOrStdout()
		if opts.DryRun && len(summary.Planned) > 0 {
			fmt.Fprintln(out, renderPlan(summary.Planned, summary.Source, summary.Dest))
		}
		fmt.Fprint(out, renderOrganizeSummary(summary))
	}
	if errors.Is(err, context.Canceled) && summary != nil && summary.SavedLog != "" {
		env.log.Warn().Str("journal", summary.SavedLog).Msg("interrupted, the completed operations were journaled")
	}
	return err
}

func organizeOptions(cmd *cobra.Command, cfg *config.Config, source string) (app.OrganizeOptions, error) {
	f := cmd.Flags()
	dryRun, _ := f.GetBool("dry-run")
	copyFiles, _ := f.GetBool("copy")
	recursive, _ := f.GetBool("recursive")
	pattern, _ := f.GetString("pattern")
	exclude, _ := f.GetString("exclude")
	saveLog, _ := f.GetString("save-log")

	spec := filter.Spec{Include: pattern, Exclude: exclude}
	for name, bound := range map[string]**int64{"min-size": &spec.MinSize, "max-size": &spec.MaxSize} {
		if !f.Changed(name) {
			continue
		}
		v, err := f.GetInt64(name)
		if err != nil {
			return app.OrganizeOptions{}, errs.Wrap(errs.ErrConfig, "cli", name, "", err)
		}
		*bound = &v
	}

	mode, err := internal.ParseOperationMode(cfg.Organize.Mode)
	if err != nil {
		return app.OrganizeOptions{}, errs.Wrap(errs.ErrConfig, "cli", "mode", "", err)
	}
	if copyFiles {
		mode = internal.ModeCopy
	}

	return app.OrganizeOptions{
		Source:    source,
		Dest:      cfg.Organize.Dest,
		Mode:      mode,
		DryRun:    dryRun,
		Recursive: recursive,
		Filter:    spec,
		RulesFile: cfg.Organize.Rules,
		SaveLog:   saveLog,
		Sniff:     cfg.Organize.Sniff,
		Verify:    cfg.Organize.Verify,
	}, nil
}
