package app

import (
	"context"

	"github.com/moyu-x/file-organizer/internal/logger"
	"github.com/moyu-x/file-organizer/pkg/journal"
	"github.com/moyu-x/file-organizer/pkg/transfer"
	"github.com/moyu-x/file-organizer/pkg/undo"
)

type UndoOptions struct {
	Journal string
	DryRun  bool
}

type UndoSummary struct {
	*undo.Summary
	Journal *journal.Journal
	// FromPartial is set when an interrupted run's partial journal was used.
	FromPartial bool
	DryRun      bool
}

// RunUndo reverses a saved journal. A missing or malformed journal is a setup
// error; failures of single entries are only counted.
func RunUndo(ctx context.Context, opts UndoOptions, deps Deps) (*UndoSummary, error) {
	deps = deps.withDefaults()
	log := logger.Component(deps.Log, "undo")

	j, fromPartial, err := journal.Open(deps.Fs, opts.Journal)
	if err != nil {
		return nil, err
	}
	if fromPartial {
		log.Warn().Str("path", journal.PartialPath(opts.Journal)).Msg("journal not found, using the partial journal of an interrupted run")
	}
	log.Info().
		Str("run_id", j.RunID).
		Int("operations", j.Len()).
		Bool("dry_run", opts.DryRun).
		Msg("undoing")

	exec := transfer.NewExecutor(deps.Fs, deps.Log, transfer.Options{Clock: deps.Clock})
	s, err := undo.New(exec, deps.Log).Undo(ctx, j, opts.DryRun)
	out := &UndoSummary{Summary: s, Journal: j, FromPartial: fromPartial, DryRun: opts.DryRun}
	if err != nil {
		return out, err
	}

	// a fully reversed partial journal has nothing left to recover
	if fromPartial && !opts.DryRun && s.Failed == 0 {
		if err := deps.Fs.Remove(journal.PartialPath(opts.Journal)); err != nil {
			log.Warn().Err(err).Msg("failed to remove partial journal")
		}
	}
	return out, nil
}
