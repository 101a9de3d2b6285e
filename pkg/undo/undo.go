// Package undo reverses the entries of a saved journal, newest first.
package undo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/moyu-x/file-organizer/internal"
	"github.com/moyu-x/file-organizer/internal/errs"
	"github.com/moyu-x/file-organizer/internal/logger"
	"github.com/moyu-x/file-organizer/pkg/journal"
	"github.com/moyu-x/file-organizer/pkg/transfer"
)

var (
	ErrDestinationMissing   = errors.New("destination missing")
	ErrSourceParentMissing  = errors.New("original directory missing")
	ErrSourceOccupied       = errors.New("original path is occupied")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

type Action string

const (
	// ActionRestore moves a file back to where a move took it from.
	ActionRestore Action = "restore"
	// ActionDelete removes the copy a copy created.
	ActionDelete Action = "delete"
)

type Result struct {
	Entry  journal.Entry
	Action Action
	Err    error
}

type Summary struct {
	Reversed int
	Failed   int
	Results  []Result
}

type Undoer struct {
	exec *transfer.Executor
	log  zerolog.Logger
}

func New(exec *transfer.Executor, log zerolog.Logger) *Undoer {
	return &Undoer{exec: exec, log: logger.Component(log, "undo")}
}

// Undo walks j in reverse. A failed entry is recorded and the rest are still
// attempted; entries already reversed stay reversed. With dryRun only the
// preconditions are checked. Cancellation stops between entries and is
// returned along with the partial summary.
func (u *Undoer) Undo(ctx context.Context, j *journal.Journal, dryRun bool) (*Summary, error) {
	entries := j.Entries()
	summary := &Summary{Results: make([]Result, 0, len(entries))}

	for i := len(entries) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		e := entries[i]
		res := Result{Entry: e}
		switch e.Op {
		case internal.ModeMove:
			res.Action = ActionRestore
			res.Err = u.restore(e, dryRun)
		case internal.ModeCopy:
			res.Action = ActionDelete
			res.Err = u.delete(e, dryRun)
		default:
			res.Err = errs.Wrap(errs.ErrUndo, "undo", string(e.Op), e.Destination, ErrUnsupportedOperation)
		}

		if res.Err != nil {
			summary.Failed++
			u.log.Warn().Err(res.Err).
				Str("op", string(e.Op)).
				Str("source", e.Source).
				Str("destination", e.Destination).
				Msg("failed to reverse operation")
		} else {
			summary.Reversed++
			u.log.Debug().Str("action", string(res.Action)).Str("destination", e.Destination).Bool("dry_run", dryRun).Msg("reversed")
		}
		summary.Results = append(summary.Results, res)
	}

	u.log.Info().Int("reversed", summary.Reversed).Int("failed", summary.Failed).Bool("dry_run", dryRun).Msg("undo finished")
	return summary, nil
}

func (u *Undoer) restore(e journal.Entry, dryRun bool) error {
	fail := func(err error) error {
		return errs.Wrap(errs.ErrUndo, "undo", "restore", e.Destination, err)
	}

	if err := u.requireDestination(e); err != nil {
		return fail(err)
	}

	parent := filepath.Dir(e.Source)
	ok, err := u.exec.DirExists(parent)
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(fmt.Errorf("%w: %s", ErrSourceParentMissing, parent))
	}

	occupied, err := u.exec.Exists(e.Source)
	if err != nil {
		return fail(err)
	}
	if occupied {
		return fail(fmt.Errorf("%w: %s", ErrSourceOccupied, e.Source))
	}

	if dryRun {
		return nil
	}
	if err := u.exec.Move(e.Destination, e.Source); err != nil {
		return fail(err)
	}
	return nil
}

func (u *Undoer) delete(e journal.Entry, dryRun bool) error {
	fail := func(err error) error {
		return errs.Wrap(errs.ErrUndo, "undo", "delete", e.Destination, err)
	}

	if err := u.requireDestination(e); err != nil {
		return fail(err)
	}
	if dryRun {
		return nil
	}
	if err := u.exec.Remove(e.Destination); err != nil {
		return fail(err)
	}
	return nil
}

func (u *Undoer) requireDestination(e journal.Entry) error {
	ok, err := u.exec.Exists(e.Destination)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDestinationMissing, e.Destination)
	}
	return nil
}
