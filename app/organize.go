package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/moyu-x/file-organizer/internal"
	"github.com/moyu-x/file-organizer/internal/errs"
	"github.com/moyu-x/file-organizer/internal/logger"
	"github.com/moyu-x/file-organizer/pkg/classifier"
	"github.com/moyu-x/file-organizer/pkg/filter"
	"github.com/moyu-x/file-organizer/pkg/journal"
	"github.com/moyu-x/file-organizer/pkg/resolver"
	"github.com/moyu-x/file-organizer/pkg/scanner"
	"github.com/moyu-x/file-organizer/pkg/transfer"
)

type OrganizeOptions struct {
	Source    string
	Dest      string
	Mode      internal.OperationMode
	DryRun    bool
	Recursive bool
	Filter    filter.Spec
	RulesFile string
	// SaveLog is where the journal is written after a live run.
	SaveLog string
	Sniff   bool
	Verify  bool
}

// Progress is fed one tick per examined file.
type Progress interface {
	Add(n int) error
	Finish() error
}

type Deps struct {
	Fs    afero.Fs
	Log   zerolog.Logger
	Clock func() time.Time
	// NewProgress is called with the number of files about to be examined.
	NewProgress func(total int) Progress
}

func (d Deps) withDefaults() Deps {
	if d.Fs == nil {
		d.Fs = afero.NewOsFs()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

type Failure struct {
	Path string
	Err  error
}

type Summary struct {
	RunID  string
	Source string
	Dest   string
	Mode   internal.OperationMode
	DryRun bool

	Scanned   int
	Processed int
	Skipped   int
	Failed    int
	// Bytes is the total size of the processed files.
	Bytes int64

	ByCategory map[string]int
	// Planned holds the simulated entries of a dry-run.
	Planned []journal.Entry
	// Journal holds what a live run performed.
	Journal   *journal.Journal
	Failures  []Failure
	Conflicts []classifier.Conflict
	// SavedLog is set when the journal was written.
	SavedLog string
	Elapsed  time.Duration
}

// Entries returns the planned or performed entries.
func (s *Summary) Entries() []journal.Entry {
	if s.DryRun || s.Journal == nil {
		return s.Planned
	}
	return s.Journal.Entries()
}

type organizer struct {
	opts     OrganizeOptions
	deps     Deps
	log      zerolog.Logger
	rules    *classifier.RuleSet
	filters  *filter.Pipeline
	sniffer  *classifier.Sniffer
	resolver *resolver.Resolver
	exec     *transfer.Executor
	journal  *journal.Journal
	appender *journal.Appender
	summary  *Summary
}

// RunOrganize sorts the files of opts.Source into category directories under
// opts.Dest. Setup and configuration problems are returned before anything
// is touched. Per-file failures are collected in the summary and the run
// continues. On cancellation the loop stops between files, the journal of
// what was done is still saved, and the context error is returned with the
// summary.
func RunOrganize(ctx context.Context, opts OrganizeOptions, deps Deps) (*Summary, error) {
	deps = deps.withDefaults()
	start := deps.Clock()

	o, err := newOrganizer(opts, deps)
	if err != nil {
		return nil, err
	}

	unlock, err := o.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := o.openAppender(); err != nil {
		return nil, err
	}

	o.log.Info().
		Str("run_id", o.summary.RunID).
		Str("source", o.opts.Source).
		Str("dest", o.opts.Dest).
		Str("mode", string(o.opts.Mode)).
		Bool("dry_run", o.opts.DryRun).
		Bool("recursive", o.opts.Recursive).
		Msg("organizing")

	runErr := o.loop(ctx)
	saveErr := o.finish()

	o.summary.Elapsed = deps.Clock().Sub(start)
	o.log.Info().
		Int("scanned", o.summary.Scanned).
		Int("processed", o.summary.Processed).
		Int("skipped", o.summary.Skipped).
		Int("failed", o.summary.Failed).
		Dur("elapsed", o.summary.Elapsed).
		Msg("organize finished")

	if runErr != nil {
		return o.summary, runErr
	}
	return o.summary, saveErr
}

// realPath resolves symlinks in path on the OS filesystem, so the walk root
// and the excluded paths name real directories. Components that do not exist
// yet are kept as given below their nearest existing ancestor.
func realPath(fs afero.Fs, path string) string {
	if _, ok := fs.(*afero.OsFs); !ok {
		return path
	}
	var rest []string
	for p := path; ; {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return path
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}

func newOrganizer(opts OrganizeOptions, deps Deps) (*organizer, error) {
	log := logger.Component(deps.Log, "organize")

	if opts.Mode == "" {
		opts.Mode = internal.ModeMove
	}
	if !opts.Mode.Valid() {
		return nil, errs.Wrap(errs.ErrConfig, "organize", "options", fmt.Sprintf("unknown operation %q", opts.Mode), nil)
	}

	source, err := filepath.Abs(opts.Source)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSetup, "organize", "source", opts.Source, err)
	}
	source = realPath(deps.Fs, source)
	ok, err := afero.DirExists(deps.Fs, source)
	if err != nil {
		return nil, errs.Wrap(errs.ErrSetup, "organize", "source", source, err)
	}
	if !ok {
		return nil, errs.Wrap(errs.ErrSetup, "organize", "source", source, errors.New("not an existing directory"))
	}
	opts.Source = source

	if opts.Dest == "" {
		opts.Dest = internal.DefaultDestDir
	}
	if opts.Dest, err = filepath.Abs(opts.Dest); err != nil {
		return nil, errs.Wrap(errs.ErrSetup, "organize", "dest", opts.Dest, err)
	}
	opts.Dest = realPath(deps.Fs, opts.Dest)
	if opts.SaveLog != "" {
		if opts.SaveLog, err = filepath.Abs(opts.SaveLog); err != nil {
			return nil, errs.Wrap(errs.ErrSetup, "organize", "save-log", opts.SaveLog, err)
		}
		opts.SaveLog = realPath(deps.Fs, opts.SaveLog)
	}

	rules := classifier.DefaultRules()
	var conflicts []classifier.Conflict
	if opts.RulesFile != "" {
		if rules, conflicts, err = classifier.LoadRules(deps.Fs, opts.RulesFile); err != nil {
			return nil, err
		}
	}
	for _, c := range conflicts {
		log.Warn().Str("extension", c.Extension).Str("kept", c.Kept).Str("ignored", c.Ignored).Msg("extension claimed by more than one category")
	}

	filters, err := filter.New(opts.Filter)
	if err != nil {
		return nil, err
	}

	o := &organizer{
		opts:     opts,
		deps:     deps,
		log:      log,
		rules:    rules,
		filters:  filters,
		resolver: resolver.New(deps.Fs),
		exec: transfer.NewExecutor(deps.Fs, deps.Log, transfer.Options{
			Verify: opts.Verify,
			Clock:  deps.Clock,
		}),
		summary: &Summary{
			RunID:      uuid.NewString(),
			Source:     opts.Source,
			Dest:       opts.Dest,
			Mode:       opts.Mode,
			DryRun:     opts.DryRun,
			ByCategory: make(map[string]int),
			Conflicts:  conflicts,
		},
	}
	if opts.Sniff {
		o.sniffer = classifier.NewSniffer(deps.Fs, rules, deps.Log)
	}
	o.journal = journal.New(journal.Meta{
		RunID:      o.summary.RunID,
		CreatedAt:  deps.Clock(),
		SourceRoot: opts.Source,
		DestRoot:   opts.Dest,
		Mode:       opts.Mode,
		DryRun:     opts.DryRun,
	})
	return o, nil
}

// lock guards the destination against a second live run. Lock files only
// mean something on the real disk, so other filesystems skip it.
func (o *organizer) lock() (func(), error) {
	noop := func() {}
	if o.opts.DryRun {
		return noop, nil
	}
	if _, ok := o.deps.Fs.(*afero.OsFs); !ok {
		return noop, nil
	}

	if err := o.deps.Fs.MkdirAll(o.opts.Dest, 0o755); err != nil {
		return nil, errs.Wrap(errs.ErrSetup, "organize", "dest", o.opts.Dest, err)
	}
	path := filepath.Join(o.opts.Dest, internal.LockFileName)
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errs.Wrap(errs.ErrSetup, "organize", "lock", path, err)
	}
	if !ok {
		return nil, errs.Wrap(errs.ErrSetup, "organize", "lock", path, errors.New("another run is using this destination"))
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			o.log.Warn().Err(err).Str("lock", path).Msg("failed to release destination lock")
		}
		_ = os.Remove(path)
	}, nil
}

func (o *organizer) openAppender() error {
	if o.opts.DryRun || o.opts.SaveLog == "" {
		return nil
	}
	a, err := journal.NewAppender(o.deps.Fs, o.opts.SaveLog, o.journal.Meta)
	if err != nil {
		return err
	}
	o.appender = a
	return nil
}

func (o *organizer) excludes() []string {
	var paths []string
	if o.opts.SaveLog != "" {
		paths = append(paths, o.opts.SaveLog, journal.PartialPath(o.opts.SaveLog))
	}
	if o.opts.Dest != o.opts.Source {
		return append(paths, o.opts.Dest)
	}
	// organizing in place: only the category directories are output
	paths = append(paths, filepath.Join(o.opts.Dest, internal.LockFileName))
	for _, c := range o.rules.Categories() {
		paths = append(paths, filepath.Join(o.opts.Dest, c.Name))
	}
	return append(paths, filepath.Join(o.opts.Dest, internal.FallbackCategory))
}

func (o *organizer) loop(ctx context.Context) error {
	walker := scanner.NewFileWalker(o.deps.Fs, logger.Component(o.deps.Log, "scanner"), o.excludes()...)

	var progress Progress
	if o.deps.NewProgress != nil {
		progress = o.deps.NewProgress(walker.CountFiles(o.opts.Source, o.opts.Recursive))
		defer func() {
			if err := progress.Finish(); err != nil {
				o.log.Debug().Err(err).Msg("progress finish")
			}
		}()
	}

	for c, err := range walker.Walk(o.opts.Source, o.opts.Recursive) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			o.log.Warn().Err(ctxErr).Msg("organize interrupted, stopping before the next file")
			return ctxErr
		}
		if err != nil {
			o.fail("", errs.Wrap(errs.ErrTransfer, "organize", "walk", "", err))
			continue
		}

		o.summary.Scanned++
		o.handle(c)
		if progress != nil {
			if err := progress.Add(1); err != nil {
				o.log.Debug().Err(err).Msg("progress update")
			}
		}
	}
	return nil
}

func (o *organizer) handle(c scanner.Candidate) {
	if ok, reason := o.filters.Accepts(c); !ok {
		o.summary.Skipped++
		o.log.Debug().Str("file", c.Path).Str("reason", string(reason)).Msg("skipped by filter")
		return
	}

	category := o.rules.Classify(c.Name)
	if category == internal.FallbackCategory && o.sniffer != nil {
		category = o.sniffer.Sniff(c.Path)
	}

	dest, err := o.resolver.Resolve(filepath.Join(o.opts.Dest, category, c.Name))
	if err != nil {
		o.fail(c.Path, errs.Wrap(errs.ErrTransfer, "organize", "resolve", c.Path, err))
		return
	}

	entry, err := o.exec.Transfer(c, dest, category, o.opts.Mode, o.opts.DryRun)
	if err != nil {
		o.fail(c.Path, err)
		return
	}

	o.summary.Processed++
	o.summary.Bytes += c.Size
	o.summary.ByCategory[category]++

	if o.opts.DryRun {
		o.summary.Planned = append(o.summary.Planned, entry)
		o.log.Debug().Str("op", string(o.opts.Mode)).Str("file", c.Name).Str("destination", dest).Msg("planned")
		return
	}

	if err := o.journal.Append(entry); err != nil {
		o.log.Error().Err(err).Str("destination", dest).Msg("journal rejected entry")
	}
	if o.appender != nil {
		if err := o.appender.Append(entry); err != nil {
			o.log.Warn().Err(err).Str("partial", o.appender.Path()).Msg("failed to record entry in partial journal")
		}
	}
	o.log.Debug().Str("op", string(o.opts.Mode)).Str("file", c.Name).Str("destination", dest).Msg("organized")
}

func (o *organizer) fail(path string, err error) {
	o.summary.Failed++
	o.summary.Failures = append(o.summary.Failures, Failure{Path: path, Err: err})
	o.log.Warn().Err(err).Str("file", path).Msg("failed to organize file")
}

// finish saves the journal when asked to and releases the partial file.
func (o *organizer) finish() error {
	if !o.opts.DryRun {
		o.summary.Journal = o.journal
	}
	if o.opts.SaveLog == "" {
		return nil
	}
	if o.opts.DryRun {
		o.log.Warn().Str("path", o.opts.SaveLog).Msg("dry-run, journal not saved")
		return nil
	}

	if o.journal.Len() == 0 {
		o.log.Info().Msg("nothing was transferred, journal not saved")
		o.closeAppender(true)
		return nil
	}

	if err := journal.Save(o.deps.Fs, o.journal, o.opts.SaveLog); err != nil {
		o.log.Error().Err(err).Str("partial", journal.PartialPath(o.opts.SaveLog)).Msg("failed to save journal, partial journal kept")
		o.closeAppender(false)
		return err
	}
	o.summary.SavedLog = o.opts.SaveLog
	o.log.Info().Str("path", o.opts.SaveLog).Int("operations", o.journal.Len()).Msg("journal saved")
	o.closeAppender(true)
	return nil
}

func (o *organizer) closeAppender(done bool) {
	if o.appender == nil {
		return
	}
	if err := o.appender.Close(done); err != nil {
		o.log.Warn().Err(err).Str("partial", o.appender.Path()).Msg("failed to close partial journal")
	}
}
