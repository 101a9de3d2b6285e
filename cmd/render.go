package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/moyu-x/file-organizer/app"
	"github.com/moyu-x/file-organizer/internal"
	"github.com/moyu-x/file-organizer/pkg/classifier"
	"github.com/moyu-x/file-organizer/pkg/journal"
	"github.com/moyu-x/file-organizer/pkg/undo"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	successTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("86")).
				Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	statsBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(1)

	failureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Faint(true)
)

func statLine(label string, value any) string {
	return labelStyle.Render(label+":") + " " + fmt.Sprint(value)
}

func renderOrganizeSummary(s *app.Summary) string {
	var b strings.Builder

	if s.DryRun {
		b.WriteString(titleStyle.Render("Dry run, nothing was changed") + "\n\n")
	} else {
		b.WriteString(successTitleStyle.Render("Organization complete") + "\n\n")
	}

	lines := []string{
		statLine("Source", s.Source),
		statLine("Destination", s.Dest),
		statLine("Mode", s.Mode),
		statLine("Scanned", s.Scanned),
		statLine(processedLabel(s), fmt.Sprintf("%d (%s)", s.Processed, formatBytes(s.Bytes))),
		statLine("Skipped", s.Skipped),
		statLine("Failed", s.Failed),
	}
	if cats := categoryCounts(s.ByCategory); cats != "" {
		lines = append(lines, statLine("Categories", cats))
	}
	if s.SavedLog != "" {
		lines = append(lines, statLine("Journal", s.SavedLog))
	}
	lines = append(lines, statLine("Elapsed", s.Elapsed.Round(time.Millisecond)))
	b.WriteString(statsBoxStyle.Render(strings.Join(lines, "\n")) + "\n")

	for _, f := range s.Failures {
		b.WriteString(failureStyle.Render("  ✗ "+f.Err.Error()) + "\n")
	}
	if s.DryRun && s.Processed > 0 {
		b.WriteString(hintStyle.Render("run again without --dry-run to apply") + "\n")
	}
	return b.String()
}

func processedLabel(s *app.Summary) string {
	switch {
	case s.DryRun:
		return "Would " + string(s.Mode)
	case s.Mode == internal.ModeCopy:
		return "Copied"
	default:
		return "Moved"
	}
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func categoryCounts(counts map[string]int) string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, counts[name]))
	}
	return strings.Join(parts, " ")
}

// renderPlan lists entries relative to the run's roots.
func renderPlan(entries []journal.Entry, sourceRoot, destRoot string) string {
	rows := make([]table.Row, 0, len(entries))
	for i, e := range entries {
		rows = append(rows, table.Row{i + 1, e.Op, relTo(sourceRoot, e.Source), relTo(destRoot, e.Destination), e.Category})
	}
	return renderTable(table.Row{"#", "Op", "Source", "Destination", "Category"}, rows)
}

// numericColumns are right aligned wherever they appear.
var numericColumns = map[string]bool{"#": true, "Count": true}

func renderTable(header table.Row, rows []table.Row) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)
	tw.AppendRows(rows)

	var configs []table.ColumnConfig
	for i, h := range header {
		if name, _ := h.(string); numericColumns[name] {
			configs = append(configs, table.ColumnConfig{Number: i + 1, Align: text.AlignRight, AlignHeader: text.AlignLeft})
		}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func renderJournal(j *journal.Journal) string {
	var b strings.Builder
	b.WriteString(statsBoxStyle.Render(strings.Join([]string{
		statLine("Run", valueOr(j.RunID, "-")),
		statLine("Created", j.CreatedAt.Format("2006-01-02 15:04:05")),
		statLine("Source", valueOr(j.SourceRoot, "-")),
		statLine("Destination", valueOr(j.DestRoot, "-")),
		statLine("Operations", j.Len()),
	}, "\n")) + "\n")

	rows := make([]table.Row, 0, j.Len())
	for i, e := range j.Entries() {
		rows = append(rows, table.Row{i + 1, e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Op, e.Source, e.Destination, e.Category})
	}
	b.WriteString(renderTable(table.Row{"#", "Time", "Op", "Source", "Destination", "Category"}, rows) + "\n")
	return b.String()
}

func renderRules(rules *classifier.RuleSet) string {
	cats := rules.Categories()
	rows := make([]table.Row, 0, len(cats))
	for _, c := range cats {
		rows = append(rows, table.Row{c.Name, len(c.Extensions), strings.Join(c.Extensions, " ")})
	}
	return renderTable(table.Row{"Category", "Count", "Extensions"}, rows)
}

func renderUndoSummary(s *app.UndoSummary) string {
	var b strings.Builder

	title := "Undo complete"
	if s.DryRun {
		title = "Dry run, nothing was changed"
	}
	b.WriteString(successTitleStyle.Render(title) + "\n\n")

	rows := make([]table.Row, 0, len(s.Results))
	for _, r := range s.Results {
		status := "ok"
		if r.Err != nil {
			status = failureStyle.Render(r.Err.Error())
		}
		rows = append(rows, table.Row{actionLabel(r.Action, s.DryRun), r.Entry.Destination, r.Entry.Source, status})
	}
	if len(rows) > 0 {
		b.WriteString(renderTable(table.Row{"Action", "From", "To", "Status"}, rows) + "\n")
	}

	verb := "Undone"
	if s.DryRun {
		verb = "Would undo"
	}
	lines := []string{
		statLine(verb, s.Reversed),
		statLine("Failed", s.Failed),
	}
	if s.FromPartial {
		lines = append(lines, statLine("Journal", "partial, from an interrupted run"))
	}
	b.WriteString(statsBoxStyle.Render(strings.Join(lines, "\n")) + "\n")
	return b.String()
}

func actionLabel(a undo.Action, dryRun bool) string {
	label := string(a)
	if dryRun {
		return "would " + label
	}
	return label
}

func relTo(root, path string) string {
	if root == "" {
		return path
	}
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// consoleWriter carries console log lines. While a progress bar is attached
// it clears the bar line before each write so the two never share a line;
// the bar redraws itself on its next update.
type consoleWriter struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar
}

func (w *consoleWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.bar != nil {
		_ = w.bar.Clear()
	}
	return w.out.Write(p)
}

func (w *consoleWriter) attach(bar *progressbar.ProgressBar) {
	w.mu.Lock()
	w.bar = bar
	w.mu.Unlock()
}

type consoleProgress struct {
	*progressbar.ProgressBar
	console *consoleWriter
}

func (p consoleProgress) Finish() error {
	p.console.attach(nil)
	return p.ProgressBar.Finish()
}

// progressFactory returns a bar constructor when the console is an
// interactive terminal, nil otherwise.
func progressFactory(console *consoleWriter, enabled bool) func(total int) app.Progress {
	if !enabled || !isTerminal(console.out) {
		return nil
	}
	return func(total int) app.Progress {
		bar := progressbar.NewOptions(total,
			progressbar.OptionSetWriter(console.out),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("[cyan]organizing[reset]"),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
		console.attach(bar)
		return consoleProgress{ProgressBar: bar, console: console}
	}
}
