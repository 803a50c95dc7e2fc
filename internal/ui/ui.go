// Package ui renders command output for the osmpoi CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/papapumpkin/osmpoi/internal/dataset"
	"github.com/papapumpkin/osmpoi/internal/pipeline"
	"github.com/papapumpkin/osmpoi/internal/query"
)

// Semantic color palette.
var (
	colorPrimary = lipgloss.Color("#00BFFF")
	colorAccent  = lipgloss.Color("#FFD700")
	colorSuccess = lipgloss.Color("#00E676")
	colorDanger  = lipgloss.Color("#FF5252")
	colorMuted   = lipgloss.Color("#636363")
	colorBlue    = lipgloss.Color("#5B8DEF")
)

// Status icons.
const (
	iconDone    = "✓"
	iconFailed  = "✗"
	iconWorking = "◎"
	iconWaiting = "·"
)

var (
	styleHeader  = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	styleReady   = lipgloss.NewStyle().Foreground(colorSuccess)
	styleFailed  = lipgloss.NewStyle().Foreground(colorDanger)
	styleWorking = lipgloss.NewStyle().Foreground(colorBlue)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleWarn    = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
)

// Printer writes listings to out and progress messages to errOut.
type Printer struct {
	out    io.Writer
	errOut io.Writer
}

// New returns a printer writing to stdout and stderr.
func New() *Printer {
	return &Printer{out: os.Stdout, errOut: os.Stderr}
}

// NewWithWriters returns a printer writing to the given writers.
func NewWithWriters(out, errOut io.Writer) *Printer {
	return &Printer{out: out, errOut: errOut}
}

// Datasets prints one row per entry: name, stage and size.
func (p *Printer) Datasets(entries []dataset.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(p.out, styleMuted.Render("(no datasets)"))
		return
	}

	nameWidth := len("NAME")
	for _, e := range entries {
		if n := len(e.DisplayName()); n > nameWidth {
			nameWidth = n
		}
	}

	header := fmt.Sprintf("  %-*s  %-28s  %s", nameWidth, "NAME", "STAGE", "SIZE")
	fmt.Fprintln(p.out, styleHeader.Render(header))
	for _, e := range entries {
		icon, style := stageIcon(e)
		size := humanize.Bytes(uint64(e.SizeBytes()))
		row := fmt.Sprintf("%-*s  %-28s  %s", nameWidth, e.DisplayName(), StageLabel(e), size)
		fmt.Fprintln(p.out, style.Render(icon)+" "+row)
	}
}

// StageLabel describes the stage of an entry, including where a failed build
// stopped.
func StageLabel(e dataset.Entry) string {
	if e.Stage == dataset.StageFailed {
		return "failed (" + e.FailedAt.String() + ")"
	}
	return e.Stage.String()
}

func stageIcon(e dataset.Entry) (string, lipgloss.Style) {
	switch {
	case e.IsReady():
		return iconDone, styleReady
	case e.Stage == dataset.StageFailed:
		return iconFailed, styleFailed
	case e.Stage.Intermediate():
		return iconWorking, styleWorking
	default:
		return iconWaiting, styleMuted
	}
}

// JobQueued announces a newly scheduled build.
func (p *Printer) JobQueued(job *pipeline.Job) {
	fmt.Fprintf(p.errOut, "%s build queued %s %s\n",
		styleWorking.Render(iconWaiting), job.Name(), styleMuted.Render("("+job.ID()+")"))
}

// JobFinished reports the terminal state of a build.
func (p *Printer) JobFinished(job *pipeline.Job, elapsed time.Duration) {
	switch job.State() {
	case pipeline.JobSucceeded:
		fmt.Fprintf(p.errOut, "%s %s ready %s\n",
			styleReady.Render(iconDone), job.Name(), styleMuted.Render("("+elapsed.Round(time.Millisecond).String()+")"))
	case pipeline.JobCancelled:
		fmt.Fprintf(p.errOut, "%s %s cancelled\n", styleMuted.Render(iconWaiting), job.Name())
	default:
		fmt.Fprintf(p.errOut, "%s %s failed at %s: %v\n",
			styleFailed.Render(iconFailed), job.Name(), job.Stage(), job.Err())
	}
}

// Jobs lists the running and queued builds.
func (p *Printer) Jobs(jobs []*pipeline.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(p.out, styleMuted.Render("(no builds)"))
		return
	}
	for _, j := range jobs {
		icon, style := iconWaiting, styleMuted
		if j.State() == pipeline.JobRunning {
			icon, style = iconWorking, styleWorking
		}
		fmt.Fprintf(p.out, "%s %s  %-10s %-20s %s\n",
			style.Render(icon), j.ID(), j.State(), j.Stage(), j.Name())
	}
}

// QueryDone reports a finished query.
func (p *Printer) QueryDone(res query.Result) {
	fmt.Fprintf(p.errOut, "%s query on %s written to %s %s\n",
		styleReady.Render(iconDone),
		dataset.LogicalName(res.Request.DatasetPath),
		res.Request.OutputPath,
		styleMuted.Render("("+res.Duration.Round(time.Millisecond).String()+")"))
}

// Snapshot prints a one-line summary of a published listing.
func (p *Printer) Snapshot(version uint64, entries []dataset.Entry) {
	var ready, building, failed int
	for _, e := range entries {
		switch {
		case e.IsReady():
			ready++
		case e.Stage == dataset.StageFailed:
			failed++
		default:
			building++
		}
	}
	parts := []string{
		styleReady.Render(fmt.Sprintf("%d ready", ready)),
		styleWorking.Render(fmt.Sprintf("%d building", building)),
	}
	if failed > 0 {
		parts = append(parts, styleFailed.Render(fmt.Sprintf("%d failed", failed)))
	}
	fmt.Fprintf(p.out, "%s %s\n", styleMuted.Render(fmt.Sprintf("v%d", version)), strings.Join(parts, ", "))
}

func (p *Printer) Warn(msg string) {
	fmt.Fprintf(p.errOut, "%s %s\n", styleWarn.Render("warning:"), msg)
}

func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.errOut, "%s %s\n", styleError.Render("error:"), msg)
}

func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.errOut, styleMuted.Render(msg))
}
