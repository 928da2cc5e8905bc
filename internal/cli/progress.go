package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/tierkeeper/internal/model"
)

// ProgressRenderer draws a queue run's event stream as a progress bar.
// Failures and fatal errors are printed above the bar.
type ProgressRenderer struct {
	writer  io.Writer
	bar     *progressbar.ProgressBar
	label   string
	verbose bool
}

// NewProgressRenderer creates a renderer. Verbose also prints every result.
func NewProgressRenderer(w io.Writer, label string, verbose bool) *ProgressRenderer {
	return &ProgressRenderer{writer: w, label: label, verbose: verbose}
}

// Render consumes events until the channel closes and returns the last one.
func (r *ProgressRenderer) Render(events <-chan model.Event) model.Event {
	var last model.Event
	for ev := range events {
		r.handle(ev)
		last = ev
	}
	return last
}

func (r *ProgressRenderer) handle(ev model.Event) {
	switch ev.Type {
	case model.EventStart:
		r.initBar(ev.Counters.Total)
	case model.EventSkipped:
		r.update(ev)
		if r.verbose {
			for _, s := range ev.Skipped {
				r.println(SubtleStyle.Render(fmt.Sprintf("  skip %s (%s)", s.ProductID, s.Category)))
			}
		}
	case model.EventResult:
		r.update(ev)
		if r.verbose {
			r.println(FormatSuccess(fmt.Sprintf("%s → %s (%d%%)", ev.ProductID, ev.Category, ev.Confidence)))
		}
	case model.EventError:
		if ev.Fatal {
			r.println(FormatError(ev.Message))
			return
		}
		r.update(ev)
		msg := fmt.Sprintf("%s failed: %s", ev.ProductID, ev.Cause)
		if ev.Fallback {
			msg += fmt.Sprintf(" (fallback %s)", ev.Category)
		}
		r.println(FormatWarning(msg))
	case model.EventComplete:
		r.update(ev)
		if r.bar != nil {
			if err := r.bar.Finish(); err != nil {
				slog.Warn("Failed to finish progress bar", "error", err)
			}
		}
	}
}

func (r *ProgressRenderer) initBar(total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+r.label+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(r.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// update moves the bar to the event's finished count; events may arrive in
// any completion order, the counters they carry are authoritative.
func (r *ProgressRenderer) update(ev model.Event) {
	if r.bar == nil {
		return
	}
	done := ev.Counters.Processed + ev.Counters.Skipped
	if err := r.bar.Set(done); err != nil {
		slog.Warn("Failed to update progress bar", "error", err)
	}
}

func (r *ProgressRenderer) println(line string) {
	if r.bar != nil {
		if err := r.bar.Clear(); err != nil {
			slog.Debug("Failed to clear progress bar", "error", err)
		}
	}
	if _, err := fmt.Fprintln(r.writer, line); err != nil {
		slog.Warn("Failed to write progress line", "error", err)
	}
	if r.bar != nil && !r.bar.IsFinished() {
		if err := r.bar.RenderBlank(); err != nil {
			slog.Debug("Failed to redraw progress bar", "error", err)
		}
	}
}
