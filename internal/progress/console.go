// Package progress renders run events for an operator. Console draws one
// progress line per batch and a summary table at the end of the run.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ahrav/go-recall/pkg/events"
)

const barWidth = 30

// Console is an events.EventSink that writes human-readable progress.
// The bar counts absolute positions, so a resumed run starts part way.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	ok, warn, bad, dim *color.Color

	total int
	done  int
	start time.Time
}

// Option configures a Console.
type Option func(*Console)

// WithOutput sets the writer. Defaults to stderr.
func WithOutput(w io.Writer) Option { return func(c *Console) { c.out = w } }

// WithColor forces colour on or off regardless of the terminal.
func WithColor(enabled bool) Option {
	return func(c *Console) {
		for _, col := range []*color.Color{c.ok, c.warn, c.bad, c.dim} {
			if enabled {
				col.EnableColor()
			} else {
				col.DisableColor()
			}
		}
	}
}

// NewConsole creates a console reporter.
func NewConsole(opts ...Option) *Console {
	c := &Console{
		out:   os.Stderr,
		ok:    color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		bad:   color.New(color.FgRed, color.Bold),
		dim:   color.New(color.Faint),
		start: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append implements events.EventSink. Unknown event types are ignored.
func (c *Console) Append(_ context.Context, env events.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch env.Type {
	case events.TypeRunStarted:
		var p events.RunStarted
		if err := env.Decode(&p); err != nil {
			return err
		}
		c.runStarted(p)
	case events.TypeBatchCompleted, events.TypeBatchFailed:
		var p events.BatchDone
		if err := env.Decode(&p); err != nil {
			return err
		}
		c.batchDone(p, env.Type == events.TypeBatchFailed)
	case events.TypeRunCompleted, events.TypeRunInterrupted:
		var p events.RunFinished
		if err := env.Decode(&p); err != nil {
			return err
		}
		c.runFinished(p, env.Type == events.TypeRunInterrupted)
	}
	return nil
}

func (c *Console) runStarted(p events.RunStarted) {
	c.total = p.Offset + p.Total
	c.done = p.Offset
	c.start = time.Now()
	fmt.Fprintf(c.out, "Processing questions (offset=%d): %s items in %s batches of %d\n",
		p.Offset, humanize.Comma(int64(p.Total)), humanize.Comma(int64(p.Batches)), p.BatchSize)
	fmt.Fprintln(c.out, c.line())
}

func (c *Console) batchDone(p events.BatchDone, failed bool) {
	c.done += p.Size

	status := c.ok.Sprintf("ok")
	switch {
	case failed:
		status = c.bad.Sprintf("failed")
	case p.Empty > 0:
		status = c.warn.Sprintf("%d empty", p.Empty)
	}
	elapsed := (time.Duration(p.Millis) * time.Millisecond).Round(time.Millisecond)
	fmt.Fprintf(c.out, "%s batch %d %s %s\n", c.line(), p.Number, status, c.dim.Sprint(elapsed))
	if failed && p.Error != "" {
		fmt.Fprintf(c.out, "  %s\n", c.bad.Sprint(p.Error))
	}
}

// line renders "[#####-----] 50/100 (50%)".
func (c *Console) line() string {
	filled, pct := 0, 0
	if c.total > 0 {
		filled = min(barWidth, c.done*barWidth/c.total)
		pct = c.done * 100 / c.total
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)
	return fmt.Sprintf("[%s] %s/%s (%d%%)", bar,
		humanize.Comma(int64(c.done)), humanize.Comma(int64(c.total)), pct)
}

func (c *Console) runFinished(p events.RunFinished, interrupted bool) {
	tw := table.NewWriter()
	tw.SetOutputMirror(c.out)
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("Run summary")

	outcome := c.ok.Sprint("completed")
	if interrupted {
		outcome = c.warn.Sprint("interrupted")
	}
	failed := humanize.Comma(int64(p.FailedBatches))
	if p.FailedBatches > 0 {
		failed = c.bad.Sprint(failed)
	}

	tw.AppendRows([]table.Row{
		{"Outcome", outcome},
		{"Processed", fmt.Sprintf("%s / %s", humanize.Comma(int64(p.Processed)), humanize.Comma(int64(p.Total)))},
		{"Answered", humanize.Comma(int64(p.Answered))},
		{"Empty", humanize.Comma(int64(p.Empty))},
		{"Failed batches", failed},
		{"Next offset", p.NextOffset},
		{"Elapsed", (time.Duration(p.Millis) * time.Millisecond).Round(time.Millisecond)},
	})
	tw.Render()
}

// Null discards every event.
type Null struct{}

// Append implements events.EventSink.
func (Null) Append(context.Context, events.Envelope) error { return nil }
