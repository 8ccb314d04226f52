package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
)

const updateInterval = 50 * time.Millisecond

// Bar renders snapshots as a terminal progress bar, one bar per stage.
// All methods are no-ops when disabled.
type Bar struct {
	enabled bool
	w       io.Writer
	bar     *progressbar.ProgressBar
	current Data
	started bool
}

// NewBar creates a renderer writing to stderr.
func NewBar(enabled bool) *Bar {
	return &Bar{enabled: enabled, w: os.Stderr}
}

// Render consumes snapshots until ch is closed, then finishes the last bar.
// The returned channel is closed once rendering is done.
func (b *Bar) Render(ch <-chan Data) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for d := range ch {
			b.Update(d)
		}
		b.Finish()
	}()
	return done
}

// Update draws d, starting a new bar when the stage changed.
func (b *Bar) Update(d Data) {
	if !b.enabled {
		return
	}
	if !b.started || d.Tool != b.current.Tool || d.Stage != b.current.Stage {
		b.Finish()
		b.bar = b.newStageBar(d)
		b.started = true
	}
	b.current = d

	if b.byBytes(d) {
		_ = b.bar.Set64(d.BytesChecked)
	} else if !d.Stage.Collecting() {
		_ = b.bar.Set64(d.EntriesChecked)
	}
	b.bar.Describe(describe(d))
}

// Finish completes the current bar and prints its final description.
func (b *Bar) Finish() {
	if !b.enabled || b.bar == nil {
		return
	}
	_ = b.bar.Finish()
	fmt.Fprintln(b.w, "✔ "+describe(b.current))
	b.bar = nil
}

func (b *Bar) byBytes(d Data) bool {
	return !d.Stage.Collecting() && d.BytesToCheck > 0
}

func (b *Bar) newStageBar(d Data) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionThrottle(updateInterval),
		progressbar.OptionClearOnFinish(),
	}

	switch {
	case d.Stage.Collecting() || d.EntriesToCheck == 0:
		// Spinner mode
		opts = append(opts,
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetElapsedTime(false),
		)
		return progressbar.NewOptions(-1, opts...)
	case b.byBytes(d):
		opts = append(opts, progressbar.OptionSetWidth(40), progressbar.OptionShowBytes(true))
		return progressbar.NewOptions64(d.BytesToCheck, opts...)
	default:
		opts = append(opts, progressbar.OptionSetWidth(40))
		return progressbar.NewOptions64(d.EntriesToCheck, opts...)
	}
}

func describe(d Data) string {
	prefix := fmt.Sprintf("[%d/%d] %s", d.CurrentStageIdx+1, d.MaxStageIdx+1, d.Stage)
	if d.Stage.Collecting() {
		return fmt.Sprintf("%s: %d files, %s matched", prefix, d.EntriesChecked, humanize.IBytes(uint64(d.BytesChecked)))
	}
	return fmt.Sprintf("%s: %d/%d files, %s/%s", prefix,
		d.EntriesChecked, d.EntriesToCheck,
		humanize.IBytes(uint64(d.BytesChecked)), humanize.IBytes(uint64(d.BytesToCheck)))
}
