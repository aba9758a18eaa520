// Package progress renders per-collection file progress on the terminal.
package progress

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Reporter tracks progress over a known number of units.
type Reporter interface {
	Start(desc string, total int)
	Increment()
	Finish()
}

// Mode values accepted by Enabled.
const (
	ModeAuto   = "auto"
	ModeAlways = "always"
	ModeNever  = "never"
)

// Enabled resolves a configured mode; auto means stderr is a terminal.
func Enabled(mode string) bool {
	switch mode {
	case ModeAlways:
		return true
	case ModeNever:
		return false
	default:
		return term.IsTerminal(int(os.Stderr.Fd()))
	}
}

// New returns a bar on stderr, or a no-op reporter when disabled.
func New(enabled bool) Reporter {
	if !enabled {
		return Nop{}
	}
	return &Bar{w: os.Stderr}
}

// Bar draws a progress bar to w.
type Bar struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewBar creates a bar writing to w.
func NewBar(w io.Writer) *Bar { return &Bar{w: w} }

// Start begins a new bar, replacing any previous one.
func (b *Bar) Start(desc string, total int) {
	if total <= 0 {
		b.bar = nil
		return
	}
	b.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// Increment advances the bar by one.
func (b *Bar) Increment() {
	if b.bar == nil {
		return
	}
	_ = b.bar.Add(1)
}

// Finish completes the bar.
func (b *Bar) Finish() {
	if b.bar == nil {
		return
	}
	_ = b.bar.Finish()
	b.bar = nil
}

// Nop discards progress.
type Nop struct{}

func (Nop) Start(string, int) {}
func (Nop) Increment()        {}
func (Nop) Finish()           {}
