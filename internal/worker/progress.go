package worker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/proximity/internal/types"
)

const barCells = 30

// Progress renders a one-line status bar for a batch run and keeps the
// outcome tally for the closing summary.
type Progress struct {
	mu     sync.Mutex
	out    io.Writer
	show   bool
	began  time.Time
	clock  func() time.Time
	done   int
	failed int
	total  int
	tally  map[types.Outcome]int
}

// NewProgress starts the clock for total searches. Nothing is drawn unless
// show is set.
func NewProgress(total int, show bool) *Progress {
	return &Progress{
		out:   os.Stderr,
		show:  show,
		began: time.Now(),
		clock: time.Now,
		total: total,
		tally: make(map[types.Outcome]int),
	}
}

// SetOutput redirects the bar (default: stderr).
func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	p.out = w
	p.mu.Unlock()
}

// Tally counts the outcome of every successful result.
func (p *Progress) Tally(results []Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range results {
		if r.Err != nil || r.Result == nil {
			continue
		}
		p.tally[r.Result.Summary.Outcome]++
	}
}

// Update stores the pool's counters and redraws the bar.
func (p *Progress) Update(completed, total, failed int) {
	p.mu.Lock()
	p.done, p.total, p.failed = completed, total, failed
	p.mu.Unlock()

	if p.show {
		p.Print()
	}
}

// Callback adapts Update to Config.OnProgress.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

// Print redraws the bar in place.
func (p *Progress) Print() {
	s := p.snapshot()
	p.mu.Lock()
	out := p.out
	p.mu.Unlock()
	fmt.Fprintf(out, "\r%s%s", s.statusLine(), strings.Repeat(" ", 10))
}

// Done draws the final bar and ends the line.
func (p *Progress) Done() {
	if !p.show {
		return
	}
	p.Print()
	p.mu.Lock()
	fmt.Fprintln(p.out)
	p.mu.Unlock()
}

// Summary describes the finished run, with the outcome split once Tally ran.
func (p *Progress) Summary() string {
	s := p.snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "Finished %d of %d searches", s.done-s.failed, s.total)
	if s.failed > 0 {
		fmt.Fprintf(&b, ", %d failed,", s.failed)
	}
	fmt.Fprintf(&b, " in %s at %.1f/s", humanDuration(s.elapsed), s.rate())

	if n := s.high + s.medium + s.low; n > 0 {
		fmt.Fprintf(&b, "; outcomes HIGH %d, MEDIUM %d, LOW %d", s.high, s.medium, s.low)
	}
	return b.String()
}

// progressState is a consistent copy of the counters at one instant.
type progressState struct {
	done, failed, total int
	high, medium, low   int
	elapsed             time.Duration
}

func (p *Progress) snapshot() progressState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return progressState{
		done:    p.done,
		failed:  p.failed,
		total:   p.total,
		high:    p.tally[types.OutcomeHigh],
		medium:  p.tally[types.OutcomeMedium],
		low:     p.tally[types.OutcomeLow],
		elapsed: p.clock().Sub(p.began),
	}
}

func (s progressState) rate() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(s.done) / s.elapsed.Seconds()
}

// remaining extrapolates the current rate; zero when unknown or finished.
func (s progressState) remaining() time.Duration {
	r := s.rate()
	if r <= 0 || s.done >= s.total {
		return 0
	}
	return time.Duration(float64(s.total-s.done)/r) * time.Second
}

func (s progressState) bar() string {
	filled := 0
	if s.total > 0 {
		filled = min(s.done*barCells/s.total, barCells)
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", barCells-filled) + "]"
}

func (s progressState) statusLine() string {
	parts := []string{fmt.Sprintf("%s %d/%d", s.bar(), s.done, s.total)}
	if s.failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", s.failed))
	}
	parts = append(parts, fmt.Sprintf("%.1f/s", s.rate()))
	switch {
	case s.done >= s.total:
		parts = append(parts, "took "+humanDuration(s.elapsed))
	case s.remaining() > 0:
		parts = append(parts, "about "+humanDuration(s.remaining())+" left")
	}
	return strings.Join(parts, " | ")
}

// humanDuration prints 42s, 3m07s or 2h05m.
func humanDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h, m, sec := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
