package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// DefaultInterval is the redraw cadence.
const DefaultInterval = 200 * time.Millisecond

var (
	elapsedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	countStyle   = lipgloss.NewStyle().Bold(true)
)

// RendererConfig configures a Renderer.
type RendererConfig struct {
	// Output receives the bar (default: os.Stderr).
	Output io.Writer
	// Interval between redraws (default: DefaultInterval).
	Interval time.Duration
	// Width of the bar in cells.
	Width int
	// Interactive forces bar rendering on or off. Nil detects a terminal.
	Interactive *bool
	// Logger receives progress lines when the output is not a terminal.
	Logger zerolog.Logger
}

// Renderer periodically draws a Tracker. On a terminal it redraws a single
// bar line in place; otherwise it logs an info line every few seconds.
type Renderer struct {
	tracker     *Tracker
	out         io.Writer
	interval    time.Duration
	interactive bool
	bar         progress.Model
	logger      zerolog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// NewRenderer creates a renderer for tracker.
func NewRenderer(tracker *Tracker, cfg RendererConfig) *Renderer {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Width <= 0 {
		cfg.Width = 40
	}

	interactive := isTerminal(cfg.Output)
	if cfg.Interactive != nil {
		interactive = *cfg.Interactive
	}

	return &Renderer{
		tracker:     tracker,
		out:         cfg.Output,
		interval:    cfg.Interval,
		interactive: interactive,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(cfg.Width),
			progress.WithoutPercentage(),
		),
		logger: cfg.Logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins drawing in the background.
func (r *Renderer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	go r.loop()
}

// Stop draws the final state and waits for the drawing goroutine to exit.
// It is safe to call Stop without Start.
func (r *Renderer) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	close(r.stop)
	if started {
		<-r.done
	}
}

// Render returns the line for s: elapsed time, bar and count.
func (r *Renderer) Render(s Snapshot) string {
	return fmt.Sprintf("%s %s %s",
		elapsedStyle.Render("["+formatElapsed(s.Elapsed)+"]"),
		r.bar.ViewAs(s.Ratio()),
		countStyle.Render(fmt.Sprintf("%d/%d", s.Succeeded, s.ExpectedMax)),
	)
}

func (r *Renderer) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Non-interactive output is logged far less often than the bar redraws.
	logEvery := int(5 * time.Second / r.interval)
	if logEvery < 1 {
		logEvery = 1
	}
	ticks := 0

	for {
		select {
		case <-ticker.C:
			ticks++
			if r.interactive {
				r.draw()
			} else if ticks%logEvery == 0 {
				r.logLine()
			}
		case <-r.stop:
			if r.interactive {
				r.draw()
				fmt.Fprintln(r.out)
			} else {
				r.logLine()
			}
			return
		}
	}
}

func (r *Renderer) draw() {
	fmt.Fprint(r.out, "\r"+r.Render(r.tracker.Snapshot()))
}

func (r *Renderer) logLine() {
	s := r.tracker.Snapshot()
	r.logger.Info().
		Dur("elapsed", s.Elapsed).
		Int("succeeded", s.Succeeded).
		Int("expected_max", s.ExpectedMax).
		Msg("Progress")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
