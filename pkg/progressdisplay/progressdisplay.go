// Package progressdisplay is the Progress Display (C6): a live per-tool
// status table driven by the scheduler's progress callback. When the
// invocation has no terminal or tui_progress is off, the Display is a
// no-op and prints nothing.
// Modeled on the teacher's pkg/console progress bar and spinner_v2
// Bubble Tea program pattern.
package progressdisplay

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/tinyland-inc/huskycat/pkg/model"
	"github.com/tinyland-inc/huskycat/pkg/styles"
)

// DefaultRefreshHz is the display's default refresh rate (§4.6: ≤10 Hz).
const DefaultRefreshHz = 8.0

// Options configures a Display.
type Options struct {
	Enabled   bool // false disables the display regardless of TTY (tui_progress=false)
	TTY       bool
	RefreshHz float64
	Out       io.Writer // defaults to os.Stderr
}

// Display renders live per-tool progress. All methods are safe for
// concurrent use from scheduler worker goroutines (§4.6, §5): the only
// shared mutable state is protected by a mutex, and callers never hold it
// across a blocking operation.
type Display struct {
	mu      sync.Mutex
	rows    map[string]*row
	order   []string
	enabled bool
	tty     bool
	out     io.Writer

	program     *tea.Program
	refreshTick time.Duration
	stopOnce    sync.Once
	done        chan struct{}
}

type row struct {
	state     model.ToolState
	counts    Counts
	startedAt time.Time
	updatedAt time.Time
}

// Counts mirrors scheduler.Counts without importing it, keeping this
// package free of a dependency on the scheduler.
type Counts struct {
	FilesProcessed int
	Errors         int
	Warnings       int
}

// New constructs a Display. When opts.Enabled is false or opts.TTY is
// false, the returned Display is a safe no-op: Update is cheap and nothing
// is rendered (§4.6: Progress Display only in GitHooks-with-TTY and CLI).
func New(opts Options) *Display {
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	if opts.RefreshHz <= 0 {
		opts.RefreshHz = DefaultRefreshHz
	}
	d := &Display{
		rows:        make(map[string]*row),
		enabled:     opts.Enabled && opts.TTY,
		tty:         opts.TTY,
		out:         opts.Out,
		refreshTick: time.Duration(float64(time.Second) / opts.RefreshHz),
		done:        make(chan struct{}),
	}
	if d.enabled {
		model := tableModel{d: d, tick: d.refreshTick}
		d.program = tea.NewProgram(model, tea.WithOutput(opts.Out), tea.WithoutRenderer())
		go func() {
			_, _ = d.program.Run()
			close(d.done)
		}()
	}
	return d
}

// Update records a tool's new state. It matches scheduler.ProgressFunc's
// signature structurally so it can be passed directly as a callback.
func (d *Display) Update(tool string, state model.ToolState, counts Counts) {
	d.mu.Lock()
	r, ok := d.rows[tool]
	if !ok {
		r = &row{startedAt: time.Now()}
		d.rows[tool] = r
		d.order = append(d.order, tool)
		sort.Strings(d.order)
	}
	r.state = state
	r.counts = counts
	r.updatedAt = time.Now()
	d.mu.Unlock()

	if d.enabled && d.program != nil {
		d.program.Send(refreshMsg{})
	}
}

// Stop tears down the live program, if any, and leaves the terminal clean.
// Safe to call multiple times.
func (d *Display) Stop() {
	d.stopOnce.Do(func() {
		if d.enabled && d.program != nil {
			d.program.Quit()
			<-d.done
			fmt.Fprint(d.out, "\r\033[K")
		}
	})
}

// snapshot copies the current rows under lock for rendering.
func (d *Display) snapshot() ([]string, map[string]row) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]row, len(d.rows))
	for name, r := range d.rows {
		out[name] = *r
	}
	order := append([]string(nil), d.order...)
	return order, out
}

// stateGlyph returns the distinct glyph used per tool state (§4.6).
func stateGlyph(s model.ToolState) string {
	switch s {
	case model.ToolPending:
		return "○"
	case model.ToolRunning:
		return "◐"
	case model.ToolSucceeded:
		return "✓"
	case model.ToolFailed:
		return "✗"
	case model.ToolSkipped:
		return "⊘"
	default:
		return "?"
	}
}

func isTerminalState(s model.ToolState) bool {
	return s == model.ToolSucceeded || s == model.ToolFailed || s == model.ToolSkipped
}

// refreshMsg wakes the Bubble Tea program to re-render from the Display's
// shared row map.
type refreshMsg struct{}

type tickMsg struct{}

type tableModel struct {
	d    *Display
	tick time.Duration
	bar  progress.Model
}

func (m tableModel) Init() tea.Cmd {
	return tea.Tick(m.tick, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m tableModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case tickMsg:
		return m, tea.Tick(m.tick, func(time.Time) tea.Msg { return tickMsg{} })
	case refreshMsg:
		return m, nil
	case tea.KeyMsg:
		return m, nil
	}
	return m, nil
}

func (m tableModel) View() string {
	order, rows := m.d.snapshot()
	if len(order) == 0 {
		return ""
	}

	var b strings.Builder
	var terminalCount int
	for _, name := range order {
		r := rows[name]
		if isTerminalState(r.state) {
			terminalCount++
		}
		elapsed := r.updatedAt.Sub(r.startedAt)
		line := fmt.Sprintf("%s %-20s %6s  files=%-4d errors=%-4d warnings=%-4d\n",
			stateGlyph(r.state), name, elapsed.Round(10*time.Millisecond),
			r.counts.FilesProcessed, r.counts.Errors, r.counts.Warnings)
		b.WriteString(m.applyRowStyle(r.state, line))
	}

	fraction := 0.0
	if len(order) > 0 {
		fraction = float64(terminalCount) / float64(len(order))
	}
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(30))
	bar.FullColor = string(styles.ColorSuccess.Dark)
	bar.EmptyColor = string(styles.ColorComment.Dark)
	b.WriteString(bar.ViewAs(fraction))
	b.WriteString("\n")

	return b.String()
}

func (m tableModel) applyRowStyle(state model.ToolState, line string) string {
	switch state {
	case model.ToolFailed:
		return styles.Error.Render(line)
	case model.ToolSucceeded:
		return styles.Success.Render(line)
	default:
		return line
	}
}
