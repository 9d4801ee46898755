// Package output draws the live progress display of a run and dumps HTTP
// traffic for debugging.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/stampede/internal/engine"
)

// Cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

// Box drawing and progress bar characters
const (
	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	progressFilled = "█"
	progressEmpty  = "░"

	boxWidth = 55
	barWidth = 40
)

// Config configures a Console.
type Config struct {
	Name     string
	Executor string

	// Writer defaults to os.Stderr so the live display never mixes with a
	// summary written to stdout.
	Writer io.Writer

	Quiet       bool
	NoColor     bool
	ForceColors bool
	ForceTTY    bool
}

// Console shows the progress of a run. On a terminal the display is
// redrawn in place; anywhere else each update is one line.
type Console struct {
	name     string
	executor string
	writer   io.Writer
	isTTY    bool
	quiet    bool
	colors   *ColorScheme

	mu    sync.Mutex
	lines int
	done  bool
}

// New creates a Console.
func New(cfg Config) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)
	useColors := !cfg.NoColor && (cfg.ForceColors || (isTTY && supportsColors()))

	colors := NoColorScheme()
	if useColors {
		colors = DefaultColorScheme()
	}
	return &Console{
		name:     cfg.Name,
		executor: cfg.Executor,
		writer:   cfg.Writer,
		isTTY:    isTTY,
		quiet:    cfg.Quiet,
		colors:   colors,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run banner.
func (c *Console) PrintHeader() {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	line := c.colors.Value.Sprint(strings.Repeat(boxHorizontal, boxWidth+1))
	title := c.name
	if title == "" {
		title = "stampede run"
	}
	if c.executor != "" {
		title += fmt.Sprintf(" [%s]", c.executor)
	}
	c.writeln(line)
	c.writeln(c.colors.Header.Sprint(title + " - Running"))
	c.writeln(line)
	c.writeln("")
}

// Update shows p. It is meant to be used as engine.Options.OnProgress.
// The final update, with Done set, replaces the live display with a
// single closing line; later updates are ignored.
func (c *Console) Update(p engine.Progress) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return
	}
	if p.Done {
		c.done = true
		c.clear()
		c.writeln(c.finalLine(p))
		return
	}
	if !c.isTTY {
		c.writeln(c.statusLine(p))
		return
	}

	c.clear()
	lines := c.renderLive(p)
	for _, line := range lines {
		c.writeln(line)
	}
	c.lines = len(lines)
}

// clear erases the live display drawn by the last update.
func (c *Console) clear() {
	if !c.isTTY || c.lines == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.lines))
	for i := 0; i < c.lines; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.lines))
	c.lines = 0
}

func (c *Console) renderLive(p engine.Progress) []string {
	var lines []string

	timeInfo := formatDuration(p.Elapsed)
	if p.Total > 0 {
		timeInfo += " / " + formatDuration(p.Total)
	}
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		c.colors.Progress.Sprint(progressBar(p.Percent/100, barWidth)),
		c.colors.Header.Sprintf("%.0f%%", p.Percent),
		c.colors.Dim.Sprint(timeInfo)))
	lines = append(lines, fmt.Sprintf("Stage:    %s", c.colors.Stage.Sprint(stageInfo(p))))
	lines = append(lines, "")

	lines = append(lines, c.colors.Dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	vus := fmt.Sprintf("VUs:     %s / %d", c.colors.Value.Sprint(p.ActiveVUs), p.TargetVUs)
	iters := fmt.Sprintf("Iterations: %s", c.colors.Value.Sprint(formatNumber(p.Iterations)))
	lines = append(lines, c.boxRow(vus, iters))

	rate := fmt.Sprintf("Rate:    %s", c.colors.Success.Sprintf("%.1f/s", p.Rate))
	errRate := errorRate(p)
	errColor := c.colors.ErrorRate(errRate)
	errs := fmt.Sprintf("Errors:     %s (%s)", errColor.Sprint(formatNumber(p.Errors)), errColor.Sprintf("%.1f%%", errRate*100))
	lines = append(lines, c.boxRow(rate, errs))

	lines = append(lines, c.colors.Dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))
	return lines
}

// boxRow formats a row inside the stats box with two columns.
func (c *Console) boxRow(left, right string) string {
	colWidth := (boxWidth - 4) / 2
	pad := func(s string) string {
		n := colWidth - visibleWidth(s)
		if n < 0 {
			n = 0
		}
		return s + strings.Repeat(" ", n)
	}
	border := c.colors.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s %s%s", border, pad(left), border, pad(right), border)
}

// statusLine is the non-interactive update, for CI logs and pipes.
func (c *Console) statusLine(p engine.Progress) string {
	return fmt.Sprintf("[%s] Progress: %.0f%% | Stage: %s | VUs: %d/%d | Iterations: %d | Rate: %.1f/s | Errors: %d (%.1f%%)",
		formatDuration(p.Elapsed),
		p.Percent,
		stageInfo(p),
		p.ActiveVUs,
		p.TargetVUs,
		p.Iterations,
		p.Rate,
		p.Errors,
		errorRate(p)*100)
}

func (c *Console) finalLine(p engine.Progress) string {
	mark := c.colors.SuccessIcon()
	if p.Errors > 0 {
		mark = c.colors.Warning.Sprint("⚠")
	}
	return fmt.Sprintf("%s finished in %s: %s iterations, %s errors",
		mark, formatDuration(p.Elapsed), formatNumber(p.Iterations), formatNumber(p.Errors))
}

func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

func stageInfo(p engine.Progress) string {
	info := string(p.Phase)
	if p.TotalStages > 0 {
		name := p.StageName
		if name == "" {
			name = "stage"
		}
		info = fmt.Sprintf("%s (%d/%d) %s", name, p.Stage+1, p.TotalStages, p.Phase)
	}
	return strings.TrimSpace(info)
}

func errorRate(p engine.Progress) float64 {
	if p.Iterations == 0 {
		return 0
	}
	return float64(p.Errors) / float64(p.Iterations)
}

func progressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %02dm %02ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}
	var b strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		b.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(str[i : i+3])
	}
	return b.String()
}

// visibleWidth counts the runes of s that are not part of an ANSI escape.
func visibleWidth(s string) int {
	return len([]rune(stripANSI(s)))
}

// stripANSI removes ANSI escape codes from a string.
func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if (s[i] >= 'a' && s[i] <= 'z') || (s[i] >= 'A' && s[i] <= 'Z') {
				inEscape = false
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
