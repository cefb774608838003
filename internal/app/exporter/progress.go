package exporter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"golang.org/x/term"
)

// noteProgress reports the per-note state of a run as a single status line:
// bar, done/total, failures, and the last note handled.
type noteProgress struct {
	out     io.Writer
	bar     progress.Model
	total   int
	done    int
	failed  int
	last    string
	drawn   int
	enabled bool
}

func newNoteProgress(total int, show bool) *noteProgress {
	p := &noteProgress{out: os.Stderr, total: total}
	if !show || total == 0 || !stderrIsTerminal() {
		return p
	}
	p.enabled = true
	p.bar = progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	p.bar.Width = 32
	if cols, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil {
		p.bar.Width = min(max(cols/3, 12), 48)
	}
	return p
}

func (p *noteProgress) exported(uniqueName string) {
	p.done++
	p.last = uniqueName + ".md"
	p.draw()
}

func (p *noteProgress) skipped(title string) {
	p.done++
	p.failed++
	p.last = "skipped " + strings.TrimSpace(title)
	p.draw()
}

// stop ends the status line so later log output starts on a fresh line.
func (p *noteProgress) stop() {
	if p.enabled && p.drawn > 0 {
		fmt.Fprintln(p.out)
		p.drawn = 0
	}
}

func (p *noteProgress) draw() {
	if !p.enabled {
		return
	}
	status := fmt.Sprintf("%d/%d notes", p.done, p.total)
	if p.failed > 0 {
		status += fmt.Sprintf(", %d skipped", p.failed)
	}
	line := p.bar.ViewAs(float64(p.done)/float64(p.total)) + " " + status + "  " + p.last
	fmt.Fprintf(p.out, "\r%-*s", p.drawn, line)
	p.drawn = len(line)
}

func stderrIsTerminal() bool {
	if strings.EqualFold(os.Getenv("TERM"), "dumb") {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
