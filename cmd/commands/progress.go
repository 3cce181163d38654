package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/agiopen-org/lux-desktop/internal/events"
)

// progressPrinter renders run events. On a terminal the agent message is a
// single status line rewritten in place; otherwise every event is a line.
type progressPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	tty    bool
	width  int
	status bool // a status line is on screen
}

func newProgressPrinter(f *os.File) *progressPrinter {
	p := &progressPrinter{out: f}
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		p.tty = true
		if w, _, err := term.GetSize(fd); err == nil {
			p.width = w
		}
	}
	return p
}

func (p *progressPrinter) handle(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Type {
	case events.EventRunStarted:
		if pl, ok := events.GetRunStartedPayload(e); ok {
			p.line(fmt.Sprintf("run %s started (mode %s)", e.RunID, pl.Mode))
		}
	case events.EventAgentMessage:
		if pl, ok := events.GetAgentMessagePayload(e); ok {
			p.setStatus(pl.Message)
		}
	case events.EventHistoryAppend:
		if pl, ok := events.GetHistoryAppendPayload(e); ok {
			for _, entry := range pl.Entries {
				if entry.Detail != "" {
					p.line(fmt.Sprintf("  - %s: %s", entry.Action, entry.Detail))
				} else {
					p.line("  - " + entry.Action)
				}
			}
		}
	case events.EventRunFinished:
		if pl, ok := events.GetRunFinishedPayload(e); ok {
			p.line(summary(pl))
		}
	}
}

func summary(pl events.RunFinishedPayload) string {
	switch pl.Status {
	case "completed":
		return fmt.Sprintf("completed (%d steps)", pl.HistoryLen)
	case "failed":
		return fmt.Sprintf("failed after %d steps: %s", pl.HistoryLen, pl.Error)
	default:
		return fmt.Sprintf("stopped after %d steps", pl.HistoryLen)
	}
}

func (p *progressPrinter) setStatus(msg string) {
	if !p.tty {
		fmt.Fprintln(p.out, "> "+msg)
		return
	}
	line := "> " + msg
	if p.width > 1 {
		if r := []rune(line); len(r) >= p.width {
			line = string(r[:p.width-1])
		}
	}
	fmt.Fprint(p.out, "\r\033[2K"+line)
	p.status = true
}

func (p *progressPrinter) line(s string) {
	if p.status {
		fmt.Fprintln(p.out)
		p.status = false
	}
	fmt.Fprintln(p.out, strings.TrimRight(s, "\n"))
}
