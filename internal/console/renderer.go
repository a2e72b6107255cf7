package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/nextstep-health/nextstep-voice/internal/voice"
)

// Renderer prints orchestrator events to a terminal.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer

	bold   *color.Color
	cyan   *color.Color
	green  *color.Color
	yellow *color.Color
	red    *color.Color
	faint  *color.Color

	lastStatus string
}

// NewRenderer writes to out. Colors are dropped when noColor is set.
func NewRenderer(out io.Writer, noColor bool) *Renderer {
	r := &Renderer{
		out:    out,
		bold:   color.New(color.Bold),
		cyan:   color.New(color.FgCyan),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed),
		faint:  color.New(color.Faint),
	}
	if noColor {
		for _, c := range []*color.Color{r.bold, r.cyan, r.green, r.yellow, r.red, r.faint} {
			c.DisableColor()
		}
	}
	return r
}

func (r *Renderer) Emit(ev voice.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case voice.EventStatus:
		// Repeated status lines are noise in a scrolling terminal.
		if ev.Text == r.lastStatus {
			return
		}
		r.lastStatus = ev.Text
		r.statusColor(ev.State).Fprintf(r.out, "[%s] %s\n", ev.State, ev.Text)
	case voice.EventVoiceMode:
		if ev.Active {
			r.bold.Fprintln(r.out, "voice mode on")
		} else {
			r.bold.Fprintln(r.out, "voice mode off")
		}
	case voice.EventUserMessage:
		if ev.Message == nil {
			return
		}
		prefix := "you"
		if ev.Message.Voice {
			prefix = "you (voice)"
		}
		r.cyan.Fprintf(r.out, "%s: ", prefix)
		fmt.Fprintln(r.out, ev.Message.Text)
	case voice.EventAssistantMessage:
		if ev.Message == nil {
			return
		}
		r.green.Fprint(r.out, "nextstep: ")
		fmt.Fprintln(r.out, ev.Message.Text)
		if ev.Message.ResourcesFound > 0 {
			r.faint.Fprintf(r.out, "  %d resources found\n", ev.Message.ResourcesFound)
			for _, res := range ev.Message.Resources {
				line := "  - " + res.Name
				if res.Category != "" {
					line += " (" + res.Category + ")"
				}
				details := make([]string, 0, 2)
				if res.Address != "" {
					details = append(details, res.Address)
				}
				if res.Phone != "" {
					details = append(details, res.Phone)
				}
				if len(details) > 0 {
					line += ": " + strings.Join(details, ", ")
				}
				r.faint.Fprintln(r.out, line)
			}
		}
	case voice.EventVoiceError, voice.EventUnsupported:
		r.red.Fprintf(r.out, "error: %s\n", ev.Text)
	case voice.EventToneChanged:
		if ev.Tone == nil {
			return
		}
		r.yellow.Fprintf(r.out, "tone: %s (%s)\n", ev.Tone.ID, ev.Tone.Description)
	case voice.EventCategory:
		category := ev.Category
		if category == "" {
			category = "all"
		}
		r.yellow.Fprintf(r.out, "category: %s\n", category)
	case voice.EventThreadCleared:
		r.lastStatus = ""
		r.bold.Fprintln(r.out, "chat cleared")
	}
}

func (r *Renderer) statusColor(state voice.StatusState) *color.Color {
	switch state {
	case voice.StatusListening:
		return r.cyan
	case voice.StatusSpeaking:
		return r.green
	case voice.StatusError:
		return r.red
	case voice.StatusLoading, voice.StatusProcessing:
		return r.yellow
	default:
		return r.faint
	}
}
