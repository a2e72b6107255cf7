package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/nextstep-health/nextstep-voice/internal/voice"
)

// controller is the slice of the orchestrator the terminal drives.
type controller interface {
	ToggleVoiceMode()
	StartListening() bool
	StopListening()
	StopSpeaking()
	Speak(ctx context.Context, text string)
	SendText(ctx context.Context, text string)
	ChangeTone(id string) error
	SetCategory(id string) string
	ClearChat()
	Tone() voice.ToneProfile
}

type command struct {
	name string
	arg  string
}

const helpText = `commands:
  /voice            toggle voice mode
  /listen           start listening (voice mode)
  /stop             stop listening and speaking
  /tone <id>        change voice tone
  /tones            list voice tones
  /category <id>    toggle a resource category filter
  /clear            clear the chat
  /repeat           speak the last reply again
  /quit             exit
anything else is sent as a chat message`

// parseCommand splits a slash command from its argument. Lines without a
// leading slash are chat text.
func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{name: "text", arg: line}
	}
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}
}

type shell struct {
	ctrl      controller
	tones     *voice.ToneSet
	out       io.Writer
	lastReply func() string
}

// execute runs one command. It returns false when the session should end.
func (s *shell) execute(ctx context.Context, cmd command) bool {
	switch cmd.name {
	case "text":
		if cmd.arg != "" {
			s.ctrl.SendText(ctx, cmd.arg)
		}
	case "voice":
		s.ctrl.ToggleVoiceMode()
	case "listen":
		if !s.ctrl.StartListening() {
			fmt.Fprintln(s.out, "not listening: enter voice mode with /voice and wait for playback to finish")
		}
	case "stop":
		s.ctrl.StopListening()
		s.ctrl.StopSpeaking()
	case "tone":
		if cmd.arg == "" {
			fmt.Fprintf(s.out, "current tone: %s\n", s.ctrl.Tone().ID)
			return true
		}
		if err := s.ctrl.ChangeTone(cmd.arg); err != nil {
			fmt.Fprintf(s.out, "%v\n", err)
		}
	case "tones":
		current := s.ctrl.Tone().ID
		for _, t := range s.tones.List() {
			marker := " "
			if t.ID == current {
				marker = "*"
			}
			fmt.Fprintf(s.out, "%s %-15s %s\n", marker, t.ID, t.Description)
		}
	case "category":
		s.ctrl.SetCategory(cmd.arg)
	case "clear":
		s.ctrl.ClearChat()
	case "repeat":
		if s.lastReply == nil {
			return true
		}
		if text := s.lastReply(); text != "" {
			s.ctrl.Speak(ctx, text)
		}
	case "help", "?":
		fmt.Fprintln(s.out, helpText)
	case "quit", "exit", "q":
		return false
	default:
		fmt.Fprintf(s.out, "unknown command /%s (try /help)\n", cmd.name)
	}
	return true
}
