package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstep-health/nextstep-voice/internal/voice"
)

type fakeController struct {
	calls    []string
	tone     voice.ToneProfile
	listenOK bool
}

func (f *fakeController) ToggleVoiceMode() { f.calls = append(f.calls, "toggle") }
func (f *fakeController) StartListening() bool { f.calls = append(f.calls, "listen"); return f.listenOK }
func (f *fakeController) StopListening() { f.calls = append(f.calls, "stop_listening") }
func (f *fakeController) StopSpeaking() { f.calls = append(f.calls, "stop_speaking") }
func (f *fakeController) Speak(_ context.Context, t string) {
	f.calls = append(f.calls, "speak:"+t)
}
func (f *fakeController) SendText(_ context.Context, t string) {
	f.calls = append(f.calls, "text:"+t)
}
func (f *fakeController) ChangeTone(id string) error {
	f.calls = append(f.calls, "tone:"+id)
	if id == "grumpy" {
		return voice.ErrUnknownTone
	}
	return nil
}
func (f *fakeController) SetCategory(id string) string {
	f.calls = append(f.calls, "category:"+id)
	return id
}
func (f *fakeController) ClearChat() { f.calls = append(f.calls, "clear") }
func (f *fakeController) Tone() voice.ToneProfile { return f.tone }

func TestParseCommand(t *testing.T) {
	cases := []struct {
		line string
		want command
	}{
		{line: "  I need food ", want: command{name: "text", arg: "I need food"}},
		{line: "/voice", want: command{name: "voice"}},
		{line: "/Tone  Calm ", want: command{name: "tone", arg: "Calm"}},
		{line: "/category food pantry", want: command{name: "category", arg: "food pantry"}},
		{line: "", want: command{name: "text"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseCommand(tc.line), "line %q", tc.line)
	}
}

func newTestShell(ctrl *fakeController, reply string) (*shell, *bytes.Buffer) {
	var out bytes.Buffer
	return &shell{
		ctrl:      ctrl,
		tones:     voice.DefaultTones(),
		out:       &out,
		lastReply: func() string { return reply },
	}, &out
}

func TestShellDispatch(t *testing.T) {
	ctrl := &fakeController{listenOK: true}
	sh, _ := newTestShell(ctrl, "Try Harbor Food Bank.")
	ctx := context.Background()

	for _, line := range []string{"hello", "/voice", "/listen", "/stop", "/tone calm", "/category food", "/clear", "/repeat", ""} {
		require.True(t, sh.execute(ctx, parseCommand(line)), "line %q", line)
	}
	assert.Equal(t, []string{
		"text:hello",
		"toggle",
		"listen",
		"stop_listening",
		"stop_speaking",
		"tone:calm",
		"category:food",
		"clear",
		"speak:Try Harbor Food Bank.",
	}, ctrl.calls)

	assert.False(t, sh.execute(ctx, parseCommand("/quit")))
}

func TestShellReportsProblems(t *testing.T) {
	ctrl := &fakeController{tone: voice.ToneProfile{ID: "friendly"}}
	sh, out := newTestShell(ctrl, "")
	ctx := context.Background()

	sh.execute(ctx, parseCommand("/listen"))
	sh.execute(ctx, parseCommand("/tone grumpy"))
	sh.execute(ctx, parseCommand("/dance"))
	sh.execute(ctx, parseCommand("/repeat"))

	text := out.String()
	assert.Contains(t, text, "not listening")
	assert.Contains(t, text, "unknown voice tone")
	assert.Contains(t, text, "unknown command /dance")
	assert.NotContains(t, strings.Join(ctrl.calls, ","), "speak:")
}

func TestShellListsTones(t *testing.T) {
	ctrl := &fakeController{tone: voice.ToneProfile{ID: "calm"}}
	sh, out := newTestShell(ctrl, "")

	sh.execute(context.Background(), parseCommand("/tones"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[2], "* calm"), "got %q", lines[2])
}
