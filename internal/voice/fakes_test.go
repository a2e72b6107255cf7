package voice

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextstep-health/nextstep-voice/internal/audio"
	"github.com/nextstep-health/nextstep-voice/internal/backend"
	"github.com/nextstep-health/nextstep-voice/internal/stt"
	"github.com/rs/zerolog"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type synthCall struct {
	text  string
	voice string
}

type fakeSynth struct {
	mu      sync.Mutex
	calls   []synthCall
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (s *fakeSynth) Synthesize(ctx context.Context, text, voice, _ string) (*audio.Clip, error) {
	s.mu.Lock()
	s.calls = append(s.calls, synthCall{text: text, voice: voice})
	gate, entered, err := s.gate, s.entered, s.err
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return audio.NewClip([]byte(voice+":"+text), audio.MIMEMP3), nil
}

func (s *fakeSynth) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeSynth) snapshot() []synthCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]synthCall(nil), s.calls...)
}

func (s *fakeSynth) spoke(text string) bool {
	for _, c := range s.snapshot() {
		if c.text == text {
			return true
		}
	}
	return false
}

type fakeTrack struct {
	out   *fakeOutput
	clip  *audio.Clip
	hooks audio.PlaybackHooks

	done    bool
	stopped bool
}

func (t *fakeTrack) Stop() { t.out.deactivate(t, true) }

func (t *fakeTrack) play() {
	t.hooks.OnReady()
	t.hooks.OnPlaying()
}

func (t *fakeTrack) end() {
	t.out.deactivate(t, false)
	t.hooks.OnEnded()
}

func (t *fakeTrack) fail(err error) {
	t.out.deactivate(t, false)
	t.hooks.OnError(err)
}

func (t *fakeTrack) wasStopped() bool {
	t.out.mu.Lock()
	defer t.out.mu.Unlock()
	return t.stopped
}

// fakeOutput never fires hooks by itself; tests drive each track.
type fakeOutput struct {
	mu        sync.Mutex
	tracks    []*fakeTrack
	active    int
	maxActive int
	err       error
}

func (o *fakeOutput) Start(clip *audio.Clip, hooks audio.PlaybackHooks) (audio.Track, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	t := &fakeTrack{out: o, clip: clip, hooks: hooks}
	o.tracks = append(o.tracks, t)
	o.active++
	if o.active > o.maxActive {
		o.maxActive = o.active
	}
	return t, nil
}

func (o *fakeOutput) deactivate(t *fakeTrack, stopped bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	t.stopped = stopped
	o.active--
}

func (o *fakeOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.tracks)
}

func (o *fakeOutput) last() *fakeTrack {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.tracks) == 0 {
		return nil
	}
	return o.tracks[len(o.tracks)-1]
}

func (o *fakeOutput) peak() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maxActive
}

type fakeAttempt struct {
	hooks   stt.Hooks
	stopped atomic.Bool
}

func (a *fakeAttempt) Stop() { a.stopped.Store(true) }

type fakeRecognizer struct {
	mu       sync.Mutex
	attempts []*fakeAttempt
	err      error
}

func (r *fakeRecognizer) Start(_ context.Context, hooks stt.Hooks) (stt.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	a := &fakeAttempt{hooks: hooks}
	r.attempts = append(r.attempts, a)
	return a, nil
}

func (r *fakeRecognizer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

func (r *fakeRecognizer) last() *fakeAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.attempts) == 0 {
		return nil
	}
	return r.attempts[len(r.attempts)-1]
}

type fakeChat struct {
	mu         sync.Mutex
	resp       backend.ChatResponse
	err        error
	messages   []string
	categories []string
}

func (c *fakeChat) Chat(_ context.Context, message, category string) (backend.ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	c.categories = append(c.categories, category)
	if c.err != nil {
		return backend.ChatResponse{}, c.err
	}
	resp := c.resp
	resp.Query = message
	return resp, nil
}

func (c *fakeChat) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

// fetchingChat also serves reply audio. When gate is set FetchAudio blocks
// until it is closed.
type fetchingChat struct {
	*fakeChat
	data    []byte
	fetched atomic.Int32
	gate    chan struct{}
	entered chan struct{}
}

func (c *fetchingChat) FetchAudio(ctx context.Context, _ string) ([]byte, string, error) {
	c.fetched.Add(1)
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	return c.data, audio.MIMEMP3, nil
}

type harness struct {
	o      *Orchestrator
	synth  *fakeSynth
	out    *fakeOutput
	rec    *fakeRecognizer
	chat   *fakeChat
	events *Recorder
}

func newHarness(t *testing.T, mutate ...func(*Config, *Dependencies)) *harness {
	t.Helper()
	h := &harness{
		synth:  &fakeSynth{},
		out:    &fakeOutput{},
		rec:    &fakeRecognizer{},
		chat:   &fakeChat{},
		events: &Recorder{},
	}
	cfg := Config{
		WelcomeDelay:     time.Hour,
		ErrorSpeechDelay: 10 * time.Millisecond,
	}
	deps := Dependencies{
		Chat:        h.chat,
		Synthesizer: h.synth,
		Recognizer:  h.rec,
		Output:      h.out,
		Sink:        h.events,
		Logger:      zerolog.Nop(),
	}
	for _, m := range mutate {
		m(&cfg, &deps)
	}
	o, err := NewOrchestrator(cfg, deps)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	t.Cleanup(o.Close)
	h.o = o
	return h
}

func (h *harness) lastStatus() Event {
	ev, _ := h.events.Last(EventStatus)
	return ev
}

func (h *harness) statusTexts() []string {
	var out []string
	for _, ev := range h.events.Events() {
		if ev.Kind == EventStatus {
			out = append(out, ev.Text)
		}
	}
	return out
}

type stateLog struct {
	mu       sync.Mutex
	states   []PlaybackState
	failures []*Error
}

func (l *stateLog) observer() PlaybackObserver {
	return PlaybackObserver{
		OnState: func(s PlaybackState) {
			l.mu.Lock()
			l.states = append(l.states, s)
			l.mu.Unlock()
		},
		OnFailure: func(err *Error) {
			l.mu.Lock()
			l.failures = append(l.failures, err)
			l.mu.Unlock()
		},
	}
}

func (l *stateLog) snapshot() ([]PlaybackState, []*Error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]PlaybackState(nil), l.states...), append([]*Error(nil), l.failures...)
}
