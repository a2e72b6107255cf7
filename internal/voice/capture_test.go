package voice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nextstep-health/nextstep-voice/internal/stt"
	"github.com/rs/zerolog"
)

type busy bool

func (b busy) Active() bool { return bool(b) }

type captureLog struct {
	mu          sync.Mutex
	listening   int
	transcripts []string
	failures    []*Error
	idle        []bool
}

func (l *captureLog) observer() CaptureObserver {
	return CaptureObserver{
		OnListening: func() {
			l.mu.Lock()
			l.listening++
			l.mu.Unlock()
		},
		OnTranscript: func(text string) {
			l.mu.Lock()
			l.transcripts = append(l.transcripts, text)
			l.mu.Unlock()
		},
		OnFailure: func(err *Error) {
			l.mu.Lock()
			l.failures = append(l.failures, err)
			l.mu.Unlock()
		},
		OnIdle: func(hadResult bool) {
			l.mu.Lock()
			l.idle = append(l.idle, hadResult)
			l.mu.Unlock()
		},
	}
}

func TestCaptureRejectedWhilePlaybackActive(t *testing.T) {
	rec := &fakeRecognizer{}
	c := NewCaptureController(rec, busy(true), CaptureObserver{}, nil, zerolog.Nop())

	if c.Start(context.Background()) {
		t.Fatalf("Start() = true while playback is active")
	}
	if rec.count() != 0 {
		t.Fatalf("recognizer started %d times, want 0", rec.count())
	}
}

func TestCaptureRejectsSecondAttempt(t *testing.T) {
	rec := &fakeRecognizer{}
	c := NewCaptureController(rec, busy(false), CaptureObserver{}, nil, zerolog.Nop())

	if !c.Start(context.Background()) {
		t.Fatalf("first Start() = false")
	}
	if c.Start(context.Background()) {
		t.Fatalf("second Start() = true while listening")
	}
	if rec.count() != 1 {
		t.Fatalf("recognizer started %d times, want 1", rec.count())
	}
}

func TestCaptureDeliversTranscriptOnce(t *testing.T) {
	rec := &fakeRecognizer{}
	log := &captureLog{}
	c := NewCaptureController(rec, busy(false), log.observer(), nil, zerolog.Nop())

	c.Start(context.Background())
	a := rec.last()
	a.hooks.OnStart()
	a.hooks.OnResult("")
	a.hooks.OnResult("I need help with rent")
	a.hooks.OnResult("duplicate")
	if c.State() != CaptureCompleted {
		t.Fatalf("State() = %q, want completed", c.State())
	}
	a.hooks.OnEnd()

	if log.listening != 1 {
		t.Fatalf("listening = %d, want 1", log.listening)
	}
	if len(log.transcripts) != 1 || log.transcripts[0] != "I need help with rent" {
		t.Fatalf("transcripts = %v", log.transcripts)
	}
	if len(log.idle) != 1 || !log.idle[0] {
		t.Fatalf("idle = %v, want [true]", log.idle)
	}
	if c.State() != CaptureIdle {
		t.Fatalf("State() = %q, want idle", c.State())
	}
}

func TestCaptureErrorClearsSessionAndIgnoresEnd(t *testing.T) {
	rec := &fakeRecognizer{}
	log := &captureLog{}
	c := NewCaptureController(rec, busy(false), log.observer(), nil, zerolog.Nop())

	c.Start(context.Background())
	a := rec.last()
	a.hooks.OnError(stt.CodeNoSpeech, "nothing heard")
	a.hooks.OnEnd()

	if len(log.failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(log.failures))
	}
	if got := log.failures[0]; got.Kind != KindRecognition || got.Code != stt.CodeNoSpeech {
		t.Fatalf("failure = %+v", got)
	}
	if len(log.idle) != 0 {
		t.Fatalf("end after error reported idle: %v", log.idle)
	}
	if !a.stopped.Load() {
		t.Fatalf("recognizer handle not stopped after error")
	}
	if c.State() != CaptureIdle {
		t.Fatalf("State() = %q, want idle", c.State())
	}
}

func TestCaptureStopIsSilent(t *testing.T) {
	rec := &fakeRecognizer{}
	log := &captureLog{}
	c := NewCaptureController(rec, busy(false), log.observer(), nil, zerolog.Nop())

	c.Start(context.Background())
	a := rec.last()
	c.Stop()
	c.Stop()
	a.hooks.OnResult("too late")
	a.hooks.OnEnd()

	if !a.stopped.Load() {
		t.Fatalf("handle not stopped")
	}
	if len(log.transcripts) != 0 || len(log.idle) != 0 || len(log.failures) != 0 {
		t.Fatalf("stopped attempt leaked events: %+v", log)
	}
	if !c.Start(context.Background()) {
		t.Fatalf("Start() after Stop() = false")
	}
}

func TestCaptureStartFailure(t *testing.T) {
	rec := &fakeRecognizer{err: errors.New("microphone busy")}
	log := &captureLog{}
	c := NewCaptureController(rec, busy(false), log.observer(), nil, zerolog.Nop())

	if c.Start(context.Background()) {
		t.Fatalf("Start() = true with failing recognizer")
	}
	if len(log.failures) != 1 || log.failures[0].Code != codeStartFailed {
		t.Fatalf("failures = %v, want start-failed", log.failures)
	}
	if c.State() != CaptureIdle {
		t.Fatalf("State() = %q, want idle", c.State())
	}
}

func TestCaptureWithoutRecognizer(t *testing.T) {
	c := NewCaptureController(nil, busy(false), CaptureObserver{}, nil, zerolog.Nop())
	if c.Start(context.Background()) {
		t.Fatalf("Start() = true without a recognizer")
	}
}
