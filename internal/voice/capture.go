package voice

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/nextstep-health/nextstep-voice/internal/observability"
	"github.com/nextstep-health/nextstep-voice/internal/stt"
	"github.com/rs/zerolog"
)

type CaptureState string

const (
	CaptureIdle      CaptureState = "idle"
	CaptureListening CaptureState = "listening"
	CaptureCompleted CaptureState = "completed"
	CaptureFailed    CaptureState = "failed"
)

const codeStartFailed = "start-failed"

// CaptureObserver receives the outcome of recognition attempts. OnIdle
// reports a normal end; hadResult is true when a transcript was delivered.
type CaptureObserver struct {
	OnListening  func()
	OnTranscript func(text string)
	OnFailure    func(*Error)
	OnIdle       func(hadResult bool)
}

// activity reports whether playback currently excludes capture.
type activity interface {
	Active() bool
}

type captureSession struct {
	id        string
	state     CaptureState
	handle    stt.Handle
	delivered bool
}

// CaptureController runs one recognition attempt at a time. Starting while
// listening or while playback is active is rejected, never queued.
type CaptureController struct {
	recognizer stt.Recognizer
	playback   activity
	observer   CaptureObserver
	metrics    *observability.Metrics
	logger     zerolog.Logger

	mu      sync.Mutex
	session *captureSession
}

func NewCaptureController(
	recognizer stt.Recognizer,
	playback activity,
	observer CaptureObserver,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *CaptureController {
	return &CaptureController{
		recognizer: recognizer,
		playback:   playback,
		observer:   observer,
		metrics:    metrics,
		logger:     logger.With().Str("component", "capture").Logger(),
	}
}

func (c *CaptureController) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return CaptureIdle
	}
	return c.session.state
}

// Start begins a one-shot recognition attempt. It reports false when the
// attempt was rejected or could not start.
func (c *CaptureController) Start(ctx context.Context) bool {
	if c.recognizer == nil {
		return false
	}
	if c.playback != nil && c.playback.Active() {
		c.metrics.CaptureOutcome("rejected")
		return false
	}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		c.metrics.CaptureOutcome("rejected")
		return false
	}
	s := &captureSession{id: uuid.NewString(), state: CaptureListening}
	c.session = s
	c.mu.Unlock()

	handle, err := c.recognizer.Start(ctx, stt.Hooks{
		OnStart:  func() { c.started(s.id) },
		OnResult: func(text string) { c.result(s.id, text) },
		OnError:  func(code, message string) { c.failed(s.id, code, errors.New(message)) },
		OnEnd:    func() { c.ended(s.id) },
	})
	if err != nil {
		c.failed(s.id, codeStartFailed, err)
		return false
	}

	c.mu.Lock()
	if c.session == s {
		s.handle = handle
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()
	// Stopped while the recognizer was starting.
	handle.Stop()
	return true
}

// Stop cancels the in-progress attempt. It is idempotent and emits nothing.
func (c *CaptureController) Stop() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()

	if s == nil {
		return
	}
	c.metrics.CaptureOutcome("aborted")
	if s.handle != nil {
		s.handle.Stop()
	}
}

func (c *CaptureController) current(id string) (*captureSession, bool) {
	if c.session == nil || c.session.id != id {
		return nil, false
	}
	return c.session, true
}

func (c *CaptureController) started(id string) {
	c.mu.Lock()
	_, ok := c.current(id)
	c.mu.Unlock()
	if ok && c.observer.OnListening != nil {
		c.observer.OnListening()
	}
}

func (c *CaptureController) result(id, text string) {
	c.mu.Lock()
	s, ok := c.current(id)
	if !ok || s.delivered || text == "" {
		c.mu.Unlock()
		return
	}
	s.delivered = true
	s.state = CaptureCompleted
	c.mu.Unlock()

	c.metrics.CaptureOutcome("transcript")
	if c.observer.OnTranscript != nil {
		c.observer.OnTranscript(text)
	}
}

func (c *CaptureController) failed(id, code string, err error) {
	c.mu.Lock()
	s, ok := c.current(id)
	if !ok {
		c.mu.Unlock()
		return
	}
	s.state = CaptureFailed
	c.session = nil
	handle := s.handle
	c.mu.Unlock()

	if handle != nil {
		handle.Stop()
	}
	c.metrics.CaptureOutcome("error")
	verr := newError(KindRecognition, code, err)
	c.logger.Warn().Err(verr).Msg("recognition failed")
	if c.observer.OnFailure != nil {
		c.observer.OnFailure(verr)
	}
}

func (c *CaptureController) ended(id string) {
	c.mu.Lock()
	s, ok := c.current(id)
	if !ok {
		c.mu.Unlock()
		return
	}
	c.session = nil
	delivered := s.delivered
	c.mu.Unlock()

	if !delivered {
		c.metrics.CaptureOutcome("no_result")
	}
	if c.observer.OnIdle != nil {
		c.observer.OnIdle(delivered)
	}
}
