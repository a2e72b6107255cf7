package voice

import (
	"sync"
	"time"

	"github.com/nextstep-health/nextstep-voice/internal/backend"
)

// Capability records whether the host can capture speech. It is negotiated
// once per session.
type Capability int

const (
	CapabilityUnsupported Capability = iota
	CapabilitySupported
)

func (c Capability) String() string {
	if c == CapabilitySupported {
		return "supported"
	}
	return "unsupported"
}

// StatusState is the indicator state shown next to the status text.
type StatusState string

const (
	StatusInactive   StatusState = "inactive"
	StatusReady      StatusState = "ready"
	StatusLoading    StatusState = "loading"
	StatusSpeaking   StatusState = "speaking"
	StatusListening  StatusState = "listening"
	StatusProcessing StatusState = "processing"
	StatusError      StatusState = "error"
)

type EventKind string

const (
	EventStatus           EventKind = "status"
	EventVoiceMode        EventKind = "voice_mode"
	EventUserMessage      EventKind = "user_message"
	EventAssistantMessage EventKind = "assistant_message"
	EventVoiceError       EventKind = "voice_error"
	EventToneChanged      EventKind = "tone_changed"
	EventUnsupported      EventKind = "unsupported"
	EventCategory         EventKind = "category"
	EventThreadCleared    EventKind = "thread_cleared"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat bubble handed to the renderer.
type Message struct {
	ID             string
	Role           Role
	Text           string
	Voice          bool
	ResourcesFound int
	Resources      []backend.Resource
	CreatedAt      time.Time
}

// Event is a structured update for the rendering collaborator. Only the
// fields relevant to Kind are set.
type Event struct {
	Kind     EventKind
	State    StatusState
	Text     string
	Active   bool
	Message  *Message
	Tone     *ToneProfile
	Category string
}

// Sink receives orchestrator events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// MultiSink fans events out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// Recorder is an in-memory Sink that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Last returns the most recent event of the given kind.
func (r *Recorder) Last(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func (r *Recorder) Count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
