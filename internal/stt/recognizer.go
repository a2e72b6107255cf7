package stt

import "context"

// Error codes reported through Hooks.OnError. They mirror the codes browsers
// use for speech recognition so both recognizers read the same upstream.
const (
	CodeNoSpeech     = "no-speech"
	CodeAudioCapture = "audio-capture"
	CodeNetwork      = "network"
	CodeAborted      = "aborted"
)

// Hooks receive the events of one recognition attempt. OnResult fires at most
// once; OnEnd fires last unless the attempt was stopped.
type Hooks struct {
	OnStart  func()
	OnResult func(transcript string)
	OnError  func(code, message string)
	OnEnd    func()
}

func (h Hooks) start() {
	if h.OnStart != nil {
		h.OnStart()
	}
}

func (h Hooks) result(text string) {
	if h.OnResult != nil {
		h.OnResult(text)
	}
}

func (h Hooks) fail(code, message string) {
	if h.OnError != nil {
		h.OnError(code, message)
	}
}

func (h Hooks) end() {
	if h.OnEnd != nil {
		h.OnEnd()
	}
}

// Handle controls one in-flight attempt.
type Handle interface {
	Stop()
}

// Recognizer runs one-shot recognition attempts: a single utterance, then end.
type Recognizer interface {
	Start(ctx context.Context, hooks Hooks) (Handle, error)
}
