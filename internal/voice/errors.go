package voice

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindRecognition ErrorKind = "recognition"
	KindSynthesis   ErrorKind = "synthesis"
	KindPlayback    ErrorKind = "playback"
	KindChat        ErrorKind = "chat"
)

// Error is a voice pipeline failure. Code carries the recognizer's error code
// for recognition failures.
type Error struct {
	Kind ErrorKind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error (%s): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SpeechPipeline reports whether the failure came from synthesis or playback.
// Such failures must never trigger recovery speech.
func (e *Error) SpeechPipeline() bool {
	return e.Kind == KindSynthesis || e.Kind == KindPlayback
}

func newError(kind ErrorKind, code string, err error) *Error {
	if err == nil {
		err = errors.New(string(kind) + " failed")
	}
	return &Error{Kind: kind, Code: code, Err: err}
}

// KindOf extracts the voice error kind from err.
func KindOf(err error) (ErrorKind, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind, true
	}
	return "", false
}
