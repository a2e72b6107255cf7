package audio

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrEmptyClip    = errors.New("audio: empty clip")
	ErrOutputClosed = errors.New("audio: output closed")
)

// PlaybackHooks receive lifecycle notifications from an Output. Hooks may be
// called from any goroutine, but never before Start has returned.
type PlaybackHooks struct {
	OnReady   func()
	OnPlaying func()
	OnEnded   func()
	OnError   func(error)
}

func (h PlaybackHooks) ready() {
	if h.OnReady != nil {
		h.OnReady()
	}
}

func (h PlaybackHooks) playing() {
	if h.OnPlaying != nil {
		h.OnPlaying()
	}
}

func (h PlaybackHooks) ended() {
	if h.OnEnded != nil {
		h.OnEnded()
	}
}

func (h PlaybackHooks) failed(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// Track is one clip being rendered by an Output.
type Track interface {
	Stop()
}

// Output renders clips: a local speaker, a remote browser, or nothing at all.
type Output interface {
	Start(clip *Clip, hooks PlaybackHooks) (Track, error)
}

// NullOutput pretends to play each clip for a fixed duration. It backs
// AUDIO_OUTPUT=mock and headless runs.
type NullOutput struct {
	Duration time.Duration
}

func NewNullOutput(d time.Duration) *NullOutput {
	return &NullOutput{Duration: d}
}

func (o *NullOutput) Start(clip *Clip, hooks PlaybackHooks) (Track, error) {
	if clip == nil || clip.Size() == 0 {
		return nil, ErrEmptyClip
	}
	t := &nullTrack{stop: make(chan struct{})}
	go func() {
		select {
		case <-t.stop:
			return
		default:
		}
		hooks.ready()
		hooks.playing()
		timer := time.NewTimer(o.Duration)
		defer timer.Stop()
		select {
		case <-t.stop:
		case <-timer.C:
			if t.finish() {
				hooks.ended()
			}
		}
	}()
	return t, nil
}

type nullTrack struct {
	once sync.Once
	stop chan struct{}
}

// finish reports whether the track ended naturally before any Stop.
func (t *nullTrack) finish() bool {
	finished := false
	t.once.Do(func() {
		finished = true
		close(t.stop)
	})
	return finished
}

func (t *nullTrack) Stop() {
	t.once.Do(func() { close(t.stop) })
}
