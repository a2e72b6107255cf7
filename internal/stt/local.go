package stt

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"github.com/nextstep-health/nextstep-voice/internal/audio"
	"github.com/rs/zerolog"
)

// LocalOptions tune end-of-utterance detection for LocalRecognizer.
type LocalOptions struct {
	SampleRate      int
	MaxDuration     time.Duration
	TrailingSilence time.Duration
	// SpeechThreshold is the RMS level (0..1) above which a frame counts as speech.
	SpeechThreshold float64
}

func (o LocalOptions) withDefaults() LocalOptions {
	if o.SampleRate <= 0 {
		o.SampleRate = audio.DefaultCaptureSampleRate
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 8 * time.Second
	}
	if o.TrailingSilence <= 0 {
		o.TrailingSilence = 1200 * time.Millisecond
	}
	if o.SpeechThreshold <= 0 {
		o.SpeechThreshold = 0.02
	}
	return o
}

// LocalRecognizer records one utterance from a Source, ends it on trailing
// silence or MaxDuration, and transcribes it.
type LocalRecognizer struct {
	source      Source
	transcriber Transcriber
	opts        LocalOptions
	logger      zerolog.Logger
}

func NewLocalRecognizer(source Source, transcriber Transcriber, opts LocalOptions, logger zerolog.Logger) *LocalRecognizer {
	return &LocalRecognizer{
		source:      source,
		transcriber: transcriber,
		opts:        opts.withDefaults(),
		logger:      logger.With().Str("component", "local_recognizer").Logger(),
	}
}

func (r *LocalRecognizer) Start(ctx context.Context, hooks Hooks) (Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	a := &localAttempt{
		opts:   r.opts,
		cancel: cancel,
		frames: make(chan []byte, 64),
		done:   make(chan struct{}),
	}

	stream, err := r.source.Open(r.opts.SampleRate, a.push)
	if err != nil {
		cancel()
		return nil, err
	}
	a.stream = stream

	go a.run(ctx, r.transcriber, hooks, r.logger)
	return a, nil
}

type localAttempt struct {
	opts   LocalOptions
	cancel context.CancelFunc
	stream io.Closer

	mu      sync.Mutex
	closed  bool
	frames  chan []byte
	stopped bool
	done    chan struct{}
}

func (a *localAttempt) push(frame []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.frames <- frame:
	default:
		// Consumer fell behind; dropping a frame only shortens the recording.
	}
}

func (a *localAttempt) closeStream() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()
	_ = a.stream.Close()
}

func (a *localAttempt) Stop() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
	a.cancel()
	a.closeStream()
}

func (a *localAttempt) isStopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

func (a *localAttempt) run(ctx context.Context, transcriber Transcriber, hooks Hooks, logger zerolog.Logger) {
	defer close(a.done)
	defer a.cancel()

	hooks.start()
	pcm, heard, err := a.record(ctx)
	a.closeStream()
	if a.isStopped() {
		return
	}
	if err != nil {
		hooks.fail(CodeAudioCapture, err.Error())
		hooks.end()
		return
	}
	if !heard {
		hooks.fail(CodeNoSpeech, "no speech detected")
		hooks.end()
		return
	}

	text, err := transcriber.Transcribe(ctx, audio.EncodeWAV(pcm, a.opts.SampleRate))
	if a.isStopped() {
		return
	}
	if err != nil {
		logger.Warn().Err(err).Msg("transcription failed")
		hooks.fail(CodeNetwork, err.Error())
		hooks.end()
		return
	}
	if text != "" {
		hooks.result(text)
	}
	hooks.end()
}

func (a *localAttempt) record(ctx context.Context) ([]byte, bool, error) {
	deadline := time.NewTimer(a.opts.MaxDuration)
	defer deadline.Stop()

	var (
		pcm       []byte
		heard     bool
		silence   time.Duration
		bytesPerS = float64(a.opts.SampleRate * 2)
	)
	for {
		select {
		case <-ctx.Done():
			if a.isStopped() {
				return nil, false, nil
			}
			return nil, false, ctx.Err()
		case <-deadline.C:
			return pcm, heard, nil
		case frame := <-a.frames:
			pcm = append(pcm, frame...)
			frameDur := time.Duration(float64(len(frame)) / bytesPerS * float64(time.Second))
			if rmsLevel(frame) >= a.opts.SpeechThreshold {
				heard = true
				silence = 0
				continue
			}
			if heard {
				silence += frameDur
				if silence >= a.opts.TrailingSilence {
					return pcm, true, nil
				}
			}
		}
	}
}

// rmsLevel returns the normalized RMS of PCM16LE samples.
func rmsLevel(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(frame[i*2:]))) / math.MaxInt16
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

var errRecognizerUnavailable = errors.New("speech recognition unavailable")

// Unavailable is a Recognizer for hosts without a microphone or transcriber.
type Unavailable struct{}

func (Unavailable) Start(context.Context, Hooks) (Handle, error) {
	return nil, errRecognizerUnavailable
}
