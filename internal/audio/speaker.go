package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/hajimehoshi/oto/v2"
	"github.com/rs/zerolog"
)

const speakerPollInterval = 15 * time.Millisecond

// Speaker plays MP3 clips on the default output device. oto allows a single
// context per process, so the first clip fixes the device sample rate.
type Speaker struct {
	logger zerolog.Logger

	mu         sync.Mutex
	otoCtx     *oto.Context
	sampleRate int
	tracks     map[*speakerTrack]struct{}
	closed     bool
}

func NewSpeaker(logger zerolog.Logger) *Speaker {
	return &Speaker{
		logger: logger.With().Str("component", "speaker").Logger(),
		tracks: make(map[*speakerTrack]struct{}),
	}
}

func (s *Speaker) Start(clip *Clip, hooks PlaybackHooks) (Track, error) {
	if s.isClosed() {
		return nil, ErrOutputClosed
	}
	if clip == nil {
		return nil, ErrEmptyClip
	}
	data := clip.Bytes()
	if len(data) == 0 {
		return nil, ErrEmptyClip
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mp3 decoder: %w", err)
	}
	otoCtx, err := s.context(decoder.SampleRate())
	if err != nil {
		return nil, err
	}

	t := &speakerTrack{
		player: otoCtx.NewPlayer(decoder),
		stop:   make(chan struct{}),
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.closePlayer()
		return nil, ErrOutputClosed
	}
	s.tracks[t] = struct{}{}
	s.mu.Unlock()
	t.forget = func() {
		s.mu.Lock()
		delete(s.tracks, t)
		s.mu.Unlock()
	}
	go t.run(hooks)
	return t, nil
}

// Close stops every live track and suspends the device. oto keeps one
// context per process and cannot release it, so a closed Speaker refuses
// further clips instead.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	live := make([]*speakerTrack, 0, len(s.tracks))
	for t := range s.tracks {
		live = append(live, t)
	}
	otoCtx := s.otoCtx
	s.mu.Unlock()

	for _, t := range live {
		t.Stop()
	}
	if otoCtx == nil {
		return nil
	}
	if err := otoCtx.Suspend(); err != nil {
		return fmt.Errorf("suspend audio device: %w", err)
	}
	s.logger.Debug().Int("stopped_tracks", len(live)).Msg("audio device suspended")
	return nil
}

func (s *Speaker) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Speaker) context(sampleRate int) (*oto.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrOutputClosed
	}
	if s.otoCtx != nil {
		if sampleRate != s.sampleRate {
			return nil, fmt.Errorf("speaker opened at %d Hz, clip is %d Hz", s.sampleRate, sampleRate)
		}
		return s.otoCtx, nil
	}

	otoCtx, ready, err := oto.NewContext(sampleRate, 2, 2)
	if err != nil {
		return nil, fmt.Errorf("oto context: %w", err)
	}
	<-ready
	s.otoCtx = otoCtx
	s.sampleRate = sampleRate
	s.logger.Debug().Int("sample_rate", sampleRate).Msg("audio device opened")
	return otoCtx, nil
}

type speakerTrack struct {
	player    oto.Player
	stop      chan struct{}
	forget    func()
	stopOnce  sync.Once
	closeOnce sync.Once
}

func (t *speakerTrack) run(hooks PlaybackHooks) {
	defer t.closePlayer()

	if t.stopped() {
		return
	}
	hooks.ready()
	t.player.Play()
	hooks.playing()

	ticker := time.NewTicker(speakerPollInterval)
	defer ticker.Stop()
	for t.player.IsPlaying() {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}
	}
	if t.stopped() {
		return
	}
	if err := t.player.Err(); err != nil {
		hooks.failed(fmt.Errorf("speaker playback: %w", err))
		return
	}
	hooks.ended()
}

func (t *speakerTrack) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

func (t *speakerTrack) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
		t.player.Pause()
	})
	t.closePlayer()
}

func (t *speakerTrack) closePlayer() {
	t.closeOnce.Do(func() {
		_ = t.player.Close()
		if t.forget != nil {
			t.forget()
		}
	})
}
