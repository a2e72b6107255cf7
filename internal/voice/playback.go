package voice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nextstep-health/nextstep-voice/internal/audio"
	"github.com/nextstep-health/nextstep-voice/internal/observability"
	"github.com/nextstep-health/nextstep-voice/internal/tts"
	"github.com/rs/zerolog"
)

type PlaybackState string

const (
	PlaybackIdle    PlaybackState = "idle"
	PlaybackLoading PlaybackState = "loading"
	PlaybackReady   PlaybackState = "ready"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackEnded   PlaybackState = "ended"
	PlaybackFailed  PlaybackState = "failed"
)

var errClipReleased = errors.New("clip already released")

// PlaybackObserver receives playback transitions. OnState reports Loading,
// Ready, Playing, Ended (natural completion), Idle (stopped) and Failed.
// OnFailure follows Failed, or reports a synthesis failure.
type PlaybackObserver struct {
	OnState   func(PlaybackState)
	OnFailure func(*Error)
}

type SpeakOptions struct {
	// Voice is the synthesis voice id; it is part of the cache key.
	Voice string
	OnEnd func()
	// Retry skips the initial stop so a recovery phrase does not cut off audio
	// that is still playing while it is synthesized.
	Retry bool
	// Guard is checked before synthesis starts and again while the clip is
	// installed for output. Once it reports false the request is dropped.
	Guard func() bool
}

type playbackSession struct {
	id    string
	clip  *audio.Clip
	state PlaybackState
	track audio.Track
	onEnd func()
}

// PlaybackController owns the single playback session and the audio cache.
type PlaybackController struct {
	synth    tts.Synthesizer
	output   audio.Output
	cache    *audio.Cache
	model    string
	observer PlaybackObserver
	metrics  *observability.Metrics
	logger   zerolog.Logger

	startMu sync.Mutex

	mu      sync.Mutex
	session *playbackSession
	// gen increments on every supersession; a synthesis result is played only
	// if pending still equals the generation it started under.
	gen     uint64
	pending uint64
}

func NewPlaybackController(
	synth tts.Synthesizer,
	output audio.Output,
	cache *audio.Cache,
	model string,
	observer PlaybackObserver,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PlaybackController {
	if cache == nil {
		cache = audio.NewCache(audio.DefaultCacheSize)
	}
	if strings.TrimSpace(model) == "" {
		model = "tts-1"
	}
	return &PlaybackController{
		synth:    synth,
		output:   output,
		cache:    cache,
		model:    model,
		observer: observer,
		metrics:  metrics,
		logger:   logger.With().Str("component", "playback").Logger(),
	}
}

func (p *PlaybackController) Cache() *audio.Cache { return p.cache }

// State reports the current session state, or Loading while synthesis is pending.
func (p *PlaybackController) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *PlaybackController) stateLocked() PlaybackState {
	if p.session != nil {
		return p.session.state
	}
	if p.pending != 0 {
		return PlaybackLoading
	}
	return PlaybackIdle
}

// Active reports whether audio is loading, playing or being synthesized.
func (p *PlaybackController) Active() bool {
	switch p.State() {
	case PlaybackLoading, PlaybackReady, PlaybackPlaying:
		return true
	default:
		return false
	}
}

// Speak synthesizes text (or reuses a cached clip) and plays it. It blocks
// until playback has started or failed, not until it ends.
func (p *PlaybackController) Speak(ctx context.Context, text string, opts SpeakOptions) {
	spoken := speechText(text)
	if spoken == "" || !opts.allowed() {
		return
	}
	if !opts.Retry {
		p.Stop()
	}

	key := audio.CacheKey{Text: spoken, Voice: opts.Voice}
	if clip, ok := p.cache.Get(key); ok {
		p.metrics.CacheLookup(true)
		p.Play(clip, opts)
		return
	}
	p.metrics.CacheLookup(false)

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.pending = gen
	p.mu.Unlock()
	p.notify(PlaybackLoading)

	started := time.Now()
	clip, err := p.synth.Synthesize(ctx, spoken, opts.Voice, p.model)

	p.mu.Lock()
	current := p.pending == gen
	if current {
		p.pending = 0
	}
	p.mu.Unlock()

	if err != nil {
		p.metrics.Synthesis("error", time.Since(started))
		if !current {
			p.logger.Debug().Err(err).Msg("superseded synthesis failed")
			return
		}
		p.notify(PlaybackIdle)
		p.failure(newError(KindSynthesis, "", err))
		return
	}
	p.metrics.Synthesis("ok", time.Since(started))

	// The cache takes the creator's reference.
	p.cache.Put(key, clip)
	if !current {
		p.logger.Debug().Str("voice", opts.Voice).Msg("synthesis superseded, cached only")
		return
	}
	if !p.Play(clip, opts) {
		// Loading was reported above and nothing replaced it.
		p.notify(PlaybackIdle)
	}
}

// PlayClip tears down any current session and plays clip in a new one.
// The session holds its own clip reference.
func (p *PlaybackController) PlayClip(clip *audio.Clip, onEnd func()) {
	p.Play(clip, SpeakOptions{OnEnd: onEnd})
}

// Play is PlayClip with the Guard and OnEnd of opts. It returns false when
// the guard rejected the clip; nothing is torn down or reported in that case.
func (p *PlaybackController) Play(clip *audio.Clip, opts SpeakOptions) bool {
	if clip == nil || !clip.Retain() {
		p.notify(PlaybackFailed)
		p.failure(newError(KindPlayback, "", errClipReleased))
		return true
	}

	s := &playbackSession{
		id:    uuid.NewString(),
		clip:  clip,
		state: PlaybackLoading,
		onEnd: opts.OnEnd,
	}

	// startMu orders output starts so a superseded track is always stopped
	// before the next one begins.
	p.startMu.Lock()
	p.mu.Lock()
	if !opts.allowed() {
		p.mu.Unlock()
		p.startMu.Unlock()
		clip.Release()
		p.logger.Debug().Msg("playback dropped by guard")
		return false
	}
	prev := p.session
	p.session = s
	p.gen++
	p.pending = 0
	p.mu.Unlock()

	prev.teardown()

	p.mu.Lock()
	current := p.session == s
	p.mu.Unlock()
	if !current {
		// Stopped before the output was touched; Stop released the clip.
		p.startMu.Unlock()
		return true
	}
	p.notify(PlaybackLoading)

	track, err := p.output.Start(clip, audio.PlaybackHooks{
		OnReady:   func() { p.advance(s.id, PlaybackReady) },
		OnPlaying: func() { p.advance(s.id, PlaybackPlaying) },
		OnEnded:   func() { p.finish(s.id) },
		OnError:   func(err error) { p.fail(s.id, err) },
	})
	if err == nil {
		p.mu.Lock()
		current := p.session == s
		if current {
			s.track = track
		}
		p.mu.Unlock()
		if !current {
			// Stopped while the output was starting.
			track.Stop()
		}
	}
	p.startMu.Unlock()

	if err != nil {
		p.fail(s.id, err)
	}
	return true
}

// Stop tears down the current session and cancels interest in any pending
// synthesis. It is synchronous and idempotent.
func (p *PlaybackController) Stop() {
	p.mu.Lock()
	s := p.session
	wasActive := s != nil || p.pending != 0
	p.session = nil
	p.gen++
	p.pending = 0
	p.mu.Unlock()

	s.teardown()
	if wasActive {
		p.notify(PlaybackIdle)
	}
}

func (p *PlaybackController) advance(id string, next PlaybackState) {
	p.mu.Lock()
	s := p.session
	if s == nil || s.id != id || rank(next) <= rank(s.state) {
		p.mu.Unlock()
		return
	}
	s.state = next
	p.mu.Unlock()

	p.notify(next)
}

func (p *PlaybackController) finish(id string) {
	p.mu.Lock()
	s := p.session
	if s == nil || s.id != id {
		p.mu.Unlock()
		return
	}
	s.state = PlaybackEnded
	p.session = nil
	p.mu.Unlock()

	s.clip.Release()
	p.notify(PlaybackEnded)
	if s.onEnd != nil {
		s.onEnd()
	}
}

func (p *PlaybackController) fail(id string, err error) {
	p.mu.Lock()
	s := p.session
	if s == nil || s.id != id {
		p.mu.Unlock()
		return
	}
	s.state = PlaybackFailed
	p.session = nil
	p.mu.Unlock()

	s.teardown()
	p.notify(PlaybackFailed)
	p.failure(newError(KindPlayback, "", err))
}

func (p *PlaybackController) notify(state PlaybackState) {
	p.metrics.PlaybackState(string(state))
	if p.observer.OnState != nil {
		p.observer.OnState(state)
	}
}

func (p *PlaybackController) failure(err *Error) {
	p.logger.Warn().Err(err).Str("kind", string(err.Kind)).Msg("playback failure")
	if p.observer.OnFailure != nil {
		p.observer.OnFailure(err)
	}
}

func (o SpeakOptions) allowed() bool {
	return o.Guard == nil || o.Guard()
}

// teardown stops output and drops the session's clip reference. Safe on nil.
func (s *playbackSession) teardown() {
	if s == nil {
		return
	}
	if s.track != nil {
		s.track.Stop()
	}
	s.clip.Release()
}

func rank(s PlaybackState) int {
	switch s {
	case PlaybackLoading:
		return 1
	case PlaybackReady:
		return 2
	case PlaybackPlaying:
		return 3
	default:
		return 0
	}
}
