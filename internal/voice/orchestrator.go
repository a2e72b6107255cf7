package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nextstep-health/nextstep-voice/internal/audio"
	"github.com/nextstep-health/nextstep-voice/internal/backend"
	"github.com/nextstep-health/nextstep-voice/internal/observability"
	"github.com/nextstep-health/nextstep-voice/internal/stt"
	"github.com/nextstep-health/nextstep-voice/internal/tts"
	"github.com/rs/zerolog"
)

const (
	WelcomeText    = "Hello! I'm NextStep, your healthcare navigator. Voice mode is now active. Tap 'Tap to Speak' and tell me what kind of help you need."
	RecoveryPhrase = "I'm sorry, there was an issue. Please try again."
	ChatApology    = "I'm sorry, I'm having trouble connecting right now. Please try again in a moment, or call 211 for immediate assistance."

	DefaultUnsupportedNotice = "Voice conversation is not supported in your browser. Please use a modern browser like Chrome, Edge, or Safari for voice features."

	statusPreparing     = "Voice mode active - preparing..."
	statusReadyToStart  = "Voice mode active - tap \"Tap to Speak\" to start"
	statusSpeakAgain    = "Tap to speak again"
	statusListening     = "Listening... speak now"
	statusProcessing    = "Processing your request..."
	statusLoadingAudio  = "Loading audio..."
	statusErrorOccurred = "Error occurred - tap to try again"
	statusInactive      = "Click to start talking"

	chatFailureMessage = "Sorry, I had trouble processing your request. Please try again."

	defaultErrorSpeechDelay = 500 * time.Millisecond
)

// ChatClient is the remote chat collaborator.
type ChatClient interface {
	Chat(ctx context.Context, message, category string) (backend.ChatResponse, error)
}

// AudioFetcher downloads pre-generated reply audio. Chat clients that also
// implement it let replies carrying an audio_url skip synthesis.
type AudioFetcher interface {
	FetchAudio(ctx context.Context, ref string) ([]byte, string, error)
}

type Config struct {
	Tones             *ToneSet
	DefaultTone       string
	Model             string
	WelcomeDelay      time.Duration
	ErrorSpeechDelay  time.Duration
	UnsupportedNotice string
}

type Dependencies struct {
	Chat        ChatClient
	Synthesizer tts.Synthesizer
	// Recognizer may be nil on hosts without speech capture.
	Recognizer stt.Recognizer
	Output     audio.Output
	Sink       Sink
	Cache      *audio.Cache
	Metrics    *observability.Metrics
	Logger     zerolog.Logger
}

// Orchestrator drives one voice session: mode entry and exit, turn taking
// between capture and playback, tone changes and error recovery.
type Orchestrator struct {
	cfg      Config
	chat     ChatClient
	sink     Sink
	metrics  *observability.Metrics
	logger   zerolog.Logger
	playback *PlaybackController
	capture  *CaptureController

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	active        bool
	epoch         uint64
	closed        bool
	capability    Capability
	tone          ToneProfile
	voices        []SystemVoice
	selected      SystemVoice
	hasSelected   bool
	category      string
	handlingError bool
	timers        map[*time.Timer]struct{}
}

func NewOrchestrator(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if deps.Chat == nil {
		return nil, errors.New("voice: chat client is required")
	}
	if deps.Synthesizer == nil {
		return nil, errors.New("voice: synthesizer is required")
	}
	if deps.Output == nil {
		return nil, errors.New("voice: audio output is required")
	}
	if deps.Sink == nil {
		deps.Sink = SinkFunc(func(Event) {})
	}
	if cfg.Tones == nil {
		cfg.Tones = DefaultTones()
	}
	if cfg.DefaultTone == "" {
		cfg.DefaultTone = DefaultToneID
	}
	if cfg.WelcomeDelay < 0 {
		cfg.WelcomeDelay = 0
	}
	if cfg.ErrorSpeechDelay <= 0 {
		cfg.ErrorSpeechDelay = defaultErrorSpeechDelay
	}
	if cfg.UnsupportedNotice == "" {
		cfg.UnsupportedNotice = DefaultUnsupportedNotice
	}
	tone, ok := cfg.Tones.Get(cfg.DefaultTone)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTone, cfg.DefaultTone)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:     cfg,
		chat:    deps.Chat,
		sink:    deps.Sink,
		metrics: deps.Metrics,
		logger:  deps.Logger.With().Str("component", "orchestrator").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		tone:    tone,
		timers:  make(map[*time.Timer]struct{}),
	}
	if deps.Recognizer != nil {
		o.capability = CapabilitySupported
	}

	o.playback = NewPlaybackController(
		deps.Synthesizer,
		deps.Output,
		deps.Cache,
		cfg.Model,
		PlaybackObserver{OnState: o.onPlaybackState, OnFailure: o.onPlaybackFailure},
		deps.Metrics,
		deps.Logger,
	)
	o.playback.Cache().SetEvictHook(func(audio.CacheKey) { o.metrics.CacheEvicted() })
	o.capture = NewCaptureController(
		deps.Recognizer,
		o.playback,
		CaptureObserver{
			OnListening:  o.onListening,
			OnTranscript: o.onTranscript,
			OnFailure:    o.onCaptureFailure,
			OnIdle:       o.onCaptureIdle,
		},
		deps.Metrics,
		deps.Logger,
	)
	return o, nil
}

func (o *Orchestrator) Playback() *PlaybackController { return o.playback }
func (o *Orchestrator) Capture() *CaptureController   { return o.capture }

func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

func (o *Orchestrator) Tone() ToneProfile {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tone
}

func (o *Orchestrator) Category() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.category
}

func (o *Orchestrator) Capability() Capability {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.capability
}

// SetCapability records the negotiated capture capability.
func (o *Orchestrator) SetCapability(c Capability) {
	o.mu.Lock()
	o.capability = c
	o.mu.Unlock()
}

// SelectedVoice returns the on-device voice chosen for the current tone.
func (o *Orchestrator) SelectedVoice() (SystemVoice, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selected, o.hasSelected
}

// CatalogReady re-runs voice selection once the on-device catalog is known.
func (o *Orchestrator) CatalogReady(voices []SystemVoice) {
	o.mu.Lock()
	o.voices = append([]SystemVoice(nil), voices...)
	o.selectVoiceLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) selectVoiceLocked() {
	o.selected, o.hasSelected = SelectVoice(o.tone, o.voices)
}

// voiceIDLocked is the synthesis voice for the current tone, falling back to
// the selected on-device voice name.
func (o *Orchestrator) voiceIDLocked() string {
	if o.tone.SynthesisVoiceID != "" {
		return o.tone.SynthesisVoiceID
	}
	if o.hasSelected {
		return o.selected.Name
	}
	return ""
}

func (o *Orchestrator) EnterVoiceMode() {
	o.mu.Lock()
	if o.closed || o.active {
		o.mu.Unlock()
		return
	}
	if o.capability != CapabilitySupported {
		o.mu.Unlock()
		o.emit(Event{Kind: EventUnsupported, Text: o.cfg.UnsupportedNotice})
		return
	}
	o.active = true
	o.epoch++
	epoch := o.epoch
	o.mu.Unlock()

	o.metrics.SessionEvent("voice_enter")
	o.emit(Event{Kind: EventVoiceMode, Active: true})
	o.status(StatusReady, statusPreparing)
	o.after(o.cfg.WelcomeDelay, func() { o.welcome(epoch) })
}

func (o *Orchestrator) welcome(epoch uint64) {
	o.mu.Lock()
	if !o.active || o.epoch != epoch {
		o.mu.Unlock()
		return
	}
	if !o.hasSelected {
		o.selectVoiceLocked()
	}
	voice := o.voiceIDLocked()
	o.mu.Unlock()

	if voice == "" {
		o.status(StatusReady, statusReadyToStart)
		return
	}
	o.playback.Speak(o.ctx, WelcomeText, SpeakOptions{Voice: voice, Guard: o.sessionGuard(epoch)})
}

// sessionGuard reports whether the voice mode session identified by epoch is
// still the live one. Speech started on its behalf is dropped once it is not.
func (o *Orchestrator) sessionGuard(epoch uint64) func() bool {
	return func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.active && !o.closed && o.epoch == epoch
	}
}

// ExitVoiceMode stops capture and playback and leaves voice mode. Calling it
// outside voice mode only stops whatever is running.
func (o *Orchestrator) ExitVoiceMode() {
	o.mu.Lock()
	wasActive := o.active
	o.active = false
	if wasActive {
		o.epoch++
	}
	o.stopTimersLocked()
	o.mu.Unlock()

	o.playback.Stop()
	o.capture.Stop()

	if wasActive {
		o.metrics.SessionEvent("voice_exit")
		o.emit(Event{Kind: EventVoiceMode, Active: false})
		o.status(StatusInactive, statusInactive)
	}
}

func (o *Orchestrator) ToggleVoiceMode() {
	if o.Active() {
		o.ExitVoiceMode()
		return
	}
	o.EnterVoiceMode()
}

// StartListening begins one capture attempt. It is a no-op outside voice
// mode, while listening, or while audio is playing.
func (o *Orchestrator) StartListening() bool {
	if !o.Active() {
		return false
	}
	return o.capture.Start(o.ctx)
}

func (o *Orchestrator) StopListening() {
	o.capture.Stop()
}

func (o *Orchestrator) StopSpeaking() {
	o.playback.Stop()
	if o.Active() {
		o.status(StatusReady, statusSpeakAgain)
	}
}

// Speak plays text in the current tone, e.g. for a "repeat" affordance.
func (o *Orchestrator) Speak(ctx context.Context, text string) {
	o.mu.Lock()
	voice := o.voiceIDLocked()
	o.mu.Unlock()
	o.playback.Speak(ctx, text, SpeakOptions{Voice: voice})
}

// HandleTranscript sends a spoken (or suggested) utterance to chat, renders
// the reply and speaks it if voice mode is still the same session.
func (o *Orchestrator) HandleTranscript(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	o.mu.Lock()
	epoch := o.epoch
	category := o.category
	o.mu.Unlock()

	o.status(StatusProcessing, statusProcessing)
	o.emitMessage(RoleUser, text, true, nil)

	resp, err := o.sendChat(ctx, text, category)
	if err != nil {
		o.emitMessage(RoleAssistant, ChatApology, true, nil)
		o.handleError(newError(KindChat, "", err), chatFailureMessage, true)
		return
	}
	o.emitMessage(RoleAssistant, resp.Response, true, &resp)

	o.mu.Lock()
	sameSession := o.active && o.epoch == epoch
	voice := o.voiceIDLocked()
	o.mu.Unlock()
	if !sameSession {
		return
	}

	opts := SpeakOptions{Voice: voice, Guard: o.sessionGuard(epoch)}
	if resp.AudioURL != "" {
		if clip, ok := o.fetchReplyAudio(ctx, resp.AudioURL); ok {
			o.playback.Play(clip, opts)
			clip.Release()
			return
		}
	}
	o.playback.Speak(ctx, resp.Response, opts)
}

// SendText handles typed input. In voice mode it takes the spoken path.
func (o *Orchestrator) SendText(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if o.Active() {
		o.HandleTranscript(ctx, text)
		return
	}

	category := o.Category()
	o.emitMessage(RoleUser, text, false, nil)
	resp, err := o.sendChat(ctx, text, category)
	if err != nil {
		o.metrics.VoiceError(string(KindChat))
		o.logger.Error().Err(err).Msg("chat request failed")
		o.emitMessage(RoleAssistant, ChatApology, false, nil)
		return
	}
	o.emitMessage(RoleAssistant, resp.Response, false, &resp)
}

func (o *Orchestrator) sendChat(ctx context.Context, text, category string) (backend.ChatResponse, error) {
	started := time.Now()
	resp, err := o.chat.Chat(ctx, text, category)
	o.metrics.ObserveChatLatency(time.Since(started))
	return resp, err
}

func (o *Orchestrator) fetchReplyAudio(ctx context.Context, ref string) (*audio.Clip, bool) {
	fetcher, ok := o.chat.(AudioFetcher)
	if !ok {
		return nil, false
	}
	data, mime, err := fetcher.FetchAudio(ctx, ref)
	if err != nil {
		o.logger.Warn().Err(err).Msg("reply audio fetch failed, synthesizing instead")
		return nil, false
	}
	return audio.NewClip(data, mime), true
}

// ChangeTone switches the voice personality. Outside voice mode only the
// status changes; inside it a short confirmation is spoken.
func (o *Orchestrator) ChangeTone(id string) error {
	tone, ok := o.cfg.Tones.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTone, id)
	}

	o.mu.Lock()
	o.tone = tone
	o.selectVoiceLocked()
	active := o.active
	epoch := o.epoch
	voice := o.voiceIDLocked()
	o.mu.Unlock()

	o.emit(Event{Kind: EventToneChanged, Tone: &tone})
	o.status(StatusReady, "Voice tone: "+tone.Description)
	if active {
		text := fmt.Sprintf("Voice tone changed to %s. %s.", tone.ID, tone.Description)
		opts := SpeakOptions{Voice: voice, Guard: o.sessionGuard(epoch)}
		o.async(func() { o.playback.Speak(o.ctx, text, opts) })
	}
	return nil
}

// SetCategory toggles the category filter sent with chat requests.
func (o *Orchestrator) SetCategory(id string) string {
	id = strings.TrimSpace(id)
	o.mu.Lock()
	if o.category == id {
		o.category = ""
	} else {
		o.category = id
	}
	category := o.category
	o.mu.Unlock()

	o.emit(Event{Kind: EventCategory, Category: category})
	return category
}

// ClearChat stops speech, clears the thread and resets the category.
func (o *Orchestrator) ClearChat() {
	o.playback.Stop()

	o.mu.Lock()
	o.category = ""
	active := o.active
	o.mu.Unlock()

	o.emit(Event{Kind: EventThreadCleared})
	o.emit(Event{Kind: EventCategory, Category: ""})
	if active {
		o.status(StatusReady, statusReadyToStart)
	}
}

// HandleError reports a failure to the user. When shouldSpeak is set and
// nothing is playing, a fixed recovery phrase is spoken after a short delay;
// msg itself is never spoken.
func (o *Orchestrator) HandleError(msg string, shouldSpeak bool) {
	o.handleError(nil, msg, shouldSpeak)
}

func (o *Orchestrator) handleError(cause *Error, msg string, shouldSpeak bool) {
	o.mu.Lock()
	nested := o.handlingError
	o.handlingError = true
	epoch := o.epoch
	o.mu.Unlock()
	if !nested {
		defer func() {
			o.mu.Lock()
			o.handlingError = false
			o.mu.Unlock()
		}()
	}

	ev := o.logger.Warn().Str("message", msg)
	if cause != nil {
		o.metrics.VoiceError(string(cause.Kind))
		ev = ev.Err(cause).Str("kind", string(cause.Kind))
		if cause.SpeechPipeline() {
			shouldSpeak = false
		}
	}
	ev.Msg("voice error")

	o.emit(Event{Kind: EventVoiceError, Text: msg})
	o.status(StatusError, statusErrorOccurred)

	if nested {
		// Only the outermost failure may schedule recovery speech.
		o.logger.Debug().Str("message", msg).Msg("error raised while handling an error, recovery speech skipped")
		return
	}
	if !shouldSpeak || o.playback.Active() {
		return
	}
	guard := o.sessionGuard(epoch)
	o.after(o.cfg.ErrorSpeechDelay, func() {
		if !guard() {
			return
		}
		o.mu.Lock()
		voice := o.voiceIDLocked()
		o.mu.Unlock()
		o.playback.Speak(o.ctx, RecoveryPhrase, SpeakOptions{Voice: voice, Retry: true, Guard: guard})
	})
}

// Close leaves voice mode, waits for background work and releases every
// cached clip.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.active = false
	o.epoch++
	o.stopTimersLocked()
	o.mu.Unlock()

	o.cancel()
	o.capture.Stop()
	o.playback.Stop()
	o.wg.Wait()
	o.playback.Cache().Clear()
}

func (o *Orchestrator) onPlaybackState(state PlaybackState) {
	switch state {
	case PlaybackLoading:
		o.status(StatusLoading, statusLoadingAudio)
	case PlaybackReady:
		o.status(StatusSpeaking, fmt.Sprintf("NextStep is speaking (%s tone)...", o.Tone().ID))
	case PlaybackEnded:
		if o.Active() {
			o.status(StatusReady, statusSpeakAgain)
		}
	}
}

func (o *Orchestrator) onPlaybackFailure(err *Error) {
	prefix := "Audio error"
	if err.Kind == KindSynthesis {
		prefix = "Speech error"
	}
	o.handleError(err, fmt.Sprintf("%s: %v", prefix, err.Err), false)
}

func (o *Orchestrator) onListening() {
	o.status(StatusListening, statusListening)
}

func (o *Orchestrator) onTranscript(text string) {
	o.async(func() { o.HandleTranscript(o.ctx, text) })
}

func (o *Orchestrator) onCaptureFailure(err *Error) {
	msg := "Speech recognition error: " + err.Code
	if err.Code == codeStartFailed {
		msg = "Could not start speech recognition"
	}
	o.handleError(err, msg, false)
}

func (o *Orchestrator) onCaptureIdle(hadResult bool) {
	if hadResult || !o.Active() || o.playback.Active() {
		return
	}
	o.status(StatusReady, statusSpeakAgain)
}

func (o *Orchestrator) status(state StatusState, text string) {
	o.emit(Event{Kind: EventStatus, State: state, Text: text})
}

func (o *Orchestrator) emitMessage(role Role, text string, voice bool, resp *backend.ChatResponse) {
	msg := &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Voice:     voice,
		CreatedAt: time.Now().UTC(),
	}
	if resp != nil {
		msg.ResourcesFound = resp.ResourcesFound
		msg.Resources = resp.TopResources
	}
	kind := EventUserMessage
	if role == RoleAssistant {
		kind = EventAssistantMessage
	}
	o.emit(Event{Kind: kind, Message: msg})
}

func (o *Orchestrator) emit(ev Event) {
	o.sink.Emit(ev)
}

// async runs fn on a tracked goroutine unless the orchestrator is closed.
func (o *Orchestrator) async(fn func()) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

// after runs fn once d has elapsed unless voice mode is left or the
// orchestrator closes first.
func (o *Orchestrator) after(d time.Duration, fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		defer o.wg.Done()
		o.mu.Lock()
		_, pending := o.timers[t]
		delete(o.timers, t)
		o.mu.Unlock()
		if pending {
			fn()
		}
	})
	o.timers[t] = struct{}{}
}

func (o *Orchestrator) stopTimersLocked() {
	for t := range o.timers {
		if t.Stop() {
			o.wg.Done()
		}
		delete(o.timers, t)
	}
}
