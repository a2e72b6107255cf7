package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nextstep-health/nextstep-voice/internal/audio"
	"github.com/nextstep-health/nextstep-voice/internal/observability"
	"github.com/nextstep-health/nextstep-voice/internal/protocol"
	"github.com/nextstep-health/nextstep-voice/internal/session"
	"github.com/nextstep-health/nextstep-voice/internal/stt"
	"github.com/nextstep-health/nextstep-voice/internal/thread"
	"github.com/nextstep-health/nextstep-voice/internal/voice"
)

var errBrowserAudio = errors.New("browser audio playback failed")

// connection bridges one websocket to one orchestrator. The browser renders
// events, reports recognition results and, in browser output mode, plays audio.
type connection struct {
	ctx       context.Context
	cancel    context.CancelFunc
	sessionID string
	language  string
	sessions  *session.Manager
	metrics   *observability.Metrics
	logger    zerolog.Logger
	catalog   Catalog

	orch     *voice.Orchestrator
	outbound chan any
	controls chan protocol.ClientControl
	wg       sync.WaitGroup

	capabilityOnce sync.Once

	mu       sync.Mutex
	tracks   map[string]*browserTrack
	attempts map[string]*browserAttempt
}

func newConnection(ctx context.Context, cancel context.CancelFunc, s *Server, sess *session.Session) (*connection, error) {
	c := &connection{
		ctx:       ctx,
		cancel:    cancel,
		sessionID: sess.ID,
		language:  s.cfg.RecognitionLanguage,
		sessions:  s.sessions,
		metrics:   s.metrics,
		logger:    s.logger.With().Str("session_id", sess.ID).Logger(),
		catalog:   s.catalog,
		outbound:  make(chan any, 256),
		controls:  make(chan protocol.ClientControl, 32),
		tracks:    make(map[string]*browserTrack),
		attempts:  make(map[string]*browserAttempt),
	}

	output := s.output
	if output == nil {
		output = browserOutput{c}
	}
	var sink voice.Sink = c
	if s.threads != nil {
		sink = thread.NewRecordingSink(s.threads, sess.ID, c, c.logger)
	}

	orch, err := voice.NewOrchestrator(voice.Config{
		Tones:        s.tones,
		DefaultTone:  sess.Tone,
		Model:        s.cfg.TTSModel,
		WelcomeDelay: s.cfg.VoiceWelcomeDelay,
	}, voice.Dependencies{
		Chat:        s.chat,
		Synthesizer: s.synthesizer,
		Recognizer:  browserRecognizer{c},
		Output:      output,
		Sink:        sink,
		Cache:       audio.NewCache(s.cfg.AudioCacheSize),
		Metrics:     s.metrics,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, err
	}
	// Capture stays unsupported until the browser reports otherwise.
	orch.SetCapability(voice.CapabilityUnsupported)
	c.orch = orch
	return c, nil
}

func (c *connection) serve(ws *websocket.Conn) {
	writerDone := make(chan struct{})
	go c.writeLoop(ws, writerDone)

	c.wg.Add(1)
	go c.controlLoop()

	if sess, err := c.sessions.Get(c.sessionID); err == nil && sess.Category != "" {
		c.orch.SetCategory(sess.Category)
	}
	if c.catalog != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.send(protocol.Overview{Type: protocol.TypeOverview, SessionID: c.sessionID, Payload: c.catalog.Overview(c.ctx)})
		}()
	}

	c.readLoop(ws)

	c.cancel()
	c.wg.Wait()
	c.orch.Close()
	<-writerDone
	_ = c.sessions.SetVoiceMode(c.sessionID, false)
}

// close releases the orchestrator of a connection that never served.
func (c *connection) close() {
	c.cancel()
	c.orch.Close()
}

func (c *connection) readLoop(ws *websocket.Conn) {
	ws.SetReadLimit(2 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readWait))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			c.sendError("invalid_client_message", err.Error())
			continue
		}
		_ = c.sessions.Touch(c.sessionID)

		switch m := parsed.(type) {
		case protocol.ClientControl:
			c.metrics.WSMessage("inbound", string(m.Type))
			select {
			case c.controls <- m:
			case <-c.ctx.Done():
				return
			}
		case protocol.ClientCapability:
			c.metrics.WSMessage("inbound", string(m.Type))
			c.capabilityOnce.Do(func() {
				if m.RecognitionSupported {
					c.orch.SetCapability(voice.CapabilitySupported)
				}
			})
		case protocol.ClientVoices:
			c.metrics.WSMessage("inbound", string(m.Type))
			voices := make([]voice.SystemVoice, 0, len(m.Voices))
			for _, v := range m.Voices {
				voices = append(voices, voice.SystemVoice{Name: v.Name, Lang: v.Lang, Local: v.Local})
			}
			c.orch.CatalogReady(voices)
		case protocol.RecognitionEvent:
			c.metrics.WSMessage("inbound", string(m.Type))
			c.recognitionEvent(m)
		case protocol.AudioEvent:
			c.metrics.WSMessage("inbound", string(m.Type))
			c.audioEvent(m)
		}
	}
}

func (c *connection) controlLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case m := <-c.controls:
			c.handleControl(m)
		}
	}
}

func (c *connection) handleControl(m protocol.ClientControl) {
	switch m.Action {
	case protocol.ActionVoiceToggle:
		c.orch.ToggleVoiceMode()
	case protocol.ActionVoiceEnter:
		c.orch.EnterVoiceMode()
	case protocol.ActionVoiceExit:
		c.orch.ExitVoiceMode()
	case protocol.ActionListen:
		c.orch.StartListening()
	case protocol.ActionStop:
		c.orch.StopListening()
		c.orch.StopSpeaking()
	case protocol.ActionTone:
		if err := c.orch.ChangeTone(m.Tone); err != nil {
			c.sendError("unknown_tone", err.Error())
		}
	case protocol.ActionText:
		// Chat round trips run off the control loop so stop stays responsive.
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.orch.SendText(c.ctx, m.Text)
		}()
	case protocol.ActionCategory:
		c.orch.SetCategory(m.Category)
	case protocol.ActionClear:
		c.orch.ClearChat()
	}
}

func (c *connection) writeLoop(ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.cancel()
				return
			}
		case msg := <-c.outbound:
			raw, err := protocol.Encode(msg)
			if err != nil {
				c.logger.Error().Err(err).Msg("encode outbound message")
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.logger.Debug().Err(err).Msg("websocket write failed")
				c.cancel()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				c.metrics.WSMessage("outbound", string(t))
			}
		}
	}
}

func (c *connection) send(msg any) {
	select {
	case c.outbound <- msg:
	case <-c.ctx.Done():
	}
}

func (c *connection) sendError(code, detail string) {
	c.send(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: c.sessionID,
		Code:      code,
		Source:    "bridge",
		Detail:    detail,
	})
}

// Emit renders orchestrator events as websocket messages and mirrors the
// session-level fields into the session manager.
func (c *connection) Emit(ev voice.Event) {
	switch ev.Kind {
	case voice.EventStatus:
		c.send(protocol.Status{Type: protocol.TypeStatus, SessionID: c.sessionID, State: string(ev.State), Text: ev.Text})
	case voice.EventVoiceMode:
		_ = c.sessions.SetVoiceMode(c.sessionID, ev.Active)
		c.send(protocol.VoiceMode{Type: protocol.TypeVoiceMode, SessionID: c.sessionID, Active: ev.Active})
	case voice.EventUserMessage:
		if ev.Message == nil {
			return
		}
		_ = c.sessions.RecordTurn(c.sessionID)
		c.send(protocol.UserMessage{
			Type:      protocol.TypeUserMessage,
			SessionID: c.sessionID,
			MessageID: ev.Message.ID,
			Text:      ev.Message.Text,
			Voice:     ev.Message.Voice,
		})
	case voice.EventAssistantMessage:
		if ev.Message == nil {
			return
		}
		resources := make([]protocol.Resource, 0, len(ev.Message.Resources))
		for _, r := range ev.Message.Resources {
			resources = append(resources, protocol.Resource{
				Name:     r.Name,
				Category: r.Category,
				Address:  r.Address,
				Phone:    r.Phone,
				Score:    r.Score,
			})
		}
		c.send(protocol.AssistantMessage{
			Type:           protocol.TypeAssistantMessage,
			SessionID:      c.sessionID,
			MessageID:      ev.Message.ID,
			Text:           ev.Message.Text,
			ResourcesFound: ev.Message.ResourcesFound,
			Resources:      resources,
			Voice:          ev.Message.Voice,
		})
	case voice.EventVoiceError, voice.EventUnsupported:
		c.send(protocol.VoiceError{Type: protocol.TypeVoiceError, SessionID: c.sessionID, Message: ev.Text})
	case voice.EventToneChanged:
		if ev.Tone == nil {
			return
		}
		_ = c.sessions.SetTone(c.sessionID, ev.Tone.ID)
		c.send(protocol.ToneChanged{
			Type:        protocol.TypeToneChanged,
			SessionID:   c.sessionID,
			Tone:        ev.Tone.ID,
			Description: ev.Tone.Description,
			VoiceID:     ev.Tone.SynthesisVoiceID,
		})
	case voice.EventCategory:
		_ = c.sessions.SetCategory(c.sessionID, ev.Category)
		c.send(protocol.CategoryChanged{Type: protocol.TypeCategory, SessionID: c.sessionID, Category: ev.Category})
	case voice.EventThreadCleared:
		c.send(protocol.ThreadCleared{Type: protocol.TypeThreadCleared, SessionID: c.sessionID})
	}
}

func (c *connection) audioEvent(m protocol.AudioEvent) {
	c.mu.Lock()
	t := c.tracks[m.ClipID]
	if m.Event == protocol.AudioEnded || m.Event == protocol.AudioError {
		delete(c.tracks, m.ClipID)
	}
	c.mu.Unlock()
	if t == nil {
		return
	}

	<-t.started
	switch m.Event {
	case protocol.AudioCanPlay:
		t.hooks.OnReady()
	case protocol.AudioPlay:
		t.hooks.OnPlaying()
	case protocol.AudioEnded:
		t.hooks.OnEnded()
	case protocol.AudioError:
		err := errBrowserAudio
		if m.Detail != "" {
			err = errors.New(m.Detail)
		}
		t.hooks.OnError(err)
	}
}

func (c *connection) recognitionEvent(m protocol.RecognitionEvent) {
	c.mu.Lock()
	a := c.attempts[m.AttemptID]
	if m.Event == protocol.RecognitionEnded {
		delete(c.attempts, m.AttemptID)
	}
	c.mu.Unlock()
	if a == nil {
		return
	}

	<-a.started
	switch m.Event {
	case protocol.RecognitionStarted:
		a.hooks.OnStart()
	case protocol.RecognitionResult:
		a.hooks.OnResult(m.Transcript)
	case protocol.RecognitionError:
		code := m.Code
		if code == "" {
			code = stt.CodeAborted
		}
		a.hooks.OnError(code, m.Message)
	case protocol.RecognitionEnded:
		a.hooks.OnEnd()
	}
}

// browserOutput streams clips to the browser, which reports playback
// progress back as audio_event messages.
type browserOutput struct{ c *connection }

type browserTrack struct {
	c       *connection
	id      string
	hooks   audio.PlaybackHooks
	started chan struct{}
	once    sync.Once
}

func (o browserOutput) Start(clip *audio.Clip, hooks audio.PlaybackHooks) (audio.Track, error) {
	data := clip.Bytes()
	if len(data) == 0 {
		return nil, audio.ErrEmptyClip
	}
	t := &browserTrack{c: o.c, id: uuid.NewString(), hooks: hooks, started: make(chan struct{})}
	defer close(t.started)

	o.c.mu.Lock()
	o.c.tracks[t.id] = t
	o.c.mu.Unlock()

	o.c.send(protocol.AssistantAudio{
		Type:        protocol.TypeAssistantAudio,
		SessionID:   o.c.sessionID,
		ClipID:      t.id,
		MIME:        clip.MIME(),
		AudioBase64: base64.StdEncoding.EncodeToString(data),
	})
	return t, nil
}

func (t *browserTrack) Stop() {
	t.once.Do(func() {
		t.c.mu.Lock()
		_, live := t.c.tracks[t.id]
		delete(t.c.tracks, t.id)
		t.c.mu.Unlock()
		if live {
			t.c.send(protocol.AudioStop{Type: protocol.TypeAudioStop, SessionID: t.c.sessionID, ClipID: t.id})
		}
	})
}

// browserRecognizer runs recognition attempts in the browser.
type browserRecognizer struct{ c *connection }

type browserAttempt struct {
	c       *connection
	id      string
	hooks   stt.Hooks
	started chan struct{}
	once    sync.Once
}

func (r browserRecognizer) Start(_ context.Context, hooks stt.Hooks) (stt.Handle, error) {
	a := &browserAttempt{c: r.c, id: uuid.NewString(), hooks: hooks, started: make(chan struct{})}
	defer close(a.started)

	r.c.mu.Lock()
	r.c.attempts[a.id] = a
	r.c.mu.Unlock()

	r.c.send(protocol.RecognitionStart{
		Type:      protocol.TypeRecognitionStart,
		SessionID: r.c.sessionID,
		AttemptID: a.id,
		Language:  r.c.language,
	})
	return a, nil
}

func (a *browserAttempt) Stop() {
	a.once.Do(func() {
		a.c.mu.Lock()
		_, live := a.c.attempts[a.id]
		delete(a.c.attempts, a.id)
		a.c.mu.Unlock()
		if live {
			a.c.send(protocol.RecognitionStop{Type: protocol.TypeRecognitionStop, SessionID: a.c.sessionID, AttemptID: a.id})
		}
	})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.Status:
		return m.Type, true
	case protocol.VoiceMode:
		return m.Type, true
	case protocol.UserMessage:
		return m.Type, true
	case protocol.AssistantMessage:
		return m.Type, true
	case protocol.VoiceError:
		return m.Type, true
	case protocol.ToneChanged:
		return m.Type, true
	case protocol.AssistantAudio:
		return m.Type, true
	case protocol.AudioStop:
		return m.Type, true
	case protocol.RecognitionStart:
		return m.Type, true
	case protocol.RecognitionStop:
		return m.Type, true
	case protocol.Overview:
		return m.Type, true
	case protocol.CategoryChanged:
		return m.Type, true
	case protocol.ThreadCleared:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
