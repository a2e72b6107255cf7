package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/nextstep-health/nextstep-voice/internal/protocol"
)

type options struct {
	baseURL        string
	userID         string
	tone           string
	category       string
	turns          int
	playFor        time.Duration
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type createSessionRequest struct {
	UserID   string `json:"user_id,omitempty"`
	Tone     string `json:"tone,omitempty"`
	Category string `json:"category,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

// wsEnvelope holds the server fields the replay reacts to.
type wsEnvelope struct {
	Type      string `json:"type"`
	State     string `json:"state,omitempty"`
	Text      string `json:"text,omitempty"`
	Active    bool   `json:"active,omitempty"`
	ClipID    string `json:"clip_id,omitempty"`
	AttemptID string `json:"attempt_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

type turnTiming struct {
	chat       time.Duration
	firstAudio time.Duration
}

var defaultUtterances = []string{
	"I need a food bank near downtown",
	"Where can I find emergency shelter tonight?",
	"Is there a free clinic open on weekends?",
	"Help me find job training programs",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var playMS, interTurnMS, turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8090", "voice bridge base URL")
	flag.StringVar(&cfg.userID, "user-id", "perf-replay", "user_id used for the synthetic session")
	flag.StringVar(&cfg.tone, "tone", "", "voice tone for the session (server default when empty)")
	flag.StringVar(&cfg.category, "category", "", "resource category filter")
	flag.IntVar(&cfg.turns, "turns", 10, "number of turns to replay")
	flag.IntVar(&playMS, "play-ms", 400, "simulated browser playback time per clip in milliseconds")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between turns in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "timeout waiting for each reply in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if playMS < 0 {
		playMS = 0
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.playFor = time.Duration(playMS) * time.Millisecond
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	texts, err := parseTexts(textsRaw)
	if err != nil {
		return options{}, err
	}
	cfg.texts = texts
	return cfg, nil
}

func parseTexts(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), defaultUtterances...), nil
	}
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("texts produced no non-empty utterances")
	}
	return out, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 45 * time.Second}
	sessionID, err := createSession(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = endSession(context.Background(), httpClient, cfg.baseURL, sessionID)
	}()

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	if cfg.verbose {
		fmt.Printf("perfvoice: session=%s turns=%d\n", sessionID, cfg.turns)
	}

	r := &replayer{conn: conn, sessionID: sessionID, cfg: cfg, inbound: make(chan wsEnvelope, 256), readErr: make(chan error, 1)}
	go r.readLoop()

	if err := r.send(protocol.ClientCapability{Type: protocol.TypeClientCapability, SessionID: sessionID, RecognitionSupported: true, AudioSupported: true}); err != nil {
		return err
	}
	if err := r.control(protocol.ActionVoiceEnter); err != nil {
		return err
	}
	if _, err := r.await(cfg.turnTimeout, func(m wsEnvelope) bool {
		return m.Type == string(protocol.TypeVoiceMode) && m.Active
	}); err != nil {
		return fmt.Errorf("enter voice mode: %w", err)
	}
	// The welcome line plays before the first turn.
	if _, err := r.playReply(time.Now()); err != nil {
		return fmt.Errorf("welcome: %w", err)
	}

	timings := make([]turnTiming, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		if cfg.verbose {
			fmt.Printf("perfvoice: turn %d/%d text=%q\n", i+1, cfg.turns, text)
		}
		timing, err := r.turn(text)
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		timings = append(timings, timing)
		if cfg.verbose {
			fmt.Printf("perfvoice: turn %d chat=%s first_audio=%s\n", i+1, timing.chat.Round(time.Millisecond), timing.firstAudio.Round(time.Millisecond))
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	chat, audio := splitTimings(timings)
	fmt.Printf("perfvoice: chat %s\n", summarize(chat))
	fmt.Printf("perfvoice: first_audio %s\n", summarize(audio))
	return nil
}

type replayer struct {
	conn      *websocket.Conn
	sessionID string
	cfg       options
	inbound   chan wsEnvelope
	readErr   chan error
}

// turn answers one recognition attempt with text, then plays the reply.
func (r *replayer) turn(text string) (turnTiming, error) {
	if err := r.control(protocol.ActionListen); err != nil {
		return turnTiming{}, err
	}
	start, err := r.await(r.cfg.turnTimeout, func(m wsEnvelope) bool {
		return m.Type == string(protocol.TypeRecognitionStart)
	})
	if err != nil {
		return turnTiming{}, fmt.Errorf("await recognition_start: %w", err)
	}
	for _, ev := range []protocol.RecognitionEvent{
		{Event: protocol.RecognitionStarted},
		{Event: protocol.RecognitionResult, Transcript: text},
		{Event: protocol.RecognitionEnded},
	} {
		ev.Type = protocol.TypeRecognitionEvent
		ev.SessionID = r.sessionID
		ev.AttemptID = start.AttemptID
		if err := r.send(ev); err != nil {
			return turnTiming{}, err
		}
	}
	spokeAt := time.Now()

	if _, err := r.await(r.cfg.turnTimeout, func(m wsEnvelope) bool {
		return m.Type == string(protocol.TypeAssistantMessage)
	}); err != nil {
		return turnTiming{}, fmt.Errorf("await assistant_message: %w", err)
	}
	timing := turnTiming{chat: time.Since(spokeAt)}

	firstAudio, err := r.playReply(spokeAt)
	if err != nil {
		return turnTiming{}, err
	}
	timing.firstAudio = firstAudio
	return timing, nil
}

// playReply acts as the browser audio element for the next clip. With host
// playback the bridge sends no clip, so the speaking status marks first audio.
func (r *replayer) playReply(since time.Time) (time.Duration, error) {
	m, err := r.await(r.cfg.turnTimeout, func(m wsEnvelope) bool {
		return m.Type == string(protocol.TypeAssistantAudio) ||
			(m.Type == string(protocol.TypeStatus) && m.State == "speaking")
	})
	if err != nil {
		return 0, fmt.Errorf("await audio: %w", err)
	}
	firstAudio := time.Since(since)

	if m.Type == string(protocol.TypeAssistantAudio) {
		for _, event := range []string{protocol.AudioCanPlay, protocol.AudioPlay} {
			if err := r.audioEvent(m.ClipID, event); err != nil {
				return 0, err
			}
		}
		time.Sleep(r.cfg.playFor)
		if err := r.audioEvent(m.ClipID, protocol.AudioEnded); err != nil {
			return 0, err
		}
	}
	if _, err := r.await(r.cfg.turnTimeout, func(m wsEnvelope) bool {
		return m.Type == string(protocol.TypeStatus) && m.State == "ready"
	}); err != nil {
		return 0, fmt.Errorf("await playback end: %w", err)
	}
	return firstAudio, nil
}

func (r *replayer) control(action string) error {
	return r.send(protocol.ClientControl{Type: protocol.TypeClientControl, SessionID: r.sessionID, Action: action})
}

func (r *replayer) audioEvent(clipID, event string) error {
	return r.send(protocol.AudioEvent{Type: protocol.TypeAudioEvent, SessionID: r.sessionID, ClipID: clipID, Event: event})
}

func (r *replayer) send(msg any) error {
	raw, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	return r.conn.WriteMessage(websocket.TextMessage, raw)
}

func (r *replayer) await(timeout time.Duration, match func(wsEnvelope) bool) (wsEnvelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case m := <-r.inbound:
			if match(m) {
				return m, nil
			}
		case err := <-r.readErr:
			return wsEnvelope{}, err
		case <-timer.C:
			return wsEnvelope{}, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func (r *replayer) readLoop() {
	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case r.readErr <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := sonic.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case string(protocol.TypeErrorEvent):
			if r.cfg.verbose {
				fmt.Fprintf(os.Stderr, "perfvoice: error_event code=%s detail=%s\n", env.Code, env.Detail)
			}
		case string(protocol.TypeVoiceError):
			select {
			case r.readErr <- errors.New("voice error: " + env.Message):
			default:
			}
		}
		r.inbound <- env
	}
}

func createSession(ctx context.Context, client *http.Client, cfg options) (string, error) {
	payload, err := sonic.Marshal(createSessionRequest{
		UserID:   cfg.userID,
		Tone:     strings.TrimSpace(cfg.tone),
		Category: strings.TrimSpace(cfg.category),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/voice/session", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out createSessionResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/voice/session/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/voice/session/ws"
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func splitTimings(timings []turnTiming) (chat, audio []time.Duration) {
	for _, t := range timings {
		chat = append(chat, t.chat)
		audio = append(audio, t.firstAudio)
	}
	return chat, audio
}

// summarize reports nearest-rank percentiles.
func summarize(samples []time.Duration) string {
	if len(samples) == 0 {
		return "n=0"
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	pct := func(p int) time.Duration {
		idx := (p*len(sorted)+99)/100 - 1
		if idx < 0 {
			idx = 0
		}
		return sorted[idx]
	}
	return fmt.Sprintf("n=%d p50=%s p95=%s max=%s",
		len(sorted),
		pct(50).Round(time.Millisecond),
		pct(95).Round(time.Millisecond),
		sorted[len(sorted)-1].Round(time.Millisecond))
}
