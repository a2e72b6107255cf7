package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nextstep-health/nextstep-voice/internal/audio"
	"github.com/nextstep-health/nextstep-voice/internal/backend"
	"github.com/nextstep-health/nextstep-voice/internal/config"
	"github.com/nextstep-health/nextstep-voice/internal/observability"
	"github.com/nextstep-health/nextstep-voice/internal/session"
	"github.com/nextstep-health/nextstep-voice/internal/thread"
	"github.com/nextstep-health/nextstep-voice/internal/tts"
	"github.com/nextstep-health/nextstep-voice/internal/voice"
)

// Catalog serves the read-only backend endpoints proxied by the bridge.
type Catalog interface {
	Voices(ctx context.Context) ([]backend.Voice, error)
	Overview(ctx context.Context) backend.Overview
}

// Options carries the collaborators shared by every bridge connection.
type Options struct {
	Config      config.Config
	Sessions    *session.Manager
	Tones       *voice.ToneSet
	Chat        voice.ChatClient
	Catalog     Catalog
	Synthesizer tts.Synthesizer
	// Output plays audio on the host. When nil, audio is streamed to the
	// browser over the websocket. A host output is a single device, so only
	// one session may be connected while it is set.
	Output  audio.Output
	Threads thread.Store
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

type Server struct {
	cfg         config.Config
	sessions    *session.Manager
	tones       *voice.ToneSet
	chat        voice.ChatClient
	catalog     Catalog
	synthesizer tts.Synthesizer
	output      audio.Output
	threads     thread.Store
	metrics     *observability.Metrics
	logger      zerolog.Logger
	upgrader    websocket.Upgrader
	static      http.Handler

	mu    sync.Mutex
	conns map[string]*connection
}

func New(opts Options) *Server {
	cfg := opts.Config
	tones := opts.Tones
	if tones == nil {
		tones = voice.DefaultTones()
	}
	return &Server{
		cfg:         cfg,
		sessions:    opts.Sessions,
		tones:       tones,
		chat:        opts.Chat,
		catalog:     opts.Catalog,
		synthesizer: opts.Synthesizer,
		output:      opts.Output,
		threads:     opts.Threads,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With().Str("component", "httpapi").Logger(),
		static:      newStaticHandler(cfg.UIDir),
		conns:       make(map[string]*connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 << 10,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive a voice session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Post("/v1/voice/session", s.handleCreateSession)
	r.Post("/v1/voice/session/{id}/end", s.handleEndSession)
	r.Get("/v1/voice/session/ws", s.handleSessionWS)
	r.Get("/v1/voice/tones", s.handleListTones)
	r.Get("/v1/voice/voices", s.handleListVoices)
	r.Get("/v1/thread/{session_id}", s.handleGetThread)
	r.Get("/v1/overview", s.handleOverview)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"audio_output": s.audioMode(),
		"thread_store": s.threadStoreMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.chat == nil || s.synthesizer == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "voice pipeline not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
		"thread_store":    s.threadStoreMode(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}
	if strings.TrimSpace(req.Tone) == "" {
		req.Tone = s.cfg.DefaultTone
	}
	if strings.TrimSpace(req.Tone) == "" {
		req.Tone = voice.DefaultToneID
	}
	tone, ok := s.tones.Get(req.Tone)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown_tone", "unknown voice tone "+strconv.Quote(req.Tone))
		return
	}

	sess := s.sessions.Create(req.UserID, tone.ID, strings.TrimSpace(req.Category))
	s.metrics.SessionOpened()
	s.metrics.SessionEvent("created")

	respondJSON(w, http.StatusCreated, session.NewCreateResponse(sess, s.sessions.InactivityTimeout()))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	before, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if before.Status == session.StatusActive {
		s.metrics.SessionClosed("ended")
	}
	s.CloseSession(id)
	respondJSON(w, http.StatusOK, sess)
}

// CloseSession disconnects the live websocket for a session, if any.
func (s *Server) CloseSession(id string) {
	s.mu.Lock()
	c := s.conns[id]
	s.mu.Unlock()
	if c != nil {
		c.cancel()
	}
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if s.chat == nil || s.synthesizer == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice pipeline not configured")
		return
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if sess.Status != session.StatusActive {
		respondError(w, http.StatusGone, "session_ended", "session has ended")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c, err := newConnection(ctx, cancel, s, sess)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("voice session setup failed")
		respondError(w, http.StatusInternalServerError, "session_setup_failed", err.Error())
		return
	}
	if err := s.register(c); err != nil {
		c.close()
		code := "session_busy"
		if errors.Is(err, errOutputBusy) {
			code = "audio_output_busy"
		}
		respondError(w, http.StatusConflict, code, err.Error())
		return
	}
	defer s.unregister(c)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.close()
		return
	}
	defer ws.Close()

	s.metrics.SessionEvent("ws_connected")
	c.serve(ws)
	s.metrics.SessionEvent("ws_disconnected")
}

var (
	errSessionBusy = errors.New("session already has a live connection")
	errOutputBusy  = errors.New("host audio output is in use by another session")
)

func (s *Server) register(c *connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.conns[c.sessionID]; busy {
		return errSessionBusy
	}
	if s.output != nil && len(s.conns) > 0 {
		return errOutputBusy
	}
	s.conns[c.sessionID] = c
	return nil
}

func (s *Server) unregister(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns[c.sessionID] == c {
		delete(s.conns, c.sessionID)
	}
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "session_id"))
	if s.threads == nil {
		respondError(w, http.StatusServiceUnavailable, "thread_store_disabled", "thread store not configured")
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.threads.List(r.Context(), id, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", id).Msg("thread list failed")
		respondError(w, http.StatusInternalServerError, "thread_unavailable", "could not load thread")
		return
	}
	if entries == nil {
		entries = []thread.Entry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"entries":    entries,
	})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		respondError(w, http.StatusServiceUnavailable, "backend_unavailable", "backend not configured")
		return
	}
	respondJSON(w, http.StatusOK, s.catalog.Overview(r.Context()))
}

func (s *Server) audioMode() string {
	if s.output == nil {
		return "browser"
	}
	return s.cfg.AudioOutput
}

func (s *Server) threadStoreMode() string {
	switch s.threads.(type) {
	case nil:
		return "disabled"
	case *thread.InMemoryStore:
		return "in-memory"
	case *thread.SQLiteStore:
		return "sqlite"
	case *thread.PostgresStore:
		return "postgres"
	default:
		return "custom"
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

const maxRequestBody = 1 << 20

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return errEmptyBody
	}
	return sonic.Unmarshal(raw, out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	raw, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encode failed","code":"internal_error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

const (
	writeWait    = 10 * time.Second
	readWait     = 120 * time.Second
	pingInterval = 30 * time.Second
)
