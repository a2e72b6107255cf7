package httpapi

import (
	"net/http"

	"github.com/nextstep-health/nextstep-voice/internal/backend"
	"github.com/nextstep-health/nextstep-voice/internal/voice"
)

type listTonesResponse struct {
	DefaultTone string              `json:"default_tone"`
	Tones       []voice.ToneProfile `json:"tones"`
}

type listVoicesResponse struct {
	Source string          `json:"source"`
	Voices []backend.Voice `json:"voices"`
}

func (s *Server) handleListTones(w http.ResponseWriter, _ *http.Request) {
	def := s.cfg.DefaultTone
	if _, ok := s.tones.Get(def); !ok {
		def = voice.DefaultToneID
	}
	respondJSON(w, http.StatusOK, listTonesResponse{
		DefaultTone: def,
		Tones:       s.tones.List(),
	})
}

// handleListVoices proxies the backend voice catalog and falls back to the
// configured tones when the backend is unreachable or empty.
func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	if s.catalog != nil {
		voices, err := s.catalog.Voices(r.Context())
		if err == nil && len(voices) > 0 {
			respondJSON(w, http.StatusOK, listVoicesResponse{Source: "backend", Voices: voices})
			return
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("backend voice catalog unavailable, using tones")
		}
	}
	respondJSON(w, http.StatusOK, listVoicesResponse{Source: "tones", Voices: toneVoices(s.tones)})
}

func toneVoices(tones *voice.ToneSet) []backend.Voice {
	list := tones.List()
	out := make([]backend.Voice, 0, len(list))
	for _, t := range list {
		out = append(out, backend.Voice{
			ID:          t.SynthesisVoiceID,
			Name:        t.ID,
			Description: t.Description,
		})
	}
	return out
}
