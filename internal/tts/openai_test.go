package tts

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/nextstep-health/nextstep-voice/internal/backend"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAISynthesizerRequest(t *testing.T) {
	var req map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, sonic.Unmarshal(body, &req))
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	s := NewOpenAISynthesizerWithConfig(cfg, "")

	clip, err := s.Synthesize(context.Background(), "Hello there", "shimmer", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), clip.Bytes())
	assert.Equal(t, "tts-1", req["model"])
	assert.Equal(t, "shimmer", req["voice"])
	assert.Equal(t, "mp3", req["response_format"])
	assert.Equal(t, "Hello there", req["input"])
}

func TestBackendSynthesizerWrapsClip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("wav"))
	}))
	defer srv.Close()

	client, err := backend.NewClient(srv.URL, time.Second)
	require.NoError(t, err)

	clip, err := NewBackendSynthesizer(client).Synthesize(context.Background(), "Hi", "nova", "tts-1")
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", clip.MIME())
}
