package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsIndependentRegistries(t *testing.T) {
	a := NewMetrics("nextstep_test")
	b := NewMetrics("nextstep_test")

	a.SessionOpened()
	a.CacheLookup(true)
	a.CacheLookup(false)
	a.CacheLookup(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.ActiveSessions))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ActiveSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.CacheLookups.WithLabelValues("miss")))

	a.SessionClosed("ended")
	assert.Equal(t, 0.0, testutil.ToFloat64(a.ActiveSessions))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionOpened()
		m.VoiceError("playback")
		m.Synthesis("ok", time.Second)
		m.ObserveChatLatency(time.Second)
	})
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics("nextstep_test")
	m.VoiceError("recognition")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `nextstep_test_voice_errors_total{kind="recognition"} 1`)
}
