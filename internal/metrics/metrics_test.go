package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	require.NotNil(t, m)

	m.ObserveRequest("GET", "ok", 120*time.Millisecond)
	m.ObserveRequest("GET", "ok", 80*time.Millisecond)
	m.IncRetry()
	m.IncRefresh(RefreshSuccess)
	m.IncRefresh(RefreshShared)
	m.IncRefresh(RefreshDiscarded)
	m.IncTransition("unknown", "authenticated")
	m.IncLogin(true)
	m.IncLogin(false)
	m.IncDetachedFailure("logout")
	m.IncGuard("/admin", "redirect")
	m.IncError("AUTH-001")
	m.IncError("")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.APIRequests.WithLabelValues("GET", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshAttempts.WithLabelValues(RefreshSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshAttempts.WithLabelValues(RefreshShared)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshAttempts.WithLabelValues(RefreshDiscarded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionTransitions.WithLabelValues("unknown", "authenticated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DetachedFailures.WithLabelValues("logout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GuardDecisions.WithLabelValues("/admin", "redirect")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Errors))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("GET", "ok", time.Second)
		m.IncRetry()
		m.IncRefresh(RefreshFailure)
		m.IncTransition("a", "b")
		m.IncLogin(true)
		m.IncDetachedFailure("logout")
		m.IncGuard("/", "render")
		m.IncError("HTTP-001")
	})
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}

func TestRegistryHandler(t *testing.T) {
	reg, m := NewRegistry()
	m.IncRefresh(RefreshFailure)

	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `taspa_token_refreshes_total{result="failure"} 1`), text)
	assert.Contains(t, text, "go_goroutines")
}
