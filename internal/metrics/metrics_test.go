package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordMessage("chat")
		m.RecordCollaboratorFailure("calendar")
		m.RecordPrompt("morning", "sent")
		m.RecordPlan("created")
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.RecordPlan("created")
	m.RecordPlan("created")
	m.RecordPrompt("night", "skipped")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.plans.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.prompts.WithLabelValues("night", "skipped")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.prompts.WithLabelValues("night", "sent")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordMessage("plan_proposed")
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `daylog_messages_total{outcome="plan_proposed"} 1`)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(string(body), "ok"))
}
