package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.FetchFinished(true)
	m.FetchFinished(true)
	m.FetchFinished(false)
	m.LoadEvent("started")
	m.ExportRendered("spreadsheet", nil)
	m.ExportRendered("spreadsheet", errors.New("boom"))
	m.ObserveBackendRequest("attendance.student", "ok", 20*time.Millisecond)
	m.JobFinished("export-rosters", time.Minute, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("substituted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loads.WithLabelValues("started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exports.WithLabelValues("spreadsheet", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backendRequests.WithLabelValues("attendance.student", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("export-rosters", "error")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET /health", http.StatusOK, time.Millisecond)
	m.SnapshotPublished(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `attendance_hub_http_requests_total{route="GET /health",status="200"} 1`)
	assert.Contains(t, string(body), "attendance_hub_roster_generation 4")
}

func TestNew_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = New()
		_ = New()
	})
}
