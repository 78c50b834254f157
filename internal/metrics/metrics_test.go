package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestHandlerExposesCounters verifies counters show up on the scrape endpoint.
func TestHandlerExposesCounters(t *testing.T) {
	t.Parallel()

	before := testutil.ToFloat64(StaleEvents)
	StaleEvents.Inc()
	require.InDelta(t, before+1, testutil.ToFloat64(StaleEvents), 0.001)

	Kills.WithLabelValues("timeout").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "alarm_klaxon_stale_events_total"))
	require.True(t, strings.Contains(rec.Body.String(), `alarm_klaxon_playback_kills_total{reason="timeout"}`))
}
