package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveProbe("travel", "failed")
	m.ObserveProbe("travel", "failed")
	m.ObserveMutation("deactivate", 2)
	m.ObserveMutation("add", 0)
	m.ObserveItem("beauty", "succeeded")
	m.SetCoverage("travel", 1)

	assert.InDelta(t, 2, testutil.ToFloat64(m.ProbeCount("travel", "failed")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.MutationCount("deactivate")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ItemCount("beauty", "succeeded")), 0.001)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "feedsentinel_category_coverage"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObserveProbe("a", "b")
	m.ObserveMutation("add", 1)
	m.ObserveItem("a", "b")
	m.SetCoverage("a", 1)
	m.ObserveRun("recover", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
