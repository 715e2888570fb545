package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheLookup("hit")
		m.RuleFetch("t", "ok")
		m.RulesLoaded("t", 3)
		m.Message("a", "matched")
		m.Reply("a", "ok")
		m.LogAppend("ok")
		m.Webhook("accepted")
	})
}

func TestCountersAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CacheLookup("hit")
	m.CacheLookup("hit")
	m.RuleFetch("sheet-1", "error")
	m.RulesLoaded("sheet-1", 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ruleFetches.WithLabelValues("sheet-1", "error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.rulesLoaded.WithLabelValues("sheet-1")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "keyword_relay_cache_lookups_total")
}
