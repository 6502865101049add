package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goCartes "github.com/MrEthical07/goCartes"
	"github.com/MrEthical07/goCartes/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot goCartes.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goCartes.MetricsSnapshot { return f.snapshot }
func (f fakeSource) EventsDropped() uint64                     { return f.dropped }

func scrape(t *testing.T, exp *PrometheusExporter) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollectorEmitsNothingWhenMetricsDisabled(t *testing.T) {
	c := NewCollector(fakeSource{snapshot: goCartes.MetricsSnapshot{
		Counters:   map[goCartes.MetricID]uint64{},
		Histograms: map[goCartes.MetricID][]uint64{},
	}})
	assert.Zero(t, testutil.CollectAndCount(c))
}

func TestCollectorEmitsEverySeries(t *testing.T) {
	c := NewCollector(fakeSource{snapshot: goCartes.MetricsSnapshot{
		Counters:   map[goCartes.MetricID]uint64{goCartes.MetricLoginSuccess: 1},
		Histograms: map[goCartes.MetricID][]uint64{goCartes.MetricRequestLatency: {1}},
	}})
	assert.Equal(t, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)+1, testutil.CollectAndCount(c))
}

func TestHandlerRendersCountersAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goCartes.MetricsSnapshot{
			Counters: map[goCartes.MetricID]uint64{
				goCartes.MetricLoginSuccess:   7,
				goCartes.MetricSessionExpired: 1,
			},
			Histograms: map[goCartes.MetricID][]uint64{
				goCartes.MetricRequestLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			LatencySums: map[goCartes.MetricID]time.Duration{
				goCartes.MetricRequestLatency: 1500 * time.Millisecond,
			},
		},
		dropped: 2,
	})

	out := scrape(t, exp)
	assert.Contains(t, out, "gocartes_login_success_total 7")
	assert.Contains(t, out, "gocartes_session_expired_total 1")
	assert.Contains(t, out, "gocartes_retry_total 0")
	assert.Contains(t, out, `gocartes_request_latency_seconds_bucket{le="0.05"} 1`)
	assert.Contains(t, out, `gocartes_request_latency_seconds_bucket{le="5"} 28`)
	assert.Contains(t, out, `gocartes_request_latency_seconds_bucket{le="+Inf"} 36`)
	assert.Contains(t, out, "gocartes_request_latency_seconds_count 36")
	assert.Contains(t, out, "gocartes_request_latency_seconds_sum 1.5")
	assert.Contains(t, out, "gocartes_events_dropped_total 2")
}

func TestExporterReadsLiveClient(t *testing.T) {
	cfg := goCartes.DefaultConfig()
	cfg.API.BaseURL = "http://127.0.0.1:1"
	client, err := goCartes.New().WithConfig(cfg).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Logout(t.Context()))
	out := scrape(t, NewPrometheusExporter(client))
	assert.Contains(t, out, "gocartes_logout_total 1")
}
