package internaldefs

import (
	goCartes "github.com/MrEthical07/goCartes"
)

// CounterDef names one client counter for exporters.
type CounterDef struct {
	ID   goCartes.MetricID
	Name string
	Help string
}

// HistogramDef names one client histogram for exporters.
type HistogramDef struct {
	ID   goCartes.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goCartes.MetricLoginSuccess, Name: "gocartes_login_success_total", Help: "Successful logins."},
	{ID: goCartes.MetricLoginFailure, Name: "gocartes_login_failure_total", Help: "Failed logins."},
	{ID: goCartes.MetricLogout, Name: "gocartes_logout_total", Help: "Logouts, including those without a session."},
	{ID: goCartes.MetricRefreshSuccess, Name: "gocartes_refresh_success_total", Help: "Successful token refreshes."},
	{ID: goCartes.MetricRefreshFailure, Name: "gocartes_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: goCartes.MetricSessionRestored, Name: "gocartes_session_restored_total", Help: "Sessions restored from storage."},
	{ID: goCartes.MetricSessionExpired, Name: "gocartes_session_expired_total", Help: "Sessions ended by the client."},
	{ID: goCartes.MetricPermissionDenied, Name: "gocartes_permission_denied_total", Help: "Calls refused locally or by the backend."},
	{ID: goCartes.MetricNetworkError, Name: "gocartes_network_error_total", Help: "Requests that never reached the backend."},
	{ID: goCartes.MetricTimeout, Name: "gocartes_timeout_total", Help: "Requests that timed out."},
	{ID: goCartes.MetricRequest, Name: "gocartes_request_total", Help: "Backend requests that received a response."},
	{ID: goCartes.MetricRequestFailure, Name: "gocartes_request_failure_total", Help: "Backend responses with an error status other than 404."},
	{ID: goCartes.MetricRetry, Name: "gocartes_retry_total", Help: "Retried attempts."},
	{ID: goCartes.MetricCacheHit, Name: "gocartes_cache_hit_total", Help: "Reads served from the cache."},
	{ID: goCartes.MetricCacheMiss, Name: "gocartes_cache_miss_total", Help: "Reads that went to the backend."},
	{ID: goCartes.MetricCacheInvalidation, Name: "gocartes_cache_invalidation_total", Help: "Cache invalidations."},
	{ID: goCartes.MetricImportSuccess, Name: "gocartes_import_success_total", Help: "Accepted spreadsheet imports."},
	{ID: goCartes.MetricImportFailure, Name: "gocartes_import_failure_total", Help: "Failed spreadsheet imports."},
}

var HistogramDefs = []HistogramDef{
	{ID: goCartes.MetricRequestLatency, Name: "gocartes_request_latency_seconds", Help: "Backend request latency."},
}

// EventsDroppedName counts notifications lost to a full dispatcher buffer.
const EventsDroppedName = "gocartes_events_dropped_total"

// HistogramBounds are the upper bounds, in seconds, of the first seven buckets.
// The eighth bucket is unbounded.
var HistogramBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// HistogramBoundSuffix names each bucket in instrument names.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
