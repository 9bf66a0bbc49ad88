// Package metrics exposes the engine's Prometheus collectors and the HTTP
// instrumentation middleware.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gm_engine",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gm_engine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gm_engine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	missionWriteConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gm_engine",
			Subsystem: "missions",
			Name:      "write_conflicts_total",
			Help:      "Conditional writes lost to a concurrent writer and retried.",
		},
	)

	missionWriteExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gm_engine",
			Subsystem: "missions",
			Name:      "write_retries_exhausted_total",
			Help:      "Mission updates that surfaced a contention failure after all retries.",
		},
	)

	effectRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gm_engine",
			Subsystem: "effects",
			Name:      "runs_total",
			Help:      "Best-effort side effects executed, by effect and outcome.",
		},
		[]string{"effect", "success"},
	)

	effectsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gm_engine",
			Subsystem: "effects",
			Name:      "dropped_total",
			Help:      "Side effects dropped because the queue was full or stopped.",
		},
	)

	adminKeysDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gm_engine",
			Subsystem: "admin",
			Name:      "keys_deleted_total",
			Help:      "Keys removed by administrative resets.",
		},
	)

	dailyActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gm_engine",
			Subsystem: "streaks",
			Name:      "daily_active_addresses",
			Help:      "Active address count reported for the most recent completed day.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		missionWriteConflicts,
		missionWriteExhausted,
		effectRuns,
		effectsDropped,
		adminKeysDeleted,
		dailyActive,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordWriteConflict counts one lost conditional write.
func RecordWriteConflict() {
	missionWriteConflicts.Inc()
}

// RecordWriteExhausted counts one contention failure surfaced to a caller.
func RecordWriteExhausted() {
	missionWriteExhausted.Inc()
}

// RecordEffect counts one executed side effect.
func RecordEffect(name string, err error) {
	success := "true"
	if err != nil {
		success = "false"
	}
	if name == "" {
		name = "unknown"
	}
	effectRuns.WithLabelValues(name, success).Inc()
}

// RecordEffectDropped counts one side effect that never ran.
func RecordEffectDropped() {
	effectsDropped.Inc()
}

// RecordKeysDeleted counts keys removed by an administrative reset.
func RecordKeysDeleted(n int) {
	if n > 0 {
		adminKeysDeleted.Add(float64(n))
	}
}

// SetDailyActive publishes the most recent daily active-address count.
func SetDailyActive(count int64) {
	dailyActive.Set(float64(count))
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses per-address segments so label cardinality stays
// bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "v1" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/v1"
	}
	resource := parts[1]
	switch resource {
	case "activity", "streaks", "missions":
		out := "/v1/" + resource + "/:address"
		if len(parts) > 3 {
			out += "/" + parts[3]
		}
		return out
	default:
		out := "/v1/" + resource
		if len(parts) > 2 {
			out += "/" + parts[2]
		}
		return out
	}
}
