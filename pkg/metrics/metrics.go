// Package metrics exposes Prometheus counters for long-running Pipeline
// mode invocations (CI runners and daemons that stay up across many
// validation batches), so an operator can scrape tool run counts and
// durations the same way they would any other service.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tinyland-inc/huskycat/pkg/logger"
)

var metricsLog = logger.New("metrics")

// Recorder wraps the counters and histograms a scheduler drives per tool
// invocation.
type Recorder struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder builds a Recorder registered against a private registry, so
// multiple invocations in the same process (tests) never collide on the
// default global registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		runs: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "huskycat",
			Name:      "tool_runs_total",
			Help:      "Total validator invocations, by tool name.",
		}, []string{"tool"}),
		failures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "huskycat",
			Name:      "tool_failures_total",
			Help:      "Total validator invocations that reported at least one error, by tool name.",
		}, []string{"tool"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "huskycat",
			Name:      "tool_duration_seconds",
			Help:      "Validator invocation duration in seconds, by tool name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}
	return r
}

// Observe records one completed tool invocation.
func (r *Recorder) Observe(tool string, duration time.Duration, success bool) {
	r.runs.WithLabelValues(tool).Inc()
	r.duration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		r.failures.WithLabelValues(tool).Inc()
	}
}

// Serve starts an HTTP /metrics endpoint on addr and blocks until ctx is
// canceled, used by long-running Pipeline mode daemons (§4.9's Pipeline
// adapter never shows progress or color, but may still be scraped).
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		metricsLog.Printf("serving metrics on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
