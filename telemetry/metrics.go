// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CapturesStarted prometheus.Counter
	CapturesEnded   prometheus.Counter
	CapturesCrashed prometheus.Counter
	CaptureStartErr prometheus.Counter
	CheckErrors     *prometheus.CounterVec
	PollTicks       prometheus.Counter

	// Histograms (seconds)
	CheckDuration   prometheus.Observer
	CaptureDuration prometheus.Observer

	// Gauges
	ActiveCaptures   prometheus.Gauge
	PlatformDisabled *prometheus.GaugeVec // 1=auth-disabled
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CapturesStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "capture_started_total", Help: "Number of captures started"})
		CapturesEnded = promauto.NewCounter(prometheus.CounterOpts{Name: "capture_ended_total", Help: "Number of captures ended (process exit or terminate)"})
		CapturesCrashed = promauto.NewCounter(prometheus.CounterOpts{Name: "capture_crashed_total", Help: "Number of captures whose process exited abnormally"})
		CaptureStartErr = promauto.NewCounter(prometheus.CounterOpts{Name: "capture_start_errors_total", Help: "Number of failed capture start attempts"})
		CheckErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "live_check_errors_total", Help: "Live status check errors by platform and class"}, []string{"platform", "class"})
		PollTicks = promauto.NewCounter(prometheus.CounterOpts{Name: "poll_ticks_total", Help: "Number of per-channel poll ticks evaluated"})
		CheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "live_check_duration_seconds", Help: "Live status check duration seconds", Buckets: prometheus.DefBuckets})
		CaptureDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "capture_duration_seconds", Help: "Completed capture duration seconds", Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800}})
		ActiveCaptures = promauto.NewGauge(prometheus.GaugeOpts{Name: "active_captures", Help: "Current number of running capture processes"})
		PlatformDisabled = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "platform_checker_disabled", Help: "1 when a platform checker is disabled after auth failure"}, []string{"platform"})
	})
}

// ObserveCheck records one live check outcome.
func ObserveCheck(platform string, d time.Duration, err error, class string) {
	if CheckDuration != nil {
		CheckDuration.Observe(d.Seconds())
	}
	if err != nil && CheckErrors != nil {
		CheckErrors.WithLabelValues(platform, class).Inc()
	}
}

// SetPlatformDisabled flips the auth-disabled gauge for a platform.
func SetPlatformDisabled(platform string, disabled bool) {
	if PlatformDisabled == nil {
		return
	}
	v := 0.0
	if disabled {
		v = 1
	}
	PlatformDisabled.WithLabelValues(platform).Set(v)
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
