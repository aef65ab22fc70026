package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CounterRequests      *prometheus.CounterVec
	CounterWorkouts      prometheus.Counter
	CounterUnlocks       *prometheus.CounterVec
	HistRequestDuration  prometheus.Histogram
	GaugeTrackedDistance prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CounterRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lovefit",
			Subsystem: "progress_server",
			Name:      "request",
			Help:      "The total number of incoming requests",
		}, []string{"route", "method", "status"}),
		CounterWorkouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lovefit",
			Subsystem: "progress_server",
			Name:      "workouts",
			Help:      "The total number of processed workouts",
		}),
		CounterUnlocks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lovefit",
			Subsystem: "progress_server",
			Name:      "unlocks",
			Help:      "Stories unlocked, by story id",
		}, []string{"story"}),
		HistRequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lovefit",
			Subsystem: "progress_server",
			Name:      "request_duration_seconds",
			Help:      "Request handling duration",
			Buckets:   prometheus.DefBuckets,
		}),
		GaugeTrackedDistance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "lovefit",
			Subsystem: "progress_server",
			Name:      "tracked_distance_meters",
			Help:      "Total distance of the default user",
		}),
	}
}

func (m *Metrics) middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func(begin time.Time) {
			m.HistRequestDuration.Observe(time.Since(begin).Seconds())
		}(time.Now())

		resp := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(resp, r)

		m.CounterRequests.With(prometheus.Labels{
			"route":  route,
			"method": r.Method,
			"status": strconv.Itoa(resp.statusCode),
		}).Inc()
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseWriter) WriteHeader(statusCode int) {
	r.ResponseWriter.WriteHeader(statusCode)
	r.statusCode = statusCode
}
