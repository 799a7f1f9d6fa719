package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	AttemptsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "assessment_attempts_started_total",
			Help: "Attempts created",
		},
	)

	AttemptsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_attempts_finished_total",
			Help: "Attempts finished, by pass result",
		},
		[]string{"passed"},
	)

	ResponsesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_responses_recorded_total",
			Help: "Responses recorded, by question type and whether they were auto-graded",
		},
		[]string{"question_type", "graded"},
	)

	AttemptScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assessment_attempt_score_percent",
			Help:    "Final score of finished attempts",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	ProgressPropagations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_progress_propagations_total",
			Help: "Progress cascade runs, by outcome",
		},
		[]string{"outcome"},
	)

	registerOnce sync.Once
)

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(AttemptsStarted)
		prometheus.MustRegister(AttemptsFinished)
		prometheus.MustRegister(ResponsesRecorded)
		prometheus.MustRegister(AttemptScore)
		prometheus.MustRegister(ProgressPropagations)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
