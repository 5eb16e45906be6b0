package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gqa"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
	rejectedTotal   *prometheus.CounterVec

	answerTotal       *prometheus.CounterVec
	answerConfidence  *prometheus.CounterVec
	answerAttempts    *prometheus.HistogramVec
	answerDuration    *prometheus.HistogramVec
	answerFallback    *prometheus.CounterVec
	corpusReloadTotal *prometheus.CounterVec
	corpusChunks      *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	rejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests rejected by traffic control, by cause.",
		},
		[]string{"service", "cause"},
	)
	answerTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "outcomes_total",
			Help:      "Answer pipeline outcomes by kind and reason.",
		},
		[]string{"service", "outcome", "reason"},
	)
	answerConfidence := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "confidence_total",
			Help:      "Answers by reported confidence level.",
		},
		[]string{"service", "confidence"},
	)
	answerAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "generation_attempts",
			Help:      "Generation attempts per answered query.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)
	answerDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "duration_seconds",
			Help:      "Answer pipeline duration in seconds by outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "outcome"},
	)
	answerFallback := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "fallback_total",
			Help:      "Answers released from the best evidence chunk after generation failed.",
		},
		[]string{"service"},
	)
	corpusReloadTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "corpus",
			Name:      "reloads_total",
			Help:      "Sparse index rebuilds by status.",
		},
		[]string{"service", "status"},
	)
	corpusChunks := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "corpus",
			Name:      "chunks",
			Help:      "Chunks in the published sparse index.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		rejectedTotal,
		answerTotal,
		answerConfidence,
		answerAttempts,
		answerDuration,
		answerFallback,
		corpusReloadTotal,
		corpusChunks,
	)

	return &HTTPServerMetrics{
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		rejectedTotal:     rejectedTotal,
		answerTotal:       answerTotal,
		answerConfidence:  answerConfidence,
		answerAttempts:    answerAttempts,
		answerDuration:    answerDuration,
		answerFallback:    answerFallback,
		corpusReloadTotal: corpusReloadTotal,
		corpusChunks:      corpusChunks,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests and extra collectors.
func (m *HTTPServerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

// AnswerObservation is one finished run of the answer pipeline.
type AnswerObservation struct {
	Outcome    string
	Reason     string
	Confidence string
	Attempts   int
	Fallback   bool
	Duration   time.Duration
}

func (m *HTTPServerMetrics) RecordAnswer(service string, obs AnswerObservation) {
	outcome := orUnknown(obs.Outcome)
	m.answerTotal.WithLabelValues(service, outcome, obs.Reason).Inc()
	m.answerDuration.WithLabelValues(service, outcome).Observe(obs.Duration.Seconds())
	if obs.Confidence != "" {
		m.answerConfidence.WithLabelValues(service, obs.Confidence).Inc()
	}
	m.answerAttempts.WithLabelValues(service).Observe(float64(obs.Attempts))
	if obs.Fallback {
		m.answerFallback.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordRejected(service, cause string) {
	m.rejectedTotal.WithLabelValues(service, orUnknown(cause)).Inc()
}

func (m *HTTPServerMetrics) RecordCorpusReload(service string, chunks int, err error) {
	if err != nil {
		m.corpusReloadTotal.WithLabelValues(service, "error").Inc()
		return
	}
	m.corpusReloadTotal.WithLabelValues(service, "success").Inc()
	m.corpusChunks.WithLabelValues(service).Set(float64(chunks))
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
