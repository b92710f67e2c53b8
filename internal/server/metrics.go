package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ggonzalez94/tradeagent/internal/agent"
)

// Metrics owns a private registry so several servers (and tests) can coexist
// in one process.
type Metrics struct {
	registry  *prometheus.Registry
	responses *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	chatTime  *prometheus.HistogramVec
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeagent_chat_responses_total",
				Help: "Chat responses by intent and answering path",
			},
			[]string{"intent", "source"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeagent_chat_fallbacks_total",
				Help: "Turns answered by the rule path, by reason",
			},
			[]string{"reason"},
		),
		chatTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeagent_chat_duration_seconds",
				Help:    "End to end chat turn latency in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"source"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeagent_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeagent_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "class"},
		),
	}
	m.registry.MustRegister(m.responses, m.fallbacks, m.chatTime, m.requests, m.duration)
	return m
}

func (m *Metrics) ObserveChat(res agent.Result, took time.Duration) {
	m.responses.WithLabelValues(string(res.Response.Intent), string(res.Source)).Inc()
	if res.FallbackReason != "" {
		m.fallbacks.WithLabelValues(res.FallbackReason).Inc()
	}
	m.chatTime.WithLabelValues(string(res.Source)).Observe(took.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// middleware records request counts and latency labelled by route template
// to keep cardinality low.
func (m *Metrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			m.requests.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
			m.duration.WithLabelValues(route, c.Request().Method, statusClass(status)).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

func statusClass(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
