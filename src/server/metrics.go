package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	app "imgserv/src/app"
)

// Metrics collects HTTP and domain counters for one service.
type Metrics struct {
	gatherer prometheus.Gatherer

	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	tokensIssued  *prometheus.CounterVec
	uploadURLs    prometheus.Counter
	presignedGets prometheus.Counter
}

var (
	_ app.TokenRecorder  = (*Metrics)(nil)
	_ app.UploadRecorder = (*Metrics)(nil)
)

// NewMetrics registers every collector on reg, which is also scraped by
// Handler.
func NewMetrics(service string, reg *prometheus.Registry) *Metrics {
	labels := prometheus.Labels{"service": service}
	m := &Metrics{
		gatherer: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "HTTP requests by route and status.",
			ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "route"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tokens_issued_total",
			Help:        "Issued tokens by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		uploadURLs: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "upload_urls_issued_total",
			Help:        "Presigned upload URLs handed out.",
			ConstLabels: labels,
		}),
		presignedGets: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "presigned_gets_total",
			Help:        "Presigned download URLs handed out.",
			ConstLabels: labels,
		}),
	}
	reg.MustRegister(m.requests, m.latency, m.tokensIssued, m.uploadURLs, m.presignedGets)
	return m
}

func (m *Metrics) TokenIssued(kind string) {
	m.tokensIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) UploadURLIssued() {
	m.uploadURLs.Inc()
}

func (m *Metrics) DownloadURLIssued() {
	m.presignedGets.Inc()
}

// Middleware records request count and latency by matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}
