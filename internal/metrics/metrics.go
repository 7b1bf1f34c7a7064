package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "talentforge", Name: "http_requests_total", Help: "HTTP requests by method and status",
	}, []string{"method", "status"})
	HTTPErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "talentforge", Name: "http_errors_total", Help: "HTTP responses with status >= 500",
	})
	HTTPDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "talentforge", Name: "http_request_seconds", Help: "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "talentforge", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPErrors, HTTPDuration, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }
