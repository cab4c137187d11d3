// Package observability exposes the gateway's admin HTTP endpoint:
// /healthz for orchestrators and /metrics for Prometheus scraping. This
// is new surface the teacher repo doesn't have; it's built the way the
// rest of the pack wires these concerns, with julienschmidt/httprouter
// for routing and prometheus/client_golang for the metric registry.
package observability

import (
	"net/http"
	"sync/atomic"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the gateway-wide metric registry, one instance shared by
// every endpoint's connection handlers.
type Metrics struct {
	RequestsTotal  *prometheus.CounterVec
	RequestErrors  *prometheus.CounterVec
	RequestSeconds *prometheus.HistogramVec
}

// NewMetrics registers the gateway's metrics against a fresh registry and
// returns both so Handler can serve them.
func NewMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pfxrest_requests_total",
			Help: "Total requests handled, by endpoint and verdict.",
		}, []string{"endpoint", "verdict"}),
		RequestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pfxrest_request_errors_total",
			Help: "Total requests that produced a transient or permanent error, by endpoint.",
		}, []string{"endpoint", "class"}),
		RequestSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pfxrest_request_duration_seconds",
			Help:    "Time spent handling one request, from request parsed to reply built.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}

	return m, reg
}

// Readiness tracks whether every configured listener has bound. healthz
// reports 503 until SetReady is called and again after SetNotReady is called.
type Readiness struct {
	ready int32
}

func (r *Readiness) SetReady()    { atomic.StoreInt32(&r.ready, 1) }
func (r *Readiness) SetNotReady() { atomic.StoreInt32(&r.ready, 0) }
func (r *Readiness) IsReady() bool {
	return atomic.LoadInt32(&r.ready) == 1
}

// Handler builds the admin HTTP handler: GET /healthz and GET /metrics.
func Handler(reg *prometheus.Registry, ready *Readiness) http.Handler {
	router := httprouter.New()

	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if !ready.IsReady() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	router.Handler(http.MethodGet, "/metrics", metricsHandler)

	return router
}
