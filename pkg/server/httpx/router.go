package httpx

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates the router for the watcher's HTTP endpoint: liveness,
// readiness and Prometheus metrics gathered from g.
func NewRouter(g prometheus.Gatherer, ready *atomic.Bool) *chi.Mux {
	r := chi.NewRouter()
	r.Use(Logger)
	r.Use(Recovery)

	r.Get("/healthz", HealthzHandler)
	r.Get("/readyz", ReadyzHandler(ready))
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	return r
}

// HealthzHandler responds with 200 OK if the process is alive.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ReadyzHandler returns 200 once ready is set, 503 otherwise.
func ReadyzHandler(ready *atomic.Bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("Ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Not Ready"))
	}
}
