// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests      *prometheus.HistogramVec
	priceLookups  *prometheus.CounterVec
	missingPrices prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cryptex",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		priceLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cryptex",
			Name:      "price_lookups_total",
			Help:      "Exchange price lookups by outcome.",
		}, []string{"outcome"}),
		missingPrices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cryptex",
			Name:      "missing_prices_total",
			Help:      "Balances that could not be valued because their price was missing.",
		}),
	}
	reg.MustRegister(m.requests, m.priceLookups, m.missingPrices)
	return m
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

// PriceLookup records the outcome of one exchange lookup ("ok" or "error").
func (m *Metrics) PriceLookup(outcome string) {
	if m == nil {
		return
	}
	m.priceLookups.WithLabelValues(outcome).Inc()
}

// MissingPrices records n balances left without a value.
func (m *Metrics) MissingPrices(n int) {
	if m == nil || n == 0 {
		return
	}
	m.missingPrices.Add(float64(n))
}
