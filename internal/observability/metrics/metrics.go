package metrics

import "github.com/prometheus/client_golang/prometheus"

// PortalMetrics exposes counters/histograms for the booking flow.
type PortalMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	availabilityTotal  *prometheus.CounterVec
	staleDiscards      prometheus.Counter
	backendLatency     *prometheus.HistogramVec
	identityCacheTotal *prometheus.CounterVec
}

func NewPortalMetrics(reg prometheus.Registerer) *PortalMetrics {
	m := &PortalMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthapp",
			Subsystem: "portal",
			Name:      "bookings_total",
			Help:      "Total booking submissions by outcome",
		}, []string{"status"}),
		availabilityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthapp",
			Subsystem: "portal",
			Name:      "availability_requests_total",
			Help:      "Total availability fetches by outcome",
		}, []string{"status"}),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "healthapp",
			Subsystem: "portal",
			Name:      "stale_responses_discarded_total",
			Help:      "Responses discarded because a newer request superseded them",
		}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "healthapp",
			Subsystem: "portal",
			Name:      "backend_latency_seconds",
			Help:      "Latency of HealthApp backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		identityCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthapp",
			Subsystem: "portal",
			Name:      "identity_cache_total",
			Help:      "Identity cache lookups by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.availabilityTotal, m.staleDiscards, m.backendLatency, m.identityCacheTotal)
	return m
}

func (m *PortalMetrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *PortalMetrics) ObserveAvailability(status string) {
	if m == nil {
		return
	}
	m.availabilityTotal.WithLabelValues(status).Inc()
}

func (m *PortalMetrics) ObserveStaleDiscard() {
	if m == nil {
		return
	}
	m.staleDiscards.Inc()
}

func (m *PortalMetrics) ObserveBackendLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.backendLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *PortalMetrics) ObserveIdentityCache(result string) {
	if m == nil {
		return
	}
	m.identityCacheTotal.WithLabelValues(result).Inc()
}
