package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPortalMetricsObserve(t *testing.T) {
	m := NewPortalMetrics(prometheus.NewRegistry())
	m.ObserveBooking("created")
	m.ObserveBooking("rejected")
	m.ObserveAvailability("ok")
	m.ObserveStaleDiscard()
	m.ObserveBackendLatency("create_appointment", 0.2)
	m.ObserveIdentityCache("hit")
}

func TestPortalMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPortalMetrics(reg)
	m.ObserveBooking("created")
}

func TestPortalMetricsNilSafe(t *testing.T) {
	var m *PortalMetrics
	m.ObserveBooking("created")
	m.ObserveAvailability("failed")
	m.ObserveStaleDiscard()
	m.ObserveBackendLatency("me", 0.1)
	m.ObserveIdentityCache("miss")
}
