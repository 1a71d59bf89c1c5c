package framework

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds framework-level gauges/counters; Collectors returns them as
// prometheus collectors a host can register with its own registry.
type Metrics struct {
	bundlesInstalled prometheus.GaugeFunc
	servicesActive   prometheus.GaugeFunc
	bundleStarts     prometheus.Counter
	bundleStopFails  prometheus.Counter
}

// NewMetrics wires gauge callbacks against f so the collected values always
// reflect live framework state rather than a point-in-time snapshot taken
// at construction.
func NewMetrics(f *Framework) *Metrics {
	m := &Metrics{
		bundlesInstalled: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "corvus",
			Name:      "bundles_installed",
			Help:      "Number of bundles currently installed.",
		}, func() float64 { return float64(len(f.table.InstallOrder())) }),
		servicesActive: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "corvus",
			Name:      "services_active",
			Help:      "Number of service registrations currently active.",
		}, func() float64 { return float64(len(f.reg.Inspect())) }),
		bundleStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corvus",
			Name:      "bundle_starts_total",
			Help:      "Number of bundle start attempts.",
		}),
		bundleStopFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corvus",
			Name:      "bundle_stop_failures_total",
			Help:      "Number of bundle stops whose activator returned an error.",
		}),
	}
	return m
}

// Collectors returns every collector a host should register.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.bundlesInstalled, m.servicesActive, m.bundleStarts, m.bundleStopFails}
}
