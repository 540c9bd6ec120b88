package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type EscrowMetrics struct {
	transitions    *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	openDisputes   prometheus.Gauge
	custodyHeld    prometheus.Gauge
	registryMinted prometheus.Counter
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics
)

func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_transitions_total",
				Help: "Count of committed escrow state transitions by operation.",
			}, []string{"operation"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_rejections_total",
				Help: "Count of rejected escrow operations by error class.",
			}, []string{"operation", "reason"}),
			openDisputes: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "escrow_open_disputes",
				Help: "Number of escrows currently sitting in the disputed state.",
			}),
			custodyHeld: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "escrow_custody_held",
				Help: "Total value currently held across all custody accounts.",
			}),
			registryMinted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "registry_tokens_minted_total",
				Help: "Count of product tokens minted by the registry.",
			}),
		}
		prometheus.MustRegister(
			escrowRegistry.transitions,
			escrowRegistry.rejections,
			escrowRegistry.openDisputes,
			escrowRegistry.custodyHeld,
			escrowRegistry.registryMinted,
		)
	})
	return escrowRegistry
}

func (m *EscrowMetrics) ObserveTransition(operation string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation).Inc()
}

func (m *EscrowMetrics) ObserveRejection(operation, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(operation, reason).Inc()
}

func (m *EscrowMetrics) AddOpenDisputes(delta float64) {
	if m == nil {
		return
	}
	m.openDisputes.Add(delta)
}

func (m *EscrowMetrics) AddCustodyHeld(delta float64) {
	if m == nil {
		return
	}
	m.custodyHeld.Add(delta)
}

func (m *EscrowMetrics) ObserveMint() {
	if m == nil {
		return
	}
	m.registryMinted.Inc()
}
