package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the sweeper's Prometheus collectors.
type Metrics struct {
	CyclesTotal   prometheus.Counter
	GasFeeTxTotal prometheus.Counter
	SweepTxTotal  prometheus.Counter
	CycleErrors   *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sweeper",
			Name:      "cycles_total",
			Help:      "Transfer cycles started.",
		}),
		GasFeeTxTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sweeper",
			Name:      "gas_fee_txs_total",
			Help:      "Gas funding transactions broadcast.",
		}),
		SweepTxTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sweeper",
			Name:      "sweep_txs_total",
			Help:      "Token sweep transactions broadcast.",
		}),
		CycleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sweeper",
			Name:      "cycle_errors_total",
			Help:      "Cycle failures by error kind.",
		}, []string{"kind"}),
	}
}

// Handler returns the scrape handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
