// Package monitoring exports verdict counters to prometheus.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/certevidence/ct"
)

// Metrics counts verdicts by origin and status. It implements the
// verifier's Observer interface.
type Metrics struct {
	verdicts *prometheus.CounterVec
}

// New registers the verdict counter with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ct_sct_verdicts_total",
			Help: "SCT verdicts by evidence channel and status.",
		}, []string{"origin", "status"}),
	}
	reg.MustRegister(m.verdicts)
	return m
}

func (m *Metrics) ObserveVerdict(origin ct.SCTOrigin, status ct.VerifyStatus) {
	m.verdicts.WithLabelValues(origin.String(), status.String()).Inc()
}
