// Package prometheus exports Session transitions as Prometheus metrics.
package prometheus

import (
	"github.com/porthorian/simpleauth/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type Recorder struct {
	operations    *prometheus.CounterVec
	authenticated prometheus.Gauge
}

var _ metrics.Recorder = (*Recorder)(nil)

// NewRecorder registers the session collectors with registerer. A nil
// registerer falls back to prometheus.DefaultRegisterer.
func NewRecorder(registerer prometheus.Registerer) (*Recorder, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simpleauth_session_operations_total",
			Help: "Session operations by type and outcome",
		}, []string{"operation", "outcome"}),
		authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simpleauth_session_authenticated",
			Help: "1 while the session is bound to an authenticator, 0 otherwise",
		}),
	}

	for _, collector := range []prometheus.Collector{r.operations, r.authenticated} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) ObserveOperation(op metrics.Operation, outcome metrics.Outcome) {
	r.operations.WithLabelValues(string(op), string(outcome)).Inc()
}

func (r *Recorder) SetAuthenticated(authenticated bool) {
	if authenticated {
		r.authenticated.Set(1)
		return
	}
	r.authenticated.Set(0)
}
