package controller

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is shared by every controller of the process. A nil *Metrics records nothing.
type Metrics struct {
	syncs    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "most_explorer_lane_sync_total",
			Help: "Lane fetches by final state.",
		}, []string{"lane", "state"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "most_explorer_lane_fetch_duration_seconds",
			Help:    "Time spent fetching and normalizing one lane.",
			Buckets: prometheus.DefBuckets,
		}, []string{"lane"}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.syncs, err = register(reg, m.syncs); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observe(lane Lane, state State, took time.Duration) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(string(lane), state.String()).Inc()
	m.duration.WithLabelValues(string(lane)).Observe(took.Seconds())
}
