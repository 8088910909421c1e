package metrics

import (
	"time"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const defaultTimingUnit = time.Millisecond

func MeasureSince(h metrics.Histogram, t0 time.Time) {
	measureSince(h, t0, time.Now(), float64(defaultTimingUnit))
}

func measureSince(h metrics.Histogram, t0, t1 time.Time, unit float64) {
	d := t1.Sub(t0)
	if d < 0 {
		d = 0
	}
	h.Observe(float64(d) / unit)
}

// Provider holds the instruments the pty provider and connections
// update. A nil *Provider is valid and records nothing.
type Provider struct {
	SpawnDuration metrics.Histogram
	SpawnFailures metrics.Counter
	ActiveConns   metrics.Gauge
}

// NewProvider registers the provider instruments with reg.
func NewProvider(reg stdprometheus.Registerer) *Provider {
	spawnDuration := stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
		Namespace: "portapty",
		Subsystem: "provider",
		Name:      "spawn_duration_ms",
		Help:      "Time from spawn request to a live connection.",
	}, nil)
	spawnFailures := stdprometheus.NewCounterVec(stdprometheus.CounterOpts{
		Namespace: "portapty",
		Subsystem: "provider",
		Name:      "spawn_failures_total",
		Help:      "Spawns that failed before a connection was returned.",
	}, nil)
	activeConns := stdprometheus.NewGaugeVec(stdprometheus.GaugeOpts{
		Namespace: "portapty",
		Subsystem: "provider",
		Name:      "active_connections",
		Help:      "Connections spawned and not yet disposed.",
	}, nil)

	reg.MustRegister(spawnDuration, spawnFailures, activeConns)

	return &Provider{
		SpawnDuration: kitprometheus.NewHistogram(spawnDuration),
		SpawnFailures: kitprometheus.NewCounter(spawnFailures),
		ActiveConns:   kitprometheus.NewGauge(activeConns),
	}
}

func (p *Provider) SpawnSucceeded(t0 time.Time) {
	if p == nil {
		return
	}
	MeasureSince(p.SpawnDuration, t0)
	p.ActiveConns.Add(1)
}

func (p *Provider) SpawnFailed() {
	if p == nil {
		return
	}
	p.SpawnFailures.Add(1)
}

func (p *Provider) ConnClosed() {
	if p == nil {
		return
	}
	p.ActiveConns.Add(-1)
}
