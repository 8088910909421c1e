package metrics

import (
	"testing"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilProviderRecordsNothing(t *testing.T) {
	var p *Provider
	// must not panic
	p.SpawnSucceeded(time.Now())
	p.SpawnFailed()
	p.ConnClosed()
}

func TestProviderRegistersInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProvider(reg)

	p.SpawnSucceeded(time.Now().Add(-10 * time.Millisecond))
	p.SpawnFailed()
	p.ConnClosed()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["portapty_provider_spawn_duration_ms"])
	assert.True(t, names["portapty_provider_spawn_failures_total"])
	assert.True(t, names["portapty_provider_active_connections"])
}

func Test_measureSince(t *testing.T) {
	h := &fakeHistogram{}
	t0 := time.Unix(0, 0)
	t1 := t0.Add(1500 * time.Millisecond)
	measureSince(h, t0, t1, float64(time.Millisecond))
	assert.Equal(t, 1500.0, h.last)

	// clock going backwards clamps to zero
	measureSince(h, t1, t0, float64(time.Millisecond))
	assert.Equal(t, 0.0, h.last)
}

type fakeHistogram struct{ last float64 }

func (f *fakeHistogram) With(...string) metrics.Histogram { return f }
func (f *fakeHistogram) Observe(v float64)                { f.last = v }
