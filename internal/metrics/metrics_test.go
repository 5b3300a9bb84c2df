package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementReceived()
	m.IncrementReceived()
	m.IncrementFiltered()
	m.IncrementScored("violation")
	m.IncrementFailed(StageEnrich)
	m.IncrementFailed(StageEnrich)
	m.IncrementAck("nak")
	m.IncrementPersisted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsFiltered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsScored.WithLabelValues("violation")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EventsScored.WithLabelValues("normal")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsFailed.WithLabelValues(StageEnrich)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Acks.WithLabelValues("nak")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditsPersisted))
}

func TestObserveDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDuration(0.004)
	m.ObserveDuration(0.2)

	assert.Equal(t, 1, testutil.CollectAndCount(m.ProcessDuration))

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "scorer_process_duration_seconds" {
			assert.Equal(t, uint64(2), f.GetMetric()[0].GetHistogram().GetSampleCount())
			return
		}
	}
	t.Fatal("histogram not registered")
}

func TestNewRegistersOncePerRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
