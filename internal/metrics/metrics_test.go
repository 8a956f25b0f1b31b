package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoOpNeverPanics(t *testing.T) {
	sink := NoOp()
	sink.IncCounter("iterations_total", map[string]string{"session": "a"})
	sink.SetGauge("active_sessions", 3, nil)
	sink.ObserveHistogram("iteration_seconds", 1.5, map[string]string{"role": "coder"})
}

func TestPrometheusRecordsAcrossCallsWithoutPush(t *testing.T) {
	p := New("foreman_test", "")

	p.IncCounter("iterations_total", map[string]string{"session": "a"})
	p.IncCounter("iterations_total", map[string]string{"session": "a"})
	p.SetGauge("active_sessions", 2, map[string]string{"kind": "cli"})
	p.ObserveHistogram("iteration_seconds", 0.2, map[string]string{"role": "coder"})

	families, err := p.registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	var found bool
	for _, fam := range families {
		if fam.GetName() == "iterations_total" {
			found = true
			require.Equal(t, float64(2), fam.Metric[0].GetCounter().GetValue())
		}
	}
	require.True(t, found, "expected iterations_total to be registered")
}

func TestMismatchedLabelsDontPanicCaller(t *testing.T) {
	p := New("foreman_test", "")
	p.IncCounter("requests_total", map[string]string{"a": "1"})
	// Same metric name, different label keys -- would panic inside the
	// client_golang With call; recoverInto must absorb it.
	p.IncCounter("requests_total", map[string]string{"b": "2"})
}

func TestFlushWithoutPushgatewayIsNoOp(t *testing.T) {
	p := New("foreman_test", "")
	require.NoError(t, p.Flush())
}
