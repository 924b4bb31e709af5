package metric

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisMetrics(t *testing.T) {
	m := NewAnalysisMetrics()
	m.StartPass()
	m.StartPass()
	m.ObservePass(1200, 0.031, 2.5e8, 4)
	m.AddSpilled(12)
	m.Failure("numerical")
	m.ObservePhase("solving", 30*time.Millisecond)

	assert.Equal(t, 2., testutil.ToFloat64(m.Passes))
	assert.Equal(t, 1200., testutil.ToFloat64(m.Equations))
	assert.Equal(t, 0.031, testutil.ToFloat64(m.GlobalError))
	assert.Equal(t, 2.5e8, testutil.ToFloat64(m.MaxStress))
	assert.Equal(t, 4., testutil.ToFloat64(m.MaxP))
	assert.Equal(t, 12., testutil.ToFloat64(m.SpilledElements))
	assert.Equal(t, 1., testutil.ToFloat64(m.Failures.WithLabelValues("numerical")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PhaseDuration))

	n, err := testutil.GatherAndCount(m.Registry())
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestTextfile(t *testing.T) {
	m := NewAnalysisMetrics()
	m.ObservePass(10, 0.5, 1, 2)
	path := filepath.Join(t.TempDir(), "stressrefine.prom")
	require.NoError(t, m.WriteToTextfile(path))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "stressrefine_adapt_equations 10")
}

func TestNilMetrics(t *testing.T) {
	var m *AnalysisMetrics
	assert.NotPanics(t, func() {
		m.StartPass()
		m.ObservePass(1, 1, 1, 1)
		m.ObservePhase("solving", time.Second)
		m.AddSpilled(1)
		m.Failure("resource")
	})
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteToTextfile(filepath.Join(t.TempDir(), "x.prom")))
}
