package prometheus

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/turbopipe/pkg/metrics"
	"github.com/marmos91/turbopipe/pkg/pipe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipeMetricsDisabled(t *testing.T) {
	metrics.Reset()
	t.Cleanup(metrics.Reset)

	m := NewPipeMetrics()
	assert.Nil(t, m)
	assert.True(t, m == nil, "disabled metrics must be an untyped nil interface")
}

func TestNewPipeMetricsUsesGlobalRegistry(t *testing.T) {
	metrics.Reset()
	t.Cleanup(metrics.Reset)

	reg := metrics.InitRegistry()
	m := NewPipeMetrics()
	require.NotNil(t, m)

	m.RecordState(pipe.StateRunning)

	n, err := testutil.GatherAndCount(reg, "turbopipe_engine_state")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPipeMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipeMetricsWith(reg).(*pipeMetrics)

	m.ObserveSubmit(2 * time.Millisecond)
	m.ObserveWrite(4096, time.Millisecond, 3*time.Millisecond, nil)
	m.ObserveWrite(1024, time.Millisecond, time.Millisecond, nil)
	m.ObserveWrite(0, 0, time.Millisecond, errors.New("broken pipe"))
	m.RecordQueueDepth(7)
	m.RecordInFlight(3)
	m.RecordState(pipe.StateDraining)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("error")))
	assert.Equal(t, 5120.0, testutil.ToFloat64(m.bytesWritten))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.inFlight))
	assert.Equal(t, float64(pipe.StateDraining), testutil.ToFloat64(m.state))

	expected := `
# HELP turbopipe_bytes_written_total Total bytes accepted by destinations
# TYPE turbopipe_bytes_written_total counter
turbopipe_bytes_written_total 5120
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "turbopipe_bytes_written_total"))

	n, err := testutil.GatherAndCount(reg, "turbopipe_write_duration_milliseconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPipeMetricsNilReceiver(t *testing.T) {
	var m *pipeMetrics
	assert.NotPanics(t, func() {
		m.ObserveSubmit(time.Millisecond)
		m.ObserveWrite(1, 0, 0, nil)
		m.RecordQueueDepth(1)
		m.RecordInFlight(1)
		m.RecordState(pipe.StateStopped)
	})
}

func TestPipeMetricsDriveEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipeMetricsWith(reg).(*pipeMetrics)

	e := pipe.New(pipe.Config{Workers: 1, Writer: discardWriter{}}, m)
	require.NoError(t, e.PipeBytes(t.Context(), []byte("frame"), 3))
	require.NoError(t, e.Close(t.Context()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("ok")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.bytesWritten))
	assert.Equal(t, float64(pipe.StateStopped), testutil.ToFloat64(m.state))
}

type discardWriter struct{}

func (discardWriter) Check(int) error                          { return nil }
func (discardWriter) Write(_ int, p []byte, _ int64) (int, error) { return len(p), nil }
