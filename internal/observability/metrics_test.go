package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Each test uses its own registry so metrics never collide.

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_instsync", prometheus.NewRegistry())

	assert.NotNil(t, m.PagesFetched)
	assert.NotNil(t, m.WorksFetched)
	assert.NotNil(t, m.RequestsTotal)
	assert.NotNil(t, m.Throttled)
	assert.NotNil(t, m.PageSizeReductions)
	assert.NotNil(t, m.BackoffSeconds)
	assert.NotNil(t, m.RunDuration)
}

func TestRecordPage(t *testing.T) {
	m := NewMetrics("test_instsync", prometheus.NewRegistry())

	m.RecordPage(50)
	m.RecordPage(12)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.PagesFetched))
	assert.Equal(t, float64(62), testutil.ToFloat64(m.WorksFetched))
}

func TestRecordRequest(t *testing.T) {
	m := NewMetrics("test_instsync", prometheus.NewRegistry())

	m.RecordRequest("200")
	m.RecordRequest("200")
	m.RecordRequest("429")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("429")))
}

func TestRecordThrottle(t *testing.T) {
	m := NewMetrics("test_instsync", prometheus.NewRegistry())

	m.RecordThrottle(429, 5*time.Second)
	m.RecordThrottle(403, 800*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Throttled.WithLabelValues("429")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Throttled.WithLabelValues("403")))

	count, err := getHistogramSampleCount(m.BackoffSeconds)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestRecordPageSizeReduction(t *testing.T) {
	m := NewMetrics("test_instsync", prometheus.NewRegistry())

	m.RecordPageSizeReduction()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PageSizeReductions))
}

func TestRecordRun(t *testing.T) {
	m := NewMetrics("test_instsync", prometheus.NewRegistry())

	m.RecordRun("success", 3*time.Second)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordRequest("200")
		m.RecordPage(1)
		m.RecordThrottle(429, time.Second)
		m.RecordPageSizeReduction()
		m.RecordRun("success", time.Second)
	})
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test_instsync", reg)
	m.RecordPage(3)

	path := filepath.Join(t.TempDir(), "instsync.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test_instsync_pages_fetched_total 1")
	assert.Contains(t, string(data), "test_instsync_works_fetched_total 3")
}

func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var metric = &dto.Metric{}
	if err := m.Write(metric); err != nil {
		return 0, err
	}

	return metric.Histogram.GetSampleCount(), nil
}
