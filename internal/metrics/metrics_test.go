package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryNaming(t *testing.T) {
	r := NewRegistry("chewbridge", "ws")
	c := r.RegisterCounter("clients_total", "clients", nil)
	assert.Equal(t, "chewbridge_ws_clients_total", c.Name())
	assert.Same(t, c, r.RegisterCounter("clients_total", "again", nil))
}

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram("h", "help", nil, []float64{1, 0.1, 0.5})
	h.Observe(0.05)
	h.Observe(0.1)
	h.Observe(0.7)
	h.Observe(3)

	assert.Equal(t, []uint64{2, 2, 3, 4}, h.Cumulative())
	assert.Equal(t, uint64(4), h.Count())
	assert.InDelta(t, 3.85, h.Sum(), 1e-9)
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("test", "")
	r.RegisterCounter("b_total", "b help", Labels{"transport": "ws"}).Add(3)
	r.RegisterCounter("a_total", "a help", nil).Inc()
	r.RegisterGauge("active", "active help", nil).Set(2)
	h := r.RegisterHistogram("latency_seconds", "latency", nil, []float64{0.1})
	h.ObserveDuration(50 * time.Millisecond)

	var sb strings.Builder
	require.NoError(t, r.WritePrometheus(&sb))
	out := sb.String()

	assert.Less(t, strings.Index(out, "test_a_total"), strings.Index(out, "test_b_total"))
	assert.Contains(t, out, `test_b_total{transport="ws"} 3`)
	assert.Contains(t, out, "# TYPE test_active gauge\ntest_active 2\n")
	assert.Contains(t, out, `test_latency_seconds_bucket{le="0.1"} 1`)
	assert.Contains(t, out, `test_latency_seconds_bucket{le="+Inf"} 1`)
	assert.Contains(t, out, "test_latency_seconds_count 1")
}

func TestBridgeMetricsShared(t *testing.T) {
	r := NewRegistry("chewbridge", "")
	a := NewBridgeMetrics(r)
	b := NewBridgeMetrics(r)
	a.MessagesHandled.Inc()
	assert.Equal(t, uint64(1), b.MessagesHandled.Value())
	assert.Same(t, r, a.Registry())

	snap := r.Snapshot()
	assert.Equal(t, float64(1), snap["chewbridge_messages_handled_total"])
	assert.Contains(t, snap, "chewbridge_handle_duration_seconds_count")
}
