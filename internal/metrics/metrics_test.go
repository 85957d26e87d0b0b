package metrics

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAndGauge(t *testing.T) {
	r := NewRegistry("test", "")
	c := r.RegisterCounter("events_total", "Events", nil)
	c.Inc()
	c.Add(4)
	assert.Equal(t, uint64(5), c.Value())
	assert.Equal(t, "test_events_total", c.Name())

	g := r.RegisterGauge("idle", "Idle", nil)
	g.SetBool(true)
	assert.Equal(t, int64(1), g.Value())
	g.Dec()
	g.Add(3)
	assert.Equal(t, int64(3), g.Value())
	g.SetBool(false)
	assert.Zero(t, g.Value())
}

func TestRegisterReturnsExisting(t *testing.T) {
	r := NewRegistry("test", "sub")
	a := r.RegisterCounter("x_total", "X", Labels{"kind": "a"})
	b := r.RegisterCounter("x_total", "X", Labels{"kind": "b"})
	again := r.RegisterCounter("x_total", "X", Labels{"kind": "a"})

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, "test_sub_x_total", a.Name())
	assert.Same(t, b, r.GetCounter("x_total", Labels{"kind": "b"}))
	assert.Nil(t, r.GetCounter("x_total", nil))
}

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram("h", "H", nil, []float64{4, 1, 2})
	h.Observe(0.5)
	h.Observe(1) // le is inclusive
	h.Observe(1.5)
	h.Observe(9)

	h.mu.Lock()
	cumulative := h.cumulative()
	h.mu.Unlock()

	assert.Equal(t, []uint64{2, 3, 3, 4}, cumulative)
	assert.Equal(t, uint64(4), h.Count())
	assert.InDelta(t, 12.0, h.Sum(), 1e-9)
	assert.InDelta(t, 3.0, h.Mean(), 1e-9)
}

func TestHistogramQuantile(t *testing.T) {
	h := NewHistogram("h", "H", nil, []float64{1, 2, 4})
	assert.Zero(t, h.Quantile(50))

	h.Observe(0.5)
	h.Observe(1.5)
	h.Observe(3)

	assert.InDelta(t, 2.0, h.Quantile(50), 1e-9)
	assert.InDelta(t, 4.0, h.Quantile(100), 1e-9)
}

func TestHistogramTimer(t *testing.T) {
	h := NewHistogram("h", "H", nil, nil)
	d := h.Timer().Stop()
	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.Equal(t, uint64(1), h.Count())
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("ks", "")
	r.RegisterCounter("events_total", "Events", Labels{"kind": "keyboard"}).Add(3)
	r.RegisterCounter("events_total", "Events", Labels{"kind": "mouse"}).Inc()
	r.RegisterGauge("idle", "Idle", nil).Set(1)
	r.RegisterHistogram("latency_seconds", "Latency", Labels{"kind": "keyboard"}, []float64{0.1, 1}).Observe(0.5)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()

	assert.Equal(t, 1, strings.Count(out, "# TYPE ks_events_total counter"))
	assert.Contains(t, out, `ks_events_total{kind="keyboard"} 3`)
	assert.Contains(t, out, `ks_events_total{kind="mouse"} 1`)
	assert.Contains(t, out, "ks_idle 1")
	assert.Contains(t, out, `ks_latency_seconds_bucket{kind="keyboard",le="0.1"} 0`)
	assert.Contains(t, out, `ks_latency_seconds_bucket{kind="keyboard",le="1"} 1`)
	assert.Contains(t, out, `ks_latency_seconds_bucket{kind="keyboard",le="+Inf"} 1`)
	assert.Contains(t, out, `ks_latency_seconds_count{kind="keyboard"} 1`)
}

func TestWriteJSONAndSnapshot(t *testing.T) {
	r := NewRegistry("ks", "")
	r.RegisterCounter("events_total", "Events", nil).Add(2)
	r.RegisterHistogram("latency_seconds", "Latency", nil, []float64{1}).Observe(0.25)

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "counter", decoded["ks_events_total"]["type"])
	assert.EqualValues(t, 2, decoded["ks_events_total"]["value"])
	assert.EqualValues(t, 1, decoded["ks_latency_seconds"]["count"])

	snap := r.Snapshot()
	assert.Equal(t, uint64(2), snap["ks_events_total"])
	assert.Equal(t, uint64(1), snap["ks_latency_seconds_count"])

	r.Reset()
	snap = r.Snapshot()
	assert.Equal(t, uint64(0), snap["ks_events_total"])
	assert.Equal(t, uint64(0), snap["ks_latency_seconds_count"])
}

func TestHTTPHandler(t *testing.T) {
	r := NewRegistry("ks", "")
	r.RegisterCounter("events_total", "Events", nil).Inc()
	h := r.HTTPHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "ks_events_total 1")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/json")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, json.Valid(rec.Body.Bytes()))
}

func TestPercentileEdgeCases(t *testing.T) {
	assert.Zero(t, Percentile(nil, nil, 50))
	assert.Zero(t, Percentile([]float64{1}, []uint64{0, 0}, 50))
	// Everything in the first bucket estimates half its bound.
	assert.InDelta(t, 0.5, Percentile([]float64{1, 2}, []uint64{4, 4, 4}, 90), 1e-9)
	// Overflow into +Inf extrapolates one doubling past the last bound.
	assert.InDelta(t, 4.0, Percentile([]float64{1, 2}, []uint64{0, 0, 2}, 100), 1e-9)
}

func TestKeysenseMetrics(t *testing.T) {
	m := NewKeysenseMetrics(NewRegistry("ks", ""))

	m.RecordKeyboardCallback(time.Millisecond)
	m.RecordMouseCallback(time.Millisecond)
	m.RecordChars(3)
	m.RecordChars(0)
	m.RecordDeadKey()
	m.RecordPanic()
	m.SetHookInstalled(true, true)
	m.SetIdle(true)
	m.RecordSpan(90 * time.Second)

	assert.Equal(t, uint64(1), m.KeyboardEvents.Value())
	assert.Equal(t, uint64(1), m.MouseEvents.Value())
	assert.NotSame(t, m.KeyboardEvents, m.MouseEvents)
	assert.Equal(t, uint64(3), m.CharsCommitted.Value())
	assert.Equal(t, int64(1), m.KeyboardHookInstalled.Value())
	assert.Zero(t, m.MouseHookInstalled.Value())
	assert.Equal(t, uint64(1), m.SpanLength.Count())

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap["spans"])
	assert.Equal(t, int64(1), snap["idle"])
	assert.NotZero(t, m.LastInputTimestamp.Value())
}

func TestNilKeysenseMetrics(t *testing.T) {
	var m *KeysenseMetrics
	assert.NotPanics(t, func() {
		m.RecordKeyboardCallback(time.Millisecond)
		m.RecordChars(1)
		m.SetHookInstalled(false, true)
		m.RecordSpan(time.Second)
		m.RecordStoreError()
	})
	assert.Nil(t, m.Registry())
	assert.Nil(t, m.Snapshot())
}
