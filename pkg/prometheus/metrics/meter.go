package metrics

import (
	"github.com/Borislavv/wcsketch/pkg/prometheus/metrics/keyword"
	"github.com/VictoriaMetrics/metrics"
	"io"
	"time"
)

// Meter defines methods for recording sketch harness metrics.
type Meter interface {
	IncAdds(variant string, n int)
	NewTimer(op, variant string) *Timer
	FlushTimer(t *Timer)
	SetMemory(variant, path string, bytes int)
	SetEstimate(variant string, value float64)
	SetRelativeError(variant string, value float64)
	WritePrometheus(w io.Writer)
}

// Metrics implements Meter over its own VictoriaMetrics set, so several
// harness runs in one process do not share series.
type Metrics struct {
	set *metrics.Set
}

// New creates a new Metrics instance.
func New() *Metrics {
	return &Metrics{set: metrics.NewSet()}
}

func name(metric string, labels ...string) string {
	buf := make([]byte, 0, 64)
	buf = append(buf, metric...)
	buf = append(buf, '{')
	for i := 0; i+1 < len(labels); i += 2 {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, labels[i]...)
		buf = append(buf, `="`...)
		buf = append(buf, labels[i+1]...)
		buf = append(buf, '"')
	}
	buf = append(buf, '}')
	return string(buf)
}

// IncAdds counts inserted elements per variant.
func (m *Metrics) IncAdds(variant string, n int) {
	m.set.GetOrCreateCounter(name(keyword.SketchAddsTotalMetricName, "variant", variant)).Add(n)
}

// SetMemory records one of the three memory figures of a sketch.
func (m *Metrics) SetMemory(variant, path string, bytes int) {
	m.set.GetOrCreateGauge(name(keyword.SketchMemoryUsageMetricName, "variant", variant, "path", path), nil).
		Set(float64(bytes))
}

// SetEstimate records the latest estimate.
func (m *Metrics) SetEstimate(variant string, value float64) {
	m.set.GetOrCreateGauge(name(keyword.SketchEstimateMetricName, "variant", variant), nil).Set(value)
}

// SetRelativeError records |estimate-truth|/truth of the latest run.
func (m *Metrics) SetRelativeError(variant string, value float64) {
	m.set.GetOrCreateGauge(name(keyword.SketchRelativeErrorMetricName, "variant", variant), nil).Set(value)
}

// WritePrometheus writes every series in Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

// Timer tracks start of an operation for timing metrics.
type Timer struct {
	name  string
	start time.Time
}

// NewTimer creates a Timer for one operation on one variant.
func (m *Metrics) NewTimer(op, variant string) *Timer {
	return &Timer{
		name:  name(keyword.SketchOperationDurationMetricName, "op", op, "variant", variant),
		start: time.Now(),
	}
}

// FlushTimer records the elapsed time since Timer creation into a histogram.
func (m *Metrics) FlushTimer(t *Timer) {
	m.set.GetOrCreateHistogram(t.name).Update(time.Since(t.start).Seconds())
}

// Elapsed is the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
