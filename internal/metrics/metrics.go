package metrics

import (
	"log/slog"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Counter is a monotonically increasing value.
type Counter struct {
	v atomic.Uint64
}

// Inc adds one to the counter.
func (c *Counter) Inc() { c.v.Add(1) }

// Value returns the current count.
func (c *Counter) Value() float64 { return float64(c.v.Load()) }

// Gauge is a value that can go up and down.
type Gauge struct {
	bits atomic.Uint64
}

// Set replaces the gauge value.
func (g *Gauge) Set(v float64) { g.bits.Store(math.Float64bits(v)) }

// Add adds delta (which may be negative) to the gauge.
func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		nv := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, nv) {
			return
		}
	}
}

// Inc adds one to the gauge.
func (g *Gauge) Inc() { g.Add(1) }

// Dec subtracts one from the gauge.
func (g *Gauge) Dec() { g.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() float64 { return math.Float64frombits(g.bits.Load()) }

// CounterVec is a family of counters partitioned by a single label.
type CounterVec struct {
	label string

	mu     sync.Mutex
	series map[string]*Counter
}

// With returns the counter for the given label value, creating it on first use.
func (v *CounterVec) With(value string) *Counter {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.series[value]
	if !ok {
		c = &Counter{}
		v.series[value] = c
	}
	return c
}

type family struct {
	name string
	help string
	typ  dto.MetricType

	counter *Counter
	gauge   *Gauge
	vec     *CounterVec
	fn      func() float64
}

// Registry owns every metric a binary exposes. Families render in the order
// they were registered.
type Registry struct {
	mu       sync.Mutex
	families []*family
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Counter registers and returns a new counter.
func (r *Registry) Counter(name, help string) *Counter {
	c := &Counter{}
	r.add(&family{name: name, help: help, typ: dto.MetricType_COUNTER, counter: c})
	return c
}

// CounterVec registers a counter family partitioned by label.
func (r *Registry) CounterVec(name, help, label string) *CounterVec {
	v := &CounterVec{label: label, series: make(map[string]*Counter)}
	r.add(&family{name: name, help: help, typ: dto.MetricType_COUNTER, vec: v})
	return v
}

// Gauge registers and returns a new gauge.
func (r *Registry) Gauge(name, help string) *Gauge {
	g := &Gauge{}
	r.add(&family{name: name, help: help, typ: dto.MetricType_GAUGE, gauge: g})
	return g
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
func (r *Registry) GaugeFunc(name, help string, fn func() float64) {
	r.add(&family{name: name, help: help, typ: dto.MetricType_GAUGE, fn: fn})
}

func (r *Registry) add(f *family) {
	r.mu.Lock()
	r.families = append(r.families, f)
	r.mu.Unlock()
}

// Gather snapshots every registered family into dto form.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	fams := make([]*family, len(r.families))
	copy(fams, r.families)
	r.mu.Unlock()

	out := make([]*dto.MetricFamily, 0, len(fams))
	for _, f := range fams {
		mf := &dto.MetricFamily{
			Name: proto.String(f.name),
			Help: proto.String(f.help),
			Type: f.typ.Enum(),
		}
		switch {
		case f.counter != nil:
			mf.Metric = []*dto.Metric{counterMetric(f.counter.Value())}
		case f.gauge != nil:
			mf.Metric = []*dto.Metric{gaugeMetric(f.gauge.Value())}
		case f.fn != nil:
			mf.Metric = []*dto.Metric{gaugeMetric(f.fn())}
		case f.vec != nil:
			mf.Metric = vecMetrics(f.vec)
			if len(mf.Metric) == 0 {
				// The text format rejects families without samples.
				continue
			}
		}
		out = append(out, mf)
	}
	return out
}

// ServeHTTP writes all families in the Prometheus text format.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range r.Gather() {
		if err := enc.Encode(mf); err != nil {
			slog.Warn("metrics: encode failed", "family", mf.GetName(), "err", err)
			return
		}
	}
}

func counterMetric(v float64) *dto.Metric {
	return &dto.Metric{Counter: &dto.Counter{Value: proto.Float64(v)}}
}

func gaugeMetric(v float64) *dto.Metric {
	return &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}

func vecMetrics(v *CounterVec) []*dto.Metric {
	v.mu.Lock()
	defer v.mu.Unlock()

	keys := make([]string, 0, len(v.series))
	for k := range v.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*dto.Metric, 0, len(keys))
	for _, k := range keys {
		m := counterMetric(v.series[k].Value())
		m.Label = []*dto.LabelPair{{Name: proto.String(v.label), Value: proto.String(k)}}
		out = append(out, m)
	}
	return out
}
