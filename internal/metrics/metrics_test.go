package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

func scrape(t *testing.T, r *Registry) map[string]*dto.MetricFamily {
	t.Helper()
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(rr.Body)
	if err != nil {
		t.Fatalf("parse exposition: %v", err)
	}
	return mfs
}

func TestRegistry_CounterAndGauge(t *testing.T) {
	r := NewRegistry()
	c := r.Counter("devmock_frames_sent_total", "Frames sent.")
	g := r.Gauge("devmock_connections", "Open connections.")

	c.Inc()
	c.Inc()
	g.Inc()
	g.Inc()
	g.Dec()

	mfs := scrape(t, r)

	fc := mfs["devmock_frames_sent_total"]
	if fc == nil || fc.GetType() != dto.MetricType_COUNTER {
		t.Fatalf("counter family missing or wrong type: %v", fc)
	}
	if v := fc.GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("counter: got %v, want 2", v)
	}

	fg := mfs["devmock_connections"]
	if fg == nil || fg.GetType() != dto.MetricType_GAUGE {
		t.Fatalf("gauge family missing or wrong type: %v", fg)
	}
	if v := fg.GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Errorf("gauge: got %v, want 1", v)
	}
}

func TestRegistry_CounterVecLabels(t *testing.T) {
	r := NewRegistry()
	v := r.CounterVec("devmock_commands_total", "Commands.", "command")
	v.With("get").Inc()
	v.With("set").Inc()
	v.With("set").Inc()

	mfs := scrape(t, r)
	fam := mfs["devmock_commands_total"]
	if fam == nil {
		t.Fatal("vec family missing")
	}
	got := map[string]float64{}
	for _, m := range fam.GetMetric() {
		got[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	if got["get"] != 1 || got["set"] != 2 {
		t.Errorf("series: got %v", got)
	}
}

func TestRegistry_EmptyVecOmitted(t *testing.T) {
	r := NewRegistry()
	r.CounterVec("devmock_unused_total", "Unused.", "x")
	r.GaugeFunc("devmock_keys", "Keys.", func() float64 { return 6 })

	mfs := scrape(t, r)
	if _, ok := mfs["devmock_unused_total"]; ok {
		t.Error("empty vec should not be rendered")
	}
	if v := mfs["devmock_keys"].GetMetric()[0].GetGauge().GetValue(); v != 6 {
		t.Errorf("gauge func: got %v, want 6", v)
	}
}

func TestRegistry_RejectsPost(t *testing.T) {
	rr := httptest.NewRecorder()
	NewRegistry().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}
