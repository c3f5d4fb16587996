package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	leadAuth "github.com/MrEthical07/leadAuth"
	"github.com/MrEthical07/leadAuth/metrics/export/internaldefs"
	"github.com/alicebob/miniredis/v2"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

type fakeSource struct {
	snapshot leadAuth.MetricsSnapshot
}

func (f fakeSource) MetricsSnapshot() leadAuth.MetricsSnapshot { return f.snapshot }

func sampleSource() fakeSource {
	return fakeSource{
		snapshot: leadAuth.MetricsSnapshot{
			Counters: map[leadAuth.MetricID]uint64{
				leadAuth.MetricVerifySuccess:        7,
				leadAuth.MetricRefreshReuseDetected: 1,
				leadAuth.MetricAuditDropped:         2,
			},
			Histograms: map[leadAuth.MetricID][]uint64{
				leadAuth.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
	}
}

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: leadAuth.MetricsSnapshot{
			Counters:   map[leadAuth.MetricID]uint64{},
			Histograms: map[leadAuth.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	out := NewPrometheusExporterFromSource(sampleSource()).Render()

	for _, want := range []string{
		"leadauth_verify_success_total 7",
		"leadauth_refresh_reuse_detected_total 1",
		"leadauth_verify_latency_seconds_bucket{le=\"0.001\"} 1",
		"leadauth_verify_latency_seconds_bucket{le=\"+Inf\"} 36",
		"leadauth_verify_latency_seconds_count 36",
		"leadauth_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(sampleSource())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCollectorMatchesRender(t *testing.T) {
	c := NewPrometheusExporterFromSource(sampleSource()).Collector()

	reg := prom.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register collector: %v", err)
	}

	want := len(internaldefs.CounterDefs) + len(internaldefs.HistogramDefs)
	if got := testutil.CollectAndCount(c); got != want {
		t.Fatalf("expected %d series, got %d", want, got)
	}

	expected := `
# HELP leadauth_verify_success_total Access tokens accepted.
# TYPE leadauth_verify_success_total counter
leadauth_verify_success_total 7
# HELP leadauth_audit_dropped_total Audit events dropped on a full buffer or a failing sink.
# TYPE leadauth_audit_dropped_total counter
leadauth_audit_dropped_total 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "leadauth_verify_success_total", "leadauth_audit_dropped_total"); err != nil {
		t.Fatalf("unexpected collector output: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "leadauth_verify_latency_seconds" {
			continue
		}
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 36 {
			t.Fatalf("expected 36 samples, got %d", h.GetSampleCount())
		}
		if b := h.GetBucket(); len(b) != 7 || b[0].GetCumulativeCount() != 1 {
			t.Fatalf("unexpected buckets: %v", b)
		}
		return
	}
	t.Fatal("latency histogram missing from gather output")
}

func TestCollectorReadsEngine(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := leadAuth.DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Fingerprint.Salt = []byte("fedcba9876543210fedcba9876543210")
	engine, err := leadAuth.New().WithConfig(cfg).WithRedis(rdb).WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	p := leadAuth.Principal{SubjectID: "user-1", OrganizationID: "org-1", Role: leadAuth.RoleAgent}
	if _, err := engine.Issue(context.Background(), p, "device"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	reg := prom.NewRegistry()
	reg.MustRegister(NewPrometheusExporter(engine).Collector())
	expected := `
# HELP leadauth_issue_success_total Token pairs issued.
# TYPE leadauth_issue_success_total counter
leadauth_issue_success_total 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "leadauth_issue_success_total"); err != nil {
		t.Fatalf("unexpected output: %v", err)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(sampleSource())

	b.ReportAllocs()
	for b.Loop() {
		_ = exp.Render()
	}
}
