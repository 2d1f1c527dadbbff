package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/permission"
	"github.com/MrEthical07/goGate/store/memory"
)

type fakeSource struct {
	snapshot goGate.MetricsSnapshot
	stats    goGate.DeliveryStats
}

func (f fakeSource) MetricsSnapshot() goGate.MetricsSnapshot { return f.snapshot }
func (f fakeSource) DeliveryStats() goGate.DeliveryStats     { return f.stats }

func emptySnapshot() goGate.MetricsSnapshot {
	return goGate.MetricsSnapshot{
		Counters:   map[goGate.MetricID]uint64{},
		Histograms: map[goGate.MetricID][]uint64{},
	}
}

func TestRenderDeliveryStatsWithMetricsDisabled(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: emptySnapshot(),
		stats:    goGate.DeliveryStats{AuditDropped: 2, AuditFailed: 3, EmailFailed: 4, NotifyFailed: 5},
	})

	out := exp.Render()
	for _, line := range []string{
		"gogate_audit_dropped_total 2",
		"gogate_audit_sink_failure_total 3",
		"gogate_email_failure_total 4",
		"gogate_notify_failure_total 5",
		"gogate_login_success_total 0",
	} {
		if !strings.Contains(out, line+"\n") {
			t.Fatalf("expected %q in output, got:\n%s", line, out)
		}
	}
	if strings.Contains(out, "gogate_verify_session_latency_seconds") {
		t.Fatalf("histogram must be omitted without latency data, got:\n%s", out)
	}
}

func TestRenderCounterAndHistogram(t *testing.T) {
	exp := NewFromSource(fakeSource{
		snapshot: goGate.MetricsSnapshot{
			Counters: map[goGate.MetricID]uint64{
				goGate.MetricLoginSuccess: 7,
			},
			Histograms: map[goGate.MetricID][]uint64{
				goGate.MetricVerifySessionLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
	})

	out := exp.Render()
	for _, line := range []string{
		"# TYPE gogate_login_success_total counter",
		"gogate_login_success_total 7",
		"gogate_account_locked_total 0",
		"# TYPE gogate_verify_session_latency_seconds histogram",
		`gogate_verify_session_latency_seconds_bucket{le="0.005"} 1`,
		`gogate_verify_session_latency_seconds_bucket{le="+Inf"} 36`,
		"gogate_verify_session_latency_seconds_count 36",
	} {
		if !strings.Contains(out, line+"\n") {
			t.Fatalf("expected %q in output, got:\n%s", line, out)
		}
	}
}

func TestHandlerServesEngine(t *testing.T) {
	cfg := goGate.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	engine, err := goGate.New().
		WithConfig(cfg).
		WithStore(memory.New()).
		WithRoleRegistry(permission.NewRoleManager()).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	defer engine.Close()

	rec := httptest.NewRecorder()
	New(engine).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != contentType {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(rec.Body.String(), "gogate_audit_sink_failure_total 0\n") {
		t.Fatalf("expected delivery counters, got:\n%s", rec.Body.String())
	}
}

func TestNilExporterRendersNothing(t *testing.T) {
	var exp *Exporter
	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewFromSource(fakeSource{
		snapshot: goGate.MetricsSnapshot{
			Counters: map[goGate.MetricID]uint64{
				goGate.MetricLoginSuccess:         1000,
				goGate.MetricLoginFailure:         40,
				goGate.MetricSessionVerified:      9000,
				goGate.MetricAuthorizeDenied:      20,
				goGate.MetricPasswordResetFailure: 3,
			},
			Histograms: map[goGate.MetricID][]uint64{
				goGate.MetricVerifySessionLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
