package internaldefs

import (
	"strings"
	"testing"

	goGate "github.com/MrEthical07/goGate"
)

type stubSource struct {
	snapshot goGate.MetricsSnapshot
	stats    goGate.DeliveryStats
}

func (s stubSource) MetricsSnapshot() goGate.MetricsSnapshot { return s.snapshot }
func (s stubSource) DeliveryStats() goGate.DeliveryStats     { return s.stats }

func TestCounterDefsUnique(t *testing.T) {
	names := map[string]bool{}
	ids := map[uint16]bool{}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "gogate_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("unexpected counter name %q", def.Name)
		}
		if names[def.Name] {
			t.Fatalf("duplicate counter name %q", def.Name)
		}
		if ids[uint16(def.ID)] {
			t.Fatalf("duplicate counter id %d", def.ID)
		}
		names[def.Name] = true
		ids[uint16(def.ID)] = true
	}
}

func TestDeliveryDefsDoNotShadowCounters(t *testing.T) {
	names := map[string]bool{}
	for _, def := range CounterDefs {
		names[def.Name] = true
	}
	for _, def := range DeliveryDefs {
		if names[def.Name] {
			t.Fatalf("delivery counter %q collides with an engine counter", def.Name)
		}
		names[def.Name] = true
	}
}

func TestCollect(t *testing.T) {
	src := stubSource{
		snapshot: goGate.MetricsSnapshot{
			Counters: map[goGate.MetricID]uint64{goGate.MetricLoginFailure: 9},
		},
		stats: goGate.DeliveryStats{AuditFailed: 2, EmailFailed: 1},
	}
	series := Collect(src)
	if len(series) != len(CounterDefs)+len(DeliveryDefs) {
		t.Fatalf("expected counters only without latency data, got %d series", len(series))
	}

	byName := map[string]Series{}
	for _, s := range series {
		byName[s.Name] = s
	}
	if byName["gogate_login_failure_total"].Value != 9 {
		t.Fatalf("unexpected login failure series %+v", byName["gogate_login_failure_total"])
	}
	if byName["gogate_audit_sink_failure_total"].Value != 2 || byName["gogate_email_failure_total"].Value != 1 {
		t.Fatalf("delivery stats not collected: %+v", byName)
	}

	src.snapshot.Histograms = map[goGate.MetricID][]uint64{goGate.MetricVerifySessionLatency: {2, 3}}
	series = Collect(src)
	last := series[len(series)-1]
	if last.Kind != KindHistogram || last.Buckets[7] != 5 {
		t.Fatalf("unexpected histogram series %+v", last)
	}

	if Collect(nil) != nil {
		t.Fatal("nil source must collect nothing")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
	if len(HistogramBounds) != 8 || len(HistogramBoundSuffix) != 8 {
		t.Fatal("bounds must cover eight buckets")
	}
}
