package internaldefs

import (
	goGate "github.com/MrEthical07/goGate"
)

// Source is what the exporters read. *goGate.Engine satisfies it.
type Source interface {
	MetricsSnapshot() goGate.MetricsSnapshot
	DeliveryStats() goGate.DeliveryStats
}

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   goGate.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   goGate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: goGate.MetricLoginSuccess, Name: "gogate_login_success_total", Help: "Successful logins."},
	{ID: goGate.MetricLoginFailure, Name: "gogate_login_failure_total", Help: "Logins rejected for unknown handle or wrong password."},
	{ID: goGate.MetricLoginLocked, Name: "gogate_login_locked_total", Help: "Logins rejected by an active lock."},
	{ID: goGate.MetricLoginNotVerified, Name: "gogate_login_not_verified_total", Help: "Logins rejected for unverified accounts."},
	{ID: goGate.MetricLoginDisabled, Name: "gogate_login_disabled_total", Help: "Logins rejected for disabled accounts."},
	{ID: goGate.MetricAccountLocked, Name: "gogate_account_locked_total", Help: "Accounts transitioned to locked."},
	{ID: goGate.MetricPasswordResetRequest, Name: "gogate_password_reset_request_total", Help: "Forgot-password requests."},
	{ID: goGate.MetricPasswordResetCodeVerified, Name: "gogate_password_reset_code_verified_total", Help: "Verification codes accepted."},
	{ID: goGate.MetricPasswordResetCodeFailure, Name: "gogate_password_reset_code_failure_total", Help: "Verification codes rejected."},
	{ID: goGate.MetricPasswordResetSuccess, Name: "gogate_password_reset_success_total", Help: "Completed password resets."},
	{ID: goGate.MetricPasswordResetFailure, Name: "gogate_password_reset_failure_total", Help: "Rejected password resets."},
	{ID: goGate.MetricPasswordChangeSuccess, Name: "gogate_password_change_success_total", Help: "Completed password changes."},
	{ID: goGate.MetricPasswordChangeInvalidOld, Name: "gogate_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: goGate.MetricPasswordReuseRejected, Name: "gogate_password_reuse_rejected_total", Help: "New passwords rejected by the history check."},
	{ID: goGate.MetricActivationSuccess, Name: "gogate_activation_success_total", Help: "Accounts activated."},
	{ID: goGate.MetricActivationFailure, Name: "gogate_activation_failure_total", Help: "Rejected activation tokens."},
	{ID: goGate.MetricAccountCreated, Name: "gogate_account_created_total", Help: "Accounts created."},
	{ID: goGate.MetricSessionVerified, Name: "gogate_session_verified_total", Help: "Session credentials accepted."},
	{ID: goGate.MetricSessionRejected, Name: "gogate_session_rejected_total", Help: "Session credentials rejected."},
	{ID: goGate.MetricSessionExpired, Name: "gogate_session_expired_total", Help: "Session credentials rejected as expired."},
	{ID: goGate.MetricAuthorizeAllowed, Name: "gogate_authorize_allowed_total", Help: "Authorization checks granted."},
	{ID: goGate.MetricAuthorizeDenied, Name: "gogate_authorize_denied_total", Help: "Authorization checks denied."},
}

// DeliveryDef maps one field of goGate.DeliveryStats to an exported counter.
type DeliveryDef struct {
	Name string
	Help string
	Read func(goGate.DeliveryStats) uint64
}

// DeliveryDefs are exported even when engine metrics are disabled.
var DeliveryDefs = []DeliveryDef{
	{
		Name: "gogate_audit_dropped_total",
		Help: "Audit entries dropped by a full buffer, a cancelled caller or a closed dispatcher.",
		Read: func(s goGate.DeliveryStats) uint64 { return s.AuditDropped },
	},
	{
		Name: "gogate_audit_sink_failure_total",
		Help: "Audit entries the sink rejected.",
		Read: func(s goGate.DeliveryStats) uint64 { return s.AuditFailed },
	},
	{
		Name: "gogate_email_failure_total",
		Help: "Emails the sender rejected or the dispatcher could not queue.",
		Read: func(s goGate.DeliveryStats) uint64 { return s.EmailFailed },
	},
	{
		Name: "gogate_notify_failure_total",
		Help: "Notifications that failed to publish.",
		Read: func(s goGate.DeliveryStats) uint64 { return s.NotifyFailed },
	},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGate.MetricVerifySessionLatency, Name: "gogate_verify_session_latency_seconds", Help: "Session verification latency."},
}

// HistogramBounds are the upper bounds of the engine's eight latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names each bucket in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// Kind tells a counter series from a histogram series.
type Kind uint8

const (
	KindCounter Kind = iota
	KindHistogram
)

// Series is one exported metric read from a Source.
type Series struct {
	Name string
	Help string
	Kind Kind
	// Value holds a counter reading.
	Value uint64
	// Buckets holds cumulative histogram counts; the last entry is the total.
	Buckets [8]uint64
}

// Collect reads src once and returns every series in render order: engine counters,
// delivery counters, then histograms. Histograms are omitted when the snapshot has no
// latency data.
func Collect(src Source) []Series {
	if src == nil {
		return nil
	}
	snapshot := src.MetricsSnapshot()
	stats := src.DeliveryStats()

	out := make([]Series, 0, len(CounterDefs)+len(DeliveryDefs)+len(HistogramDefs))
	for _, def := range CounterDefs {
		out = append(out, Series{Name: def.Name, Help: def.Help, Kind: KindCounter, Value: snapshot.Counters[def.ID]})
	}
	for _, def := range DeliveryDefs {
		out = append(out, Series{Name: def.Name, Help: def.Help, Kind: KindCounter, Value: def.Read(stats)})
	}
	for _, def := range HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		out = append(out, Series{
			Name:    def.Name,
			Help:    def.Help,
			Kind:    KindHistogram,
			Buckets: CumulativeBuckets(NormalizeBuckets(raw)),
		})
	}
	return out
}
