package internaldefs

import (
	leadAuth "github.com/MrEthical07/leadAuth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   leadAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   leadAuth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: leadAuth.MetricIssueSuccess, Name: "leadauth_issue_success_total", Help: "Token pairs issued."},
	{ID: leadAuth.MetricIssueFailure, Name: "leadauth_issue_failure_total", Help: "Rejected issue requests."},
	{ID: leadAuth.MetricChainReplaced, Name: "leadauth_chain_replaced_total", Help: "Chains replaced by a new login from the same device."},
	{ID: leadAuth.MetricVerifySuccess, Name: "leadauth_verify_success_total", Help: "Access tokens accepted."},
	{ID: leadAuth.MetricVerifyFailure, Name: "leadauth_verify_failure_total", Help: "Access tokens rejected."},
	{ID: leadAuth.MetricBindingMismatch, Name: "leadauth_binding_mismatch_total", Help: "Tokens presented from a different device."},
	{ID: leadAuth.MetricRevokedRejected, Name: "leadauth_revoked_rejected_total", Help: "Revoked access tokens presented."},
	{ID: leadAuth.MetricRotateSuccess, Name: "leadauth_rotate_success_total", Help: "Refresh tokens rotated."},
	{ID: leadAuth.MetricRotateFailure, Name: "leadauth_rotate_failure_total", Help: "Rejected rotations."},
	{ID: leadAuth.MetricRefreshReuseDetected, Name: "leadauth_refresh_reuse_detected_total", Help: "Spent refresh tokens presented again."},
	{ID: leadAuth.MetricChainNotFound, Name: "leadauth_chain_not_found_total", Help: "Refresh tokens whose chain no longer exists."},
	{ID: leadAuth.MetricSuccessorRevoked, Name: "leadauth_successor_revoked_total", Help: "Access tokens revoked after a late replay of their predecessor."},
	{ID: leadAuth.MetricLogout, Name: "leadauth_logout_total", Help: "Single-device logouts."},
	{ID: leadAuth.MetricLogoutAll, Name: "leadauth_logout_all_total", Help: "Logout-all operations."},
	{ID: leadAuth.MetricAccessRevoked, Name: "leadauth_access_revoked_total", Help: "Access tokens revoked explicitly."},
	{ID: leadAuth.MetricStoreUnavailable, Name: "leadauth_store_unavailable_total", Help: "Operations failed because the store was unreachable."},
	{ID: leadAuth.MetricAuditDropped, Name: "leadauth_audit_dropped_total", Help: "Audit events dropped on a full buffer or a failing sink."},
}

var HistogramDefs = []HistogramDef{
	{ID: leadAuth.MetricVerifyLatency, Name: "leadauth_verify_latency_seconds", Help: "Verify latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, as rendered in
// the le label.
var HistogramBounds = []string{
	"0.001",
	"0.002",
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"+Inf",
}

// HistogramUpperBounds mirrors HistogramBounds without the +Inf bucket.
var HistogramUpperBounds = []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1}

// NormalizeBuckets copies raw into a fixed eight-bucket array, padding with
// zeros when the histogram is disabled.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
