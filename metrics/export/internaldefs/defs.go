package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one authcore counter for exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one authcore histogram for exporters.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter reported from [authcore.Engine.AuditDropped].
const (
	AuditDroppedName = "authcore_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped by a full dispatcher buffer."
)

var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful password logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed password logins."},
	{ID: authcore.MetricAccountBlocked, Name: "authcore_account_blocked_total", Help: "Lockout blocks applied to accounts."},
	{ID: authcore.MetricEmailNotVerified, Name: "authcore_email_not_verified_total", Help: "Logins refused for an unverified email."},
	{ID: authcore.MetricOAuthSuccess, Name: "authcore_oauth_success_total", Help: "Completed OAuth logins."},
	{ID: authcore.MetricOAuthFailure, Name: "authcore_oauth_failure_total", Help: "Failed OAuth logins."},
	{ID: authcore.MetricOAuthUserCreated, Name: "authcore_oauth_user_created_total", Help: "Accounts created from a provider identity."},
	{ID: authcore.MetricOAuthLinkCreated, Name: "authcore_oauth_link_created_total", Help: "Provider identities linked to existing accounts."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Logged-in sessions established."},
	{ID: authcore.MetricSessionRevoked, Name: "authcore_session_revoked_total", Help: "Sessions revoked."},
	{ID: authcore.MetricFingerprintRejected, Name: "authcore_fingerprint_rejected_total", Help: "Sessions destroyed on a fingerprint mismatch."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logouts."},
	{ID: authcore.MetricTokenIssued, Name: "authcore_token_issued_total", Help: "Verification and reset tokens issued."},
	{ID: authcore.MetricTokenConsumed, Name: "authcore_token_consumed_total", Help: "Tokens consumed successfully."},
	{ID: authcore.MetricTokenRejected, Name: "authcore_token_rejected_total", Help: "Invalid or expired token presentations."},
	{ID: authcore.MetricTokenThrottled, Name: "authcore_token_throttled_total", Help: "Token reissues refused while the previous token is live."},
	{ID: authcore.MetricAccountCreated, Name: "authcore_account_created_total", Help: "Accounts created."},
	{ID: authcore.MetricMailSent, Name: "authcore_mail_sent_total", Help: "Mails accepted by the transport."},
	{ID: authcore.MetricMailFailed, Name: "authcore_mail_failed_total", Help: "Mails the transport rejected."},
	{ID: authcore.MetricMailDropped, Name: "authcore_mail_dropped_total", Help: "Mails dropped by a full queue."},
	{ID: authcore.MetricPasswordChanged, Name: "authcore_password_changed_total", Help: "Authenticated password changes."},
	{ID: authcore.MetricPasswordRehashed, Name: "authcore_password_rehashed_total", Help: "Password hashes upgraded on login."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricLoginLatency, Name: "authcore_login_latency_seconds", Help: "Password login latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's
// latency buckets.
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

// HistogramBoundSuffix renders HistogramBounds for instrument names.
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

// NormalizeBuckets copies raw into a fixed bucket array, zero-filling a
// short or missing slice.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
