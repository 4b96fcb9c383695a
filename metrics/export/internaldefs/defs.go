package internaldefs

import (
	goToken "github.com/MrEthical07/goToken"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goToken.MetricIssueSuccess, Name: "gotoken_issue_success_total", Help: "Issued token pairs."},
	{ID: goToken.MetricIssueFailure, Name: "gotoken_issue_failure_total", Help: "Failed issuance attempts."},
	{ID: goToken.MetricVerifySuccess, Name: "gotoken_verify_success_total", Help: "Verified tokens, including those re-issued during verification."},
	{ID: goToken.MetricVerifyRejected, Name: "gotoken_verify_rejected_total", Help: "Tokens rejected by signature or claim checks."},
	{ID: goToken.MetricBlacklistHit, Name: "gotoken_blacklist_hit_total", Help: "Tokens rejected because their jti is blacklisted."},
	{ID: goToken.MetricRefreshExpired, Name: "gotoken_refresh_expired_total", Help: "Expired tokens re-issued through a refresh secret."},
	{ID: goToken.MetricRefreshForced, Name: "gotoken_refresh_forced_total", Help: "Tokens re-issued because the user was marked for forced refresh."},
	{ID: goToken.MetricRefreshExplicit, Name: "gotoken_refresh_explicit_total", Help: "Explicit refreshes of still-valid tokens."},
	{ID: goToken.MetricRefreshNotFound, Name: "gotoken_refresh_not_found_total", Help: "Refresh attempts without a matching refresh record."},
	{ID: goToken.MetricUserNotFound, Name: "gotoken_user_not_found_total", Help: "Forced refreshes whose user could not be resolved."},
	{ID: goToken.MetricTokenBlocked, Name: "gotoken_token_blocked_total", Help: "Blacklist insertions."},
	{ID: goToken.MetricIdentityChanged, Name: "gotoken_identity_changed_total", Help: "Users marked for forced refresh."},
	{ID: goToken.MetricIdentityRemoved, Name: "gotoken_identity_removed_total", Help: "Removed identities."},
	{ID: goToken.MetricRefreshRevoked, Name: "gotoken_refresh_revoked_total", Help: "Refresh records revoked."},
}

var HistogramDefs = []HistogramDef{
	{ID: goToken.MetricVerifyLatency, Name: "gotoken_verify_latency_seconds", Help: "Verify latency histogram."},
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

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
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
