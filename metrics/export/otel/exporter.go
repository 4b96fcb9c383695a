package otel

import (
	"context"
	"errors"
	"fmt"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goToken.MetricsSnapshot
	AuditDropped() uint64
}

// series is one engine counter observed under a fixed attribute set.
type series struct {
	id    goToken.MetricID
	attrs metric.MeasurementOption
}

type family struct {
	name   string
	help   string
	key    string
	series []seriesDef
}

type seriesDef struct {
	id    goToken.MetricID
	value string
}

// families folds the engine's flat counters into instruments keyed by an
// attribute, so refreshes can be broken down by trigger and verifications
// by result in a single query.
var families = []family{
	{
		name: "gotoken.issue",
		help: "Token pair issuance attempts.",
		key:  "result",
		series: []seriesDef{
			{goToken.MetricIssueSuccess, "success"},
			{goToken.MetricIssueFailure, "failure"},
		},
	},
	{
		name: "gotoken.verify",
		help: "Verified and rejected tokens.",
		key:  "result",
		series: []seriesDef{
			{goToken.MetricVerifySuccess, "ok"},
			{goToken.MetricVerifyRejected, "rejected"},
		},
	},
	{
		name: "gotoken.refresh",
		help: "Re-issued token pairs.",
		key:  "trigger",
		series: []seriesDef{
			{goToken.MetricRefreshExpired, "expired"},
			{goToken.MetricRefreshForced, "forced"},
			{goToken.MetricRefreshExplicit, "explicit"},
		},
	},
	{
		name: "gotoken.refresh.failures",
		help: "Refresh attempts that could not re-issue.",
		key:  "reason",
		series: []seriesDef{
			{goToken.MetricRefreshNotFound, "refresh_not_found"},
			{goToken.MetricUserNotFound, "user_not_found"},
		},
	},
	{
		name: "gotoken.identity.events",
		help: "Host identity events handled.",
		key:  "event",
		series: []seriesDef{
			{goToken.MetricIdentityChanged, "changed"},
			{goToken.MetricIdentityRemoved, "removed"},
		},
	},
	{name: "gotoken.blacklist.hits", help: "Tokens rejected because their jti is blacklisted.", series: []seriesDef{{id: goToken.MetricBlacklistHit}}},
	{name: "gotoken.blacklist.inserts", help: "Blacklist insertions.", series: []seriesDef{{id: goToken.MetricTokenBlocked}}},
	{name: "gotoken.refresh.revoked", help: "Refresh records revoked.", series: []seriesDef{{id: goToken.MetricRefreshRevoked}}},
}

type observedFamily struct {
	instrument metric.Int64ObservableCounter
	series     []series
}

type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	families     []observedFamily
	latency      metric.Int64ObservableGauge
	latencyCount metric.Int64ObservableGauge
	latencyLE    []metric.MeasurementOption
	auditDropped metric.Int64ObservableCounter
}

func NewOTelExporter(meter metric.Meter, engine *goToken.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers one observable counter per metric
// family and a cumulative verify latency gauge carrying an "le" attribute
// per engine bucket bound. Every instrument is fed from a single snapshot
// per collection.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{source: source}
	observables := make([]metric.Observable, 0, len(families)+3)

	for _, f := range families {
		ins, err := meter.Int64ObservableCounter(f.name, metric.WithDescription(f.help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", f.name, err)
		}
		of := observedFamily{instrument: ins, series: make([]series, 0, len(f.series))}
		for _, s := range f.series {
			set := attribute.NewSet()
			if f.key != "" {
				set = attribute.NewSet(attribute.String(f.key, s.value))
			}
			of.series = append(of.series, series{id: s.id, attrs: metric.WithAttributeSet(set)})
		}
		exporter.families = append(exporter.families, of)
		observables = append(observables, ins)
	}

	latency, err := meter.Int64ObservableGauge(
		"gotoken.verify.latency.bucket",
		metric.WithDescription("Cumulative count of Verify calls at or under each latency bound, in seconds."),
	)
	if err != nil {
		return nil, fmt.Errorf("create latency gauge: %w", err)
	}
	latencyCount, err := meter.Int64ObservableGauge(
		"gotoken.verify.latency.count",
		metric.WithDescription("Verify calls observed by the latency histogram."),
	)
	if err != nil {
		return nil, fmt.Errorf("create latency count gauge: %w", err)
	}
	exporter.latency = latency
	exporter.latencyCount = latencyCount
	for _, le := range internaldefs.HistogramBounds {
		exporter.latencyLE = append(exporter.latencyLE, metric.WithAttributes(attribute.String("le", le)))
	}
	observables = append(observables, latency, latencyCount)

	auditDropped, err := meter.Int64ObservableCounter(
		"gotoken.audit.dropped",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exporter.registration = registration
	return exporter, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for _, s := range f.series {
			observer.ObserveInt64(f.instrument, int64(snapshot.Counters[s.id]), s.attrs)
		}
	}

	cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[goToken.MetricVerifyLatency]))
	for i, le := range e.latencyLE {
		observer.ObserveInt64(e.latency, int64(cumulative[i]), le)
	}
	observer.ObserveInt64(e.latencyCount, int64(cumulative[len(cumulative)-1]))

	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
