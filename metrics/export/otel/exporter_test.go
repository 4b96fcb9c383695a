package otel

import (
	"context"
	"sync"
	"testing"

	goToken "github.com/MrEthical07/goToken"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goToken.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goToken.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goToken.MetricsSnapshot{
		Counters:   make(map[goToken.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goToken.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gotoken-test")

	src := &fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters: map[goToken.MetricID]uint64{
				goToken.MetricIssueSuccess: 3,
			},
			Histograms: map[goToken.MetricID][]uint64{
				goToken.MetricVerifyLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gotoken-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gotoken-test")

	src := &fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters: map[goToken.MetricID]uint64{
				goToken.MetricIssueSuccess: 1,
			},
			Histograms: map[goToken.MetricID][]uint64{
				goToken.MetricVerifyLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goToken.MetricIssueSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

// collect flattens one collection into "name{key=value}" keyed points.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	values := map[string]int64{}
	add := func(name string, points []metricdata.DataPoint[int64]) {
		for _, dp := range points {
			key := name
			if dp.Attributes.Len() > 0 {
				key += "{" + dp.Attributes.Encoded(attribute.DefaultEncoder()) + "}"
			}
			values[key] = dp.Value
		}
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				add(m.Name, data.DataPoints)
			case metricdata.Gauge[int64]:
				add(m.Name, data.DataPoints)
			}
		}
	}
	return values
}

func TestExporterBreaksDownRefreshesByTrigger(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gotoken-test")

	src := &fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters: map[goToken.MetricID]uint64{
				goToken.MetricRefreshExpired: 2,
				goToken.MetricRefreshForced:  5,
				goToken.MetricUserNotFound:   1,
				goToken.MetricTokenBlocked:   3,
			},
			Histograms: map[goToken.MetricID][]uint64{},
		},
		dropped: 4,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	values := collect(t, reader)
	want := map[string]int64{
		"gotoken.refresh{trigger=expired}":                2,
		"gotoken.refresh{trigger=forced}":                 5,
		"gotoken.refresh{trigger=explicit}":               0,
		"gotoken.refresh.failures{reason=user_not_found}": 1,
		"gotoken.blacklist.inserts":                       3,
		"gotoken.audit.dropped":                           4,
	}
	for key, v := range want {
		got, ok := values[key]
		if !ok || got != v {
			t.Fatalf("%s: expected %d, got %d (present=%v) in %v", key, v, got, ok, values)
		}
	}
}

func TestExporterLatencyUsesEngineBounds(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gotoken-test")

	src := &fakeSource{
		snapshot: goToken.MetricsSnapshot{
			Counters: map[goToken.MetricID]uint64{},
			Histograms: map[goToken.MetricID][]uint64{
				goToken.MetricVerifyLatency: {3, 0, 1, 0, 0, 0, 0, 2},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	values := collect(t, reader)
	checks := map[string]int64{
		"gotoken.verify.latency.bucket{le=0.005}": 3,
		"gotoken.verify.latency.bucket{le=0.025}": 4,
		"gotoken.verify.latency.bucket{le=0.5}":   4,
		"gotoken.verify.latency.bucket{le=+Inf}":  6,
		"gotoken.verify.latency.count":            6,
	}
	for key, v := range checks {
		if values[key] != v {
			t.Fatalf("%s: expected %d, got %v", key, v, values)
		}
	}
}
