package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	goToken "github.com/MrEthical07/goToken"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestOTelLinesSortedWithAttributes(t *testing.T) {
	rm := metricdata.ResourceMetrics{
		ScopeMetrics: []metricdata.ScopeMetrics{{
			Metrics: []metricdata.Metrics{
				{
					Name: "gotoken.refresh",
					Data: metricdata.Sum[int64]{DataPoints: []metricdata.DataPoint[int64]{
						{Attributes: attribute.NewSet(attribute.String("trigger", "forced")), Value: 2},
						{Attributes: attribute.NewSet(attribute.String("trigger", "expired")), Value: 5},
					}},
				},
				{
					Name: "gotoken.audit.dropped",
					Data: metricdata.Sum[int64]{DataPoints: []metricdata.DataPoint[int64]{{Value: 0}}},
				},
			},
		}},
	}

	got := otelLines(rm)
	want := []string{
		"gotoken.audit.dropped 0",
		"gotoken.refresh{trigger=expired} 5",
		"gotoken.refresh{trigger=forced} 2",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestOTelReportCountsEngineTraffic(t *testing.T) {
	ctx := context.Background()
	client, cleanup, err := connect("", zap.NewNop())
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer cleanup()

	cfg := goToken.DefaultConfig()
	cfg.JWT.Secret = []byte(strings.Repeat("k", 32))
	cfg.Metrics.Enabled = true
	engine, err := goToken.New().WithConfig(cfg).WithRedis(client).WithIdentityCodec(codec()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	report, err := newOTelReport(engine)
	if err != nil {
		t.Fatalf("newOTelReport failed: %v", err)
	}
	defer func() { _ = report.close(ctx) }()

	issued, err := engine.Issue(ctx, loadUser{ID: 1}, nil)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := engine.Verify(ctx, issued.Token, ""); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	var out bytes.Buffer
	if err := report.write(ctx, &out); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	for _, line := range []string{"gotoken.issue{result=success} 1", "gotoken.verify{result=ok} 1"} {
		if !strings.Contains(out.String(), line+"\n") {
			t.Fatalf("missing %q in:\n%s", line, out.String())
		}
	}
}
