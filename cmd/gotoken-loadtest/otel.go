package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	goToken "github.com/MrEthical07/goToken"
	otelexport "github.com/MrEthical07/goToken/metrics/export/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// otelReport collects the engine's OpenTelemetry instruments on demand
// through a manual reader, without any collector running.
type otelReport struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
	exporter *otelexport.OTelExporter
}

func newOTelReport(engine *goToken.Engine) (*otelReport, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exporter, err := otelexport.NewOTelExporter(provider.Meter("gotoken-loadtest"), engine)
	if err != nil {
		return nil, err
	}
	return &otelReport{reader: reader, provider: provider, exporter: exporter}, nil
}

func (r *otelReport) write(ctx context.Context, w io.Writer) error {
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect otel metrics: %w", err)
	}
	for _, line := range otelLines(rm) {
		fmt.Fprintln(w, line)
	}
	return nil
}

func (r *otelReport) close(ctx context.Context) error {
	if err := r.exporter.Close(); err != nil {
		return err
	}
	return r.provider.Shutdown(ctx)
}

// otelLines renders int64 sums and gauges as sorted "name{attrs} value"
// lines.
func otelLines(rm metricdata.ResourceMetrics) []string {
	var lines []string
	add := func(name string, points []metricdata.DataPoint[int64]) {
		for _, dp := range points {
			label := name
			if dp.Attributes.Len() > 0 {
				label += "{" + dp.Attributes.Encoded(attribute.DefaultEncoder()) + "}"
			}
			lines = append(lines, fmt.Sprintf("%s %d", label, dp.Value))
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
	sort.Strings(lines)
	return lines
}
