package main

import (
	"context"
	"errors"
	"time"

	goGate "github.com/MrEthical07/goGate"
	gogateotel "github.com/MrEthical07/goGate/metrics/export/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

const meterName = "github.com/MrEthical07/goGate"

// telemetry owns the OTel meter provider. Close flushes one last reading.
type telemetry struct {
	provider *sdkmetric.MeterProvider
	exporter *gogateotel.Exporter
}

// newTelemetry publishes the engine's series every interval through a periodic
// reader that writes to logger.
func newTelemetry(engine *goGate.Engine, interval time.Duration, logger *zap.Logger) (*telemetry, error) {
	reader := sdkmetric.NewPeriodicReader(zapMetricExporter{logger: logger}, sdkmetric.WithInterval(interval))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	exp, err := gogateotel.New(provider.Meter(meterName), engine)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return &telemetry{provider: provider, exporter: exp}, nil
}

func (t *telemetry) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Shutdown collects once more, so unregister afterwards.
	return errors.Join(t.provider.Shutdown(ctx), t.exporter.Close())
}

// zapMetricExporter logs each collection as one entry with a field per non-zero series.
type zapMetricExporter struct {
	logger *zap.Logger
}

func (zapMetricExporter) Temporality(kind sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(kind)
}

func (zapMetricExporter) Aggregation(kind sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(kind)
}

func (e zapMetricExporter) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	fields := metricFields(rm)
	if len(fields) == 0 {
		return nil
	}
	e.logger.Info("metrics", fields...)
	return nil
}

func (zapMetricExporter) ForceFlush(context.Context) error { return nil }
func (zapMetricExporter) Shutdown(context.Context) error   { return nil }

func metricFields(rm *metricdata.ResourceMetrics) []zap.Field {
	var fields []zap.Field
	add := func(name string, v int64) {
		if v != 0 {
			fields = append(fields, zap.Int64(name, v))
		}
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					add(m.Name, dp.Value)
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					add(m.Name, dp.Value)
				}
			}
		}
	}
	return fields
}
