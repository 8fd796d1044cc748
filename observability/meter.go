package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/dockerkit/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// Enabled turns on OTLP export. When false InitMeter is not called.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// ServiceName is the name reported in the resource.
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
	// ServiceVersion is the version reported in the resource.
	ServiceVersion string `yaml:"service_version" mapstructure:"service_version"`
	// Environment is the deployment environment.
	Environment string `yaml:"environment" mapstructure:"environment"`
	// Endpoint is the OTLP HTTP endpoint host:port.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure" mapstructure:"insecure"`
	// Interval is the export interval.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// DefaultMeterConfig returns defaults for a local collector.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName: serviceName,
		Environment: "development",
		Endpoint:    "localhost:4318",
		Insecure:    true,
		Interval:    15 * time.Second,
	}
}

// InitMeter installs a periodic OTLP/HTTP meter provider as the global one.
// The caller must Shutdown the returned provider on exit.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Debug("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns the dockerkit meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(InstrumentationName)
}

// ProcessMetrics holds the instruments recorded by the process runner.
type ProcessMetrics struct {
	started     metric.Int64Counter
	spawnFailed metric.Int64Counter
	exited      metric.Int64Counter
	duration    metric.Float64Histogram
	active      metric.Int64UpDownCounter
}

// NewProcessMetrics creates the process instruments on meter.
func NewProcessMetrics(meter metric.Meter) (*ProcessMetrics, error) {
	started, err := meter.Int64Counter("process.started",
		metric.WithDescription("Processes spawned"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating process.started counter: %w", err)
	}
	spawnFailed, err := meter.Int64Counter("process.spawn_failed",
		metric.WithDescription("Processes the OS refused to create"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating process.spawn_failed counter: %w", err)
	}
	exited, err := meter.Int64Counter("process.exited",
		metric.WithDescription("Processes that exited, by exit code"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating process.exited counter: %w", err)
	}
	duration, err := meter.Float64Histogram("process.duration",
		metric.WithDescription("Wall time from spawn to exit"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating process.duration histogram: %w", err)
	}
	active, err := meter.Int64UpDownCounter("process.active",
		metric.WithDescription("Processes currently running"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating process.active counter: %w", err)
	}

	return &ProcessMetrics{
		started:     started,
		spawnFailed: spawnFailed,
		exited:      exited,
		duration:    duration,
		active:      active,
	}, nil
}

// RecordStart counts a spawned process and marks it active.
func (m *ProcessMetrics) RecordStart(ctx context.Context, binary, mode string) {
	attrs := metric.WithAttributes(
		attribute.String("binary", binary),
		attribute.String("mode", mode),
	)
	m.started.Add(ctx, 1, attrs)
	m.active.Add(ctx, 1, metric.WithAttributes(attribute.String("binary", binary)))
}

// RecordSpawnFailure counts a process that never started.
func (m *ProcessMetrics) RecordSpawnFailure(ctx context.Context, binary string) {
	m.spawnFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("binary", binary)))
}

// RecordExit records the exit of a process started with RecordStart.
func (m *ProcessMetrics) RecordExit(ctx context.Context, binary string, exitCode int, d time.Duration) {
	m.active.Add(ctx, -1, metric.WithAttributes(attribute.String("binary", binary)))
	m.exited.Add(ctx, 1, metric.WithAttributes(
		attribute.String("binary", binary),
		attribute.String("exit_code", strconv.Itoa(exitCode)),
	))
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("binary", binary)))
}
