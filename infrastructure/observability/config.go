// Package observability provides OpenTelemetry tracing and metrics for the
// control loop, model calls and action dispatch.
package observability

import (
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/felixgeelhaar/repoagent/domain/config"
)

// ExporterType specifies the telemetry exporter.
type ExporterType string

const (
	// ExporterOTLP exports over OTLP/gRPC (Jaeger, Tempo, Grafana).
	ExporterOTLP ExporterType = "otlp"

	// ExporterStdout writes telemetry to stdout.
	ExporterStdout ExporterType = "stdout"

	// ExporterNone records nothing.
	ExporterNone ExporterType = "none"
)

// Config configures the observability provider.
type Config struct {
	ServiceName    string
	ServiceVersion string

	Exporter ExporterType
	// Endpoint is the OTLP endpoint (e.g. "localhost:4317").
	Endpoint string
	// Insecure disables TLS for the OTLP connection.
	Insecure bool

	// SampleRate is the trace sampling rate (0.0-1.0).
	SampleRate     float64
	BatchTimeout   time.Duration
	ExportInterval time.Duration

	// Global installs the tracer and meter providers as otel globals.
	Global bool

	// spanProcessors and metricReaders are extra sinks, mainly for tests.
	spanProcessors []sdktrace.SpanProcessor
	metricReaders  []sdkmetric.Reader
}

// DefaultConfig returns a configuration that records nothing.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "repoagent",
		ServiceVersion: "dev",
		Exporter:       ExporterNone,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		ExportInterval: 60 * time.Second,
	}
}

// Option configures the provider.
type Option func(*Config)

// WithServiceName sets the service name.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithServiceVersion sets the service version.
func WithServiceVersion(version string) Option {
	return func(c *Config) {
		c.ServiceVersion = version
	}
}

// WithStdout exports spans and metrics to stdout.
func WithStdout() Option {
	return func(c *Config) {
		c.Exporter = ExporterStdout
	}
}

// WithOTLP exports spans and metrics to an OTLP endpoint.
func WithOTLP(endpoint string, insecure bool) Option {
	return func(c *Config) {
		c.Exporter = ExporterOTLP
		c.Endpoint = endpoint
		c.Insecure = insecure
	}
}

// WithSampleRate sets the trace sampling rate.
func WithSampleRate(rate float64) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithGlobal installs the providers as otel globals.
func WithGlobal() Option {
	return func(c *Config) {
		c.Global = true
	}
}

// WithSpanProcessor adds a span processor, such as a tracetest.SpanRecorder.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(c *Config) {
		c.spanProcessors = append(c.spanProcessors, sp)
	}
}

// WithMetricReader adds a metric reader, such as a ManualReader.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(c *Config) {
		c.metricReaders = append(c.metricReaders, r)
	}
}

// OptionsFromConfig converts the file configuration into options.
func OptionsFromConfig(cfg config.ObservabilityConfig, version string) []Option {
	opts := []Option{WithServiceVersion(version)}
	if cfg.ServiceName != "" {
		opts = append(opts, WithServiceName(cfg.ServiceName))
	}
	if !cfg.Enabled {
		return opts
	}
	switch ExporterType(cfg.Exporter) {
	case ExporterStdout:
		opts = append(opts, WithStdout())
	case ExporterOTLP:
		opts = append(opts, WithOTLP(cfg.Endpoint, true))
	}
	opts = append(opts, WithSampleRate(cfg.SampleRate), WithGlobal())
	return opts
}
