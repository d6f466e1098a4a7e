package mwtest

import (
	"io"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/phaseq/mwtest/service/scheduler"
	"github.com/phaseq/mwtest/tracing"
)

// Option customises the service façade.
type Option func(s *Service)

// WithOutput redirects the console stream (progress, summaries).
func WithOutput(out io.Writer) Option {
	return func(s *Service) { s.out = out }
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile
// is empty the stdout exporter is used; otherwise traces are written to the
// supplied file path. The function is safe to call multiple times – the first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter, for example OTLP, Jaeger or Zipkin. The function is safe to
// call multiple times – the first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}

// WithSchedulerOptions lets the caller supply additional options passed to
// scheduler.New (e.g. a substitute process invoker in tests).
func WithSchedulerOptions(options ...scheduler.Option) Option {
	return func(s *Service) {
		s.schedulerOptions = append(s.schedulerOptions, options...)
	}
}
