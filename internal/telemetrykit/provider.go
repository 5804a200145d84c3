// Package telemetrykit wires OpenTelemetry tracing and metrics behind the
// corekit.Telemetry contract, so every component can depend on the
// interface and receive either a real OTLP/gRPC-exporting provider or a
// NoOpTelemetry without changing call sites.
package telemetrykit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/corewire/taskmesh/internal/corekit"
)

// ProviderConfig configures an OTelProvider.
type ProviderConfig struct {
	ServiceName string
	// Endpoint is the OTLP/gRPC collector address (host:port). Empty
	// means traces are written to stdout instead — useful for local
	// development without a collector running.
	Endpoint string
}

// OTelProvider implements corekit.Telemetry on top of the OpenTelemetry
// SDK: spans export via OTLP/gRPC (or stdout when no collector endpoint
// is configured), and metrics are tracked through an in-process manual
// reader so RecordMetric never depends on network reachability.
type OTelProvider struct {
	tracer trace.Tracer
	meter  metric.Meter

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	manualReader   *sdkmetric.ManualReader

	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
	mu         sync.Mutex

	shutdownOnce sync.Once
}

// NewOTelProvider builds the provider. When config.Endpoint is empty,
// spans are written to stdout rather than exported over the network.
func NewOTelProvider(ctx context.Context, config ProviderConfig) (*OTelProvider, error) {
	if config.ServiceName == "" {
		return nil, fmt.Errorf("telemetrykit: service name is required")
	}

	var spanExporter sdktrace.SpanExporter
	var err error
	if config.Endpoint == "" {
		spanExporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	} else {
		spanExporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(config.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("telemetrykit: create span exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
	)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &OTelProvider{
		tracer:         tp.Tracer(config.ServiceName),
		meter:          mp.Meter(config.ServiceName),
		tracerProvider: tp,
		meterProvider:  mp,
		manualReader:   reader,
		counters:       make(map[string]metric.Float64Counter),
		histograms:     make(map[string]metric.Float64Histogram),
	}, nil
}

// StartSpan begins a span named name, returning the span-carrying context.
func (p *OTelProvider) StartSpan(ctx context.Context, name string) (context.Context, corekit.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric records value under name with the given labels. Names
// containing "duration", "latency" or "time" record to a histogram;
// everything else accumulates in a counter — the same heuristic the
// teacher's provider applies to route a flat metric API to the right
// OTel instrument kind.
func (p *OTelProvider) RecordMetric(name string, value float64, labels map[string]string) {
	ctx := context.Background()
	attrs := toAttributes(labels)

	if containsAny(name, "duration", "latency", "time") {
		h := p.histogram(name)
		h.Record(ctx, value, metric.WithAttributes(attrs...))
		return
	}
	c := p.counter(name)
	c.Add(ctx, value, metric.WithAttributes(attrs...))
}

func (p *OTelProvider) counter(name string) metric.Float64Counter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c, _ := p.meter.Float64Counter(name)
	p.counters[name] = c
	return c
}

func (p *OTelProvider) histogram(name string) metric.Float64Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.histograms[name]; ok {
		return h
	}
	h, _ := p.meter.Float64Histogram(name)
	p.histograms[name] = h
	return h
}

// Shutdown flushes exporters and stops accepting new telemetry. Safe to
// call more than once.
func (p *OTelProvider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if tErr := p.tracerProvider.Shutdown(shutdownCtx); tErr != nil {
			err = tErr
		}
		if mErr := p.meterProvider.Shutdown(shutdownCtx); mErr != nil && err == nil {
			err = mErr
		}
	})
	return err
}

func toAttributes(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if len(s) >= len(sub) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

var _ corekit.Telemetry = (*OTelProvider)(nil)
