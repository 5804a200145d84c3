package telemetrykit

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TracingMiddlewareConfig configures span naming and path exclusion for
// TracingMiddlewareWithConfig.
type TracingMiddlewareConfig struct {
	ExcludedPaths     []string
	SpanNameFormatter func(operation string, r *http.Request) string
}

// TracingMiddleware wraps an http.Handler so every request gets a span,
// propagating incoming W3C traceparent/tracestate headers.
func TracingMiddleware(serviceName string) func(http.Handler) http.Handler {
	return TracingMiddlewareWithConfig(serviceName, nil)
}

// TracingMiddlewareWithConfig is TracingMiddleware with path exclusions
// (health checks, metrics scrape) and a custom span-name formatter.
func TracingMiddlewareWithConfig(serviceName string, config *TracingMiddlewareConfig) func(http.Handler) http.Handler {
	var opts []otelhttp.Option

	if config != nil && len(config.ExcludedPaths) > 0 {
		excluded := make(map[string]bool, len(config.ExcludedPaths))
		for _, p := range config.ExcludedPaths {
			excluded[p] = true
		}
		opts = append(opts, otelhttp.WithFilter(func(r *http.Request) bool {
			return !excluded[r.URL.Path]
		}))
	}

	if config != nil && config.SpanNameFormatter != nil {
		opts = append(opts, otelhttp.WithSpanNameFormatter(config.SpanNameFormatter))
	} else {
		opts = append(opts, otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}))
	}

	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName, opts...)
	}
}

// NewTracedHTTPClient wraps baseTransport (http.DefaultTransport if nil)
// so outbound requests propagate trace context to downstream services.
func NewTracedHTTPClient(baseTransport http.RoundTripper) *http.Client {
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}
	return &http.Client{Transport: otelhttp.NewTransport(baseTransport)}
}

// NewTracedHTTPClientWithTransport is NewTracedHTTPClient with connection
// pooling tuned for repeated service-to-service calls. A nil transport
// gets sensible pooling defaults. Used by the webhook delivery worker;
// callers wanting a bounded timeout set Timeout on the returned client.
func NewTracedHTTPClientWithTransport(transport *http.Transport) *http.Client {
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		}
	}
	return &http.Client{Transport: otelhttp.NewTransport(transport)}
}
