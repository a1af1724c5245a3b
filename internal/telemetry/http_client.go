package telemetry

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HTTPClientConfig holds configuration for an instrumented HTTP client
type HTTPClientConfig struct {
	ServiceName string // name of the remote service, e.g. "sparkfeed-api"
	Timeout     time.Duration
}

// NewInstrumentedHTTPClient returns an http.Client whose requests are
// traced and carry W3C trace context headers
func NewInstrumentedHTTPClient(cfg HTTPClientConfig) *http.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: NewInstrumentedTransport(cfg.ServiceName, http.DefaultTransport),
	}
}

// NewInstrumentedTransport wraps base with otelhttp client spans
func NewInstrumentedTransport(serviceName string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base,
		otelhttp.WithSpanOptions(
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attribute.String("peer.service", serviceName)),
		),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
