// Package transport executes wire-level connector requests. It is the only
// place an adapter invocation touches the network: exactly one outbound
// call per Execute, with a bounded timeout, an OpenTelemetry span and
// Prometheus counters around it. Adapters stay pure; this does the I/O.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/metrics"
)

const defaultTimeout = 10 * time.Second

// Transport implements connector.Executor over net/http.
type Transport struct {
	client  *http.Client
	metrics *metrics.Metrics
}

// New creates a Transport. A nil client gets a default with a 10s timeout.
func New(client *http.Client, m *metrics.Metrics) *Transport {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if m == nil {
		m = metrics.NewIsolated()
	}
	return &Transport{client: client, metrics: m}
}

// Execute performs the single outbound call described by req and returns
// the raw status code and body. Non-2xx statuses are not errors here; the
// adapter's error handling decides what they mean.
func (t *Transport) Execute(ctx context.Context, name string, req *connector.RequestDescriptor) (*connector.HTTPResponse, error) {
	tracer := otel.Tracer("transport")
	ctx, span := tracer.Start(ctx, "Transport.Execute", trace.WithAttributes(
		attribute.String("connector", name),
		attribute.String("http.method", req.Method),
	))
	defer span.End()

	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body.Bytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("transport: building request for %s: %w", name, err)
	}
	for _, h := range req.Headers {
		httpReq.Header.Set(h.Key, h.Value)
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	t.metrics.ConnectorLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		t.metrics.ConnectorRequests.WithLabelValues(name, "network_error").Inc()
		return nil, fmt.Errorf("transport: calling %s: %w", name, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.metrics.ConnectorRequests.WithLabelValues(name, "read_error").Inc()
		return nil, fmt.Errorf("transport: reading %s response: %w", name, err)
	}

	outcome := "success"
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome = "http_error"
	}
	t.metrics.ConnectorRequests.WithLabelValues(name, outcome).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	return &connector.HTTPResponse{StatusCode: resp.StatusCode, Body: rawBody}, nil
}
