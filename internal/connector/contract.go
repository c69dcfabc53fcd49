package connector

import (
	"context"
	"fmt"
)

// BodyKind tags a request body so the shared transport encodes the right
// content type.
type BodyKind string

const (
	BodyJSON BodyKind = "json"
	BodyXML  BodyKind = "xml"
	BodyForm BodyKind = "form"
)

// ContentType returns the wire content type for the body kind.
func (k BodyKind) ContentType() string {
	switch k {
	case BodyXML:
		return "application/xml"
	case BodyForm:
		return "application/x-www-form-urlencoded"
	default:
		return "application/json"
	}
}

// Header is one ordered request header. Order matters for connectors whose
// signature covers the header sequence.
type Header struct {
	Key   string
	Value string
}

// RequestBody pairs body bytes with their declared kind.
type RequestBody struct {
	Kind  BodyKind
	Bytes []byte
}

// RequestDescriptor is the wire-level request the adapter hands to the
// shared transport: {method, URL, headers, body-kind, body-bytes}.
type RequestDescriptor struct {
	Method  string
	URL     string
	Headers []Header
	Body    *RequestBody
}

// HTTPResponse is the raw result the transport hands back to the adapter:
// {status code, raw bytes}.
type HTTPResponse struct {
	StatusCode int
	Body       []byte
}

// Success reports whether the response is in the 2xx class.
func (r *HTTPResponse) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Config is the read-only per-connector configuration passed explicitly to
// every adapter operation. There is no ambient lookup.
type Config struct {
	BaseURL string
	Sandbox bool
}

// Integration is the per-(flow, connector) protocol-adapter contract. Every
// operation is independently overridable; an unoverridden operation behaves
// as not implemented. All transforms are synchronous and side-effect-free;
// the one outbound network call per invocation is made by the transport,
// not by the adapter.
type Integration interface {
	// Headers produces the ordered header list. It may perform request
	// signing, which makes computation order significant: URL, then
	// content type, then body, then headers.
	Headers(e *Envelope, cfg Config) ([]Header, error)

	// URL resolves the endpoint for this call, possibly templated per
	// environment.
	URL(e *Envelope, cfg Config) (string, error)

	// Body serializes the canonical request into the connector's wire
	// format. A nil body with a nil error means the flow sends no body.
	Body(e *Envelope, cfg Config) (*RequestBody, error)

	// BuildRequest composes the full wire-level request. A nil descriptor
	// with a nil error means the flow is terminal without network I/O.
	BuildRequest(e *Envelope, cfg Config) (*RequestDescriptor, error)

	// HandleResponse parses raw success-class response bytes and resolves
	// the envelope. It is the single mutation of the envelope.
	HandleResponse(e *Envelope, resp *HTTPResponse) error

	// HandleError parses a non-success response into the canonical error
	// shape, tolerating every error-payload shape the connector emits.
	HandleError(e *Envelope, resp *HTTPResponse) (*Error, error)
}

// Unimplemented is the zero implementation connectors embed so that every
// contract operation they do not override reports not-implemented.
type Unimplemented struct{}

func (Unimplemented) Headers(e *Envelope, _ Config) ([]Header, error) {
	return nil, NotImplemented(e.Connector, e.Flow)
}

func (Unimplemented) URL(e *Envelope, _ Config) (string, error) {
	return "", NotImplemented(e.Connector, e.Flow)
}

func (Unimplemented) Body(e *Envelope, _ Config) (*RequestBody, error) {
	return nil, NotImplemented(e.Connector, e.Flow)
}

func (Unimplemented) BuildRequest(e *Envelope, _ Config) (*RequestDescriptor, error) {
	return nil, NotImplemented(e.Connector, e.Flow)
}

func (Unimplemented) HandleResponse(e *Envelope, _ *HTTPResponse) error {
	return NotImplemented(e.Connector, e.Flow)
}

func (Unimplemented) HandleError(e *Envelope, _ *HTTPResponse) (*Error, error) {
	return nil, NotImplemented(e.Connector, e.Flow)
}

// Assemble composes a request descriptor in the signing-safe order: URL
// first, then body (which fixes the content type), then headers. Concrete
// BuildRequest implementations delegate here.
func Assemble(i Integration, e *Envelope, cfg Config, method string) (*RequestDescriptor, error) {
	endpoint, err := i.URL(e, cfg)
	if err != nil {
		return nil, err
	}
	body, err := i.Body(e, cfg)
	if err != nil {
		return nil, err
	}
	headers, err := i.Headers(e, cfg)
	if err != nil {
		return nil, err
	}
	if body != nil {
		headers = append(headers, Header{Key: "Content-Type", Value: body.Kind.ContentType()})
	}
	return &RequestDescriptor{
		Method:  method,
		URL:     endpoint,
		Headers: headers,
		Body:    body,
	}, nil
}

// Executor performs the single outbound call for a request descriptor. The
// shared HTTP transport implements it; tests substitute their own.
type Executor interface {
	Execute(ctx context.Context, name string, req *RequestDescriptor) (*HTTPResponse, error)
}

// Validate sanity-checks a descriptor before it reaches the transport.
func (d *RequestDescriptor) Validate() error {
	if d.Method == "" {
		return fmt.Errorf("%w: request method", ErrMissingRequiredField)
	}
	if d.URL == "" {
		return fmt.Errorf("%w: request url", ErrMissingRequiredField)
	}
	return nil
}
