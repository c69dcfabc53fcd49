// Package bridge reconciles the two generations of the protocol-adapter
// contract behind one dispatch surface. Legacy adapters take the combined
// envelope directly; modern adapters take a split flow-context plus request
// payload. The conversion lives at this single seam so neither shape leaks
// past it, and connectors can migrate one at a time.
package bridge

import (
	"fmt"

	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/domain"
)

// FlowContext is the modern contract's flow-shared data: everything the
// combined envelope carries apart from the request and outcome.
type FlowContext struct {
	Connector          string
	Flow               domain.Flow
	Auth               connector.Auth
	MerchantID         string
	IntentID           string
	AttemptID          string
	RequestReferenceID string
	AccessToken        *connector.AccessToken
	PaymentMethodToken string
	TestMode           bool
}

// Outcome is what a modern adapter's response handling produces: either a
// flow response with its status, or a canonical error.
type Outcome struct {
	Response connector.FlowResponse
	Status   domain.AttemptStatus
	Failure  *connector.Error
}

// Integration is the modern, split-envelope generation of the adapter
// contract. Operations mirror the legacy contract one for one.
type Integration interface {
	Headers(fc *FlowContext, req connector.FlowRequest, cfg connector.Config) ([]connector.Header, error)
	URL(fc *FlowContext, req connector.FlowRequest, cfg connector.Config) (string, error)
	Body(fc *FlowContext, req connector.FlowRequest, cfg connector.Config) (*connector.RequestBody, error)
	BuildRequest(fc *FlowContext, req connector.FlowRequest, cfg connector.Config) (*connector.RequestDescriptor, error)
	HandleResponse(fc *FlowContext, req connector.FlowRequest, resp *connector.HTTPResponse) (Outcome, error)
	HandleError(fc *FlowContext, resp *connector.HTTPResponse) (*connector.Error, error)
}

// Split converts the combined envelope into the modern flow context and
// request. A conversion that cannot preserve a required field fails loudly
// rather than dropping data.
func Split(e *connector.Envelope) (*FlowContext, connector.FlowRequest, error) {
	if e == nil {
		return nil, nil, fmt.Errorf("%w: envelope", connector.ErrMissingRequiredField)
	}
	if e.Connector == "" {
		return nil, nil, fmt.Errorf("%w: connector name", connector.ErrMissingRequiredField)
	}
	if !e.Flow.Valid() {
		return nil, nil, fmt.Errorf("%w: flow %q", connector.ErrMissingRequiredField, e.Flow)
	}
	if e.Request == nil {
		return nil, nil, fmt.Errorf("%w: flow request", connector.ErrMissingRequiredField)
	}
	return &FlowContext{
		Connector:          e.Connector,
		Flow:               e.Flow,
		Auth:               e.Auth,
		MerchantID:         e.MerchantID,
		IntentID:           e.IntentID,
		AttemptID:          e.AttemptID,
		RequestReferenceID: e.RequestReferenceID,
		AccessToken:        e.AccessToken,
		PaymentMethodToken: e.PaymentMethodToken,
		TestMode:           e.TestMode,
	}, e.Request, nil
}

// Merge writes a flow context back onto a combined envelope. It is the
// inverse of Split for every field the modern shape carries.
func Merge(fc *FlowContext, req connector.FlowRequest, e *connector.Envelope) error {
	if fc == nil || e == nil {
		return fmt.Errorf("%w: flow context and envelope", connector.ErrMissingRequiredField)
	}
	e.Connector = fc.Connector
	e.Flow = fc.Flow
	e.Auth = fc.Auth
	e.MerchantID = fc.MerchantID
	e.IntentID = fc.IntentID
	e.AttemptID = fc.AttemptID
	e.RequestReferenceID = fc.RequestReferenceID
	e.AccessToken = fc.AccessToken
	e.PaymentMethodToken = fc.PaymentMethodToken
	e.TestMode = fc.TestMode
	e.Request = req
	return nil
}

// bound adapts a modern integration to the legacy contract surface. The
// tag is resolved here, once; callers only ever see
// connector.Integration.
type bound struct {
	modern Integration
}

// Wrap exposes a modern integration through the legacy contract surface.
func Wrap(m Integration) connector.Integration {
	if m == nil {
		panic("modern integration cannot be nil")
	}
	return &bound{modern: m}
}

func (b *bound) Headers(e *connector.Envelope, cfg connector.Config) ([]connector.Header, error) {
	fc, req, err := Split(e)
	if err != nil {
		return nil, err
	}
	return b.modern.Headers(fc, req, cfg)
}

func (b *bound) URL(e *connector.Envelope, cfg connector.Config) (string, error) {
	fc, req, err := Split(e)
	if err != nil {
		return "", err
	}
	return b.modern.URL(fc, req, cfg)
}

func (b *bound) Body(e *connector.Envelope, cfg connector.Config) (*connector.RequestBody, error) {
	fc, req, err := Split(e)
	if err != nil {
		return nil, err
	}
	return b.modern.Body(fc, req, cfg)
}

func (b *bound) BuildRequest(e *connector.Envelope, cfg connector.Config) (*connector.RequestDescriptor, error) {
	fc, req, err := Split(e)
	if err != nil {
		return nil, err
	}
	return b.modern.BuildRequest(fc, req, cfg)
}

func (b *bound) HandleResponse(e *connector.Envelope, resp *connector.HTTPResponse) error {
	fc, req, err := Split(e)
	if err != nil {
		return err
	}
	outcome, err := b.modern.HandleResponse(fc, req, resp)
	if err != nil {
		return err
	}
	if err := Merge(fc, req, e); err != nil {
		return err
	}
	if outcome.Failure != nil {
		return e.ResolveFailure(outcome.Failure)
	}
	return e.ResolveSuccess(outcome.Response, outcome.Status)
}

func (b *bound) HandleError(e *connector.Envelope, resp *connector.HTTPResponse) (*connector.Error, error) {
	fc, _, err := Split(e)
	if err != nil {
		return nil, err
	}
	return b.modern.HandleError(fc, resp)
}

// Unimplemented is the modern-generation counterpart of
// connector.Unimplemented.
type Unimplemented struct{}

func (Unimplemented) Headers(fc *FlowContext, _ connector.FlowRequest, _ connector.Config) ([]connector.Header, error) {
	return nil, connector.NotImplemented(fc.Connector, fc.Flow)
}

func (Unimplemented) URL(fc *FlowContext, _ connector.FlowRequest, _ connector.Config) (string, error) {
	return "", connector.NotImplemented(fc.Connector, fc.Flow)
}

func (Unimplemented) Body(fc *FlowContext, _ connector.FlowRequest, _ connector.Config) (*connector.RequestBody, error) {
	return nil, connector.NotImplemented(fc.Connector, fc.Flow)
}

func (Unimplemented) BuildRequest(fc *FlowContext, _ connector.FlowRequest, _ connector.Config) (*connector.RequestDescriptor, error) {
	return nil, connector.NotImplemented(fc.Connector, fc.Flow)
}

func (Unimplemented) HandleResponse(fc *FlowContext, _ connector.FlowRequest, _ *connector.HTTPResponse) (Outcome, error) {
	return Outcome{}, connector.NotImplemented(fc.Connector, fc.Flow)
}

func (Unimplemented) HandleError(fc *FlowContext, _ *connector.HTTPResponse) (*connector.Error, error) {
	return nil, connector.NotImplemented(fc.Connector, fc.Flow)
}
