package connector

import (
	"fmt"
	"time"

	"github.com/yourorg/payment-switch/internal/domain"
)

// FlowRequest is the closed union of flow-specific request payloads. Each
// flow identity pairs with exactly one of these.
type FlowRequest interface{ flowRequest() }

// AuthorizeRequest is the request payload for the authorize flow.
type AuthorizeRequest struct {
	Amount        int64
	Currency      domain.Currency
	PaymentMethod domain.PaymentMethodData
	CaptureMethod domain.CaptureMethod
	Email         string
	ReturnURL     string
	MandateID     string
	SetupMandate  bool
	BrowserInfo   *domain.BrowserInfo
	Billing       *domain.Address
}

// SyncRequest asks the connector for the current state of a transaction.
type SyncRequest struct {
	ConnectorTransactionID string
}

// CaptureRequest captures a previously authorized amount.
type CaptureRequest struct {
	ConnectorTransactionID string
	Amount                 int64
	Currency               domain.Currency
}

// VoidRequest cancels a previously authorized transaction.
type VoidRequest struct {
	ConnectorTransactionID string
	CancellationReason     string
}

// RefundRequest executes a refund against a charged transaction.
type RefundRequest struct {
	ConnectorTransactionID string
	RefundID               string
	Amount                 int64
	Currency               domain.Currency
	Reason                 string
}

// RefundSyncRequest asks the connector for the state of a refund.
type RefundSyncRequest struct {
	ConnectorTransactionID string
	ConnectorRefundID      string
}

// SetupMandateRequest registers a payment method for off-session use.
type SetupMandateRequest struct {
	PaymentMethod domain.PaymentMethodData
	CustomerID    string
	Email         string
}

// AccessTokenRequest exchanges connector credentials for a bearer token.
// The credentials themselves travel in the envelope's auth value.
type AccessTokenRequest struct{}

// TokenizeRequest exchanges raw payment-method data for a connector token.
type TokenizeRequest struct {
	PaymentMethod domain.PaymentMethodData
}

// SessionRequest creates a connector-side session (wallet flows).
type SessionRequest struct {
	Amount   int64
	Currency domain.Currency
}

func (AuthorizeRequest) flowRequest()    {}
func (SyncRequest) flowRequest()         {}
func (CaptureRequest) flowRequest()      {}
func (VoidRequest) flowRequest()         {}
func (RefundRequest) flowRequest()       {}
func (RefundSyncRequest) flowRequest()   {}
func (SetupMandateRequest) flowRequest() {}
func (AccessTokenRequest) flowRequest()  {}
func (TokenizeRequest) flowRequest()     {}
func (SessionRequest) flowRequest()      {}

// FlowResponse is the closed union of flow-specific success payloads.
type FlowResponse interface{ flowResponse() }

// PaymentsResponse is the success payload for payment flows.
type PaymentsResponse struct {
	ConnectorTransactionID string
	RedirectURL            string
	MandateReference       string
	NetworkTransactionID   string
}

// RefundsResponse is the success payload for refund flows.
type RefundsResponse struct {
	ConnectorRefundID string
	RefundStatus      domain.RefundStatus
}

// AccessToken is the success payload of the access-token flow; it is also
// attached to later envelopes for connectors requiring bearer auth.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenizeResponse is the success payload of the tokenization flow.
type TokenizeResponse struct {
	Token string
}

// SessionResponse is the success payload of the session flow.
type SessionResponse struct {
	SessionToken string
}

func (PaymentsResponse) flowResponse() {}
func (RefundsResponse) flowResponse()  {}
func (AccessToken) flowResponse()      {}
func (TokenizeResponse) flowResponse() {}
func (SessionResponse) flowResponse()  {}

// Envelope is the uniform in-process container for one connector call. It
// is constructed fresh per call, resolved exactly once by the adapter's
// response-handling step, and then discarded; it is never persisted.
type Envelope struct {
	Connector  string
	Flow       domain.Flow
	Auth       Auth
	MerchantID string
	IntentID   string
	AttemptID  string
	// RequestReferenceID is the correlation id sent to the connector.
	RequestReferenceID string
	AccessToken        *AccessToken
	PaymentMethodToken string
	TestMode           bool
	Request            FlowRequest

	status   domain.AttemptStatus
	response FlowResponse
	failure  *Error
	resolved bool
}

// NewEnvelope builds an unresolved envelope with the attempt's current
// status as the starting value.
func NewEnvelope(name string, flow domain.Flow, auth Auth, req FlowRequest) *Envelope {
	return &Envelope{
		Connector: name,
		Flow:      flow,
		Auth:      auth,
		Request:   req,
		status:    domain.AttemptPending,
	}
}

// Status returns the canonical attempt status of the call so far.
func (e *Envelope) Status() domain.AttemptStatus { return e.status }

// Resolved reports whether the response-handling step has run.
func (e *Envelope) Resolved() bool { return e.resolved }

// Outcome returns the classified outcome. Exactly one of the two return
// values is non-nil once the envelope is resolved.
func (e *Envelope) Outcome() (FlowResponse, *Error) {
	return e.response, e.failure
}

// ResolveSuccess records a successful outcome. It enforces the envelope
// invariant: a success outcome may never carry a failure-class status.
func (e *Envelope) ResolveSuccess(resp FlowResponse, status domain.AttemptStatus) error {
	if e.resolved {
		return fmt.Errorf("envelope for %s/%s already resolved", e.Connector, e.Flow)
	}
	if status.FailureClass() {
		return fmt.Errorf("envelope for %s/%s: success outcome cannot carry failure status %q", e.Connector, e.Flow, status)
	}
	if resp == nil {
		return fmt.Errorf("envelope for %s/%s: success outcome requires a response", e.Connector, e.Flow)
	}
	e.response = resp
	e.status = status
	e.resolved = true
	return nil
}

// ResolveFailure records a failure outcome. The status is taken from the
// error when it names one, and is forced into the failure class otherwise.
func (e *Envelope) ResolveFailure(failure *Error) error {
	if e.resolved {
		return fmt.Errorf("envelope for %s/%s already resolved", e.Connector, e.Flow)
	}
	if failure == nil {
		return fmt.Errorf("envelope for %s/%s: failure outcome requires an error", e.Connector, e.Flow)
	}
	status := domain.AttemptFailure
	if failure.AttemptStatus != nil {
		if !failure.AttemptStatus.FailureClass() {
			return fmt.Errorf("envelope for %s/%s: failure outcome cannot carry success status %q", e.Connector, e.Flow, *failure.AttemptStatus)
		}
		status = *failure.AttemptStatus
	}
	e.failure = failure
	e.status = status
	e.resolved = true
	return nil
}
