package connector

import (
	"net/url"
	"strings"
)

// WebhookAlgorithm identifies how a connector signs its webhooks.
type WebhookAlgorithm string

const (
	WebhookHMACSHA256  WebhookAlgorithm = "hmac_sha256"
	WebhookPlainDigest WebhookAlgorithm = "plain_digest"
	WebhookNoVerify    WebhookAlgorithm = "none"
)

// IncomingWebhook is the raw inbound webhook as the transport hands it
// over: headers, raw body bytes, and query parameters.
type IncomingWebhook struct {
	Headers map[string][]string
	Body    []byte
	Query   url.Values
}

// HeaderValue returns the first value of a header, or empty.
func (w *IncomingWebhook) HeaderValue(key string) string {
	for k, vs := range w.Headers {
		if len(vs) > 0 && strings.EqualFold(k, key) {
			return vs[0]
		}
	}
	return ""
}

// WebhookSecrets is the secret material used for one verification call. It
// is never persisted by this layer.
type WebhookSecrets struct {
	Secret          []byte
	SecondarySecret []byte
}

// ObjectReferenceKind tags what a webhook is about.
type ObjectReferenceKind string

const (
	RefPayment ObjectReferenceKind = "payment"
	RefRefund  ObjectReferenceKind = "refund"
	RefDispute ObjectReferenceKind = "dispute"
)

// ObjectReference is the canonical correlation a webhook is mapped to:
// either the connector transaction id or this switch's own reference id.
type ObjectReference struct {
	Kind                   ObjectReferenceKind
	ConnectorTransactionID string
	RequestReferenceID     string
}

// EventKind is the canonical webhook event set. Unrecognized connector
// statuses map to EventNotSupported, never to a guessed success or failure.
type EventKind string

const (
	EventPaymentSucceeded  EventKind = "payment_succeeded"
	EventPaymentFailed     EventKind = "payment_failed"
	EventPaymentProcessing EventKind = "payment_processing"
	EventRefundSucceeded   EventKind = "refund_succeeded"
	EventRefundFailed      EventKind = "refund_failed"
	EventNotSupported      EventKind = "event_not_supported"
)

// WebhookSource is the per-connector webhook capability: identify the
// verification algorithm, locate and decode the signature, reconstruct the
// exact byte sequence the connector signed, and map the payload to the
// canonical reference and event. Connectors without webhooks embed
// UnimplementedWebhookSource.
type WebhookSource interface {
	// Algorithm names the verification scheme this connector uses. A
	// connector returning WebhookNoVerify is explicitly reported as not
	// verified, never as an implicit success.
	Algorithm() WebhookAlgorithm

	// Signature extracts and decodes the signature bytes from the request.
	Signature(w *IncomingWebhook) ([]byte, error)

	// Message reconstructs the exact byte sequence the connector signed.
	Message(w *IncomingWebhook, secrets WebhookSecrets) ([]byte, error)

	// ObjectReference maps connector correlation fields to the canonical
	// payment/refund/dispute reference.
	ObjectReference(w *IncomingWebhook) (ObjectReference, error)

	// EventType maps the connector's status vocabulary to the canonical
	// event set.
	EventType(w *IncomingWebhook) (EventKind, error)
}

// UnimplementedWebhookSource reports the webhooks-not-implemented error for
// every operation.
type UnimplementedWebhookSource struct{}

func (UnimplementedWebhookSource) Algorithm() WebhookAlgorithm { return WebhookNoVerify }

func (UnimplementedWebhookSource) Signature(*IncomingWebhook) ([]byte, error) {
	return nil, ErrWebhooksNotImplemented
}

func (UnimplementedWebhookSource) Message(*IncomingWebhook, WebhookSecrets) ([]byte, error) {
	return nil, ErrWebhooksNotImplemented
}

func (UnimplementedWebhookSource) ObjectReference(*IncomingWebhook) (ObjectReference, error) {
	return ObjectReference{}, ErrWebhooksNotImplemented
}

func (UnimplementedWebhookSource) EventType(*IncomingWebhook) (EventKind, error) {
	return EventNotSupported, ErrWebhooksNotImplemented
}
