package connector

import (
	"errors"
	"fmt"

	"github.com/yourorg/payment-switch/internal/domain"
)

// Adapter-error kinds. Every adapter operation fails with exactly one of
// these, wrapped with call-site context. Not-implemented at request
// assembly is an expected outcome for connectors that omit a flow.
var (
	ErrNotImplemented          = errors.New("connector: flow not implemented")
	ErrFailedToObtainAuth      = errors.New("connector: failed to obtain auth type")
	ErrRequestEncodingFailed   = errors.New("connector: request encoding failed")
	ErrResponseDeserialization = errors.New("connector: response deserialization failed")
	ErrMissingRequiredField    = errors.New("connector: missing required field")
	ErrInvalidConnectorConfig  = errors.New("connector: invalid connector configuration")
	ErrWebhooksNotImplemented  = errors.New("connector: webhooks not implemented")
)

// NotImplemented builds the structured unsupported-flow error for a
// (connector, flow) cell the capability matrix leaves empty.
func NotImplemented(name string, flow domain.Flow) error {
	return fmt.Errorf("%w: %s does not support %s", ErrNotImplemented, name, flow)
}

// Severity classifies a canonical error for alerting and retry policy.
type Severity string

const (
	SeverityConfiguration Severity = "configuration"
	SeverityEncoding      Severity = "encoding"
	SeverityRemote        Severity = "remote"
)

// Error is the canonical error shape every caller receives; raw
// connector-specific errors never cross this boundary.
type Error struct {
	StatusCode             int                   `json:"status_code"`
	Code                   string                `json:"code"`
	Message                string                `json:"message"`
	Reason                 string                `json:"reason,omitempty"`
	AttemptStatus          *domain.AttemptStatus `json:"attempt_status,omitempty"`
	ConnectorTransactionID string                `json:"connector_transaction_id,omitempty"`
	NetworkDeclineCode     string                `json:"network_decline_code,omitempty"`
	NetworkAdviceCode      string                `json:"network_advice_code,omitempty"`
	NetworkErrorMessage    string                `json:"network_error_message,omitempty"`
	ConnectorMetadata      map[string]string     `json:"connector_metadata,omitempty"`
	// Kind carries the classification; it is always set so callers can
	// tell configuration failures from remote declines.
	Kind Severity `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("connector error [%s] %s: %s", e.Kind, e.Code, e.Message)
}

// Canonical codes for errors this layer synthesizes itself.
const (
	CodeUnsupportedFlow     = "IR_00"
	CodeInvalidConfig       = "IR_01"
	CodeRequestEncoding     = "IR_02"
	CodeUnsupportedResponse = "IR_03"
	CodeProcessingError     = "IR_04"
	CodeNoResponse          = "IR_05"
)

// ConfigError builds a configuration-severity canonical error.
func ConfigError(message string) *Error {
	return &Error{
		StatusCode: 400,
		Code:       CodeInvalidConfig,
		Message:    message,
		Kind:       SeverityConfiguration,
	}
}

// UnsupportedFlowError is the canonical form of the not-implemented signal.
func UnsupportedFlowError(name string, flow domain.Flow) *Error {
	return &Error{
		StatusCode: 501,
		Code:       CodeUnsupportedFlow,
		Message:    fmt.Sprintf("flow %s is not supported by connector %s", flow, name),
		Kind:       SeverityConfiguration,
	}
}

// EncodingError builds an encoding-severity canonical error.
func EncodingError(reason string) *Error {
	return &Error{
		StatusCode: 500,
		Code:       CodeRequestEncoding,
		Message:    "failed to encode connector request",
		Reason:     reason,
		Kind:       SeverityEncoding,
	}
}

// UnsupportedResponseError is the last rung of the deserialization fallback
// ladder: the raw body is attached for diagnosis rather than discarded.
func UnsupportedResponseError(statusCode int, rawBody []byte) *Error {
	body := string(rawBody)
	if len(body) > 512 {
		body = body[:512]
	}
	return &Error{
		StatusCode: statusCode,
		Code:       CodeUnsupportedResponse,
		Message:    "received an unsupported response from the connector",
		Reason:     body,
		Kind:       SeverityRemote,
	}
}

// AdapterErrorToCanonical folds a raw adapter-error kind into the canonical
// shape for callers that only speak the canonical boundary.
func AdapterErrorToCanonical(name string, flow domain.Flow, err error) *Error {
	switch {
	case errors.Is(err, ErrNotImplemented):
		return UnsupportedFlowError(name, flow)
	case errors.Is(err, ErrInvalidConnectorConfig), errors.Is(err, ErrFailedToObtainAuth):
		return ConfigError(err.Error())
	case errors.Is(err, ErrRequestEncodingFailed), errors.Is(err, ErrMissingRequiredField):
		return EncodingError(err.Error())
	case errors.Is(err, ErrResponseDeserialization):
		return &Error{
			StatusCode: 502,
			Code:       CodeUnsupportedResponse,
			Message:    "failed to deserialize connector response",
			Reason:     err.Error(),
			Kind:       SeverityRemote,
		}
	default:
		return &Error{
			StatusCode: 500,
			Code:       CodeProcessingError,
			Message:    err.Error(),
			Kind:       SeverityRemote,
		}
	}
}
