// Package connector defines the protocol-adapter contract every payment
// gateway integration satisfies: the canonical envelope carried through one
// connector call, the closed set of connector auth shapes, the canonical
// error shape, and the registry the dispatcher resolves connectors from.
// Refer to each connector package (e.g. hmacpay, formpay) for concrete
// implementations of the contract.
package connector

import "fmt"

// AuthKind tags the shape of a connector auth value. The set is closed;
// presenting a shape a connector does not accept is a configuration
// failure, not a runtime crash.
type AuthKind string

const (
	// AuthNone is for connectors that take no credential at all.
	AuthNone AuthKind = "none"
	// AuthHeaderKey is a single API key sent in a header.
	AuthHeaderKey AuthKind = "header_key"
	// AuthBodyKey is an api-key plus secondary-key pair sent in the body.
	AuthBodyKey AuthKind = "body_key"
	// AuthSignatureKey is an api-key, secondary-key and signing-secret
	// triple for connectors that require request signatures.
	AuthSignatureKey AuthKind = "signature_key"
)

// Auth is the connector auth value threaded through every adapter
// operation. Fields beyond what Kind requires are left empty.
type Auth struct {
	Kind         AuthKind
	APIKey       string
	SecondaryKey string
	Secret       string
}

// Validate checks the auth value is internally consistent for its kind.
func (a Auth) Validate() error {
	switch a.Kind {
	case AuthNone:
		return nil
	case AuthHeaderKey:
		if a.APIKey == "" {
			return fmt.Errorf("%w: header_key auth requires an api key", ErrInvalidConnectorConfig)
		}
	case AuthBodyKey:
		if a.APIKey == "" || a.SecondaryKey == "" {
			return fmt.Errorf("%w: body_key auth requires an api key and a secondary key", ErrInvalidConnectorConfig)
		}
	case AuthSignatureKey:
		if a.APIKey == "" || a.SecondaryKey == "" || a.Secret == "" {
			return fmt.Errorf("%w: signature_key auth requires an api key, a secondary key and a secret", ErrInvalidConnectorConfig)
		}
	default:
		return fmt.Errorf("%w: unknown auth kind %q", ErrInvalidConnectorConfig, a.Kind)
	}
	return nil
}

// Accepts reports whether kind is in the accepted set.
func Accepts(accepted []AuthKind, kind AuthKind) bool {
	for _, k := range accepted {
		if k == kind {
			return true
		}
	}
	return false
}
