// Package domain holds the canonical payment model shared by every other
// component: flow identities, intent and attempt status vocabularies, and
// the persisted intent/attempt records themselves. Nothing in this package
// performs I/O; it is the closed-set vocabulary the rest of the switch
// agrees on.
package domain

// Flow identifies one operation kind against a connector. Each flow is
// paired with exactly one request shape and one response shape; the
// (connector x flow) cross product is the adapter capability matrix.
type Flow string

const (
	FlowAuthorize          Flow = "authorize"
	FlowSync               Flow = "sync"
	FlowCapture            Flow = "capture"
	FlowVoid               Flow = "void"
	FlowRefundExecute      Flow = "refund_execute"
	FlowRefundSync         Flow = "refund_sync"
	FlowSetupMandate       Flow = "setup_mandate"
	FlowSession            Flow = "session"
	FlowAccessTokenAuth    Flow = "access_token_auth"
	FlowPaymentMethodToken Flow = "payment_method_token"
	FlowPayoutCreate       Flow = "payout_create"
	FlowPayoutFulfill      Flow = "payout_fulfill"
	FlowFraudCheck         Flow = "fraud_check"
)

// AllFlows lists every flow identity in the closed enumeration.
func AllFlows() []Flow {
	return []Flow{
		FlowAuthorize, FlowSync, FlowCapture, FlowVoid,
		FlowRefundExecute, FlowRefundSync, FlowSetupMandate, FlowSession,
		FlowAccessTokenAuth, FlowPaymentMethodToken,
		FlowPayoutCreate, FlowPayoutFulfill, FlowFraudCheck,
	}
}

// Valid reports whether f is a member of the closed flow enumeration.
func (f Flow) Valid() bool {
	for _, known := range AllFlows() {
		if f == known {
			return true
		}
	}
	return false
}
