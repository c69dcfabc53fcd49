package domain

// IntentStatus is the merchant-facing status of a payment intent.
type IntentStatus string

const (
	IntentRequiresPaymentMethod  IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation   IntentStatus = "requires_confirmation"
	IntentRequiresCustomerAction IntentStatus = "requires_customer_action"
	IntentProcessing             IntentStatus = "processing"
	IntentRequiresCapture        IntentStatus = "requires_capture"
	IntentPartiallyCaptured      IntentStatus = "partially_captured"
	IntentSucceeded              IntentStatus = "succeeded"
	IntentFailed                 IntentStatus = "failed"
	IntentCancelled              IntentStatus = "cancelled"
	IntentExpired                IntentStatus = "expired"
	IntentConflicted             IntentStatus = "conflicted"
)

// Terminal reports whether the intent can no longer move. Intents are never
// deleted; they are transitioned to one of these instead.
func (s IntentStatus) Terminal() bool {
	switch s {
	case IntentSucceeded, IntentFailed, IntentCancelled, IntentExpired:
		return true
	}
	return false
}

// AttemptStatus is the connector-facing status of one payment attempt.
type AttemptStatus string

const (
	AttemptStarted                  AttemptStatus = "started"
	AttemptAuthenticationPending    AttemptStatus = "authentication_pending"
	AttemptAuthenticationSuccessful AttemptStatus = "authentication_successful"
	AttemptAuthenticationFailed     AttemptStatus = "authentication_failed"
	AttemptAuthorizing              AttemptStatus = "authorizing"
	AttemptAuthorized               AttemptStatus = "authorized"
	AttemptAuthorizationFailed      AttemptStatus = "authorization_failed"
	AttemptCharged                  AttemptStatus = "charged"
	AttemptCaptureInitiated         AttemptStatus = "capture_initiated"
	AttemptCaptureFailed            AttemptStatus = "capture_failed"
	AttemptVoidInitiated            AttemptStatus = "void_initiated"
	AttemptVoided                   AttemptStatus = "voided"
	AttemptVoidFailed               AttemptStatus = "void_failed"
	AttemptPending                  AttemptStatus = "pending"
	AttemptFailure                  AttemptStatus = "failure"
)

// FailureClass reports whether the attempt status belongs to the failure
// class. The canonical envelope invariant hangs off this: a failure outcome
// may only ever carry a failure-class status, and a success outcome may
// never carry one.
func (s AttemptStatus) FailureClass() bool {
	switch s {
	case AttemptAuthenticationFailed, AttemptAuthorizationFailed,
		AttemptCaptureFailed, AttemptVoidFailed, AttemptFailure:
		return true
	}
	return false
}

// IntentStatusFor maps a terminal-or-progressing attempt status onto the
// intent status the committal stage should persist alongside it.
func IntentStatusFor(s AttemptStatus, captureManual bool) IntentStatus {
	switch s {
	case AttemptAuthorized:
		if captureManual {
			return IntentRequiresCapture
		}
		return IntentProcessing
	case AttemptCharged:
		return IntentSucceeded
	case AttemptVoided:
		return IntentCancelled
	case AttemptAuthenticationPending:
		return IntentRequiresCustomerAction
	case AttemptAuthorizing, AttemptPending, AttemptStarted,
		AttemptCaptureInitiated, AttemptVoidInitiated,
		AttemptAuthenticationSuccessful:
		return IntentProcessing
	default:
		return IntentFailed
	}
}

// RefundStatus is the status of one refund against a charged attempt.
type RefundStatus string

const (
	RefundPending      RefundStatus = "pending"
	RefundSuccess      RefundStatus = "success"
	RefundFailure      RefundStatus = "failure"
	RefundManualReview RefundStatus = "manual_review"
)

// MandateStatus is the status of a stored off-session authorization.
type MandateStatus string

const (
	MandatePending MandateStatus = "pending"
	MandateActive  MandateStatus = "active"
	MandateFailed  MandateStatus = "failed"
)

// TrackerStatus is the business status of an asynchronous follow-up row.
type TrackerStatus string

const (
	TrackerPending            TrackerStatus = "pending"
	TrackerClaimed            TrackerStatus = "claimed"
	TrackerCompletedByTracker TrackerStatus = "completed_by_tracker"
	TrackerRetriesExceeded    TrackerStatus = "retries_exceeded"
)
