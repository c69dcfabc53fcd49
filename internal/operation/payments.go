package operation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/dispatch"
	"github.com/yourorg/payment-switch/internal/domain"
	"github.com/yourorg/payment-switch/internal/events"
)

type createRequest struct {
	MerchantID     string                    `json:"merchant_id"`
	Amount         int64                     `json:"amount"`
	Currency       domain.Currency           `json:"currency"`
	Connector      string                    `json:"connector"`
	CaptureMethod  domain.CaptureMethod      `json:"capture_method"`
	CustomerID     string                    `json:"customer_id"`
	Description    string                    `json:"description"`
	ReturnURL      string                    `json:"return_url"`
	PaymentMethod  *domain.PaymentMethodData `json:"payment_method"`
	BillingAddress *domain.Address           `json:"billing_address"`
	Metadata       map[string]string         `json:"metadata"`
	Confirm        bool                      `json:"confirm"`
}

type confirmRequest struct {
	PaymentMethod *domain.PaymentMethodData `json:"payment_method"`
	BrowserInfo   *domain.BrowserInfo       `json:"browser_info"`
	ReturnURL     string                    `json:"return_url"`
}

type captureRequest struct {
	Amount int64 `json:"amount"`
}

type cancelRequest struct {
	CancellationReason string `json:"cancellation_reason"`
}

// checkMethodData rejects a tagged union whose member does not match its
// kind before any of it reaches a connector.
func checkMethodData(op Operation, pm *domain.PaymentMethodData) error {
	if pm == nil {
		return &ValidationError{Operation: op, Problems: []string{"payment_method is required"}}
	}
	var problems []string
	switch pm.Kind {
	case domain.MethodCard:
		if pm.Card == nil {
			problems = append(problems, "payment_method.card is required for kind card")
		}
	case domain.MethodWallet:
		if pm.Wallet == nil {
			problems = append(problems, "payment_method.wallet is required for kind wallet")
		}
	case domain.MethodBankTransfer, domain.MethodBankDebit:
		if pm.Bank == nil {
			problems = append(problems, "payment_method.bank is required for bank kinds")
		}
	case domain.MethodPayLater:
	default:
		problems = append(problems, fmt.Sprintf("unknown payment method kind %q", pm.Kind))
	}
	if len(problems) > 0 {
		return &ValidationError{Operation: op, Problems: problems}
	}
	return nil
}

// Create constructs a new payment intent, and confirms it in the same call
// when the payload asks for that.
func (e *Engine) Create(ctx context.Context, payload []byte) (*domain.PaymentIntent, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Create")
	defer span.End()

	if err := e.validatePayload(PaymentCreate, payload); err != nil {
		return nil, err
	}
	var req createRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &ValidationError{Operation: PaymentCreate, Problems: []string{err.Error()}}
	}
	if req.Confirm {
		if err := checkMethodData(PaymentCreate, req.PaymentMethod); err != nil {
			return nil, err
		}
	}
	if _, err := e.registry.Get(req.Connector); err != nil {
		return nil, &ValidationError{Operation: PaymentCreate, Problems: []string{err.Error()}}
	}
	if _, err := e.store.Accounts.Merchant(ctx, req.MerchantID); err != nil {
		return nil, fmt.Errorf("resolving merchant %s: %w", req.MerchantID, err)
	}

	captureMethod := req.CaptureMethod
	if captureMethod == "" {
		captureMethod = domain.CaptureAutomatic
	}
	status := domain.IntentRequiresPaymentMethod
	if req.PaymentMethod != nil {
		status = domain.IntentRequiresConfirmation
	}

	intent := &domain.PaymentIntent{
		ID:             "pay_" + uuid.NewString(),
		MerchantID:     req.MerchantID,
		Status:         status,
		Amount:         req.Amount,
		Currency:       req.Currency,
		CaptureMethod:  captureMethod,
		CustomerID:     req.CustomerID,
		Description:    req.Description,
		BillingAddress: req.BillingAddress,
		ReturnURL:      req.ReturnURL,
		Metadata:       req.Metadata,
	}
	intent.Metadata = withConnectorMetadata(intent.Metadata, req.Connector)
	if err := e.store.Intents.Create(ctx, intent); err != nil {
		return nil, err
	}

	if !req.Confirm {
		return intent, nil
	}
	return e.confirm(ctx, intent, confirmRequest{PaymentMethod: req.PaymentMethod, ReturnURL: req.ReturnURL})
}

// withConnectorMetadata pins the routed connector on the intent so later
// operations reach the same gateway.
func withConnectorMetadata(metadata map[string]string, connectorName string) map[string]string {
	if metadata == nil {
		metadata = make(map[string]string, 1)
	}
	metadata["connector"] = connectorName
	return metadata
}

func intentConnector(intent *domain.PaymentIntent) (string, error) {
	name := intent.Metadata["connector"]
	if name == "" {
		return "", fmt.Errorf("intent %s has no routed connector", intent.ID)
	}
	return name, nil
}

// Confirm runs the authorize flow for an intent awaiting confirmation.
func (e *Engine) Confirm(ctx context.Context, intentID string, payload []byte) (*domain.PaymentIntent, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Confirm")
	defer span.End()

	if err := e.validatePayload(PaymentConfirm, payload); err != nil {
		return nil, err
	}
	var req confirmRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, &ValidationError{Operation: PaymentConfirm, Problems: []string{err.Error()}}
		}
	}

	intent, err := e.loadIntent(ctx, PaymentConfirm, intentID)
	if err != nil {
		return nil, err
	}
	return e.confirm(ctx, intent, req)
}

func (e *Engine) confirm(ctx context.Context, intent *domain.PaymentIntent, req confirmRequest) (*domain.PaymentIntent, error) {
	if err := checkMethodData(PaymentConfirm, req.PaymentMethod); err != nil {
		return nil, err
	}
	connectorName, err := intentConnector(intent)
	if err != nil {
		return nil, err
	}
	call, err := e.enrich(ctx, PaymentConfirm, intent.MerchantID, connectorName, domain.FlowAuthorize, req.PaymentMethod.Kind)
	if err != nil {
		return nil, err
	}

	var email string
	if intent.CustomerID != "" && e.store.Customers != nil {
		if customer, err := e.store.Customers.Get(ctx, intent.CustomerID); err == nil {
			email = customer.Email
		}
	}
	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = intent.ReturnURL
	}

	attempt := &domain.PaymentAttempt{
		ID:                          "att_" + uuid.NewString(),
		IntentID:                    intent.ID,
		MerchantID:                  intent.MerchantID,
		Status:                      domain.AttemptPending,
		Connector:                   connectorName,
		MerchantConnectorID:         call.account.ID,
		Amount:                      intent.Amount,
		Currency:                    intent.Currency,
		PaymentMethod:               req.PaymentMethod.Kind,
		ConnectorRequestReferenceID: "req_" + uuid.NewString(),
	}

	env := connector.NewEnvelope(connectorName, domain.FlowAuthorize, call.account.Auth, connector.AuthorizeRequest{
		Amount:        intent.Amount,
		Currency:      intent.Currency,
		PaymentMethod: *req.PaymentMethod,
		CaptureMethod: intent.CaptureMethod,
		Email:         email,
		ReturnURL:     returnURL,
		BrowserInfo:   req.BrowserInfo,
		Billing:       intent.BillingAddress,
	})
	env.MerchantID = intent.MerchantID
	env.IntentID = intent.ID
	env.AttemptID = attempt.ID
	env.RequestReferenceID = attempt.ConnectorRequestReferenceID
	env.TestMode = call.account.TestMode

	entryStatus := intent.Status
	if err := e.beginAttemptCall(ctx, PaymentConfirm, intent, attempt, true); err != nil {
		return nil, err
	}

	path, err := e.execute(ctx, env, call)
	if err != nil {
		return nil, e.abortAttemptCall(ctx, intent.ID, entryStatus, attempt, domain.AttemptFailure, err)
	}
	applyEnvelopeToAttempt(attempt, env, path)

	if err := e.store.Attempts.Update(ctx, attempt); err != nil {
		return nil, err
	}
	captureManual := intent.CaptureMethod == domain.CaptureManual
	updated, err := e.store.Intents.CompareAndUpdate(ctx, intent.ID, domain.IntentProcessing, func(i *domain.PaymentIntent) {
		i.Status = domain.IntentStatusFor(attempt.Status, captureManual)
		if attempt.Status == domain.AttemptCharged {
			i.AmountCaptured = i.Amount
		}
	})
	if err != nil {
		return nil, fmt.Errorf("committing confirmation of %s: %w", intent.ID, err)
	}

	e.publishOutcome(ctx, events.OutcomeEvent{
		EventID:     "evt_" + uuid.NewString(),
		Operation:   string(PaymentConfirm),
		MerchantID:  intent.MerchantID,
		IntentID:    intent.ID,
		AttemptID:   attempt.ID,
		Connector:   connectorName,
		Status:      string(attempt.Status),
		UnifiedPath: attempt.UnifiedPath,
		ErrorCode:   attempt.ErrorCode,
	})
	e.scheduleSyncIfProgressing(ctx, attempt)
	return updated, nil
}

// Capture captures an authorized amount, in full or in part.
func (e *Engine) Capture(ctx context.Context, intentID string, payload []byte) (*domain.PaymentIntent, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Capture")
	defer span.End()

	if err := e.validatePayload(PaymentCapture, payload); err != nil {
		return nil, err
	}
	var req captureRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, &ValidationError{Operation: PaymentCapture, Problems: []string{err.Error()}}
		}
	}

	intent, err := e.loadIntent(ctx, PaymentCapture, intentID)
	if err != nil {
		return nil, err
	}
	remaining := intent.Amount - intent.AmountCaptured
	amount := req.Amount
	if amount == 0 {
		amount = remaining
	}
	if amount > remaining {
		return nil, &ValidationError{
			Operation: PaymentCapture,
			Problems:  []string{fmt.Sprintf("capture amount %d exceeds remaining %d", amount, remaining)},
		}
	}

	attempt, call, err := e.loadActiveAttempt(ctx, PaymentCapture, intent)
	if err != nil {
		return nil, err
	}

	env := connector.NewEnvelope(attempt.Connector, domain.FlowCapture, call.account.Auth, connector.CaptureRequest{
		ConnectorTransactionID: attempt.ConnectorTransactionID,
		Amount:                 amount,
		Currency:               intent.Currency,
	})
	bindEnvelope(env, intent, attempt)
	env.TestMode = call.account.TestMode

	entryStatus := intent.Status
	priorAttemptStatus := attempt.Status
	if err := e.beginAttemptCall(ctx, PaymentCapture, intent, attempt, false); err != nil {
		return nil, err
	}

	path, err := e.execute(ctx, env, call)
	if err != nil {
		return nil, e.abortAttemptCall(ctx, intent.ID, entryStatus, attempt, priorAttemptStatus, err)
	}
	applyEnvelopeToAttempt(attempt, env, path)
	if err := e.store.Attempts.Update(ctx, attempt); err != nil {
		return nil, err
	}

	updated, err := e.store.Intents.CompareAndUpdate(ctx, intent.ID, domain.IntentProcessing, func(i *domain.PaymentIntent) {
		switch attempt.Status {
		case domain.AttemptCharged:
			i.AmountCaptured += amount
			if i.AmountCaptured >= i.Amount {
				i.Status = domain.IntentSucceeded
			} else {
				i.Status = domain.IntentPartiallyCaptured
			}
		case domain.AttemptCaptureInitiated:
			i.Status = domain.IntentProcessing
		default:
			if attempt.Status.FailureClass() {
				i.Status = domain.IntentFailed
			} else {
				i.Status = entryStatus
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("committing capture of %s: %w", intent.ID, err)
	}

	e.publishOutcome(ctx, events.OutcomeEvent{
		EventID:     "evt_" + uuid.NewString(),
		Operation:   string(PaymentCapture),
		MerchantID:  intent.MerchantID,
		IntentID:    intent.ID,
		AttemptID:   attempt.ID,
		Connector:   attempt.Connector,
		Status:      string(attempt.Status),
		UnifiedPath: attempt.UnifiedPath,
		ErrorCode:   attempt.ErrorCode,
	})
	e.scheduleSyncIfProgressing(ctx, attempt)
	return updated, nil
}

// Cancel voids an intent before capture.
func (e *Engine) Cancel(ctx context.Context, intentID string, payload []byte) (*domain.PaymentIntent, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Cancel")
	defer span.End()

	if err := e.validatePayload(PaymentCancel, payload); err != nil {
		return nil, err
	}
	var req cancelRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, &ValidationError{Operation: PaymentCancel, Problems: []string{err.Error()}}
		}
	}

	intent, err := e.loadIntent(ctx, PaymentCancel, intentID)
	if err != nil {
		return nil, err
	}

	// Nothing reached a connector yet; the cancellation is local.
	if intent.ActiveAttemptID == "" {
		updated, err := e.store.Intents.CompareAndUpdate(ctx, intent.ID, intent.Status, func(i *domain.PaymentIntent) {
			i.Status = domain.IntentCancelled
		})
		if err != nil {
			return nil, fmt.Errorf("committing cancellation of %s: %w", intent.ID, err)
		}
		return updated, nil
	}

	attempt, call, err := e.loadActiveAttempt(ctx, PaymentCancel, intent)
	if err != nil {
		return nil, err
	}

	env := connector.NewEnvelope(attempt.Connector, domain.FlowVoid, call.account.Auth, connector.VoidRequest{
		ConnectorTransactionID: attempt.ConnectorTransactionID,
		CancellationReason:     req.CancellationReason,
	})
	bindEnvelope(env, intent, attempt)
	env.TestMode = call.account.TestMode

	entryStatus := intent.Status
	priorAttemptStatus := attempt.Status
	if err := e.beginAttemptCall(ctx, PaymentCancel, intent, attempt, false); err != nil {
		return nil, err
	}

	path, err := e.execute(ctx, env, call)
	if err != nil {
		return nil, e.abortAttemptCall(ctx, intent.ID, entryStatus, attempt, priorAttemptStatus, err)
	}
	applyEnvelopeToAttempt(attempt, env, path)
	if err := e.store.Attempts.Update(ctx, attempt); err != nil {
		return nil, err
	}

	updated, err := e.store.Intents.CompareAndUpdate(ctx, intent.ID, domain.IntentProcessing, func(i *domain.PaymentIntent) {
		switch {
		case attempt.Status == domain.AttemptVoided:
			i.Status = domain.IntentCancelled
		case attempt.Status == domain.AttemptVoidInitiated:
			i.Status = domain.IntentProcessing
		default:
			// The void failed; the intent returns to its pre-cancel status.
			i.Status = entryStatus
		}
	})
	if err != nil {
		return nil, fmt.Errorf("committing cancellation of %s: %w", intent.ID, err)
	}

	e.publishOutcome(ctx, events.OutcomeEvent{
		EventID:     "evt_" + uuid.NewString(),
		Operation:   string(PaymentCancel),
		MerchantID:  intent.MerchantID,
		IntentID:    intent.ID,
		AttemptID:   attempt.ID,
		Connector:   attempt.Connector,
		Status:      string(attempt.Status),
		UnifiedPath: attempt.UnifiedPath,
		ErrorCode:   attempt.ErrorCode,
	})
	e.scheduleSyncIfProgressing(ctx, attempt)
	return updated, nil
}

// Sync refreshes a progressing intent from the connector.
func (e *Engine) Sync(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Sync")
	defer span.End()

	intent, err := e.store.Intents.Get(ctx, intentID)
	if err != nil {
		return nil, err
	}
	// Settled intents have nothing left to ask the connector about.
	if intent.Status.Terminal() {
		return intent, nil
	}
	if !allowedFrom(PaymentSync, intent.Status) {
		return nil, &StateError{Operation: PaymentSync, RecordID: intent.ID, Status: intent.Status}
	}

	attempt, call, err := e.loadActiveAttempt(ctx, PaymentSync, intent)
	if err != nil {
		return nil, err
	}
	if attempt.ConnectorTransactionID == "" {
		return intent, nil
	}

	env := connector.NewEnvelope(attempt.Connector, domain.FlowSync, call.account.Auth, connector.SyncRequest{
		ConnectorTransactionID: attempt.ConnectorTransactionID,
	})
	bindEnvelope(env, intent, attempt)
	env.TestMode = call.account.TestMode

	entryStatus := intent.Status
	priorAttemptStatus := attempt.Status
	if err := e.beginAttemptCall(ctx, PaymentSync, intent, attempt, false); err != nil {
		return nil, err
	}

	path, err := e.execute(ctx, env, call)
	if err != nil {
		return nil, e.abortAttemptCall(ctx, intent.ID, entryStatus, attempt, priorAttemptStatus, err)
	}
	applyEnvelopeToAttempt(attempt, env, path)
	if err := e.store.Attempts.Update(ctx, attempt); err != nil {
		return nil, err
	}

	captureManual := intent.CaptureMethod == domain.CaptureManual
	updated, err := e.store.Intents.CompareAndUpdate(ctx, intent.ID, domain.IntentProcessing, func(i *domain.PaymentIntent) {
		i.Status = domain.IntentStatusFor(attempt.Status, captureManual)
		if attempt.Status == domain.AttemptCharged {
			i.AmountCaptured = i.Amount
		}
	})
	if err != nil {
		return nil, fmt.Errorf("committing sync of %s: %w", intent.ID, err)
	}

	e.publishOutcome(ctx, events.OutcomeEvent{
		EventID:     "evt_" + uuid.NewString(),
		Operation:   string(PaymentSync),
		MerchantID:  intent.MerchantID,
		IntentID:    intent.ID,
		AttemptID:   attempt.ID,
		Connector:   attempt.Connector,
		Status:      string(attempt.Status),
		UnifiedPath: attempt.UnifiedPath,
		ErrorCode:   attempt.ErrorCode,
	})
	return updated, nil
}

// loadActiveAttempt resolves the intent's active attempt and the call
// context for its connector.
func (e *Engine) loadActiveAttempt(ctx context.Context, op Operation, intent *domain.PaymentIntent) (*domain.PaymentAttempt, *callContext, error) {
	if intent.ActiveAttemptID == "" {
		return nil, nil, fmt.Errorf("operation %s: intent %s has no active attempt", op, intent.ID)
	}
	attempt, err := e.store.Attempts.Get(ctx, intent.ActiveAttemptID)
	if err != nil {
		return nil, nil, err
	}
	call, err := e.enrich(ctx, op, intent.MerchantID, attempt.Connector, flowFor(op), attempt.PaymentMethod)
	if err != nil {
		return nil, nil, err
	}
	return attempt, call, nil
}

func flowFor(op Operation) domain.Flow {
	switch op {
	case PaymentConfirm:
		return domain.FlowAuthorize
	case PaymentCapture:
		return domain.FlowCapture
	case PaymentCancel:
		return domain.FlowVoid
	case PaymentSync:
		return domain.FlowSync
	case RefundExecute:
		return domain.FlowRefundExecute
	case RefundSync:
		return domain.FlowRefundSync
	case SetupMandate:
		return domain.FlowSetupMandate
	default:
		return domain.FlowSync
	}
}

func bindEnvelope(env *connector.Envelope, intent *domain.PaymentIntent, attempt *domain.PaymentAttempt) {
	env.MerchantID = intent.MerchantID
	env.IntentID = intent.ID
	env.AttemptID = attempt.ID
	env.RequestReferenceID = attempt.ConnectorRequestReferenceID
}

// applyEnvelopeToAttempt folds the resolved envelope into the attempt row.
func applyEnvelopeToAttempt(attempt *domain.PaymentAttempt, env *connector.Envelope, path dispatch.Path) {
	attempt.Status = env.Status()
	attempt.UnifiedPath = path == dispatch.PathUnified
	resp, failure := env.Outcome()
	if failure != nil {
		attempt.ErrorCode = failure.Code
		attempt.ErrorMessage = failure.Message
		if failure.ConnectorTransactionID != "" {
			attempt.ConnectorTransactionID = failure.ConnectorTransactionID
		}
		return
	}
	if payments, ok := resp.(connector.PaymentsResponse); ok && payments.ConnectorTransactionID != "" {
		attempt.ConnectorTransactionID = payments.ConnectorTransactionID
	}
}
