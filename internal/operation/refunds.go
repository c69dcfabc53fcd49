package operation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/domain"
	"github.com/yourorg/payment-switch/internal/events"
)

type refundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// Refund executes a refund against a charged intent.
func (e *Engine) Refund(ctx context.Context, intentID string, payload []byte) (*domain.Refund, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Refund")
	defer span.End()

	if err := e.validatePayload(RefundExecute, payload); err != nil {
		return nil, err
	}
	var req refundRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &ValidationError{Operation: RefundExecute, Problems: []string{err.Error()}}
	}

	intent, err := e.loadIntent(ctx, RefundExecute, intentID)
	if err != nil {
		return nil, err
	}
	if req.Amount > intent.AmountCaptured {
		return nil, &ValidationError{
			Operation: RefundExecute,
			Problems:  []string{fmt.Sprintf("refund amount %d exceeds captured amount %d", req.Amount, intent.AmountCaptured)},
		}
	}

	attempt, call, err := e.loadActiveAttempt(ctx, RefundExecute, intent)
	if err != nil {
		return nil, err
	}

	refund := &domain.Refund{
		ID:         "ref_" + uuid.NewString(),
		IntentID:   intent.ID,
		AttemptID:  attempt.ID,
		MerchantID: intent.MerchantID,
		Status:     domain.RefundPending,
		Amount:     req.Amount,
		Currency:   intent.Currency,
		Connector:  attempt.Connector,
		Reason:     req.Reason,
	}

	env := connector.NewEnvelope(attempt.Connector, domain.FlowRefundExecute, call.account.Auth, connector.RefundRequest{
		ConnectorTransactionID: attempt.ConnectorTransactionID,
		RefundID:               refund.ID,
		Amount:                 req.Amount,
		Currency:               intent.Currency,
		Reason:                 req.Reason,
	})
	bindEnvelope(env, intent, attempt)
	env.TestMode = call.account.TestMode

	// The pending refund row is durable before the round trip so a crash
	// mid-call leaves a record the next sync can resolve.
	if err := e.store.Refunds.Create(ctx, refund); err != nil {
		return nil, err
	}

	if _, err := e.execute(ctx, env, call); err != nil {
		refund.Status = domain.RefundFailure
		refund.ErrorMessage = err.Error()
		if uerr := e.store.Refunds.Update(ctx, refund); uerr != nil {
			return nil, fmt.Errorf("recording failed refund %s: %v: %w", refund.ID, uerr, err)
		}
		return nil, err
	}
	applyEnvelopeToRefund(refund, env)

	if err := e.store.Refunds.Update(ctx, refund); err != nil {
		return nil, err
	}

	e.publishOutcome(ctx, events.OutcomeEvent{
		EventID:    "evt_" + uuid.NewString(),
		Operation:  string(RefundExecute),
		MerchantID: intent.MerchantID,
		IntentID:   intent.ID,
		AttemptID:  attempt.ID,
		RefundID:   refund.ID,
		Connector:  attempt.Connector,
		Status:     string(refund.Status),
		ErrorCode:  refund.ErrorCode,
	})
	return refund, nil
}

// SyncRefund refreshes a pending refund from the connector.
func (e *Engine) SyncRefund(ctx context.Context, refundID string) (*domain.Refund, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.SyncRefund")
	defer span.End()

	refund, err := e.store.Refunds.Get(ctx, refundID)
	if err != nil {
		return nil, err
	}
	// Only a pending refund has anything to ask about.
	if refund.Status != domain.RefundPending {
		return refund, nil
	}

	attempt, err := e.store.Attempts.Get(ctx, refund.AttemptID)
	if err != nil {
		return nil, err
	}
	call, err := e.enrich(ctx, RefundSync, refund.MerchantID, refund.Connector, domain.FlowRefundSync, attempt.PaymentMethod)
	if err != nil {
		return nil, err
	}

	env := connector.NewEnvelope(refund.Connector, domain.FlowRefundSync, call.account.Auth, connector.RefundSyncRequest{
		ConnectorTransactionID: attempt.ConnectorTransactionID,
		ConnectorRefundID:      refund.ConnectorRefundID,
	})
	env.MerchantID = refund.MerchantID
	env.IntentID = refund.IntentID
	env.AttemptID = attempt.ID
	env.RequestReferenceID = attempt.ConnectorRequestReferenceID
	env.TestMode = call.account.TestMode

	if _, err := e.execute(ctx, env, call); err != nil {
		return nil, err
	}
	applyEnvelopeToRefund(refund, env)

	if err := e.store.Refunds.Update(ctx, refund); err != nil {
		return nil, err
	}

	e.publishOutcome(ctx, events.OutcomeEvent{
		EventID:    "evt_" + uuid.NewString(),
		Operation:  string(RefundSync),
		MerchantID: refund.MerchantID,
		IntentID:   refund.IntentID,
		AttemptID:  refund.AttemptID,
		RefundID:   refund.ID,
		Connector:  refund.Connector,
		Status:     string(refund.Status),
		ErrorCode:  refund.ErrorCode,
	})
	return refund, nil
}

// applyEnvelopeToRefund folds the resolved envelope into the refund row.
func applyEnvelopeToRefund(refund *domain.Refund, env *connector.Envelope) {
	resp, failure := env.Outcome()
	if failure != nil {
		refund.Status = domain.RefundFailure
		refund.ErrorCode = failure.Code
		refund.ErrorMessage = failure.Message
		return
	}
	if refunds, ok := resp.(connector.RefundsResponse); ok {
		refund.Status = refunds.RefundStatus
		if refunds.ConnectorRefundID != "" {
			refund.ConnectorRefundID = refunds.ConnectorRefundID
		}
	}
}
