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

type setupMandateRequest struct {
	MerchantID    string                    `json:"merchant_id"`
	Connector     string                    `json:"connector"`
	CustomerID    string                    `json:"customer_id"`
	PaymentMethod *domain.PaymentMethodData `json:"payment_method"`
}

// CreateMandate registers a payment method with the connector for
// off-session use and stores the returned mandate reference.
func (e *Engine) CreateMandate(ctx context.Context, payload []byte) (*domain.Mandate, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.CreateMandate")
	defer span.End()

	if err := e.validatePayload(SetupMandate, payload); err != nil {
		return nil, err
	}
	var req setupMandateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &ValidationError{Operation: SetupMandate, Problems: []string{err.Error()}}
	}
	if err := checkMethodData(SetupMandate, req.PaymentMethod); err != nil {
		return nil, err
	}

	customer, err := e.store.Customers.Get(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("resolving customer %s: %w", req.CustomerID, err)
	}
	call, err := e.enrich(ctx, SetupMandate, req.MerchantID, req.Connector, domain.FlowSetupMandate, req.PaymentMethod.Kind)
	if err != nil {
		return nil, err
	}

	mandate := &domain.Mandate{
		ID:                          "man_" + uuid.NewString(),
		CustomerID:                  customer.ID,
		Status:                      domain.MandatePending,
		Connector:                   req.Connector,
		ConnectorRequestReferenceID: "req_" + uuid.NewString(),
		PaymentMethod:               req.PaymentMethod.Kind,
	}

	env := connector.NewEnvelope(req.Connector, domain.FlowSetupMandate, call.account.Auth, connector.SetupMandateRequest{
		PaymentMethod: *req.PaymentMethod,
		CustomerID:    customer.ID,
		Email:         customer.Email,
	})
	env.MerchantID = req.MerchantID
	env.RequestReferenceID = mandate.ConnectorRequestReferenceID
	env.TestMode = call.account.TestMode

	// The pending mandate row is durable before the round trip so a crash
	// mid-call leaves a correlatable record.
	if err := e.store.Mandates.Create(ctx, mandate); err != nil {
		return nil, err
	}

	if _, err := e.execute(ctx, env, call); err != nil {
		return nil, e.failMandate(ctx, mandate, err)
	}
	resp, failure := env.Outcome()
	if failure != nil {
		return nil, e.failMandate(ctx, mandate, failure)
	}
	payments, ok := resp.(connector.PaymentsResponse)
	if !ok || payments.MandateReference == "" {
		return nil, e.failMandate(ctx, mandate, fmt.Errorf("connector %s returned no mandate reference", req.Connector))
	}

	mandate.Status = domain.MandateActive
	mandate.ConnectorMandateID = payments.MandateReference
	if err := e.store.Mandates.Update(ctx, mandate); err != nil {
		return nil, err
	}

	e.publishOutcome(ctx, events.OutcomeEvent{
		EventID:    "evt_" + uuid.NewString(),
		Operation:  string(SetupMandate),
		MerchantID: req.MerchantID,
		Connector:  req.Connector,
		Status:     string(env.Status()),
	})
	return mandate, nil
}

// failMandate marks a committed pending mandate failed and returns cause.
func (e *Engine) failMandate(ctx context.Context, mandate *domain.Mandate, cause error) error {
	mandate.Status = domain.MandateFailed
	if err := e.store.Mandates.Update(ctx, mandate); err != nil {
		return fmt.Errorf("recording failed mandate %s: %v: %w", mandate.ID, err, cause)
	}
	return cause
}
