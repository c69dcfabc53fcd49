// Package webhooks normalizes inbound connector webhooks: identify the
// connector's verification scheme, verify the signature against the
// merchant's secret material, correlate the payload to a stored payment or
// refund, and fold the canonical event into the record. Verification
// failures reject the webhook before any lookup; connectors without a
// scheme are reported explicitly as not verified.
package webhooks

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/crypto"
	"github.com/yourorg/payment-switch/internal/domain"
	"github.com/yourorg/payment-switch/internal/metrics"
	"github.com/yourorg/payment-switch/internal/storage"
)

var (
	// ErrVerificationFailed is returned when the webhook signature does
	// not check out against either configured secret.
	ErrVerificationFailed = errors.New("webhooks: signature verification failed")
	// ErrUnknownReference is returned when the webhook correlates to no
	// stored payment or refund.
	ErrUnknownReference = errors.New("webhooks: no record matches the object reference")
)

// Result is the normalized outcome of one inbound webhook.
type Result struct {
	// Verified is false for connectors without a verification scheme; the
	// caller decides whether to act on unverified events.
	Verified  bool
	Event     connector.EventKind
	Reference connector.ObjectReference
	IntentID  string
	AttemptID string
	RefundID  string
}

// Processor runs the ingestion pipeline.
type Processor struct {
	registry *connector.Registry
	store    storage.Store
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// NewProcessor creates a webhook processor.
func NewProcessor(registry *connector.Registry, store storage.Store, m *metrics.Metrics) *Processor {
	if registry == nil {
		panic("registry cannot be nil")
	}
	if store.Attempts == nil || store.Refunds == nil || store.Accounts == nil {
		panic("store repositories cannot be nil")
	}
	if m == nil {
		m = metrics.NewIsolated()
	}
	return &Processor{registry: registry, store: store, metrics: m, tracer: otel.Tracer("webhooks")}
}

// Process ingests one webhook addressed to a merchant's connector account.
func (p *Processor) Process(ctx context.Context, merchantID, connectorName string, w *connector.IncomingWebhook) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "Processor.Process")
	defer span.End()

	c, err := p.registry.Get(connectorName)
	if err != nil {
		p.count(connectorName, "unknown_connector")
		return nil, err
	}
	source := c.Webhooks()

	account, err := p.store.Accounts.ConnectorAccount(ctx, merchantID, connectorName)
	if err != nil {
		p.count(connectorName, "unknown_account")
		return nil, fmt.Errorf("resolving connector account for %s/%s: %w", merchantID, connectorName, err)
	}

	verified, err := p.verify(source, w, connector.WebhookSecrets{
		Secret:          account.WebhookSecret,
		SecondarySecret: account.WebhookSecondarySecret,
	})
	if err != nil {
		p.count(connectorName, "verification_failed")
		return nil, err
	}

	reference, err := source.ObjectReference(w)
	if err != nil {
		p.count(connectorName, "bad_reference")
		return nil, fmt.Errorf("mapping object reference: %w", err)
	}
	event, err := source.EventType(w)
	if err != nil {
		p.count(connectorName, "bad_event")
		return nil, fmt.Errorf("mapping event type: %w", err)
	}

	result := &Result{Verified: verified, Event: event, Reference: reference}
	if event == connector.EventNotSupported {
		p.count(connectorName, "not_supported")
		return result, nil
	}

	if err := p.apply(ctx, connectorName, event, reference, result); err != nil {
		p.count(connectorName, "apply_failed")
		return nil, err
	}
	p.count(connectorName, "processed")
	return result, nil
}

// verify checks the webhook signature per the connector's declared
// algorithm. The secondary secret covers rotation windows.
func (p *Processor) verify(source connector.WebhookSource, w *connector.IncomingWebhook, secrets connector.WebhookSecrets) (bool, error) {
	algorithm := source.Algorithm()
	if algorithm == connector.WebhookNoVerify {
		return false, nil
	}

	signature, err := source.Signature(w)
	if err != nil {
		return false, fmt.Errorf("extracting signature: %w", err)
	}
	message, err := source.Message(w, secrets)
	if err != nil {
		return false, fmt.Errorf("reconstructing signed message: %w", err)
	}

	switch algorithm {
	case connector.WebhookPlainDigest:
		// A digest involves no secret; one comparison settles it.
		if crypto.VerifyDigest(message, signature) {
			return true, nil
		}
	case connector.WebhookHMACSHA256:
		for _, secret := range [][]byte{secrets.Secret, secrets.SecondarySecret} {
			if len(secret) == 0 {
				continue
			}
			if crypto.VerifyHMACSHA256(secret, message, signature) {
				return true, nil
			}
		}
	default:
		return false, fmt.Errorf("webhooks: unknown verification algorithm %q", algorithm)
	}
	return false, ErrVerificationFailed
}

// apply folds the canonical event into the correlated record.
func (p *Processor) apply(ctx context.Context, connectorName string, event connector.EventKind, ref connector.ObjectReference, result *Result) error {
	switch ref.Kind {
	case connector.RefPayment:
		attempt, err := p.findAttempt(ctx, connectorName, ref)
		if err != nil {
			return err
		}
		result.IntentID = attempt.IntentID
		result.AttemptID = attempt.ID
		return p.applyPaymentEvent(ctx, event, attempt)
	case connector.RefRefund:
		refund, err := p.store.Refunds.FindByConnectorRefundID(ctx, connectorName, ref.ConnectorTransactionID)
		if err != nil {
			return fmt.Errorf("%w: refund %s", ErrUnknownReference, ref.ConnectorTransactionID)
		}
		result.IntentID = refund.IntentID
		result.RefundID = refund.ID
		return p.applyRefundEvent(ctx, event, refund)
	default:
		return fmt.Errorf("webhooks: unhandled reference kind %q", ref.Kind)
	}
}

func (p *Processor) findAttempt(ctx context.Context, connectorName string, ref connector.ObjectReference) (*domain.PaymentAttempt, error) {
	if ref.ConnectorTransactionID != "" {
		attempt, err := p.store.Attempts.FindByConnectorTransactionID(ctx, connectorName, ref.ConnectorTransactionID)
		if err == nil {
			return attempt, nil
		}
	}
	if ref.RequestReferenceID != "" {
		attempt, err := p.store.Attempts.FindByRequestReferenceID(ctx, ref.RequestReferenceID)
		if err == nil {
			return attempt, nil
		}
	}
	return nil, fmt.Errorf("%w: payment %s/%s", ErrUnknownReference, ref.ConnectorTransactionID, ref.RequestReferenceID)
}

func (p *Processor) applyPaymentEvent(ctx context.Context, event connector.EventKind, attempt *domain.PaymentAttempt) error {
	var status domain.AttemptStatus
	switch event {
	case connector.EventPaymentSucceeded:
		status = domain.AttemptCharged
	case connector.EventPaymentFailed:
		status = domain.AttemptFailure
	case connector.EventPaymentProcessing:
		status = domain.AttemptPending
	default:
		return fmt.Errorf("webhooks: event %q is not a payment event", event)
	}

	attempt.Status = status
	if err := p.store.Attempts.Update(ctx, attempt); err != nil {
		return err
	}

	intent, err := p.store.Intents.Get(ctx, attempt.IntentID)
	if err != nil {
		return err
	}
	if intent.Status.Terminal() {
		return nil
	}
	captureManual := intent.CaptureMethod == domain.CaptureManual
	_, err = p.store.Intents.CompareAndUpdate(ctx, intent.ID, intent.Status, func(i *domain.PaymentIntent) {
		i.Status = domain.IntentStatusFor(status, captureManual)
		if status == domain.AttemptCharged {
			i.AmountCaptured = i.Amount
		}
	})
	if errors.Is(err, storage.ErrConflict) {
		// A concurrent operation moved the intent; the webhook's view is
		// stale and the attempt update above already stands.
		return nil
	}
	return err
}

func (p *Processor) applyRefundEvent(ctx context.Context, event connector.EventKind, refund *domain.Refund) error {
	switch event {
	case connector.EventRefundSucceeded:
		refund.Status = domain.RefundSuccess
	case connector.EventRefundFailed:
		refund.Status = domain.RefundFailure
	default:
		return fmt.Errorf("webhooks: event %q is not a refund event", event)
	}
	return p.store.Refunds.Update(ctx, refund)
}

func (p *Processor) count(connectorName, outcome string) {
	p.metrics.WebhookEvents.WithLabelValues(connectorName, outcome).Inc()
}
