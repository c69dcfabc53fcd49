// Package storage defines the persistence contract the state machine
// commits through, and an in-memory implementation. The storage engine
// itself is an external collaborator; what this package pins down is the
// update contract, in particular the conditional update the commit stage
// uses to exclude concurrent confirmations of one intent.
package storage

import (
	"context"
	"errors"

	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/domain"
)

var (
	// ErrNotFound is returned for unknown identifiers.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned by conditional updates when the record's
	// status moved away from the expected entry value.
	ErrConflict = errors.New("storage: conditional update conflict")
)

// MerchantAccount is the minimal merchant record this core reads.
type MerchantAccount struct {
	ID        string
	Name      string
	ReturnURL string
}

// MerchantConnectorAccount binds a merchant to one configured connector:
// credentials, endpoint configuration and webhook secret material. The
// webhook secret is read for the duration of one verification call only.
type MerchantConnectorAccount struct {
	ID                     string
	MerchantID             string
	Connector              string
	Auth                   connector.Auth
	Config                 connector.Config
	TestMode               bool
	WebhookSecret          []byte
	WebhookSecondarySecret []byte
	Disabled               bool
}

// IntentRepository persists payment intents.
type IntentRepository interface {
	Create(ctx context.Context, intent *domain.PaymentIntent) error
	Get(ctx context.Context, id string) (*domain.PaymentIntent, error)
	Update(ctx context.Context, intent *domain.PaymentIntent) error
	// CompareAndUpdate applies the mutation only if the intent's status
	// still equals expected, returning ErrConflict otherwise. This is the
	// serialization point for concurrent operations on one intent.
	CompareAndUpdate(ctx context.Context, id string, expected domain.IntentStatus, apply func(*domain.PaymentIntent)) (*domain.PaymentIntent, error)
}

// AttemptRepository persists payment attempts.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *domain.PaymentAttempt) error
	Get(ctx context.Context, id string) (*domain.PaymentAttempt, error)
	Update(ctx context.Context, attempt *domain.PaymentAttempt) error
	// FindByConnectorTransactionID correlates inbound webhooks.
	FindByConnectorTransactionID(ctx context.Context, connectorName, txnID string) (*domain.PaymentAttempt, error)
	FindByRequestReferenceID(ctx context.Context, ref string) (*domain.PaymentAttempt, error)
}

// RefundRepository persists refunds.
type RefundRepository interface {
	Create(ctx context.Context, refund *domain.Refund) error
	Get(ctx context.Context, id string) (*domain.Refund, error)
	Update(ctx context.Context, refund *domain.Refund) error
	FindByConnectorRefundID(ctx context.Context, connectorName, refundID string) (*domain.Refund, error)
}

// CustomerRepository resolves customers during the enrich stage.
type CustomerRepository interface {
	Get(ctx context.Context, id string) (*domain.Customer, error)
	Create(ctx context.Context, customer *domain.Customer) error
}

// MandateRepository persists mandates created by setup-mandate flows.
type MandateRepository interface {
	Create(ctx context.Context, mandate *domain.Mandate) error
	Update(ctx context.Context, mandate *domain.Mandate) error
	Get(ctx context.Context, id string) (*domain.Mandate, error)
}

// AccountRepository resolves merchant and merchant-connector accounts.
type AccountRepository interface {
	Merchant(ctx context.Context, merchantID string) (*MerchantAccount, error)
	ConnectorAccount(ctx context.Context, merchantID, connectorName string) (*MerchantConnectorAccount, error)
}

// Store bundles the repositories the state machine needs.
type Store struct {
	Intents   IntentRepository
	Attempts  AttemptRepository
	Refunds   RefundRepository
	Customers CustomerRepository
	Mandates  MandateRepository
	Accounts  AccountRepository
}
