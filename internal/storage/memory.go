package storage

import (
	"context"
	"sync"
	"time"

	"github.com/yourorg/payment-switch/internal/domain"
)

// MemoryStore is the in-memory implementation used by tests and the demo
// server wiring. One mutex guards all tables; the volumes here never make
// that a bottleneck.
type MemoryStore struct {
	mu        sync.RWMutex
	intents   map[string]domain.PaymentIntent
	attempts  map[string]domain.PaymentAttempt
	refunds   map[string]domain.Refund
	customers map[string]domain.Customer
	mandates  map[string]domain.Mandate
	merchants map[string]MerchantAccount
	// connector accounts keyed by merchantID + "/" + connector name
	connectorAccounts map[string]MerchantConnectorAccount
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		intents:           make(map[string]domain.PaymentIntent),
		attempts:          make(map[string]domain.PaymentAttempt),
		refunds:           make(map[string]domain.Refund),
		customers:         make(map[string]domain.Customer),
		mandates:          make(map[string]domain.Mandate),
		merchants:         make(map[string]MerchantAccount),
		connectorAccounts: make(map[string]MerchantConnectorAccount),
	}
}

// Repositories returns the store bundle backed by this memory store.
func (m *MemoryStore) Repositories() Store {
	return Store{
		Intents:   &memoryIntents{store: m},
		Attempts:  &memoryAttempts{store: m},
		Refunds:   &memoryRefunds{store: m},
		Customers: &memoryCustomers{store: m},
		Mandates:  &memoryMandates{store: m},
		Accounts:  &memoryAccounts{store: m},
	}
}

// AddMerchant seeds a merchant account.
func (m *MemoryStore) AddMerchant(account MerchantAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merchants[account.ID] = account
}

// AddConnectorAccount seeds a merchant-connector account.
func (m *MemoryStore) AddConnectorAccount(account MerchantConnectorAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectorAccounts[account.MerchantID+"/"+account.Connector] = account
}

type memoryIntents struct{ store *MemoryStore }

func (r *memoryIntents) Create(_ context.Context, intent *domain.PaymentIntent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	now := time.Now()
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = now
	}
	intent.ModifiedAt = now
	r.store.intents[intent.ID] = *intent
	return nil
}

func (r *memoryIntents) Get(_ context.Context, id string) (*domain.PaymentIntent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	intent, ok := r.store.intents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &intent, nil
}

func (r *memoryIntents) Update(_ context.Context, intent *domain.PaymentIntent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.intents[intent.ID]; !ok {
		return ErrNotFound
	}
	intent.ModifiedAt = time.Now()
	r.store.intents[intent.ID] = *intent
	return nil
}

func (r *memoryIntents) CompareAndUpdate(_ context.Context, id string, expected domain.IntentStatus, apply func(*domain.PaymentIntent)) (*domain.PaymentIntent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	intent, ok := r.store.intents[id]
	if !ok {
		return nil, ErrNotFound
	}
	if intent.Status != expected {
		return nil, ErrConflict
	}
	apply(&intent)
	intent.ModifiedAt = time.Now()
	r.store.intents[id] = intent
	return &intent, nil
}

type memoryAttempts struct{ store *MemoryStore }

func (r *memoryAttempts) Create(_ context.Context, attempt *domain.PaymentAttempt) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	now := time.Now()
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = now
	}
	attempt.ModifiedAt = now
	r.store.attempts[attempt.ID] = *attempt
	return nil
}

func (r *memoryAttempts) Get(_ context.Context, id string) (*domain.PaymentAttempt, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	attempt, ok := r.store.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &attempt, nil
}

func (r *memoryAttempts) Update(_ context.Context, attempt *domain.PaymentAttempt) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.attempts[attempt.ID]; !ok {
		return ErrNotFound
	}
	attempt.ModifiedAt = time.Now()
	r.store.attempts[attempt.ID] = *attempt
	return nil
}

func (r *memoryAttempts) FindByConnectorTransactionID(_ context.Context, connectorName, txnID string) (*domain.PaymentAttempt, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, attempt := range r.store.attempts {
		if attempt.Connector == connectorName && attempt.ConnectorTransactionID == txnID {
			found := attempt
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryAttempts) FindByRequestReferenceID(_ context.Context, ref string) (*domain.PaymentAttempt, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, attempt := range r.store.attempts {
		if attempt.ConnectorRequestReferenceID == ref {
			found := attempt
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

type memoryRefunds struct{ store *MemoryStore }

func (r *memoryRefunds) Create(_ context.Context, refund *domain.Refund) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	now := time.Now()
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = now
	}
	refund.ModifiedAt = now
	r.store.refunds[refund.ID] = *refund
	return nil
}

func (r *memoryRefunds) Get(_ context.Context, id string) (*domain.Refund, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	refund, ok := r.store.refunds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &refund, nil
}

func (r *memoryRefunds) Update(_ context.Context, refund *domain.Refund) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.refunds[refund.ID]; !ok {
		return ErrNotFound
	}
	refund.ModifiedAt = time.Now()
	r.store.refunds[refund.ID] = *refund
	return nil
}

func (r *memoryRefunds) FindByConnectorRefundID(_ context.Context, connectorName, refundID string) (*domain.Refund, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, refund := range r.store.refunds {
		if refund.Connector == connectorName && refund.ConnectorRefundID == refundID {
			found := refund
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

type memoryCustomers struct{ store *MemoryStore }

func (r *memoryCustomers) Get(_ context.Context, id string) (*domain.Customer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	customer, ok := r.store.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &customer, nil
}

func (r *memoryCustomers) Create(_ context.Context, customer *domain.Customer) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.customers[customer.ID] = *customer
	return nil
}

type memoryMandates struct{ store *MemoryStore }

func (r *memoryMandates) Create(_ context.Context, mandate *domain.Mandate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if mandate.CreatedAt.IsZero() {
		mandate.CreatedAt = time.Now()
	}
	r.store.mandates[mandate.ID] = *mandate
	return nil
}

func (r *memoryMandates) Update(_ context.Context, mandate *domain.Mandate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.mandates[mandate.ID]; !ok {
		return ErrNotFound
	}
	r.store.mandates[mandate.ID] = *mandate
	return nil
}

func (r *memoryMandates) Get(_ context.Context, id string) (*domain.Mandate, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	mandate, ok := r.store.mandates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &mandate, nil
}

type memoryAccounts struct{ store *MemoryStore }

func (r *memoryAccounts) Merchant(_ context.Context, merchantID string) (*MerchantAccount, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	account, ok := r.store.merchants[merchantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &account, nil
}

func (r *memoryAccounts) ConnectorAccount(_ context.Context, merchantID, connectorName string) (*MerchantConnectorAccount, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	account, ok := r.store.connectorAccounts[merchantID+"/"+connectorName]
	if !ok {
		return nil, ErrNotFound
	}
	return &account, nil
}
