// Package operation drives every payment operation through the same
// five-stage pipeline: validate the inbound payload, load or construct the
// records and check the operation may begin from their current status,
// enrich the call with merchant and connector data, commit the in-flight
// call and run the adapter round trip, then write the outcome and run
// post-commit effects. Stages before the committal are free of storage
// writes, so a rejected operation leaves no partial state behind; once a
// round trip is about to start, the pending attempt and the processing
// intent are durable first, so a crash mid-call leaves a correlatable
// record that money may have moved.
package operation

import (
	"context"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/dispatch"
	"github.com/yourorg/payment-switch/internal/domain"
	"github.com/yourorg/payment-switch/internal/events"
	"github.com/yourorg/payment-switch/internal/metrics"
	"github.com/yourorg/payment-switch/internal/storage"
)

// Operation names one pipeline entry point.
type Operation string

const (
	PaymentCreate  Operation = "payment_create"
	PaymentConfirm Operation = "payment_confirm"
	PaymentCapture Operation = "payment_capture"
	PaymentCancel  Operation = "payment_cancel"
	PaymentSync    Operation = "payment_sync"
	RefundExecute  Operation = "refund_execute"
	RefundSync     Operation = "refund_sync"
	SetupMandate   Operation = "setup_mandate"
)

// entryStatuses is the per-operation allow-list of intent statuses the
// operation may begin from. PaymentCreate constructs the intent and has no
// entry; RefundSync and SetupMandate gate on their own records instead.
var entryStatuses = map[Operation][]domain.IntentStatus{
	PaymentConfirm: {domain.IntentRequiresConfirmation, domain.IntentRequiresPaymentMethod},
	PaymentCapture: {domain.IntentRequiresCapture, domain.IntentPartiallyCaptured},
	PaymentCancel: {
		domain.IntentRequiresPaymentMethod,
		domain.IntentRequiresConfirmation,
		domain.IntentRequiresCustomerAction,
		domain.IntentRequiresCapture,
	},
	PaymentSync: {
		domain.IntentProcessing,
		domain.IntentRequiresCustomerAction,
		domain.IntentRequiresCapture,
	},
	RefundExecute: {domain.IntentSucceeded, domain.IntentPartiallyCaptured},
}

// allowedFrom reports whether op may begin from status.
func allowedFrom(op Operation, status domain.IntentStatus) bool {
	for _, s := range entryStatuses[op] {
		if s == status {
			return true
		}
	}
	return false
}

// StateError reports an operation invoked against a record whose status is
// outside the operation's entry set. It names the operation, the record and
// both statuses so the caller can distinguish it from a validation failure.
type StateError struct {
	Operation Operation
	RecordID  string
	Status    domain.IntentStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("operation %s cannot begin: record %s is in status %q", e.Operation, e.RecordID, e.Status)
}

// ValidationError reports an inbound payload rejected by the validate stage.
type ValidationError struct {
	Operation Operation
	Problems  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("operation %s: invalid payload: %v", e.Operation, e.Problems)
}

// PathExecutor runs one resolved envelope over the chosen execution path.
// dispatch.Dispatcher is the production implementation.
type PathExecutor interface {
	Execute(ctx context.Context, e *connector.Envelope, cfg connector.Config, in dispatch.Input) (dispatch.Path, error)
}

// SyncScheduler enqueues an asynchronous payment-sync follow-up. The
// process tracker implements it; a nil scheduler disables follow-ups.
type SyncScheduler interface {
	ScheduleSync(ctx context.Context, merchantID, intentID, attemptID string, at time.Time) error
}

// Engine owns the shared pipeline and its collaborators.
type Engine struct {
	store     storage.Store
	registry  *connector.Registry
	execPath  PathExecutor
	publisher events.Publisher
	scheduler SyncScheduler
	metrics   *metrics.Metrics
	tokens    *TokenStore
	schemas   map[Operation]*gojsonschema.Schema
	tracer    trace.Tracer

	// syncDelay is how far in the future a follow-up sync is scheduled
	// when the connector leaves the attempt in a progressing status.
	syncDelay time.Duration
}

// NewEngine creates the operation engine. The publisher and scheduler may
// be nil; all other collaborators are required.
func NewEngine(store storage.Store, registry *connector.Registry, execPath PathExecutor, publisher events.Publisher, scheduler SyncScheduler, m *metrics.Metrics) (*Engine, error) {
	if store.Intents == nil || store.Attempts == nil || store.Refunds == nil || store.Accounts == nil {
		panic("store repositories cannot be nil")
	}
	if registry == nil {
		panic("registry cannot be nil")
	}
	if execPath == nil {
		panic("path executor cannot be nil")
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if m == nil {
		m = metrics.NewIsolated()
	}
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:     store,
		registry:  registry,
		execPath:  execPath,
		publisher: publisher,
		scheduler: scheduler,
		metrics:   m,
		tokens:    NewTokenStore(),
		schemas:   schemas,
		tracer:    otel.Tracer("operation"),
		syncDelay: 30 * time.Second,
	}, nil
}

// validatePayload runs the operation's JSON-schema check. Operations
// without a schema take no payload.
func (e *Engine) validatePayload(op Operation, payload []byte) error {
	schema, ok := e.schemas[op]
	if !ok {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return &ValidationError{Operation: op, Problems: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return &ValidationError{Operation: op, Problems: problems}
}

// loadIntent fetches the intent and checks the operation's entry set.
func (e *Engine) loadIntent(ctx context.Context, op Operation, intentID string) (*domain.PaymentIntent, error) {
	intent, err := e.store.Intents.Get(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if !allowedFrom(op, intent.Status) {
		return nil, &StateError{Operation: op, RecordID: intent.ID, Status: intent.Status}
	}
	return intent, nil
}

// callContext is what the enrich stage assembles for one connector call.
type callContext struct {
	account *storage.MerchantConnectorAccount
	cfg     connector.Config
	input   dispatch.Input
}

// enrich resolves the merchant-connector account and the dispatch input
// for one call. It rejects disabled connector accounts.
func (e *Engine) enrich(ctx context.Context, op Operation, merchantID, connectorName string, flow domain.Flow, method domain.PaymentMethodKind) (*callContext, error) {
	account, err := e.store.Accounts.ConnectorAccount(ctx, merchantID, connectorName)
	if err != nil {
		return nil, fmt.Errorf("operation %s: resolving connector account: %w", op, err)
	}
	if account.Disabled {
		return nil, fmt.Errorf("operation %s: connector account %s is disabled", op, account.ID)
	}
	return &callContext{
		account: account,
		cfg:     account.Config,
		input: dispatch.Input{
			MerchantID:    merchantID,
			Connector:     connectorName,
			PaymentMethod: method,
			Flow:          flow,
			TestMode:      account.TestMode,
		},
	}, nil
}

// execute runs the envelope, with the access-token pre-step for connectors
// that require it, and records the round trip.
func (e *Engine) execute(ctx context.Context, env *connector.Envelope, call *callContext) (dispatch.Path, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.execute")
	defer span.End()

	if err := e.attachAccessToken(ctx, env, call); err != nil {
		return dispatch.PathLegacy, err
	}

	path, err := e.execPath.Execute(ctx, env, call.cfg, call.input)
	if err != nil {
		return path, err
	}
	outcome := "success"
	if _, failure := env.Outcome(); failure != nil {
		outcome = "failure"
	}
	e.metrics.ConnectorRequests.WithLabelValues(env.Connector, outcome).Inc()
	return path, nil
}

// beginAttemptCall is the committal that precedes the adapter round trip:
// the attempt row lands in storage in pending, carrying its connector and
// merchant-connector identifiers and the correlation id webhooks match on,
// and the intent moves to processing under a conditional update on its
// entry status.
func (e *Engine) beginAttemptCall(ctx context.Context, op Operation, intent *domain.PaymentIntent, attempt *domain.PaymentAttempt, isNew bool) error {
	attempt.Status = domain.AttemptPending
	var err error
	if isNew {
		err = e.store.Attempts.Create(ctx, attempt)
	} else {
		err = e.store.Attempts.Update(ctx, attempt)
	}
	if err != nil {
		return err
	}
	if _, err := e.store.Intents.CompareAndUpdate(ctx, intent.ID, intent.Status, func(i *domain.PaymentIntent) {
		i.Status = domain.IntentProcessing
		i.ActiveAttemptID = attempt.ID
	}); err != nil {
		return fmt.Errorf("operation %s: marking %s processing: %w", op, intent.ID, err)
	}
	return nil
}

// abortAttemptCall finalizes a committed pending call whose execution
// errored before the main-flow round trip could resolve the envelope: the
// attempt is written with the given status and the error, and the intent
// returns to its entry status so the operation can be retried.
func (e *Engine) abortAttemptCall(ctx context.Context, intentID string, entry domain.IntentStatus, attempt *domain.PaymentAttempt, status domain.AttemptStatus, cause error) error {
	attempt.Status = status
	attempt.ErrorMessage = cause.Error()
	if err := e.store.Attempts.Update(ctx, attempt); err != nil {
		return fmt.Errorf("recording failed attempt %s: %v: %w", attempt.ID, err, cause)
	}
	if _, err := e.store.Intents.CompareAndUpdate(ctx, intentID, domain.IntentProcessing, func(i *domain.PaymentIntent) {
		i.Status = entry
	}); err != nil {
		return fmt.Errorf("restoring intent %s: %v: %w", intentID, err, cause)
	}
	return cause
}

// publishOutcome emits the post-commit analytics event. Failures are
// swallowed after logging by the publisher; the payment is already
// committed.
func (e *Engine) publishOutcome(ctx context.Context, event events.OutcomeEvent) {
	event.OccurredAt = time.Now().UTC()
	_ = e.publisher.Publish(ctx, event)
}

// scheduleSyncIfProgressing enqueues a follow-up sync when the attempt is
// still moving on the connector side.
func (e *Engine) scheduleSyncIfProgressing(ctx context.Context, attempt *domain.PaymentAttempt) {
	if e.scheduler == nil {
		return
	}
	switch attempt.Status {
	case domain.AttemptAuthorizing, domain.AttemptPending,
		domain.AttemptCaptureInitiated, domain.AttemptVoidInitiated,
		domain.AttemptAuthenticationPending:
		_ = e.scheduler.ScheduleSync(ctx, attempt.MerchantID, attempt.IntentID, attempt.ID, time.Now().Add(e.syncDelay))
	}
}
