package dispatch

import (
	"context"
	"log"

	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/metrics"
)

// Dispatcher executes one envelope over the path the rollout decision
// picks. The unified path degrades to the legacy path on any failure to
// translate, connect or execute; the fallback happens at most once per
// call and the envelope is always resolved on return.
type Dispatcher struct {
	decider *Decider
	runner  *connector.Runner
	unified UnifiedClient
	breaker *Breaker
	metrics *metrics.Metrics
}

// unifiedTarget keys the circuit breaker; there is one unified service.
const unifiedTarget = "unified"

// NewDispatcher creates a Dispatcher. A nil unified client pins every call
// to the legacy path regardless of rollout fractions.
func NewDispatcher(decider *Decider, runner *connector.Runner, unified UnifiedClient, m *metrics.Metrics) *Dispatcher {
	if decider == nil {
		panic("decider cannot be nil")
	}
	if runner == nil {
		panic("runner cannot be nil")
	}
	if m == nil {
		m = metrics.NewIsolated()
	}
	return &Dispatcher{decider: decider, runner: runner, unified: unified, breaker: NewBreaker(), metrics: m}
}

// Execute runs the envelope's flow and reports the path that actually
// served it. A unified attempt that fell back reports PathLegacy.
func (d *Dispatcher) Execute(ctx context.Context, e *connector.Envelope, cfg connector.Config, in Input) (Path, error) {
	path := d.decider.Decide(in)
	if path == PathUnified && d.unified == nil {
		path = PathLegacy
	}
	if path == PathUnified && !d.breaker.Allow(unifiedTarget) {
		d.metrics.DispatchDecisions.WithLabelValues("breaker_open").Inc()
		path = PathLegacy
	}
	d.metrics.DispatchDecisions.WithLabelValues(string(path)).Inc()

	if path == PathUnified {
		err := d.executeUnified(ctx, e)
		if err == nil {
			d.breaker.RecordSuccess(unifiedTarget)
			return PathUnified, nil
		}
		d.breaker.RecordFailure(unifiedTarget)
		log.Printf("dispatch: unified path failed for %s/%s, falling back to legacy: %v", e.Connector, e.Flow, err)
		d.metrics.DispatchDecisions.WithLabelValues("fallback").Inc()
	}

	return PathLegacy, d.runner.Run(ctx, e, cfg)
}

// executeUnified attempts the call over the unified service. Any error
// before the envelope is resolved leaves it untouched so the legacy path
// can take over cleanly.
func (d *Dispatcher) executeUnified(ctx context.Context, e *connector.Envelope) error {
	req, err := TranslateEnvelope(e)
	if err != nil {
		return err
	}
	if err := d.unified.Ready(ctx); err != nil {
		return err
	}
	resp, err := d.unified.Execute(ctx, req)
	if err != nil {
		return err
	}
	return ApplyUnifiedResponse(e, resp)
}
