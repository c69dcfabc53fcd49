package connector

import (
	"context"
	"errors"
	"fmt"
)

// Runner drives one envelope through a connector adapter: build the wire
// request, execute it through the shared transport, and resolve the
// envelope from the response or the normalized error. It treats every
// registered connector uniformly; it is the legacy execution path the
// dispatch decision falls back to.
type Runner struct {
	registry *Registry
	executor Executor
}

// NewRunner creates a Runner.
func NewRunner(registry *Registry, executor Executor) *Runner {
	if registry == nil {
		panic("registry cannot be nil")
	}
	if executor == nil {
		panic("executor cannot be nil")
	}
	return &Runner{registry: registry, executor: executor}
}

// Run executes the envelope's flow. On return the envelope is resolved:
// callers receive either a success outcome or the canonical error, never a
// raw connector failure. Configuration and encoding errors are fatal to
// the single call; this layer never retries.
func (r *Runner) Run(ctx context.Context, e *Envelope, cfg Config) error {
	c, err := r.registry.Get(e.Connector)
	if err != nil {
		return e.ResolveFailure(ConfigError(err.Error()))
	}
	if err := r.registry.ValidateAuth(e.Connector, e.Auth); err != nil {
		return e.ResolveFailure(ConfigError(err.Error()))
	}

	integration, ok := c.Integration(e.Flow)
	if !ok {
		return e.ResolveFailure(UnsupportedFlowError(e.Connector, e.Flow))
	}

	req, err := integration.BuildRequest(e, cfg)
	if err != nil {
		return e.ResolveFailure(AdapterErrorToCanonical(e.Connector, e.Flow, err))
	}
	if req == nil {
		// The flow is terminal without network I/O; the adapter resolves
		// the envelope from the request alone.
		if err := integration.HandleResponse(e, &HTTPResponse{StatusCode: 200}); err != nil {
			return e.ResolveFailure(AdapterErrorToCanonical(e.Connector, e.Flow, err))
		}
		return nil
	}
	if err := req.Validate(); err != nil {
		return e.ResolveFailure(AdapterErrorToCanonical(e.Connector, e.Flow, err))
	}

	resp, err := r.executor.Execute(ctx, e.Connector, req)
	if err != nil {
		return e.ResolveFailure(&Error{
			StatusCode: 502,
			Code:       CodeNoResponse,
			Message:    fmt.Sprintf("no response from connector %s", e.Connector),
			Reason:     err.Error(),
			Kind:       SeverityRemote,
		})
	}

	if resp.Success() {
		if err := integration.HandleResponse(e, resp); err != nil {
			// A success status with an undeclared shape may be a
			// legitimate alternate error payload; try the error parse
			// before surfacing the generic unsupported-response error.
			if errors.Is(err, ErrResponseDeserialization) {
				if cerr, herr := integration.HandleError(e, resp); herr == nil {
					return e.ResolveFailure(cerr)
				}
				return e.ResolveFailure(UnsupportedResponseError(resp.StatusCode, resp.Body))
			}
			return e.ResolveFailure(AdapterErrorToCanonical(e.Connector, e.Flow, err))
		}
		return nil
	}

	cerr, err := integration.HandleError(e, resp)
	if err != nil {
		return e.ResolveFailure(UnsupportedResponseError(resp.StatusCode, resp.Body))
	}
	return e.ResolveFailure(cerr)
}
