package connector

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-switch/internal/domain"
)

// scriptedIntegration lets each test override just the operations it cares
// about; everything else reports not-implemented.
type scriptedIntegration struct {
	Unimplemented
	buildRequest   func(e *Envelope, cfg Config) (*RequestDescriptor, error)
	handleResponse func(e *Envelope, resp *HTTPResponse) error
	handleError    func(e *Envelope, resp *HTTPResponse) (*Error, error)
}

func (s *scriptedIntegration) BuildRequest(e *Envelope, cfg Config) (*RequestDescriptor, error) {
	if s.buildRequest == nil {
		return s.Unimplemented.BuildRequest(e, cfg)
	}
	return s.buildRequest(e, cfg)
}

func (s *scriptedIntegration) HandleResponse(e *Envelope, resp *HTTPResponse) error {
	if s.handleResponse == nil {
		return s.Unimplemented.HandleResponse(e, resp)
	}
	return s.handleResponse(e, resp)
}

func (s *scriptedIntegration) HandleError(e *Envelope, resp *HTTPResponse) (*Error, error) {
	if s.handleError == nil {
		return s.Unimplemented.HandleError(e, resp)
	}
	return s.handleError(e, resp)
}

type fakeExecutor struct {
	resp  *HTTPResponse
	err   error
	calls int
}

func (f *fakeExecutor) Execute(_ context.Context, _ string, _ *RequestDescriptor) (*HTTPResponse, error) {
	f.calls++
	return f.resp, f.err
}

func runnerFixture(t *testing.T, integ *scriptedIntegration, exec Executor) (*Runner, *Envelope) {
	t.Helper()
	stub := newStub("pay_a")
	stub.flows[domain.FlowAuthorize] = integ
	registry, err := NewRegistry(stub)
	require.NoError(t, err)
	e := NewEnvelope("pay_a", domain.FlowAuthorize, Auth{Kind: AuthHeaderKey, APIKey: "key"}, AuthorizeRequest{Amount: 500})
	return NewRunner(registry, exec), e
}

func descriptor() *RequestDescriptor {
	return &RequestDescriptor{Method: "POST", URL: "https://pay-a.test/payments"}
}

func TestRunResolvesSuccess(t *testing.T) {
	integ := &scriptedIntegration{
		buildRequest: func(*Envelope, Config) (*RequestDescriptor, error) { return descriptor(), nil },
		handleResponse: func(e *Envelope, resp *HTTPResponse) error {
			return e.ResolveSuccess(PaymentsResponse{ConnectorTransactionID: "txn_9"}, domain.AttemptAuthorized)
		},
	}
	exec := &fakeExecutor{resp: &HTTPResponse{StatusCode: 200, Body: []byte(`{}`)}}
	runner, e := runnerFixture(t, integ, exec)

	require.NoError(t, runner.Run(context.Background(), e, Config{}))
	require.True(t, e.Resolved())
	assert.Equal(t, 1, exec.calls)
	resp, failure := e.Outcome()
	require.Nil(t, failure)
	assert.Equal(t, "txn_9", resp.(PaymentsResponse).ConnectorTransactionID)
}

func TestRunUnknownConnector(t *testing.T) {
	runner, _ := runnerFixture(t, &scriptedIntegration{}, &fakeExecutor{})
	e := NewEnvelope("pay_missing", domain.FlowAuthorize, Auth{Kind: AuthHeaderKey, APIKey: "key"}, AuthorizeRequest{})

	require.NoError(t, runner.Run(context.Background(), e, Config{}))
	require.True(t, e.Resolved())
	_, failure := e.Outcome()
	require.NotNil(t, failure)
	assert.Equal(t, CodeInvalidConfig, failure.Code)
	assert.Equal(t, SeverityConfiguration, failure.Kind)
}

func TestRunRejectsWrongAuthShape(t *testing.T) {
	runner, e := runnerFixture(t, &scriptedIntegration{}, &fakeExecutor{})
	e.Auth = Auth{Kind: AuthSignatureKey, APIKey: "key", SecondaryKey: "m", Secret: "s"}

	require.NoError(t, runner.Run(context.Background(), e, Config{}))
	_, failure := e.Outcome()
	require.NotNil(t, failure)
	assert.Equal(t, CodeInvalidConfig, failure.Code)
}

func TestRunUnsupportedFlow(t *testing.T) {
	runner, _ := runnerFixture(t, &scriptedIntegration{}, &fakeExecutor{})
	e := NewEnvelope("pay_a", domain.FlowPayoutCreate, Auth{Kind: AuthHeaderKey, APIKey: "key"}, SessionRequest{})

	require.NoError(t, runner.Run(context.Background(), e, Config{}))
	_, failure := e.Outcome()
	require.NotNil(t, failure)
	assert.Equal(t, CodeUnsupportedFlow, failure.Code)
	assert.Equal(t, 501, failure.StatusCode)
}

func TestRunNilRequestSkipsNetwork(t *testing.T) {
	integ := &scriptedIntegration{
		buildRequest: func(*Envelope, Config) (*RequestDescriptor, error) { return nil, nil },
		handleResponse: func(e *Envelope, resp *HTTPResponse) error {
			return e.ResolveSuccess(PaymentsResponse{ConnectorTransactionID: "local"}, domain.AttemptVoided)
		},
	}
	exec := &fakeExecutor{}
	runner, e := runnerFixture(t, integ, exec)

	require.NoError(t, runner.Run(context.Background(), e, Config{}))
	assert.Zero(t, exec.calls, "a nil descriptor must not reach the transport")
	assert.Equal(t, domain.AttemptVoided, e.Status())
}

func TestRunNetworkError(t *testing.T) {
	integ := &scriptedIntegration{
		buildRequest: func(*Envelope, Config) (*RequestDescriptor, error) { return descriptor(), nil },
	}
	runner, e := runnerFixture(t, integ, &fakeExecutor{err: fmt.Errorf("connection refused")})

	require.NoError(t, runner.Run(context.Background(), e, Config{}))
	_, failure := e.Outcome()
	require.NotNil(t, failure)
	assert.Equal(t, CodeNoResponse, failure.Code)
	assert.Equal(t, 502, failure.StatusCode)
	assert.Contains(t, failure.Reason, "connection refused")
}

func TestRunDeserializationFallbackLadder(t *testing.T) {
	t.Run("error parse rescues odd success body", func(t *testing.T) {
		integ := &scriptedIntegration{
			buildRequest: func(*Envelope, Config) (*RequestDescriptor, error) { return descriptor(), nil },
			handleResponse: func(*Envelope, *HTTPResponse) error {
				return fmt.Errorf("%w: surprise shape", ErrResponseDeserialization)
			},
			handleError: func(*Envelope, *HTTPResponse) (*Error, error) {
				return &Error{StatusCode: 200, Code: "declined", Kind: SeverityRemote}, nil
			},
		}
		runner, e := runnerFixture(t, integ, &fakeExecutor{resp: &HTTPResponse{StatusCode: 200, Body: []byte(`{"error": "x"}`)}})

		require.NoError(t, runner.Run(context.Background(), e, Config{}))
		_, failure := e.Outcome()
		require.NotNil(t, failure)
		assert.Equal(t, "declined", failure.Code)
	})

	t.Run("raw body surfaces when nothing parses", func(t *testing.T) {
		integ := &scriptedIntegration{
			buildRequest: func(*Envelope, Config) (*RequestDescriptor, error) { return descriptor(), nil },
			handleResponse: func(*Envelope, *HTTPResponse) error {
				return fmt.Errorf("%w: surprise shape", ErrResponseDeserialization)
			},
			handleError: func(*Envelope, *HTTPResponse) (*Error, error) {
				return nil, fmt.Errorf("%w: also not an error payload", ErrResponseDeserialization)
			},
		}
		runner, e := runnerFixture(t, integ, &fakeExecutor{resp: &HTTPResponse{StatusCode: 200, Body: []byte(`<html>down</html>`)}})

		require.NoError(t, runner.Run(context.Background(), e, Config{}))
		_, failure := e.Outcome()
		require.NotNil(t, failure)
		assert.Equal(t, CodeUnsupportedResponse, failure.Code)
		assert.Contains(t, failure.Reason, "<html>down</html>")
	})
}

func TestRunHTTPErrorPath(t *testing.T) {
	integ := &scriptedIntegration{
		buildRequest: func(*Envelope, Config) (*RequestDescriptor, error) { return descriptor(), nil },
		handleError: func(_ *Envelope, resp *HTTPResponse) (*Error, error) {
			return &Error{StatusCode: resp.StatusCode, Code: "card_declined", Kind: SeverityRemote}, nil
		},
	}
	runner, e := runnerFixture(t, integ, &fakeExecutor{resp: &HTTPResponse{StatusCode: 402, Body: []byte(`{"error":{}}`)}})

	require.NoError(t, runner.Run(context.Background(), e, Config{}))
	_, failure := e.Outcome()
	require.NotNil(t, failure)
	assert.Equal(t, "card_declined", failure.Code)
	assert.Equal(t, 402, failure.StatusCode)
}
