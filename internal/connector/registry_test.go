package connector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-switch/internal/domain"
)

// stubConnector is a minimal Connector for registry and runner tests. The
// integration is scripted per test.
type stubConnector struct {
	name       string
	authKinds  []AuthKind
	flows      map[domain.Flow]Integration
	needsToken bool
}

func (s *stubConnector) Name() string                  { return s.name }
func (s *stubConnector) AcceptedAuthKinds() []AuthKind { return s.authKinds }
func (s *stubConnector) Webhooks() WebhookSource       { return UnimplementedWebhookSource{} }
func (s *stubConnector) RequiresAccessToken() bool     { return s.needsToken }

func (s *stubConnector) Integration(flow domain.Flow) (Integration, bool) {
	i, ok := s.flows[flow]
	return i, ok
}

func newStub(name string, flows ...domain.Flow) *stubConnector {
	m := make(map[domain.Flow]Integration, len(flows))
	for _, f := range flows {
		m[f] = &scriptedIntegration{}
	}
	return &stubConnector{
		name:      name,
		authKinds: []AuthKind{AuthHeaderKey},
		flows:     m,
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(newStub("pay_a"), newStub("pay_a"))
	assert.ErrorContains(t, err, "duplicate connector")
}

func TestNewRegistryRejectsNil(t *testing.T) {
	_, err := NewRegistry(newStub("pay_a"), nil)
	assert.Error(t, err)
}

func TestRegistryGet(t *testing.T) {
	r, err := NewRegistry(newStub("pay_a"))
	require.NoError(t, err)

	c, err := r.Get("pay_a")
	require.NoError(t, err)
	assert.Equal(t, "pay_a", c.Name())

	_, err = r.Get("pay_b")
	assert.True(t, errors.Is(err, ErrInvalidConnectorConfig))
}

func TestRegistryNamesSorted(t *testing.T) {
	r, err := NewRegistry(newStub("zeta"), newStub("alpha"), newStub("mid"))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.Names())
}

func TestSupportedFlows(t *testing.T) {
	r, err := NewRegistry(
		newStub("pay_a", domain.FlowAuthorize, domain.FlowRefundExecute),
		newStub("pay_b"),
	)
	require.NoError(t, err)

	assert.ElementsMatch(t, []domain.Flow{domain.FlowAuthorize, domain.FlowRefundExecute}, r.SupportedFlows("pay_a"))
	assert.Empty(t, r.SupportedFlows("pay_b"))
	assert.Empty(t, r.SupportedFlows("pay_missing"))
}

func TestValidateAuth(t *testing.T) {
	r, err := NewRegistry(newStub("pay_a"))
	require.NoError(t, err)

	assert.NoError(t, r.ValidateAuth("pay_a", Auth{Kind: AuthHeaderKey, APIKey: "key"}))

	// Internally inconsistent for its kind.
	assert.Error(t, r.ValidateAuth("pay_a", Auth{Kind: AuthHeaderKey}))

	// Valid shape the connector does not accept.
	err = r.ValidateAuth("pay_a", Auth{Kind: AuthBodyKey, APIKey: "key", SecondaryKey: "second"})
	assert.ErrorContains(t, err, "does not accept")

	assert.Error(t, r.ValidateAuth("pay_missing", Auth{Kind: AuthNone}))
}
