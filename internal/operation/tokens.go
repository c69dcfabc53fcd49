package operation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/domain"
)

// TokenStore caches connector access tokens in memory, keyed by merchant
// and connector. Tokens are evicted a margin before their expiry so a
// token is never attached moments before it dies mid-call.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]connector.AccessToken
	margin time.Duration
}

// NewTokenStore creates an empty token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]connector.AccessToken),
		margin: 30 * time.Second,
	}
}

func tokenKey(merchantID, connectorName string) string {
	return merchantID + "/" + connectorName
}

// Get returns a live cached token.
func (s *TokenStore) Get(merchantID, connectorName string) (connector.AccessToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[tokenKey(merchantID, connectorName)]
	if !ok {
		return connector.AccessToken{}, false
	}
	if time.Now().After(token.ExpiresAt.Add(-s.margin)) {
		delete(s.tokens, tokenKey(merchantID, connectorName))
		return connector.AccessToken{}, false
	}
	return token, true
}

// Put caches a token.
func (s *TokenStore) Put(merchantID, connectorName string, token connector.AccessToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenKey(merchantID, connectorName)] = token
}

// attachAccessToken runs the access-token pre-step for connectors that
// declare the requirement, reusing a cached token when one is live.
func (e *Engine) attachAccessToken(ctx context.Context, env *connector.Envelope, call *callContext) error {
	c, err := e.registry.Get(env.Connector)
	if err != nil {
		return err
	}
	if !c.RequiresAccessToken() || env.Flow == domain.FlowAccessTokenAuth {
		return nil
	}

	if token, ok := e.tokens.Get(env.MerchantID, env.Connector); ok {
		env.AccessToken = &token
		return nil
	}

	tokenEnv := connector.NewEnvelope(env.Connector, domain.FlowAccessTokenAuth, env.Auth, connector.AccessTokenRequest{})
	tokenEnv.MerchantID = env.MerchantID
	tokenEnv.TestMode = env.TestMode

	tokenInput := call.input
	tokenInput.Flow = domain.FlowAccessTokenAuth
	if _, err := e.execPath.Execute(ctx, tokenEnv, call.cfg, tokenInput); err != nil {
		return fmt.Errorf("access token pre-step for %s: %w", env.Connector, err)
	}
	resp, failure := tokenEnv.Outcome()
	if failure != nil {
		return fmt.Errorf("access token pre-step for %s: %w", env.Connector, failure)
	}
	token, ok := resp.(connector.AccessToken)
	if !ok {
		return fmt.Errorf("access token pre-step for %s: unexpected response payload %T", env.Connector, resp)
	}

	e.tokens.Put(env.MerchantID, env.Connector, token)
	env.AccessToken = &token
	return nil
}
