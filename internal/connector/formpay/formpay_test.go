package formpay

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/crypto"
	"github.com/yourorg/payment-switch/internal/domain"
)

var testAuth = connector.Auth{
	Kind:         connector.AuthBodyKey,
	APIKey:       "fp_client",
	SecondaryKey: "fp_secret",
}

func tokenizedEnvelope(flow domain.Flow, req connector.FlowRequest) *connector.Envelope {
	e := connector.NewEnvelope(Name, flow, testAuth, req)
	e.RequestReferenceID = "req_55"
	e.AccessToken = &connector.AccessToken{Token: "at_live", ExpiresAt: time.Now().Add(time.Hour)}
	return e
}

func integrationFor(t *testing.T, flow domain.Flow) connector.Integration {
	t.Helper()
	integ, ok := New().Integration(flow)
	require.True(t, ok)
	return integ
}

func TestBuildRequestEncodesAuthorizeForm(t *testing.T) {
	integ := integrationFor(t, domain.FlowAuthorize)
	e := tokenizedEnvelope(domain.FlowAuthorize, connector.AuthorizeRequest{
		Amount:        2500,
		Currency:      domain.CurrencyEUR,
		CaptureMethod: domain.CaptureManual,
		PaymentMethod: domain.PaymentMethodData{
			Kind: domain.MethodCard,
			Card: &domain.CardData{Number: "4242424242424242", ExpMonth: "07", ExpYear: "2031", CVC: "456"},
		},
	})

	req, err := integ.BuildRequest(e, connector.Config{BaseURL: "https://formpay.test"})
	require.NoError(t, err)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "https://formpay.test/transactions", req.URL)
	require.NotNil(t, req.Body)
	assert.Equal(t, connector.BodyForm, req.Body.Kind)

	form, err := url.ParseQuery(string(req.Body.Bytes))
	require.NoError(t, err)
	assert.Equal(t, "2500", form.Get("amount"))
	assert.Equal(t, "EUR", form.Get("currency"))
	assert.Equal(t, "req_55", form.Get("reference"))
	assert.Equal(t, "4242424242424242", form.Get("card[number]"))
	assert.Equal(t, "false", form.Get("capture"))

	headers := make(map[string]string, len(req.Headers))
	for _, h := range req.Headers {
		headers[h.Key] = h.Value
	}
	assert.Equal(t, "Bearer at_live", headers["Authorization"])
	assert.Equal(t, "req_55", headers["Idempotency-Key"])
	assert.Equal(t, "application/x-www-form-urlencoded", headers["Content-Type"])
}

func TestBuildRequestRequiresAccessToken(t *testing.T) {
	integ := integrationFor(t, domain.FlowAuthorize)
	e := tokenizedEnvelope(domain.FlowAuthorize, connector.AuthorizeRequest{
		Amount:   100,
		Currency: domain.CurrencyUSD,
		PaymentMethod: domain.PaymentMethodData{
			Kind: domain.MethodCard,
			Card: &domain.CardData{Number: "4242424242424242", ExpMonth: "01", ExpYear: "2030"},
		},
	})
	e.AccessToken = nil

	_, err := integ.BuildRequest(e, connector.Config{})
	assert.ErrorIs(t, err, connector.ErrFailedToObtainAuth)
}

func TestTokenExchange(t *testing.T) {
	integ := integrationFor(t, domain.FlowAccessTokenAuth)
	e := connector.NewEnvelope(Name, domain.FlowAccessTokenAuth, testAuth, connector.AccessTokenRequest{})

	req, err := integ.BuildRequest(e, connector.Config{Sandbox: true})
	require.NoError(t, err)
	assert.Equal(t, sandboxBaseURL+"/oauth/token", req.URL)

	form, err := url.ParseQuery(string(req.Body.Bytes))
	require.NoError(t, err)
	assert.Equal(t, "client_credentials", form.Get("grant_type"))
	assert.Equal(t, "fp_client", form.Get("client_id"))
	assert.Equal(t, "fp_secret", form.Get("client_secret"))

	// No bearer header on the exchange itself, only the content type.
	require.Len(t, req.Headers, 1)
	assert.Equal(t, "Content-Type", req.Headers[0].Key)

	body := []byte(`{"access_token": "at_new", "expires_in": 3600}`)
	require.NoError(t, integ.HandleResponse(e, &connector.HTTPResponse{StatusCode: 200, Body: body}))
	resp, _ := e.Outcome()
	token := resp.(connector.AccessToken)
	assert.Equal(t, "at_new", token.Token)
	assert.True(t, token.ExpiresAt.After(time.Now()))
}

func TestTokenExchangeRejectsWrongAuthKind(t *testing.T) {
	integ := integrationFor(t, domain.FlowAccessTokenAuth)
	e := connector.NewEnvelope(Name, domain.FlowAccessTokenAuth, connector.Auth{
		Kind:   connector.AuthHeaderKey,
		APIKey: "key",
	}, connector.AccessTokenRequest{})

	_, err := integ.BuildRequest(e, connector.Config{})
	assert.ErrorIs(t, err, connector.ErrFailedToObtainAuth)
}

func TestHandleResponseThroughBridge(t *testing.T) {
	t.Run("authorized", func(t *testing.T) {
		integ := integrationFor(t, domain.FlowAuthorize)
		e := tokenizedEnvelope(domain.FlowAuthorize, connector.AuthorizeRequest{Amount: 100, Currency: domain.CurrencyUSD})

		body := []byte(`{"id": "fptx_1", "state": "authorized"}`)
		require.NoError(t, integ.HandleResponse(e, &connector.HTTPResponse{StatusCode: 200, Body: body}))

		assert.Equal(t, domain.AttemptAuthorized, e.Status())
		resp, _ := e.Outcome()
		assert.Equal(t, "fptx_1", resp.(connector.PaymentsResponse).ConnectorTransactionID)
	})

	t.Run("challenge carries redirect", func(t *testing.T) {
		integ := integrationFor(t, domain.FlowAuthorize)
		e := tokenizedEnvelope(domain.FlowAuthorize, connector.AuthorizeRequest{Amount: 100, Currency: domain.CurrencyUSD})

		body := []byte(`{"id": "fptx_2", "state": "challenge_required", "auth_url": "https://formpay.test/3ds/fptx_2"}`)
		require.NoError(t, integ.HandleResponse(e, &connector.HTTPResponse{StatusCode: 200, Body: body}))

		assert.Equal(t, domain.AttemptAuthenticationPending, e.Status())
		resp, _ := e.Outcome()
		assert.Equal(t, "https://formpay.test/3ds/fptx_2", resp.(connector.PaymentsResponse).RedirectURL)
	})

	t.Run("failed state resolves failure", func(t *testing.T) {
		integ := integrationFor(t, domain.FlowAuthorize)
		e := tokenizedEnvelope(domain.FlowAuthorize, connector.AuthorizeRequest{Amount: 100, Currency: domain.CurrencyUSD})

		body := []byte(`{"id": "fptx_3", "state": "failed"}`)
		require.NoError(t, integ.HandleResponse(e, &connector.HTTPResponse{StatusCode: 200, Body: body}))

		assert.Equal(t, domain.AttemptFailure, e.Status())
		resp, failure := e.Outcome()
		assert.Nil(t, resp)
		require.NotNil(t, failure)
		assert.Equal(t, "transaction_failed", failure.Code)
		assert.Equal(t, "fptx_3", failure.ConnectorTransactionID)
	})

	t.Run("refund state", func(t *testing.T) {
		integ := integrationFor(t, domain.FlowRefundExecute)
		e := tokenizedEnvelope(domain.FlowRefundExecute, connector.RefundRequest{
			ConnectorTransactionID: "fptx_1",
			RefundID:               "ref_1",
			Amount:                 50,
		})

		body := []byte(`{"id": "fprf_1", "state": "completed"}`)
		require.NoError(t, integ.HandleResponse(e, &connector.HTTPResponse{StatusCode: 200, Body: body}))
		resp, _ := e.Outcome()
		refunds := resp.(connector.RefundsResponse)
		assert.Equal(t, "fprf_1", refunds.ConnectorRefundID)
		assert.Equal(t, domain.RefundSuccess, refunds.RefundStatus)
	})
}

func TestHandleErrorLadder(t *testing.T) {
	integ := integrationFor(t, domain.FlowAuthorize)
	e := tokenizedEnvelope(domain.FlowAuthorize, connector.AuthorizeRequest{Amount: 100, Currency: domain.CurrencyUSD})

	t.Run("structured shape", func(t *testing.T) {
		body := []byte(`{"code": "card_expired", "message": "the card has expired", "detail": "exp 01/20", "transaction_id": "fptx_9"}`)
		cerr, err := integ.HandleError(e, &connector.HTTPResponse{StatusCode: 402, Body: body})
		require.NoError(t, err)
		assert.Equal(t, "card_expired", cerr.Code)
		assert.Equal(t, "exp 01/20", cerr.Reason)
		assert.Equal(t, "fptx_9", cerr.ConnectorTransactionID)
	})

	t.Run("oauth shape", func(t *testing.T) {
		body := []byte(`{"error": "invalid_client", "error_description": "client credentials rejected"}`)
		cerr, err := integ.HandleError(e, &connector.HTTPResponse{StatusCode: 401, Body: body})
		require.NoError(t, err)
		assert.Equal(t, "invalid_client", cerr.Code)
		assert.Equal(t, "client credentials rejected", cerr.Message)
	})

	t.Run("bare string shape", func(t *testing.T) {
		cerr, err := integ.HandleError(e, &connector.HTTPResponse{StatusCode: 400, Body: []byte(`"amount must be positive"`)})
		require.NoError(t, err)
		assert.Equal(t, "formpay_error", cerr.Code)
		assert.Equal(t, "amount must be positive", cerr.Message)
	})

	t.Run("unparsed shape keeps the raw body", func(t *testing.T) {
		cerr, err := integ.HandleError(e, &connector.HTTPResponse{StatusCode: 503, Body: []byte(`<html>bad gateway</html>`)})
		require.NoError(t, err)
		assert.Equal(t, "formpay_unparsed_error", cerr.Code)
		assert.Contains(t, cerr.Reason, "<html>bad gateway</html>")
	})
}

func TestWebhookDigest(t *testing.T) {
	source := New().Webhooks()
	assert.Equal(t, connector.WebhookPlainDigest, source.Algorithm())

	body := []byte(`{"type": "transaction.completed", "object_id": "fptx_1"}`)
	w := &connector.IncomingWebhook{
		Headers: map[string][]string{"X-Content-Digest": {crypto.DigestHex(body)}},
		Body:    body,
	}

	digest, err := source.Signature(w)
	require.NoError(t, err)
	message, err := source.Message(w, connector.WebhookSecrets{})
	require.NoError(t, err)
	assert.True(t, crypto.VerifyDigest(message, digest))

	ref, err := source.ObjectReference(w)
	require.NoError(t, err)
	assert.Equal(t, connector.RefPayment, ref.Kind)
	assert.Equal(t, "fptx_1", ref.ConnectorTransactionID)

	event, err := source.EventType(w)
	require.NoError(t, err)
	assert.Equal(t, connector.EventPaymentSucceeded, event)
}

func TestWebhookRefundReference(t *testing.T) {
	source := New().Webhooks()
	body := []byte(`{"type": "refund.completed", "object_id": "fprf_1"}`)
	w := &connector.IncomingWebhook{Body: body}

	ref, err := source.ObjectReference(w)
	require.NoError(t, err)
	assert.Equal(t, connector.RefRefund, ref.Kind)

	event, err := source.EventType(w)
	require.NoError(t, err)
	assert.Equal(t, connector.EventRefundSucceeded, event)
}
