package hmacpay

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/crypto"
	"github.com/yourorg/payment-switch/internal/domain"
)

var testAuth = connector.Auth{
	Kind:         connector.AuthSignatureKey,
	APIKey:       "hp_key",
	SecondaryKey: "hp_merchant",
	Secret:       "hp_signing_secret",
}

func fixedClock() time.Time {
	return time.Unix(1717171717, 0)
}

func authorizeEnvelope() *connector.Envelope {
	e := connector.NewEnvelope(Name, domain.FlowAuthorize, testAuth, connector.AuthorizeRequest{
		Amount:        1000,
		Currency:      domain.CurrencyUSD,
		CaptureMethod: domain.CaptureAutomatic,
		PaymentMethod: domain.PaymentMethodData{
			Kind: domain.MethodCard,
			Card: &domain.CardData{Number: "4242424242424242", ExpMonth: "12", ExpYear: "2030", CVC: "123"},
		},
	})
	e.RequestReferenceID = "req_42"
	return e
}

func integrationFor(t *testing.T, conn *HmacPay, flow domain.Flow) connector.Integration {
	t.Helper()
	integ, ok := conn.Integration(flow)
	require.True(t, ok)
	return integ
}

func TestBuildRequestSignsAuthorize(t *testing.T) {
	conn := NewWithClock(fixedClock)
	integ := integrationFor(t, conn, domain.FlowAuthorize)
	e := authorizeEnvelope()
	cfg := connector.Config{BaseURL: "https://hmacpay.test/v1"}

	req, err := integ.BuildRequest(e, cfg)
	require.NoError(t, err)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "https://hmacpay.test/v1/payments", req.URL)
	require.NotNil(t, req.Body)
	assert.Equal(t, connector.BodyJSON, req.Body.Kind)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body.Bytes, &payload))
	assert.Equal(t, float64(1000), payload["amount"])
	assert.Equal(t, "req_42", payload["reference"])
	assert.Equal(t, true, payload["capture"])

	headers := make(map[string]string, len(req.Headers))
	for _, h := range req.Headers {
		headers[h.Key] = h.Value
	}
	assert.Equal(t, "hp_key", headers["X-Api-Key"])
	assert.Equal(t, "hp_merchant", headers["X-Merchant-Id"])
	assert.Equal(t, "1717171717", headers["X-Timestamp"])

	signingString := strings.Join([]string{
		"POST",
		req.URL,
		crypto.DigestHex(req.Body.Bytes),
		"1717171717",
	}, "\n")
	want := crypto.SignHMACSHA256Hex([]byte(testAuth.Secret), []byte(signingString))
	assert.Equal(t, want, headers["X-Signature"])

	// Content type is appended after the signed headers.
	assert.Equal(t, "Content-Type", req.Headers[len(req.Headers)-1].Key)
}

func TestBuildRequestSyncIsBodylessGet(t *testing.T) {
	conn := NewWithClock(fixedClock)
	integ := integrationFor(t, conn, domain.FlowSync)
	e := connector.NewEnvelope(Name, domain.FlowSync, testAuth, connector.SyncRequest{ConnectorTransactionID: "txn_7"})

	req, err := integ.BuildRequest(e, connector.Config{BaseURL: "https://hmacpay.test/v1"})
	require.NoError(t, err)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "https://hmacpay.test/v1/payments/txn_7", req.URL)
	assert.Nil(t, req.Body)
}

func TestBuildRequestRequiresSignatureAuth(t *testing.T) {
	conn := New()
	integ := integrationFor(t, conn, domain.FlowAuthorize)
	e := authorizeEnvelope()
	e.Auth = connector.Auth{Kind: connector.AuthHeaderKey, APIKey: "key"}

	_, err := integ.BuildRequest(e, connector.Config{})
	assert.ErrorIs(t, err, connector.ErrFailedToObtainAuth)
}

func TestBuildRequestRejectsNonCardMethods(t *testing.T) {
	conn := New()
	integ := integrationFor(t, conn, domain.FlowAuthorize)
	e := connector.NewEnvelope(Name, domain.FlowAuthorize, testAuth, connector.AuthorizeRequest{
		Amount:   500,
		Currency: domain.CurrencyUSD,
		PaymentMethod: domain.PaymentMethodData{
			Kind: domain.MethodBankTransfer,
			Bank: &domain.BankData{AccountNumber: "12345678"},
		},
	})

	_, err := integ.BuildRequest(e, connector.Config{})
	assert.ErrorIs(t, err, connector.ErrMissingRequiredField)
}

func TestSandboxBaseURL(t *testing.T) {
	conn := New()
	integ := integrationFor(t, conn, domain.FlowAuthorize)

	url, err := integ.URL(authorizeEnvelope(), connector.Config{Sandbox: true})
	require.NoError(t, err)
	assert.Equal(t, sandboxBaseURL+"/payments", url)
}

func TestHandleResponseStatuses(t *testing.T) {
	cases := []struct {
		wire string
		want domain.AttemptStatus
	}{
		{"accepted", domain.AttemptAuthorizing},
		{"requires_action", domain.AttemptAuthenticationPending},
		{"authorized", domain.AttemptAuthorized},
		{"captured", domain.AttemptCharged},
		{"settled", domain.AttemptCharged},
		{"capture_pending", domain.AttemptCaptureInitiated},
		{"voided", domain.AttemptVoided},
		{"pending", domain.AttemptPending},
	}
	conn := New()
	integ := integrationFor(t, conn, domain.FlowAuthorize)
	for _, tc := range cases {
		t.Run(tc.wire, func(t *testing.T) {
			e := authorizeEnvelope()
			body := fmt.Sprintf(`{"id": "txn_1", "status": %q}`, tc.wire)
			require.NoError(t, integ.HandleResponse(e, &connector.HTTPResponse{StatusCode: 200, Body: []byte(body)}))
			assert.Equal(t, tc.want, e.Status())
			resp, failure := e.Outcome()
			assert.Nil(t, failure)
			assert.Equal(t, "txn_1", resp.(connector.PaymentsResponse).ConnectorTransactionID)
		})
	}
}

func TestHandleResponseDeclinedOnSuccessHTTP(t *testing.T) {
	conn := New()
	integ := integrationFor(t, conn, domain.FlowAuthorize)
	e := authorizeEnvelope()

	body := `{"id": "txn_1", "status": "declined"}`
	require.NoError(t, integ.HandleResponse(e, &connector.HTTPResponse{StatusCode: 200, Body: []byte(body)}))

	require.True(t, e.Resolved())
	assert.Equal(t, domain.AttemptFailure, e.Status())
	resp, failure := e.Outcome()
	assert.Nil(t, resp)
	require.NotNil(t, failure)
	assert.Equal(t, "declined", failure.Code)
	assert.Equal(t, "txn_1", failure.ConnectorTransactionID)
}

func TestHandleResponseUnknownStatus(t *testing.T) {
	conn := New()
	integ := integrationFor(t, conn, domain.FlowAuthorize)
	e := authorizeEnvelope()

	err := integ.HandleResponse(e, &connector.HTTPResponse{StatusCode: 200, Body: []byte(`{"id": "txn_1", "status": "galactic"}`)})
	assert.ErrorIs(t, err, connector.ErrResponseDeserialization)
	assert.False(t, e.Resolved())
}

func TestHandleResponseRefund(t *testing.T) {
	conn := New()
	integ := integrationFor(t, conn, domain.FlowRefundExecute)
	e := connector.NewEnvelope(Name, domain.FlowRefundExecute, testAuth, connector.RefundRequest{
		ConnectorTransactionID: "txn_1",
		RefundID:               "ref_1",
		Amount:                 400,
	})

	require.NoError(t, integ.HandleResponse(e, &connector.HTTPResponse{StatusCode: 200, Body: []byte(`{"id": "rf_9", "status": "succeeded"}`)}))
	resp, _ := e.Outcome()
	refunds := resp.(connector.RefundsResponse)
	assert.Equal(t, "rf_9", refunds.ConnectorRefundID)
	assert.Equal(t, domain.RefundSuccess, refunds.RefundStatus)
}

func TestHandleError(t *testing.T) {
	conn := New()
	integ := integrationFor(t, conn, domain.FlowAuthorize)
	e := authorizeEnvelope()

	body := `{"error": {"code": "insufficient_funds", "message": "card has no funds", "transaction_id": "txn_1", "decline_code": "51", "advice_code": "01"}}`
	cerr, err := integ.HandleError(e, &connector.HTTPResponse{StatusCode: 402, Body: []byte(body)})
	require.NoError(t, err)
	assert.Equal(t, "insufficient_funds", cerr.Code)
	assert.Equal(t, "51", cerr.NetworkDeclineCode)
	assert.Equal(t, "01", cerr.NetworkAdviceCode)
	require.NotNil(t, cerr.AttemptStatus)
	assert.Equal(t, domain.AttemptFailure, *cerr.AttemptStatus)

	_, err = integ.HandleError(e, &connector.HTTPResponse{StatusCode: 500, Body: []byte(`<html>gateway timeout</html>`)})
	assert.ErrorIs(t, err, connector.ErrResponseDeserialization)
}

func webhookFor(body string) *connector.IncomingWebhook {
	timestamp := "1717171717"
	signature := crypto.SignHMACSHA256Hex([]byte("whsec"), []byte(timestamp+"."+body))
	return &connector.IncomingWebhook{
		Headers: map[string][]string{
			"X-Webhook-Timestamp": {timestamp},
			"X-Webhook-Signature": {signature},
		},
		Body: []byte(body),
	}
}

func TestWebhookMessageAndSignature(t *testing.T) {
	source := New().Webhooks()
	w := webhookFor(`{"event": "payment.succeeded", "transaction_id": "txn_1"}`)

	assert.Equal(t, connector.WebhookHMACSHA256, source.Algorithm())

	message, err := source.Message(w, connector.WebhookSecrets{})
	require.NoError(t, err)
	assert.Equal(t, "1717171717."+string(w.Body), string(message))

	signature, err := source.Signature(w)
	require.NoError(t, err)
	assert.True(t, crypto.VerifyHMACSHA256([]byte("whsec"), message, signature))
}

func TestWebhookSignatureErrors(t *testing.T) {
	source := New().Webhooks()

	_, err := source.Signature(&connector.IncomingWebhook{Body: []byte(`{}`)})
	assert.Error(t, err)

	_, err = source.Signature(&connector.IncomingWebhook{
		Headers: map[string][]string{"X-Webhook-Signature": {"not-hex!"}},
	})
	assert.Error(t, err)

	_, err = source.Message(&connector.IncomingWebhook{Body: []byte(`{}`)}, connector.WebhookSecrets{})
	assert.Error(t, err)
}

func TestWebhookObjectReference(t *testing.T) {
	source := New().Webhooks()

	ref, err := source.ObjectReference(webhookFor(`{"event": "payment.succeeded", "transaction_id": "txn_1", "reference": "req_1"}`))
	require.NoError(t, err)
	assert.Equal(t, connector.RefPayment, ref.Kind)
	assert.Equal(t, "txn_1", ref.ConnectorTransactionID)
	assert.Equal(t, "req_1", ref.RequestReferenceID)

	ref, err = source.ObjectReference(webhookFor(`{"event": "refund.succeeded", "refund_id": "rf_1"}`))
	require.NoError(t, err)
	assert.Equal(t, connector.RefRefund, ref.Kind)
	assert.Equal(t, "rf_1", ref.ConnectorTransactionID)

	_, err = source.ObjectReference(webhookFor(`{"event": "payment.succeeded"}`))
	assert.Error(t, err)
}

func TestWebhookEventType(t *testing.T) {
	source := New().Webhooks()
	cases := map[string]connector.EventKind{
		"payment.succeeded":  connector.EventPaymentSucceeded,
		"payment.failed":     connector.EventPaymentFailed,
		"payment.processing": connector.EventPaymentProcessing,
		"refund.succeeded":   connector.EventRefundSucceeded,
		"refund.failed":      connector.EventRefundFailed,
		"dispute.opened":     connector.EventNotSupported,
	}
	for wire, want := range cases {
		event, err := source.EventType(webhookFor(fmt.Sprintf(`{"event": %q, "transaction_id": "txn_1"}`, wire)))
		require.NoError(t, err)
		assert.Equal(t, want, event, wire)
	}
}
