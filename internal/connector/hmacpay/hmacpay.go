// Package hmacpay implements the HmacPay gateway integration. HmacPay is a
// JSON API with signed requests: every call carries an HMAC-SHA256
// signature over method, path, body digest and timestamp, which is why the
// request must be assembled URL-first and headers-last. It is a
// legacy-generation adapter operating directly on the combined envelope.
package hmacpay

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/crypto"
	"github.com/yourorg/payment-switch/internal/domain"
)

const (
	// Name is the registry key for this connector.
	Name = "hmacpay"

	defaultBaseURL = "https://api.hmacpay.example.com/v1"
	sandboxBaseURL = "https://sandbox.hmacpay.example.com/v1"
)

// HmacPay implements connector.Connector.
type HmacPay struct {
	// now is injectable so signed timestamps are deterministic in tests.
	now func() time.Time
}

// New creates the HmacPay connector.
func New() *HmacPay {
	return &HmacPay{now: time.Now}
}

// NewWithClock creates the connector with a fixed clock for tests.
func NewWithClock(now func() time.Time) *HmacPay {
	return &HmacPay{now: now}
}

func (h *HmacPay) Name() string { return Name }

func (h *HmacPay) AcceptedAuthKinds() []connector.AuthKind {
	return []connector.AuthKind{connector.AuthSignatureKey}
}

func (h *HmacPay) RequiresAccessToken() bool { return false }

// Integration returns the per-flow adapter. HmacPay implements the payment
// and refund families; session and payout cells are left empty.
func (h *HmacPay) Integration(flow domain.Flow) (connector.Integration, bool) {
	switch flow {
	case domain.FlowAuthorize, domain.FlowSync, domain.FlowCapture,
		domain.FlowVoid, domain.FlowRefundExecute, domain.FlowRefundSync,
		domain.FlowSetupMandate:
		return &integration{conn: h}, true
	}
	return nil, false
}

// Webhooks returns the HMAC-verified webhook source.
func (h *HmacPay) Webhooks() connector.WebhookSource { return &webhookSource{} }

// integration is the flow adapter; the flow is read off the envelope.
type integration struct {
	connector.Unimplemented
	conn *HmacPay
}

func baseURL(cfg connector.Config) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	if cfg.Sandbox {
		return sandboxBaseURL
	}
	return defaultBaseURL
}

func (i *integration) URL(e *connector.Envelope, cfg connector.Config) (string, error) {
	base := baseURL(cfg)
	switch req := e.Request.(type) {
	case connector.AuthorizeRequest, connector.SetupMandateRequest:
		return base + "/payments", nil
	case connector.SyncRequest:
		return fmt.Sprintf("%s/payments/%s", base, req.ConnectorTransactionID), nil
	case connector.CaptureRequest:
		return fmt.Sprintf("%s/payments/%s/capture", base, req.ConnectorTransactionID), nil
	case connector.VoidRequest:
		return fmt.Sprintf("%s/payments/%s/void", base, req.ConnectorTransactionID), nil
	case connector.RefundRequest:
		return fmt.Sprintf("%s/payments/%s/refunds", base, req.ConnectorTransactionID), nil
	case connector.RefundSyncRequest:
		return fmt.Sprintf("%s/refunds/%s", base, req.ConnectorRefundID), nil
	default:
		return "", connector.NotImplemented(Name, e.Flow)
	}
}

// paymentRequest is HmacPay's wire shape for payment creation.
type paymentRequest struct {
	Amount      int64        `json:"amount"`
	Currency    string       `json:"currency"`
	Reference   string       `json:"reference"`
	Capture     bool         `json:"capture"`
	Description string       `json:"description,omitempty"`
	ReturnURL   string       `json:"return_url,omitempty"`
	StoreMethod bool         `json:"store_method,omitempty"`
	Card        *cardPayload `json:"card,omitempty"`
}

type cardPayload struct {
	Number   string `json:"number"`
	ExpMonth string `json:"exp_month"`
	ExpYear  string `json:"exp_year"`
	CVC      string `json:"cvc,omitempty"`
	Holder   string `json:"holder,omitempty"`
}

type capturePayload struct {
	Amount int64 `json:"amount"`
}

type refundPayload struct {
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
	Reason    string `json:"reason,omitempty"`
}

func cardOf(pm domain.PaymentMethodData) (*cardPayload, error) {
	if pm.Kind != domain.MethodCard || pm.Card == nil {
		return nil, fmt.Errorf("%w: hmacpay only accepts card payments", connector.ErrMissingRequiredField)
	}
	return &cardPayload{
		Number:   pm.Card.Number,
		ExpMonth: pm.Card.ExpMonth,
		ExpYear:  pm.Card.ExpYear,
		CVC:      pm.Card.CVC,
		Holder:   pm.Card.HolderName,
	}, nil
}

func (i *integration) Body(e *connector.Envelope, _ connector.Config) (*connector.RequestBody, error) {
	var payload any
	switch req := e.Request.(type) {
	case connector.AuthorizeRequest:
		card, err := cardOf(req.PaymentMethod)
		if err != nil {
			return nil, err
		}
		payload = paymentRequest{
			Amount:      req.Amount,
			Currency:    string(req.Currency),
			Reference:   e.RequestReferenceID,
			Capture:     req.CaptureMethod == domain.CaptureAutomatic,
			ReturnURL:   req.ReturnURL,
			StoreMethod: req.SetupMandate,
			Card:        card,
		}
	case connector.SetupMandateRequest:
		card, err := cardOf(req.PaymentMethod)
		if err != nil {
			return nil, err
		}
		payload = paymentRequest{
			Amount:      0,
			Currency:    "USD",
			Reference:   e.RequestReferenceID,
			StoreMethod: true,
			Card:        card,
		}
	case connector.SyncRequest, connector.RefundSyncRequest:
		return nil, nil // GET flows carry no body
	case connector.CaptureRequest:
		payload = capturePayload{Amount: req.Amount}
	case connector.VoidRequest:
		payload = struct {
			Reason string `json:"reason,omitempty"`
		}{Reason: req.CancellationReason}
	case connector.RefundRequest:
		payload = refundPayload{Amount: req.Amount, Reference: req.RefundID, Reason: req.Reason}
	default:
		return nil, connector.NotImplemented(Name, e.Flow)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", connector.ErrRequestEncodingFailed, err)
	}
	return &connector.RequestBody{Kind: connector.BodyJSON, Bytes: raw}, nil
}

func methodFor(req connector.FlowRequest) string {
	switch req.(type) {
	case connector.SyncRequest, connector.RefundSyncRequest:
		return http.MethodGet
	default:
		return http.MethodPost
	}
}

// Headers signs the request. The signing string is
// METHOD\nURL\nSHA256_HEX(body)\nTIMESTAMP, keyed with the auth secret.
// URL and body are computed here again in the same way Assemble computes
// them, which is safe because both transforms are pure.
func (i *integration) Headers(e *connector.Envelope, cfg connector.Config) ([]connector.Header, error) {
	if e.Auth.Kind != connector.AuthSignatureKey {
		return nil, fmt.Errorf("%w: hmacpay requires signature_key auth", connector.ErrFailedToObtainAuth)
	}

	endpoint, err := i.URL(e, cfg)
	if err != nil {
		return nil, err
	}
	body, err := i.Body(e, cfg)
	if err != nil {
		return nil, err
	}
	var bodyBytes []byte
	if body != nil {
		bodyBytes = body.Bytes
	}

	timestamp := fmt.Sprintf("%d", i.conn.now().Unix())
	signingString := strings.Join([]string{
		methodFor(e.Request),
		endpoint,
		crypto.DigestHex(bodyBytes),
		timestamp,
	}, "\n")
	signature := crypto.SignHMACSHA256Hex([]byte(e.Auth.Secret), []byte(signingString))

	return []connector.Header{
		{Key: "X-Api-Key", Value: e.Auth.APIKey},
		{Key: "X-Merchant-Id", Value: e.Auth.SecondaryKey},
		{Key: "X-Timestamp", Value: timestamp},
		{Key: "X-Signature", Value: signature},
	}, nil
}

func (i *integration) BuildRequest(e *connector.Envelope, cfg connector.Config) (*connector.RequestDescriptor, error) {
	return connector.Assemble(i, e, cfg, methodFor(e.Request))
}

// paymentResponse is HmacPay's wire shape for payment outcomes.
type paymentResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Reference   string `json:"reference"`
	MandateID   string `json:"mandate_id,omitempty"`
	NetworkID   string `json:"network_id,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func attemptStatusOf(s string) (domain.AttemptStatus, bool) {
	switch s {
	case "accepted":
		return domain.AttemptAuthorizing, true
	case "requires_action":
		return domain.AttemptAuthenticationPending, true
	case "authorized":
		return domain.AttemptAuthorized, true
	case "captured", "settled":
		return domain.AttemptCharged, true
	case "capture_pending":
		return domain.AttemptCaptureInitiated, true
	case "voided":
		return domain.AttemptVoided, true
	case "void_pending":
		return domain.AttemptVoidInitiated, true
	case "pending":
		return domain.AttemptPending, true
	case "declined", "failed":
		return domain.AttemptFailure, true
	}
	return "", false
}

func refundStatusOf(s string) domain.RefundStatus {
	switch s {
	case "succeeded":
		return domain.RefundSuccess
	case "failed":
		return domain.RefundFailure
	default:
		return domain.RefundPending
	}
}

func (i *integration) HandleResponse(e *connector.Envelope, resp *connector.HTTPResponse) error {
	switch e.Request.(type) {
	case connector.RefundRequest, connector.RefundSyncRequest:
		var parsed refundResponse
		if err := json.Unmarshal(resp.Body, &parsed); err != nil || parsed.ID == "" {
			return fmt.Errorf("%w: hmacpay refund response: %v", connector.ErrResponseDeserialization, err)
		}
		return e.ResolveSuccess(connector.RefundsResponse{
			ConnectorRefundID: parsed.ID,
			RefundStatus:      refundStatusOf(parsed.Status),
		}, domain.AttemptCharged)
	}

	var parsed paymentResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil || parsed.ID == "" {
		return fmt.Errorf("%w: hmacpay payment response: %v", connector.ErrResponseDeserialization, err)
	}
	status, ok := attemptStatusOf(parsed.Status)
	if !ok {
		return fmt.Errorf("%w: hmacpay status %q", connector.ErrResponseDeserialization, parsed.Status)
	}
	if status.FailureClass() {
		// A declined payment arrives on a success-class HTTP status; it
		// is still a failure outcome so status and outcome agree.
		failStatus := status
		return e.ResolveFailure(&connector.Error{
			StatusCode:             resp.StatusCode,
			Code:                   "declined",
			Message:                fmt.Sprintf("payment %s was declined", parsed.ID),
			AttemptStatus:          &failStatus,
			ConnectorTransactionID: parsed.ID,
			Kind:                   connector.SeverityRemote,
		})
	}
	return e.ResolveSuccess(connector.PaymentsResponse{
		ConnectorTransactionID: parsed.ID,
		RedirectURL:            parsed.RedirectURL,
		MandateReference:       parsed.MandateID,
		NetworkTransactionID:   parsed.NetworkID,
	}, status)
}

// errorResponse is HmacPay's declared error shape.
type errorResponse struct {
	Error struct {
		Code          string `json:"code"`
		Message       string `json:"message"`
		Reason        string `json:"reason"`
		TransactionID string `json:"transaction_id"`
		DeclineCode   string `json:"decline_code"`
		AdviceCode    string `json:"advice_code"`
	} `json:"error"`
}

func (i *integration) HandleError(_ *connector.Envelope, resp *connector.HTTPResponse) (*connector.Error, error) {
	var parsed errorResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil || parsed.Error.Code == "" {
		return nil, fmt.Errorf("%w: hmacpay error response", connector.ErrResponseDeserialization)
	}
	status := domain.AttemptFailure
	return &connector.Error{
		StatusCode:             resp.StatusCode,
		Code:                   parsed.Error.Code,
		Message:                parsed.Error.Message,
		Reason:                 parsed.Error.Reason,
		AttemptStatus:          &status,
		ConnectorTransactionID: parsed.Error.TransactionID,
		NetworkDeclineCode:     parsed.Error.DeclineCode,
		NetworkAdviceCode:      parsed.Error.AdviceCode,
		Kind:                   connector.SeverityRemote,
	}, nil
}

// webhookSource verifies HmacPay webhooks: hex HMAC-SHA256 in the
// X-Webhook-Signature header over "TIMESTAMP.BODY".
type webhookSource struct{}

func (webhookSource) Algorithm() connector.WebhookAlgorithm { return connector.WebhookHMACSHA256 }

func (webhookSource) Signature(w *connector.IncomingWebhook) ([]byte, error) {
	raw := w.HeaderValue("X-Webhook-Signature")
	if raw == "" {
		return nil, fmt.Errorf("webhook signature header not found")
	}
	sig, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("webhook signature is not valid hex: %w", err)
	}
	return sig, nil
}

func (webhookSource) Message(w *connector.IncomingWebhook, _ connector.WebhookSecrets) ([]byte, error) {
	timestamp := w.HeaderValue("X-Webhook-Timestamp")
	if timestamp == "" {
		return nil, fmt.Errorf("webhook timestamp header not found")
	}
	message := make([]byte, 0, len(timestamp)+1+len(w.Body))
	message = append(message, timestamp...)
	message = append(message, '.')
	message = append(message, w.Body...)
	return message, nil
}

type webhookPayload struct {
	Event         string `json:"event"`
	TransactionID string `json:"transaction_id"`
	RefundID      string `json:"refund_id"`
	Reference     string `json:"reference"`
}

func (webhookSource) ObjectReference(w *connector.IncomingWebhook) (connector.ObjectReference, error) {
	var payload webhookPayload
	if err := json.Unmarshal(w.Body, &payload); err != nil {
		return connector.ObjectReference{}, fmt.Errorf("webhook payload: %w", err)
	}
	kind := connector.RefPayment
	txnID := payload.TransactionID
	if payload.RefundID != "" {
		kind = connector.RefRefund
		txnID = payload.RefundID
	}
	if txnID == "" && payload.Reference == "" {
		return connector.ObjectReference{}, fmt.Errorf("webhook reference id not found")
	}
	return connector.ObjectReference{
		Kind:                   kind,
		ConnectorTransactionID: txnID,
		RequestReferenceID:     payload.Reference,
	}, nil
}

func (webhookSource) EventType(w *connector.IncomingWebhook) (connector.EventKind, error) {
	var payload webhookPayload
	if err := json.Unmarshal(w.Body, &payload); err != nil {
		return connector.EventNotSupported, fmt.Errorf("webhook payload: %w", err)
	}
	switch payload.Event {
	case "payment.succeeded":
		return connector.EventPaymentSucceeded, nil
	case "payment.failed":
		return connector.EventPaymentFailed, nil
	case "payment.processing":
		return connector.EventPaymentProcessing, nil
	case "refund.succeeded":
		return connector.EventRefundSucceeded, nil
	case "refund.failed":
		return connector.EventRefundFailed, nil
	default:
		return connector.EventNotSupported, nil
	}
}
