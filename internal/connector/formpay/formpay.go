// Package formpay implements the FormPay gateway integration. FormPay is a
// form-url-encoded API with OAuth-style bearer tokens and three different
// error payload shapes in the wild, which makes it the exercise case for
// the error-normalizer fallback ladder. It is a modern-generation adapter:
// it implements the split-envelope contract and is mounted through the
// version bridge.
package formpay

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/connector/bridge"
	"github.com/yourorg/payment-switch/internal/domain"
)

const (
	// Name is the registry key for this connector.
	Name = "formpay"

	defaultBaseURL = "https://api.formpay.example.com"
	sandboxBaseURL = "https://sandbox.formpay.example.com"
)

// FormPay implements connector.Connector.
type FormPay struct{}

// New creates the FormPay connector.
func New() *FormPay { return &FormPay{} }

func (f *FormPay) Name() string { return Name }

func (f *FormPay) AcceptedAuthKinds() []connector.AuthKind {
	return []connector.AuthKind{connector.AuthBodyKey}
}

func (f *FormPay) RequiresAccessToken() bool { return true }

func (f *FormPay) Integration(flow domain.Flow) (connector.Integration, bool) {
	switch flow {
	case domain.FlowAuthorize, domain.FlowSync, domain.FlowCapture,
		domain.FlowVoid, domain.FlowRefundExecute, domain.FlowRefundSync,
		domain.FlowAccessTokenAuth:
		return bridge.Wrap(&integration{}), true
	}
	return nil, false
}

func (f *FormPay) Webhooks() connector.WebhookSource { return &webhookSource{} }

type integration struct {
	bridge.Unimplemented
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

func (i *integration) URL(fc *bridge.FlowContext, req connector.FlowRequest, cfg connector.Config) (string, error) {
	base := baseURL(cfg)
	switch r := req.(type) {
	case connector.AccessTokenRequest:
		return base + "/oauth/token", nil
	case connector.AuthorizeRequest:
		return base + "/transactions", nil
	case connector.SyncRequest:
		return fmt.Sprintf("%s/transactions/%s", base, r.ConnectorTransactionID), nil
	case connector.CaptureRequest:
		return fmt.Sprintf("%s/transactions/%s/capture", base, r.ConnectorTransactionID), nil
	case connector.VoidRequest:
		return fmt.Sprintf("%s/transactions/%s/cancel", base, r.ConnectorTransactionID), nil
	case connector.RefundRequest:
		return fmt.Sprintf("%s/transactions/%s/refunds", base, r.ConnectorTransactionID), nil
	case connector.RefundSyncRequest:
		return fmt.Sprintf("%s/refunds/%s", base, r.ConnectorRefundID), nil
	default:
		return "", connector.NotImplemented(Name, fc.Flow)
	}
}

func (i *integration) Body(fc *bridge.FlowContext, req connector.FlowRequest, _ connector.Config) (*connector.RequestBody, error) {
	form := url.Values{}
	switch r := req.(type) {
	case connector.AccessTokenRequest:
		if fc.Auth.Kind != connector.AuthBodyKey {
			return nil, fmt.Errorf("%w: formpay requires body_key auth", connector.ErrFailedToObtainAuth)
		}
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", fc.Auth.APIKey)
		form.Set("client_secret", fc.Auth.SecondaryKey)
	case connector.AuthorizeRequest:
		if r.PaymentMethod.Kind != domain.MethodCard || r.PaymentMethod.Card == nil {
			return nil, fmt.Errorf("%w: formpay only accepts card payments", connector.ErrMissingRequiredField)
		}
		form.Set("amount", strconv.FormatInt(r.Amount, 10))
		form.Set("currency", string(r.Currency))
		form.Set("reference", fc.RequestReferenceID)
		form.Set("card[number]", r.PaymentMethod.Card.Number)
		form.Set("card[exp_month]", r.PaymentMethod.Card.ExpMonth)
		form.Set("card[exp_year]", r.PaymentMethod.Card.ExpYear)
		if r.PaymentMethod.Card.CVC != "" {
			form.Set("card[cvc]", r.PaymentMethod.Card.CVC)
		}
		if r.CaptureMethod == domain.CaptureManual {
			form.Set("capture", "false")
		}
	case connector.SyncRequest, connector.RefundSyncRequest:
		return nil, nil
	case connector.CaptureRequest:
		form.Set("amount", strconv.FormatInt(r.Amount, 10))
	case connector.VoidRequest:
		if r.CancellationReason != "" {
			form.Set("reason", r.CancellationReason)
		}
	case connector.RefundRequest:
		form.Set("amount", strconv.FormatInt(r.Amount, 10))
		form.Set("reference", r.RefundID)
	default:
		return nil, connector.NotImplemented(Name, fc.Flow)
	}
	return &connector.RequestBody{Kind: connector.BodyForm, Bytes: []byte(form.Encode())}, nil
}

func (i *integration) Headers(fc *bridge.FlowContext, req connector.FlowRequest, _ connector.Config) ([]connector.Header, error) {
	if _, ok := req.(connector.AccessTokenRequest); ok {
		return nil, nil // credentials travel in the body on token exchange
	}
	if fc.AccessToken == nil || fc.AccessToken.Token == "" {
		return nil, fmt.Errorf("%w: formpay access token missing", connector.ErrFailedToObtainAuth)
	}
	return []connector.Header{
		{Key: "Authorization", Value: "Bearer " + fc.AccessToken.Token},
		{Key: "Idempotency-Key", Value: fc.RequestReferenceID},
	}, nil
}

func methodFor(req connector.FlowRequest) string {
	switch req.(type) {
	case connector.SyncRequest, connector.RefundSyncRequest:
		return http.MethodGet
	default:
		return http.MethodPost
	}
}

func (i *integration) BuildRequest(fc *bridge.FlowContext, req connector.FlowRequest, cfg connector.Config) (*connector.RequestDescriptor, error) {
	endpoint, err := i.URL(fc, req, cfg)
	if err != nil {
		return nil, err
	}
	body, err := i.Body(fc, req, cfg)
	if err != nil {
		return nil, err
	}
	headers, err := i.Headers(fc, req, cfg)
	if err != nil {
		return nil, err
	}
	if body != nil {
		headers = append(headers, connector.Header{Key: "Content-Type", Value: body.Kind.ContentType()})
	}
	return &connector.RequestDescriptor{
		Method:  methodFor(req),
		URL:     endpoint,
		Headers: headers,
		Body:    body,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type transactionResponse struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	AuthURL string `json:"auth_url,omitempty"`
}

type refundResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

func attemptStatusOf(state string) (domain.AttemptStatus, bool) {
	switch state {
	case "created", "processing":
		return domain.AttemptAuthorizing, true
	case "challenge_required":
		return domain.AttemptAuthenticationPending, true
	case "authorized":
		return domain.AttemptAuthorized, true
	case "completed":
		return domain.AttemptCharged, true
	case "cancelled":
		return domain.AttemptVoided, true
	case "failed":
		return domain.AttemptFailure, true
	}
	return "", false
}

func (i *integration) HandleResponse(fc *bridge.FlowContext, req connector.FlowRequest, resp *connector.HTTPResponse) (bridge.Outcome, error) {
	switch req.(type) {
	case connector.AccessTokenRequest:
		var parsed tokenResponse
		if err := json.Unmarshal(resp.Body, &parsed); err != nil || parsed.AccessToken == "" {
			return bridge.Outcome{}, fmt.Errorf("%w: formpay token response: %v", connector.ErrResponseDeserialization, err)
		}
		return bridge.Outcome{
			Response: connector.AccessToken{
				Token:     parsed.AccessToken,
				ExpiresAt: time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
			},
			Status: domain.AttemptPending,
		}, nil
	case connector.RefundRequest, connector.RefundSyncRequest:
		var parsed refundResponse
		if err := json.Unmarshal(resp.Body, &parsed); err != nil || parsed.ID == "" {
			return bridge.Outcome{}, fmt.Errorf("%w: formpay refund response: %v", connector.ErrResponseDeserialization, err)
		}
		status := domain.RefundPending
		switch parsed.State {
		case "completed":
			status = domain.RefundSuccess
		case "failed":
			status = domain.RefundFailure
		}
		return bridge.Outcome{
			Response: connector.RefundsResponse{ConnectorRefundID: parsed.ID, RefundStatus: status},
			Status:   domain.AttemptCharged,
		}, nil
	}

	var parsed transactionResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil || parsed.ID == "" {
		return bridge.Outcome{}, fmt.Errorf("%w: formpay transaction response: %v", connector.ErrResponseDeserialization, err)
	}
	status, ok := attemptStatusOf(parsed.State)
	if !ok {
		return bridge.Outcome{}, fmt.Errorf("%w: formpay state %q", connector.ErrResponseDeserialization, parsed.State)
	}
	if status.FailureClass() {
		failStatus := status
		return bridge.Outcome{
			Failure: &connector.Error{
				StatusCode:             resp.StatusCode,
				Code:                   "transaction_failed",
				Message:                fmt.Sprintf("transaction %s failed", parsed.ID),
				AttemptStatus:          &failStatus,
				ConnectorTransactionID: parsed.ID,
				Kind:                   connector.SeverityRemote,
			},
		}, nil
	}
	return bridge.Outcome{
		Response: connector.PaymentsResponse{
			ConnectorTransactionID: parsed.ID,
			RedirectURL:            parsed.AuthURL,
		},
		Status: status,
	}, nil
}

// FormPay error payloads arrive in three shapes: a structured object, an
// OAuth-style shape, or a bare string. HandleError tries each in turn and
// still produces a best-effort code/message when none parses, attaching
// the raw body rather than discarding it.
type structuredError struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	Detail        string `json:"detail"`
	TransactionID string `json:"transaction_id"`
}

type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (i *integration) HandleError(_ *bridge.FlowContext, resp *connector.HTTPResponse) (*connector.Error, error) {
	status := domain.AttemptFailure
	base := connector.Error{
		StatusCode:    resp.StatusCode,
		AttemptStatus: &status,
		Kind:          connector.SeverityRemote,
	}

	var structured structuredError
	if err := json.Unmarshal(resp.Body, &structured); err == nil && structured.Code != "" {
		base.Code = structured.Code
		base.Message = structured.Message
		base.Reason = structured.Detail
		base.ConnectorTransactionID = structured.TransactionID
		return &base, nil
	}

	var oauth oauthError
	if err := json.Unmarshal(resp.Body, &oauth); err == nil && oauth.Error != "" {
		base.Code = oauth.Error
		base.Message = oauth.ErrorDescription
		if base.Message == "" {
			base.Message = oauth.Error
		}
		return &base, nil
	}

	var bare string
	if err := json.Unmarshal(resp.Body, &bare); err == nil && bare != "" {
		base.Code = "formpay_error"
		base.Message = bare
		return &base, nil
	}

	raw := string(resp.Body)
	if len(raw) > 512 {
		raw = raw[:512]
	}
	base.Code = "formpay_unparsed_error"
	base.Message = "formpay returned an unrecognized error payload"
	base.Reason = raw
	return &base, nil
}

// webhookSource verifies FormPay webhooks with a plain SHA-256 digest of
// the raw body carried hex-encoded in the X-Content-Digest header.
type webhookSource struct{}

func (webhookSource) Algorithm() connector.WebhookAlgorithm { return connector.WebhookPlainDigest }

func (webhookSource) Signature(w *connector.IncomingWebhook) ([]byte, error) {
	raw := w.HeaderValue("X-Content-Digest")
	if raw == "" {
		return nil, fmt.Errorf("webhook digest header not found")
	}
	digest, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("webhook digest is not valid hex: %w", err)
	}
	return digest, nil
}

func (webhookSource) Message(w *connector.IncomingWebhook, _ connector.WebhookSecrets) ([]byte, error) {
	return w.Body, nil
}

type webhookPayload struct {
	Type      string `json:"type"`
	ObjectID  string `json:"object_id"`
	Reference string `json:"reference"`
}

func (webhookSource) ObjectReference(w *connector.IncomingWebhook) (connector.ObjectReference, error) {
	var payload webhookPayload
	if err := json.Unmarshal(w.Body, &payload); err != nil {
		return connector.ObjectReference{}, fmt.Errorf("webhook payload: %w", err)
	}
	if payload.ObjectID == "" && payload.Reference == "" {
		return connector.ObjectReference{}, fmt.Errorf("webhook reference id not found")
	}
	kind := connector.RefPayment
	if payload.Type == "refund.completed" || payload.Type == "refund.failed" {
		kind = connector.RefRefund
	}
	return connector.ObjectReference{
		Kind:                   kind,
		ConnectorTransactionID: payload.ObjectID,
		RequestReferenceID:     payload.Reference,
	}, nil
}

func (webhookSource) EventType(w *connector.IncomingWebhook) (connector.EventKind, error) {
	var payload webhookPayload
	if err := json.Unmarshal(w.Body, &payload); err != nil {
		return connector.EventNotSupported, fmt.Errorf("webhook payload: %w", err)
	}
	switch payload.Type {
	case "transaction.completed":
		return connector.EventPaymentSucceeded, nil
	case "transaction.failed":
		return connector.EventPaymentFailed, nil
	case "transaction.processing":
		return connector.EventPaymentProcessing, nil
	case "refund.completed":
		return connector.EventRefundSucceeded, nil
	case "refund.failed":
		return connector.EventRefundFailed, nil
	default:
		return connector.EventNotSupported, nil
	}
}
