package dispatch

import (
	"errors"
	"fmt"

	"github.com/yourorg/payment-switch/internal/connector"
	"github.com/yourorg/payment-switch/internal/domain"
)

// ErrUnmappedVariant is returned when the envelope carries a closed-set
// value the RPC schema does not yet model. Such values are never silently
// coerced into a supported variant; supporting them means extending this
// table and the service schema together.
var ErrUnmappedVariant = errors.New("dispatch: variant not modeled by the unified service schema")

// UnifiedRequest is the RPC request message, one per flow, built field by
// field from the canonical envelope.
type UnifiedRequest struct {
	Flow              string              `json:"flow"`
	MerchantID        string              `json:"merchant_id"`
	Connector         string              `json:"connector"`
	Auth              UnifiedAuth         `json:"auth"`
	ReferenceID       string              `json:"reference_id"`
	TestMode          bool                `json:"test_mode"`
	Amount            int64               `json:"amount,omitempty"`
	Currency          string              `json:"currency,omitempty"`
	CaptureMethod     string              `json:"capture_method,omitempty"`
	PaymentMethod     *UnifiedMethod      `json:"payment_method,omitempty"`
	BillingAddress    *UnifiedAddress     `json:"billing_address,omitempty"`
	BrowserInfo       *UnifiedBrowserInfo `json:"browser_info,omitempty"`
	ConnectorTxnID    string              `json:"connector_transaction_id,omitempty"`
	RefundID          string              `json:"refund_id,omitempty"`
	ConnectorRefundID string              `json:"connector_refund_id,omitempty"`
	Reason            string              `json:"reason,omitempty"`
}

// UnifiedAuth mirrors the connector auth value.
type UnifiedAuth struct {
	Kind         string `json:"kind"`
	APIKey       string `json:"api_key,omitempty"`
	SecondaryKey string `json:"secondary_key,omitempty"`
	Secret       string `json:"secret,omitempty"`
}

// UnifiedMethod mirrors payment-method data.
type UnifiedMethod struct {
	Kind   string         `json:"kind"`
	Card   *UnifiedCard   `json:"card,omitempty"`
	Wallet *UnifiedWallet `json:"wallet,omitempty"`
	Bank   *UnifiedBank   `json:"bank,omitempty"`
}

type UnifiedCard struct {
	Number   string `json:"number"`
	ExpMonth string `json:"exp_month"`
	ExpYear  string `json:"exp_year"`
	CVC      string `json:"cvc,omitempty"`
	Holder   string `json:"holder,omitempty"`
}

type UnifiedWallet struct {
	Provider string `json:"provider"`
	Token    string `json:"token"`
}

type UnifiedBank struct {
	AccountNumber string `json:"account_number"`
	RoutingNumber string `json:"routing_number,omitempty"`
	IBAN          string `json:"iban,omitempty"`
}

type UnifiedAddress struct {
	Line1   string `json:"line1,omitempty"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

type UnifiedBrowserInfo struct {
	UserAgent      string `json:"user_agent,omitempty"`
	AcceptHeader   string `json:"accept_header,omitempty"`
	Language       string `json:"language,omitempty"`
	ScreenHeight   int    `json:"screen_height,omitempty"`
	ScreenWidth    int    `json:"screen_width,omitempty"`
	ColorDepth     int    `json:"color_depth,omitempty"`
	TimeZoneOffset int    `json:"time_zone_offset,omitempty"`
	JavaEnabled    bool   `json:"java_enabled,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
}

// UnifiedResponse is the RPC response message.
type UnifiedResponse struct {
	Status            string        `json:"status"`
	ConnectorTxnID    string        `json:"connector_transaction_id,omitempty"`
	ConnectorRefundID string        `json:"connector_refund_id,omitempty"`
	RefundStatus      string        `json:"refund_status,omitempty"`
	RedirectURL       string        `json:"redirect_url,omitempty"`
	MandateReference  string        `json:"mandate_reference,omitempty"`
	Error             *UnifiedError `json:"error,omitempty"`
}

type UnifiedError struct {
	StatusCode  int    `json:"status_code"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Reason      string `json:"reason,omitempty"`
	DeclineCode string `json:"network_decline_code,omitempty"`
	AdviceCode  string `json:"network_advice_code,omitempty"`
}

// The closed-set tables. Every entry is explicit; absence means the
// unified schema does not model the variant yet.

var unifiedFlows = map[domain.Flow]string{
	domain.FlowAuthorize:     "AUTHORIZE",
	domain.FlowSync:          "SYNC",
	domain.FlowCapture:       "CAPTURE",
	domain.FlowVoid:          "VOID",
	domain.FlowRefundExecute: "REFUND",
	domain.FlowRefundSync:    "REFUND_SYNC",
}

var unifiedCurrencies = map[domain.Currency]string{
	domain.CurrencyUSD: "USD",
	domain.CurrencyEUR: "EUR",
	domain.CurrencyGBP: "GBP",
	domain.CurrencyINR: "INR",
	domain.CurrencyJPY: "JPY",
	domain.CurrencyAUD: "AUD",
	domain.CurrencyCAD: "CAD",
	domain.CurrencySGD: "SGD",
}

var unifiedMethodKinds = map[domain.PaymentMethodKind]string{
	domain.MethodCard:   "CARD",
	domain.MethodWallet: "WALLET",
}

var unifiedAuthKinds = map[connector.AuthKind]string{
	connector.AuthNone:         "NONE",
	connector.AuthHeaderKey:    "HEADER_KEY",
	connector.AuthBodyKey:      "BODY_KEY",
	connector.AuthSignatureKey: "SIGNATURE_KEY",
}

var unifiedCaptureMethods = map[domain.CaptureMethod]string{
	domain.CaptureAutomatic: "AUTOMATIC",
	domain.CaptureManual:    "MANUAL",
}

var unifiedStatuses = map[string]domain.AttemptStatus{
	"STARTED":                domain.AttemptStarted,
	"AUTHENTICATION_PENDING": domain.AttemptAuthenticationPending,
	"AUTHORIZING":            domain.AttemptAuthorizing,
	"AUTHORIZED":             domain.AttemptAuthorized,
	"CHARGED":                domain.AttemptCharged,
	"CAPTURE_INITIATED":      domain.AttemptCaptureInitiated,
	"VOIDED":                 domain.AttemptVoided,
	"VOID_INITIATED":         domain.AttemptVoidInitiated,
	"PENDING":                domain.AttemptPending,
	"FAILURE":                domain.AttemptFailure,
}

func mapCurrency(c domain.Currency) (string, error) {
	v, ok := unifiedCurrencies[c]
	if !ok {
		return "", fmt.Errorf("%w: currency %q", ErrUnmappedVariant, c)
	}
	return v, nil
}

func mapMethodData(pm domain.PaymentMethodData) (*UnifiedMethod, error) {
	kind, ok := unifiedMethodKinds[pm.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: payment method %q", ErrUnmappedVariant, pm.Kind)
	}
	method := &UnifiedMethod{Kind: kind}
	switch pm.Kind {
	case domain.MethodCard:
		if pm.Card == nil {
			return nil, fmt.Errorf("%w: card data missing", ErrUnmappedVariant)
		}
		method.Card = &UnifiedCard{
			Number:   pm.Card.Number,
			ExpMonth: pm.Card.ExpMonth,
			ExpYear:  pm.Card.ExpYear,
			CVC:      pm.Card.CVC,
			Holder:   pm.Card.HolderName,
		}
	case domain.MethodWallet:
		if pm.Wallet == nil {
			return nil, fmt.Errorf("%w: wallet data missing", ErrUnmappedVariant)
		}
		method.Wallet = &UnifiedWallet{Provider: pm.Wallet.Provider, Token: pm.Wallet.Token}
	}
	return method, nil
}

func mapAddress(a *domain.Address) *UnifiedAddress {
	if a == nil {
		return nil
	}
	return &UnifiedAddress{
		Line1: a.Line1, Line2: a.Line2, City: a.City,
		State: a.State, Zip: a.Zip, Country: a.Country,
	}
}

func mapBrowserInfo(b *domain.BrowserInfo) *UnifiedBrowserInfo {
	if b == nil {
		return nil
	}
	return &UnifiedBrowserInfo{
		UserAgent:      b.UserAgent,
		AcceptHeader:   b.AcceptHeader,
		Language:       b.Language,
		ScreenHeight:   b.ScreenHeight,
		ScreenWidth:    b.ScreenWidth,
		ColorDepth:     b.ColorDepth,
		TimeZoneOffset: b.TimeZoneOffset,
		JavaEnabled:    b.JavaEnabled,
		IPAddress:      b.IPAddress,
	}
}

// TranslateEnvelope builds the RPC request from a canonical envelope,
// field by field through the explicit tables above.
func TranslateEnvelope(e *connector.Envelope) (*UnifiedRequest, error) {
	flow, ok := unifiedFlows[e.Flow]
	if !ok {
		return nil, fmt.Errorf("%w: flow %q", ErrUnmappedVariant, e.Flow)
	}
	authKind, ok := unifiedAuthKinds[e.Auth.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: auth kind %q", ErrUnmappedVariant, e.Auth.Kind)
	}

	req := &UnifiedRequest{
		Flow:        flow,
		MerchantID:  e.MerchantID,
		Connector:   e.Connector,
		ReferenceID: e.RequestReferenceID,
		TestMode:    e.TestMode,
		Auth: UnifiedAuth{
			Kind:         authKind,
			APIKey:       e.Auth.APIKey,
			SecondaryKey: e.Auth.SecondaryKey,
			Secret:       e.Auth.Secret,
		},
	}

	switch r := e.Request.(type) {
	case connector.AuthorizeRequest:
		currency, err := mapCurrency(r.Currency)
		if err != nil {
			return nil, err
		}
		capture, ok := unifiedCaptureMethods[r.CaptureMethod]
		if !ok {
			return nil, fmt.Errorf("%w: capture method %q", ErrUnmappedVariant, r.CaptureMethod)
		}
		method, err := mapMethodData(r.PaymentMethod)
		if err != nil {
			return nil, err
		}
		req.Amount = r.Amount
		req.Currency = currency
		req.CaptureMethod = capture
		req.PaymentMethod = method
		req.BillingAddress = mapAddress(r.Billing)
		req.BrowserInfo = mapBrowserInfo(r.BrowserInfo)
	case connector.SyncRequest:
		req.ConnectorTxnID = r.ConnectorTransactionID
	case connector.CaptureRequest:
		currency, err := mapCurrency(r.Currency)
		if err != nil {
			return nil, err
		}
		req.Amount = r.Amount
		req.Currency = currency
		req.ConnectorTxnID = r.ConnectorTransactionID
	case connector.VoidRequest:
		req.ConnectorTxnID = r.ConnectorTransactionID
		req.Reason = r.CancellationReason
	case connector.RefundRequest:
		currency, err := mapCurrency(r.Currency)
		if err != nil {
			return nil, err
		}
		req.Amount = r.Amount
		req.Currency = currency
		req.ConnectorTxnID = r.ConnectorTransactionID
		req.RefundID = r.RefundID
		req.Reason = r.Reason
	case connector.RefundSyncRequest:
		req.ConnectorTxnID = r.ConnectorTransactionID
		req.ConnectorRefundID = r.ConnectorRefundID
	default:
		return nil, fmt.Errorf("%w: request payload %T", ErrUnmappedVariant, e.Request)
	}

	return req, nil
}

// ApplyUnifiedResponse resolves the envelope from the RPC response,
// preserving the status/outcome agreement invariant.
func ApplyUnifiedResponse(e *connector.Envelope, resp *UnifiedResponse) error {
	if resp.Error != nil {
		status := domain.AttemptFailure
		return e.ResolveFailure(&connector.Error{
			StatusCode:             resp.Error.StatusCode,
			Code:                   resp.Error.Code,
			Message:                resp.Error.Message,
			Reason:                 resp.Error.Reason,
			AttemptStatus:          &status,
			ConnectorTransactionID: resp.ConnectorTxnID,
			NetworkDeclineCode:     resp.Error.DeclineCode,
			NetworkAdviceCode:      resp.Error.AdviceCode,
			Kind:                   connector.SeverityRemote,
		})
	}

	status, ok := unifiedStatuses[resp.Status]
	if !ok {
		return fmt.Errorf("%w: status %q", ErrUnmappedVariant, resp.Status)
	}

	switch e.Request.(type) {
	case connector.RefundRequest, connector.RefundSyncRequest:
		refundStatus := domain.RefundPending
		switch resp.RefundStatus {
		case "SUCCESS":
			refundStatus = domain.RefundSuccess
		case "FAILURE":
			refundStatus = domain.RefundFailure
		case "PENDING", "":
			refundStatus = domain.RefundPending
		default:
			return fmt.Errorf("%w: refund status %q", ErrUnmappedVariant, resp.RefundStatus)
		}
		return e.ResolveSuccess(connector.RefundsResponse{
			ConnectorRefundID: resp.ConnectorRefundID,
			RefundStatus:      refundStatus,
		}, status)
	default:
		return e.ResolveSuccess(connector.PaymentsResponse{
			ConnectorTransactionID: resp.ConnectorTxnID,
			RedirectURL:            resp.RedirectURL,
			MandateReference:       resp.MandateReference,
		}, status)
	}
}
