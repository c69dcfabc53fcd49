package domain

import (
	"time"
)

// Currency is the closed set of currencies the switch routes today.
// Extending it means extending the dispatch translation table as well.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyINR Currency = "INR"
	CurrencyJPY Currency = "JPY"
	CurrencyAUD Currency = "AUD"
	CurrencyCAD Currency = "CAD"
	CurrencySGD Currency = "SGD"
)

// CaptureMethod controls whether an authorized amount is captured by the
// connector immediately or by a later explicit capture operation.
type CaptureMethod string

const (
	CaptureAutomatic CaptureMethod = "automatic"
	CaptureManual    CaptureMethod = "manual"
)

// PaymentMethodKind is the closed set of payment-method families.
type PaymentMethodKind string

const (
	MethodCard         PaymentMethodKind = "card"
	MethodWallet       PaymentMethodKind = "wallet"
	MethodBankTransfer PaymentMethodKind = "bank_transfer"
	MethodBankDebit    PaymentMethodKind = "bank_debit"
	MethodPayLater     PaymentMethodKind = "pay_later"
)

// CardData is the card variant of payment-method data.
type CardData struct {
	Number     string `json:"number"`
	ExpMonth   string `json:"exp_month"`
	ExpYear    string `json:"exp_year"`
	CVC        string `json:"cvc,omitempty"`
	HolderName string `json:"holder_name,omitempty"`
	Network    string `json:"network,omitempty"`
}

// Last4 returns the last four digits for logging-safe references.
func (c CardData) Last4() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// WalletData is the wallet variant of payment-method data.
type WalletData struct {
	Provider string `json:"provider"`
	Token    string `json:"token"`
}

// BankData covers the bank transfer/debit variants.
type BankData struct {
	AccountNumber string `json:"account_number"`
	RoutingNumber string `json:"routing_number,omitempty"`
	IBAN          string `json:"iban,omitempty"`
}

// PaymentMethodData is the tagged union of method variants. Exactly one
// member is set, matching Kind.
type PaymentMethodData struct {
	Kind   PaymentMethodKind `json:"kind"`
	Card   *CardData         `json:"card,omitempty"`
	Wallet *WalletData       `json:"wallet,omitempty"`
	Bank   *BankData         `json:"bank,omitempty"`
}

// Address is a billing or shipping address attached to an intent.
type Address struct {
	Line1   string `json:"line1,omitempty"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

// BrowserInfo carries device data some connectors require for 3DS.
type BrowserInfo struct {
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

// PaymentIntent is the merchant-facing payment record. It is created on
// payment creation, mutated only by the state machine's committal stages,
// and never deleted.
type PaymentIntent struct {
	ID              string
	MerchantID      string
	Status          IntentStatus
	Amount          int64
	AmountCaptured  int64
	Currency        Currency
	CaptureMethod   CaptureMethod
	ActiveAttemptID string
	CustomerID      string
	Description     string
	BillingAddress  *Address
	ShippingAddress *Address
	ReturnURL       string
	Metadata        map[string]string
	CreatedAt       time.Time
	ModifiedAt      time.Time
}

// PaymentAttempt is one connector-directed try at fulfilling an intent.
type PaymentAttempt struct {
	ID                     string
	IntentID               string
	MerchantID             string
	Status                 AttemptStatus
	Connector              string
	MerchantConnectorID    string
	Amount                 int64
	Currency               Currency
	PaymentMethod          PaymentMethodKind
	ConnectorTransactionID string
	// ConnectorRequestReferenceID is the correlation id this switch sends
	// outbound; the connector echoes it back on webhooks.
	ConnectorRequestReferenceID string
	ErrorCode                   string
	ErrorMessage                string
	UnifiedPath                 bool
	CreatedAt                   time.Time
	ModifiedAt                  time.Time
}

// Refund is one refund request against a charged attempt.
type Refund struct {
	ID                string
	IntentID          string
	AttemptID         string
	MerchantID        string
	Status            RefundStatus
	Amount            int64
	Currency          Currency
	Connector         string
	ConnectorRefundID string
	Reason            string
	ErrorCode         string
	ErrorMessage      string
	CreatedAt         time.Time
	ModifiedAt        time.Time
}

// Customer is the minimal customer record the enrich stage resolves.
type Customer struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// Mandate is a stored authorization for future off-session payments.
type Mandate struct {
	ID                          string
	CustomerID                  string
	Status                      MandateStatus
	Connector                   string
	ConnectorMandateID          string
	ConnectorRequestReferenceID string
	PaymentMethod               PaymentMethodKind
	CreatedAt                   time.Time
}
