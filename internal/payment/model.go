package payment

import (
	"fmt"
	"time"
)

type PayType int

const (
	PayTypeQRCode   PayType = 0
	PayTypeRedirect PayType = 1
)

const (
	MethodBTCPay = "BTCPay"

	// SignatureHeader is matched case-insensitively through http.Header.
	SignatureHeader = "BTCPay-Sig"

	CodeStoreNotFound   = "store-not-found"
	CodeUnauthenticated = "unauthenticated"
)

// Webhook event types that may represent a completed payment.
const (
	EventInvoicePaymentSettled = "InvoicePaymentSettled"
	EventInvoiceProcessing     = "InvoiceProcessing"
	EventInvoiceExpired        = "InvoiceExpired"
)

// Invoice statuses counted as paid.
const (
	InvoiceStatusSettled    = "Settled"
	InvoiceStatusProcessing = "Processing"
	InvoiceStatusConfirmed  = "Confirmed"
)

// Instance is one configured gateway row of the billing panel.
type Instance struct {
	ID           int64
	UUID         string
	Method       string
	Name         string
	Enabled      bool
	NotifyDomain string
	Config       GatewayConfig
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InvoiceRequest is built from a local order.
type InvoiceRequest struct {
	AmountMinor int64
	Currency    string
	OrderID     string
	UserID      *int64
	BuyerEmail  string
	ItemDesc    string
	RedirectURL string
	NotifyURL   string
	// Test marks diagnostic invoices in the merchant receipt metadata.
	Test bool
}

type PayResult struct {
	Type PayType `json:"type"`
	Data string  `json:"data"`
}

type InvoiceMetadata struct {
	OrderID    string  `json:"orderId,omitempty"`
	UserID     *int64  `json:"userId,omitempty"`
	ItemDesc   string  `json:"itemDesc,omitempty"`
	BuyerEmail *string `json:"buyerEmail,omitempty"`
	Test       bool    `json:"test,omitempty"`
}

type InvoiceDetail struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	CheckoutLink string          `json:"checkoutLink,omitempty"`
	Amount       string          `json:"amount,omitempty"`
	Currency     string          `json:"currency,omitempty"`
	Metadata     InvoiceMetadata `json:"metadata"`
}

type StoreInfo struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DefaultCurrency string `json:"defaultCurrency"`
}

// WebhookEvent lives for one inbound request only.
type WebhookEvent struct {
	RawBody   []byte
	Signature string
	Type      string
	InvoiceID string
}

type VerifiedPayment struct {
	TradeNo    string
	CallbackNo string
	// CustomResult replaces the default "success" response body when set.
	CustomResult string
}

// Verdict is the outcome of a webhook verification that did not fail.
// Either Payment is set, or Ignored is true with a Reason.
type Verdict struct {
	Payment *VerifiedPayment
	Ignored bool
	Reason  string
}

// webhookPayload keeps invoiceId and type loosely typed. A non-string
// invoiceId counts as missing and a non-string type is never allowed.
type webhookPayload struct {
	InvoiceID interface{} `json:"invoiceId"`
	Type      interface{} `json:"type"`
}

func (p webhookPayload) invoiceID() string {
	s, _ := p.InvoiceID.(string)
	return s
}

// eventType reports the type and whether the field was present at all.
func (p webhookPayload) eventType() (string, bool) {
	switch t := p.Type.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	default:
		return fmt.Sprint(t), true
	}
}

type createInvoiceBody struct {
	Amount          string          `json:"amount"`
	Currency        string          `json:"currency"`
	Metadata        InvoiceMetadata `json:"metadata"`
	Checkout        checkoutOptions `json:"checkout"`
	Receipt         receiptOptions  `json:"receipt"`
	NotificationURL *string         `json:"notificationURL"`
}

type checkoutOptions struct {
	RedirectURL string `json:"redirectURL"`
	SpeedPolicy string `json:"speedPolicy"`
}

type receiptOptions struct {
	Enabled bool `json:"enabled"`
	ShowQR  bool `json:"showQR"`
}
