package payment

import (
	"context"
)

// Gateway is the remote invoicing client for one BTCPay Server store.
type Gateway interface {
	CreateInvoice(ctx context.Context, cfg GatewayConfig, req InvoiceRequest) (*PayResult, error)
	GetInvoiceDetail(ctx context.Context, cfg GatewayConfig, invoiceID string) (*InvoiceDetail, error)
	GetStoreInfo(ctx context.Context, cfg GatewayConfig) (*StoreInfo, error)
}

// Method is one payment method variant selectable by name.
type Method interface {
	Name() string
	Pay(ctx context.Context, cfg GatewayConfig, req InvoiceRequest) (*PayResult, error)
	Notify(ctx context.Context, cfg GatewayConfig, event WebhookEvent) (Verdict, error)
}
