package payment

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"btcpay-bridge/internal/logger"

	"go.uber.org/zap"
)

const (
	invoiceTimeout = 30 * time.Second
	checkTimeout   = 10 * time.Second
	userAgent      = "btcpay-bridge/1.0"

	maxResponseBytes = 1 << 20

	codeInvoiceNotFound = "invoice-not-found"
	codeInvalidJSON     = "invalid-json"
	codeMissingCheckout = "missing-checkout-link"
)

type btcpayGateway struct {
	httpClient *http.Client
}

// ----------------- Constructor -----------------

func NewBTCPayGateway() Gateway {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Certificates are always verified for https endpoints.
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	return &btcpayGateway{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   invoiceTimeout,
		},
	}
}

// ----------------- CreateInvoice -----------------

func (g *btcpayGateway) CreateInvoice(ctx context.Context, cfg GatewayConfig, req InvoiceRequest) (*PayResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("order_id", req.OrderID),
		zap.String("store_id", cfg.StoreID),
		zap.Int64("amount_minor", req.AmountMinor),
	)

	if err := cfg.Validate(); err != nil {
		log.Warn("BTCPay config incomplete", zap.Error(err))
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = cfg.currency()
	}
	itemDesc := req.ItemDesc
	if itemDesc == "" {
		itemDesc = "Order payment"
	}

	body := createInvoiceBody{
		Amount:   FormatAmount(req.AmountMinor),
		Currency: currency,
		Metadata: InvoiceMetadata{
			OrderID:  req.OrderID,
			UserID:   req.UserID,
			ItemDesc: itemDesc,
			Test:     req.Test,
		},
		Checkout: checkoutOptions{
			RedirectURL: req.RedirectURL,
			SpeedPolicy: "MediumSpeed",
		},
		Receipt: receiptOptions{
			Enabled: true,
			ShowQR:  true,
		},
	}
	if req.BuyerEmail != "" {
		email := req.BuyerEmail
		body.Metadata.BuyerEmail = &email
	}
	if req.NotifyURL != "" {
		notify := req.NotifyURL
		body.NotificationURL = &notify
	}

	log.Info("Sending create invoice request to BTCPay")

	var invoice InvoiceDetail
	if err := g.do(ctx, cfg, http.MethodPost, cfg.storeURL()+"/invoices", body, invoiceTimeout, CodeStoreNotFound, &invoice); err != nil {
		log.Error("BTCPay create invoice failed", zap.Error(err))
		return nil, err
	}

	if invoice.CheckoutLink == "" {
		log.Error("BTCPay invoice created without checkout link",
			zap.String("invoice_id", invoice.ID),
			zap.String("base_url", cfg.BaseURL),
		)
		return nil, &RemoteError{Code: codeMissingCheckout, Message: "missing checkout link"}
	}

	log.Info("BTCPay invoice created",
		zap.String("invoice_id", invoice.ID),
		zap.String("status", invoice.Status),
	)

	return &PayResult{
		Type: PayTypeRedirect,
		Data: invoice.CheckoutLink,
	}, nil
}

// ----------------- GetInvoiceDetail -----------------

func (g *btcpayGateway) GetInvoiceDetail(ctx context.Context, cfg GatewayConfig, invoiceID string) (*InvoiceDetail, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("invoice_id", invoiceID),
		zap.String("store_id", cfg.StoreID),
	)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if invoiceID == "" {
		return nil, badRequest("missing invoiceId")
	}

	var detail InvoiceDetail
	if err := g.do(ctx, cfg, http.MethodGet, cfg.storeURL()+"/invoices/"+pathEscape(invoiceID), nil, invoiceTimeout, codeInvoiceNotFound, &detail); err != nil {
		log.Error("BTCPay get invoice failed", zap.Error(err))
		return nil, err
	}
	if detail.ID == "" {
		detail.ID = invoiceID
	}

	return &detail, nil
}

// ----------------- GetStoreInfo -----------------

func (g *btcpayGateway) GetStoreInfo(ctx context.Context, cfg GatewayConfig) (*StoreInfo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var store StoreInfo
	if err := g.do(ctx, cfg, http.MethodGet, cfg.storeURL(), nil, checkTimeout, CodeStoreNotFound, &store); err != nil {
		logger.FromCtx(ctx).Warn("BTCPay store lookup failed",
			zap.String("store_id", cfg.StoreID),
			zap.Error(err),
		)
		return nil, err
	}

	return &store, nil
}

// ----------------- transport -----------------

func (g *btcpayGateway) do(
	ctx context.Context,
	cfg GatewayConfig,
	method, endpoint string,
	payload interface{},
	timeout time.Duration,
	notFoundCode string,
	out interface{},
) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal btcpay request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return configError(fmt.Sprintf("invalid %s: %v", KeyURL, err))
	}

	req.Header.Set("Authorization", "token "+cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: failed to read btcpay response: %w", ErrNetwork, err)
	}

	if rerr := decodeRemoteError(resp.StatusCode, raw, notFoundCode); rerr != nil {
		return rerr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &RemoteError{
			Status:  resp.StatusCode,
			Code:    codeInvalidJSON,
			Message: "invalid JSON response from BTCPay Server",
		}
	}
	return nil
}

// decodeRemoteError understands the legacy {"error":{...}} envelope, the
// Greenfield {"code","message"} body and the 422 validation error array.
func decodeRemoteError(status int, raw []byte, notFoundCode string) *RemoteError {
	var env struct {
		Error   json.RawMessage `json:"error"`
		Code    string          `json:"code"`
		Message string          `json:"message"`
	}
	objErr := json.Unmarshal(raw, &env)

	if objErr == nil && len(env.Error) > 0 && string(env.Error) != "null" {
		re := &RemoteError{Status: status}
		var inner struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &inner) == nil {
			re.Code, re.Message = inner.Code, inner.Message
		} else {
			var msg string
			if json.Unmarshal(env.Error, &msg) == nil {
				re.Message = msg
			}
		}
		if re.Message == "" && re.Code == "" {
			re.Message = "unknown error"
		}
		return re
	}

	if status < http.StatusBadRequest {
		return nil
	}

	re := &RemoteError{Status: status}
	if objErr == nil {
		re.Code, re.Message = env.Code, env.Message
	} else {
		var validation []struct {
			Path    string `json:"path"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &validation) == nil && len(validation) > 0 {
			parts := make([]string, 0, len(validation))
			for _, v := range validation {
				parts = append(parts, strings.TrimSpace(v.Path+" "+v.Message))
			}
			re.Code = "validation-error"
			re.Message = strings.Join(parts, "; ")
		}
	}

	if re.Code == "" {
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			re.Code = CodeUnauthenticated
			if re.Message == "" {
				re.Message = "API key invalid or expired"
			}
		case http.StatusNotFound:
			re.Code = notFoundCode
			if re.Message == "" && notFoundCode == CodeStoreNotFound {
				re.Message = "store ID does not exist or API endpoint is incorrect"
			}
		}
	}

	return re
}

func pathEscape(s string) string {
	return url.PathEscape(s)
}
