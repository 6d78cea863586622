package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"btcpay-bridge/internal/logger"

	"go.uber.org/zap"
)

var (
	allowedEvents = map[string]bool{
		EventInvoicePaymentSettled: true,
		EventInvoiceProcessing:     true,
		EventInvoiceExpired:        true,
	}
	paidStatuses = map[string]bool{
		InvoiceStatusSettled:    true,
		InvoiceStatusProcessing: true,
		InvoiceStatusConfirmed:  true,
	}
)

func isAllowedEvent(t interface{}) bool {
	s, ok := t.(string)
	return ok && allowedEvents[s]
}

// Verifier turns an inbound webhook into a verified payment. The payload is
// never trusted for the payment status; the invoice is re-fetched.
type Verifier struct {
	gateway Gateway
}

func NewVerifier(gateway Gateway) *Verifier {
	return &Verifier{gateway: gateway}
}

func (v *Verifier) Verify(ctx context.Context, cfg GatewayConfig, event WebhookEvent) (Verdict, error) {
	log := logger.FromCtx(ctx)

	if len(event.RawBody) == 0 {
		return Verdict{}, badRequest("empty payload")
	}
	if event.Signature == "" {
		return Verdict{}, badRequest("missing signature")
	}

	if cfg.HasWebhookSecret() {
		if !VerifySignature(event.RawBody, cfg.WebhookSecret, event.Signature) {
			log.Warn("BTCPay webhook signature mismatch",
				zap.String("received", redactSignature(event.Signature)),
			)
			return Verdict{}, badRequest("signature mismatch")
		}
	} else {
		log.Warn("BTCPay webhook secret not configured, signature check skipped")
	}

	var payload webhookPayload
	if err := json.Unmarshal(event.RawBody, &payload); err != nil {
		return Verdict{}, badRequest("invalid json")
	}
	invoiceID := payload.invoiceID()
	if invoiceID == "" {
		return Verdict{}, badRequest("missing invoiceId")
	}

	log = log.With(zap.String("invoice_id", invoiceID))

	if eventType, ok := payload.eventType(); ok && !isAllowedEvent(payload.Type) {
		log.Info("BTCPay webhook event ignored", zap.String("type", eventType))
		return Verdict{Ignored: true, Reason: "event type " + eventType}, nil
	}

	detail, err := v.gateway.GetInvoiceDetail(ctx, cfg, invoiceID)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if detail.Metadata.OrderID == "" {
		return Verdict{}, badRequest("missing orderId")
	}

	if !paidStatuses[detail.Status] {
		log.Info("BTCPay invoice not paid yet",
			zap.String("status", detail.Status),
			zap.String("trade_no", detail.Metadata.OrderID),
		)
		return Verdict{Ignored: true, Reason: "invoice status " + detail.Status}, nil
	}

	log.Info("BTCPay payment verified",
		zap.String("status", detail.Status),
		zap.String("trade_no", detail.Metadata.OrderID),
	)

	return Verdict{
		Payment: &VerifiedPayment{
			TradeNo:    detail.Metadata.OrderID,
			CallbackNo: invoiceID,
		},
	}, nil
}
