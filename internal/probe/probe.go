package probe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"btcpay-bridge/internal/logger"
	"btcpay-bridge/internal/payment"

	"go.uber.org/zap"
)

const (
	testAmountMinor = 100
	testItemDesc    = "Diagnostic test invoice, do not pay"
)

type Step struct {
	Name   string
	OK     bool
	Detail string
}

type Report struct {
	Steps       []Step
	Warnings    []string
	CheckoutURL string
	Store       *payment.StoreInfo
}

// OK is true when every step passed. Warnings do not count.
func (r *Report) OK() bool {
	for _, s := range r.Steps {
		if !s.OK {
			return false
		}
	}
	return len(r.Steps) > 0
}

func (r *Report) pass(name, detail string) {
	r.Steps = append(r.Steps, Step{Name: name, OK: true, Detail: detail})
}

func (r *Report) fail(name, detail string) {
	r.Steps = append(r.Steps, Step{Name: name, OK: false, Detail: detail})
}

func (r *Report) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Probe runs the operator diagnostics against a live BTCPay Server.
type Probe struct {
	gateway payment.Gateway
	now     func() time.Time
}

func New(gateway payment.Gateway) *Probe {
	return &Probe{gateway: gateway, now: time.Now}
}

func (p *Probe) CheckConfig(ctx context.Context, cfg payment.GatewayConfig) Report {
	var rep Report

	if !p.checkRequired(&rep, cfg) {
		return rep
	}

	store, err := p.gateway.GetStoreInfo(ctx, cfg)
	if err != nil {
		rep.fail("API connection", describe(err))
		return rep
	}
	rep.Store = store
	rep.pass("API connection", fmt.Sprintf("store %q, default currency %s", store.Name, store.DefaultCurrency))

	if cfg.HasWebhookSecret() {
		rep.pass("Webhook secret", "configured")
	} else {
		rep.warn("webhook secret not configured, notifications will not be verified")
	}

	return rep
}

func (p *Probe) CheckInvoice(ctx context.Context, cfg payment.GatewayConfig, notifyURL, redirectURL string) Report {
	var rep Report

	if !p.checkRequired(&rep, cfg) {
		return rep
	}

	tradeNo := fmt.Sprintf("TEST_%d", p.now().Unix())
	res, err := p.gateway.CreateInvoice(ctx, cfg, payment.InvoiceRequest{
		AmountMinor: testAmountMinor,
		OrderID:     tradeNo,
		ItemDesc:    testItemDesc,
		RedirectURL: redirectURL,
		NotifyURL:   notifyURL,
		Test:        true,
	})
	if err != nil {
		logger.FromCtx(ctx).Warn("Test invoice failed", zap.String("trade_no", tradeNo), zap.Error(err))
		rep.fail("Create invoice", describe(err))
		return rep
	}

	u, err := url.ParseRequestURI(res.Data)
	if err != nil || !u.IsAbs() || u.Host == "" {
		rep.fail("Create invoice", fmt.Sprintf("unexpected checkout link %q", res.Data))
		return rep
	}

	rep.CheckoutURL = res.Data
	rep.pass("Create invoice", tradeNo)
	rep.warn("this is a real invoice, do not pay it")
	return rep
}

func (p *Probe) checkRequired(rep *Report, cfg payment.GatewayConfig) bool {
	if err := cfg.Validate(); err != nil {
		rep.fail("Configuration", err.Error())
		return false
	}
	rep.pass("Configuration", "complete")
	return true
}

func describe(err error) string {
	switch {
	case payment.IsStoreNotFound(err):
		return err.Error() + " (store ID does not exist, check " + payment.KeyStoreID + ")"
	case errors.Is(err, payment.ErrNetwork):
		return err.Error() + " (is the API address reachable?)"
	default:
		return err.Error()
	}
}
