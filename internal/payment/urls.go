package payment

import (
	"net/url"
	"strings"
)

// URLBuilder renders the public URLs handed to BTCPay Server.
type URLBuilder struct {
	appURL string
}

func NewURLBuilder(appURL string) *URLBuilder {
	return &URLBuilder{appURL: strings.TrimRight(appURL, "/")}
}

// NotifyURL prefers the instance's notify_domain over the panel URL.
func (b *URLBuilder) NotifyURL(inst Instance) string {
	base := b.appURL
	if d := strings.TrimRight(strings.TrimSpace(inst.NotifyDomain), "/"); d != "" {
		base = d
	}
	return base + "/api/v1/guest/payment/notify/" + url.PathEscape(inst.Method) + "/" + url.PathEscape(inst.UUID)
}

func (b *URLBuilder) ReturnURL(tradeNo string) string {
	return b.appURL + "/#/order/" + url.PathEscape(tradeNo)
}
