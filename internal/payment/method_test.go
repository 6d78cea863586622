package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	m := NewBTCPayMethod(new(MockGateway))
	reg := NewRegistry(m)

	for _, name := range []string{"BTCPay", "btcpay", " BTCPAY "} {
		got, err := reg.Get(name)
		require.NoError(t, err, name)
		assert.Equal(t, MethodBTCPay, got.Name())
	}

	_, err := reg.Get("Stripe")
	assert.Error(t, err)
	assert.Equal(t, []string{MethodBTCPay}, reg.Names())
}

func TestBTCPayMethod(t *testing.T) {
	cfg := testGatewayConfig()
	gw := new(MockGateway)
	m := NewBTCPayMethod(gw)

	req := InvoiceRequest{AmountMinor: 100, OrderID: "T1"}
	gw.On("CreateInvoice", mock.Anything, cfg, req).
		Return(&PayResult{Type: PayTypeRedirect, Data: "https://btcpay.example.com/i/1"}, nil)
	gw.On("GetInvoiceDetail", mock.Anything, cfg, "inv-1").
		Return(&InvoiceDetail{Status: InvoiceStatusConfirmed, Metadata: InvoiceMetadata{OrderID: "T1"}}, nil)

	res, err := m.Pay(context.Background(), cfg, req)
	require.NoError(t, err)
	assert.Equal(t, "https://btcpay.example.com/i/1", res.Data)

	verdict, err := m.Notify(context.Background(), cfg, signedEvent(`{"invoiceId":"inv-1"}`, "whsec"))
	require.NoError(t, err)
	assert.Equal(t, "T1", verdict.Payment.TradeNo)
	gw.AssertExpectations(t)
}

func TestURLBuilder(t *testing.T) {
	b := NewURLBuilder("https://panel.example.com/")
	inst := Instance{UUID: "3f1c", Method: MethodBTCPay}

	assert.Equal(t, "https://panel.example.com/api/v1/guest/payment/notify/BTCPay/3f1c", b.NotifyURL(inst))
	assert.Equal(t, "https://panel.example.com/#/order/T1001", b.ReturnURL("T1001"))

	inst.NotifyDomain = "https://pay.example.net/"
	assert.Equal(t, "https://pay.example.net/api/v1/guest/payment/notify/BTCPay/3f1c", b.NotifyURL(inst))
}
