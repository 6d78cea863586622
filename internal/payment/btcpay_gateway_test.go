package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRoundTripper allows us to mock the HTTP response
type MockRoundTripper func(req *http.Request) *http.Response

func (f MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

type MockRoundTripperWithError func(req *http.Request) (*http.Response, error)

func (f MockRoundTripperWithError) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func testGatewayConfig() GatewayConfig {
	return GatewayConfig{
		BaseURL:       "https://btcpay.example.com/",
		StoreID:       "store-1",
		APIKey:        "key-1",
		WebhookSecret: "whsec",
	}
}

func TestBTCPayGateway_CreateInvoice(t *testing.T) {
	gw := NewBTCPayGateway().(*btcpayGateway)
	cfg := testGatewayConfig()
	userID := int64(7)

	req := InvoiceRequest{
		AmountMinor: 1234,
		OrderID:     "T1001",
		UserID:      &userID,
		BuyerEmail:  "buyer@example.com",
		RedirectURL: "https://panel.example.com/#/order/T1001",
		NotifyURL:   "https://panel.example.com/api/v1/guest/payment/notify/BTCPay/abc",
	}

	t.Run("Success", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "https://btcpay.example.com/api/v1/stores/store-1/invoices", r.URL.String())
			assert.Equal(t, "token key-1", r.Header.Get("Authorization"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, userAgent, r.Header.Get("User-Agent"))

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "12.34", body["amount"])
			assert.Equal(t, "CNY", body["currency"])
			assert.Equal(t, req.NotifyURL, body["notificationURL"])

			meta := body["metadata"].(map[string]interface{})
			assert.Equal(t, "T1001", meta["orderId"])
			assert.Equal(t, float64(7), meta["userId"])
			assert.Equal(t, "buyer@example.com", meta["buyerEmail"])
			assert.NotContains(t, meta, "test")

			checkout := body["checkout"].(map[string]interface{})
			assert.Equal(t, req.RedirectURL, checkout["redirectURL"])
			assert.Equal(t, "MediumSpeed", checkout["speedPolicy"])

			receipt := body["receipt"].(map[string]interface{})
			assert.Equal(t, true, receipt["enabled"])
			assert.Equal(t, true, receipt["showQR"])

			return jsonResponse(http.StatusOK, `{"id":"inv-1","status":"New","checkoutLink":"https://btcpay.example.com/i/inv-1"}`)
		})

		res, err := gw.CreateInvoice(context.Background(), cfg, req)
		require.NoError(t, err)
		assert.Equal(t, PayTypeRedirect, res.Type)
		assert.Equal(t, "https://btcpay.example.com/i/inv-1", res.Data)
	})

	t.Run("OptionalFieldsOmitted", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Nil(t, body["notificationURL"])
			assert.Equal(t, "USD", body["currency"])

			meta := body["metadata"].(map[string]interface{})
			assert.NotContains(t, meta, "userId")
			assert.NotContains(t, meta, "buyerEmail")
			assert.Equal(t, "Order payment", meta["itemDesc"])

			return jsonResponse(http.StatusOK, `{"id":"inv-2","checkoutLink":"https://btcpay.example.com/i/inv-2"}`)
		})

		c := cfg
		c.Currency = "USD"
		_, err := gw.CreateInvoice(context.Background(), c, InvoiceRequest{AmountMinor: 5, OrderID: "T2"})
		require.NoError(t, err)
	})

	t.Run("MissingCheckoutLink", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusOK, `{"id":"inv-3","status":"New"}`)
		})

		res, err := gw.CreateInvoice(context.Background(), cfg, req)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrRemote)
		assert.Contains(t, err.Error(), "missing checkout link")
	})

	t.Run("ErrorObjectInBody", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusOK, `{"error":{"code":"generic-error","message":"boom"}}`)
		})

		_, err := gw.CreateInvoice(context.Background(), cfg, req)
		var re *RemoteError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, "generic-error", re.Code)
		assert.Equal(t, "boom", re.Message)
	})

	t.Run("Unauthenticated", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusUnauthorized, ``)
		})

		_, err := gw.CreateInvoice(context.Background(), cfg, req)
		var re *RemoteError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, CodeUnauthenticated, re.Code)
		assert.Equal(t, http.StatusUnauthorized, re.Status)
	})

	t.Run("StoreNotFound", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusNotFound, ``)
		})

		_, err := gw.CreateInvoice(context.Background(), cfg, req)
		assert.True(t, IsStoreNotFound(err))
	})

	t.Run("GreenfieldErrorBody", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusNotFound, `{"code":"store-not-found","message":"The store was not found"}`)
		})

		_, err := gw.CreateInvoice(context.Background(), cfg, req)
		assert.True(t, IsStoreNotFound(err))
		assert.Contains(t, err.Error(), "The store was not found")
	})

	t.Run("ValidationErrors", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusUnprocessableEntity, `[{"path":"amount","message":"must be positive"}]`)
		})

		_, err := gw.CreateInvoice(context.Background(), cfg, req)
		var re *RemoteError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, "amount must be positive", re.Message)
	})

	t.Run("NonJSONBody", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusOK, `<html>gateway</html>`)
		})

		_, err := gw.CreateInvoice(context.Background(), cfg, req)
		assert.ErrorIs(t, err, ErrRemote)
	})

	t.Run("NetworkError", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripperWithError(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})

		_, err := gw.CreateInvoice(context.Background(), cfg, req)
		assert.ErrorIs(t, err, ErrNetwork)
	})

	t.Run("Timeout", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripperWithError(func(r *http.Request) (*http.Response, error) {
			<-r.Context().Done()
			return nil, r.Context().Err()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := gw.CreateInvoice(ctx, cfg, req)
		assert.ErrorIs(t, err, ErrNetwork)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("ConfigIncomplete", func(t *testing.T) {
		called := false
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			called = true
			return jsonResponse(http.StatusOK, `{}`)
		})

		_, err := gw.CreateInvoice(context.Background(), GatewayConfig{BaseURL: "https://x"}, req)
		assert.ErrorIs(t, err, ErrConfig)
		assert.Contains(t, err.Error(), KeyStoreID)
		assert.Contains(t, err.Error(), KeyAPIKey)
		assert.False(t, called)
	})
}

func TestBTCPayGateway_GetInvoiceDetail(t *testing.T) {
	gw := NewBTCPayGateway().(*btcpayGateway)
	cfg := testGatewayConfig()

	t.Run("Success", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "https://btcpay.example.com/api/v1/stores/store-1/invoices/inv-1", r.URL.String())
			assert.Equal(t, "token key-1", r.Header.Get("Authorization"))
			return jsonResponse(http.StatusOK, `{"id":"inv-1","status":"Settled","metadata":{"orderId":"T1001"}}`)
		})

		detail, err := gw.GetInvoiceDetail(context.Background(), cfg, "inv-1")
		require.NoError(t, err)
		assert.Equal(t, "Settled", detail.Status)
		assert.Equal(t, "T1001", detail.Metadata.OrderID)
	})

	t.Run("InvoiceIDEscaped", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			assert.Equal(t, "/api/v1/stores/store-1/invoices/a%2Fb", r.URL.EscapedPath())
			return jsonResponse(http.StatusOK, `{"status":"New","metadata":{}}`)
		})

		detail, err := gw.GetInvoiceDetail(context.Background(), cfg, "a/b")
		require.NoError(t, err)
		assert.Equal(t, "a/b", detail.ID)
	})

	t.Run("NotFound", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusNotFound, ``)
		})

		_, err := gw.GetInvoiceDetail(context.Background(), cfg, "inv-x")
		var re *RemoteError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, codeInvoiceNotFound, re.Code)
		assert.False(t, IsStoreNotFound(err))
	})

	t.Run("EmptyInvoiceID", func(t *testing.T) {
		_, err := gw.GetInvoiceDetail(context.Background(), cfg, "")
		assert.ErrorIs(t, err, ErrBadRequest)
	})
}

func TestBTCPayGateway_GetStoreInfo(t *testing.T) {
	gw := NewBTCPayGateway().(*btcpayGateway)
	cfg := testGatewayConfig()

	t.Run("Success", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			assert.Equal(t, "https://btcpay.example.com/api/v1/stores/store-1", r.URL.String())
			deadline, ok := r.Context().Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(checkTimeout), deadline, 2*time.Second)
			return jsonResponse(http.StatusOK, `{"id":"store-1","name":"Shop","defaultCurrency":"USD"}`)
		})

		store, err := gw.GetStoreInfo(context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, "Shop", store.Name)
		assert.Equal(t, "USD", store.DefaultCurrency)
	})

	t.Run("Forbidden", func(t *testing.T) {
		gw.httpClient.Transport = MockRoundTripper(func(r *http.Request) *http.Response {
			return jsonResponse(http.StatusForbidden, `{"code":"missing-permission","message":"nope"}`)
		})

		_, err := gw.GetStoreInfo(context.Background(), cfg)
		var re *RemoteError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, "missing-permission", re.Code)
	})
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		5:      "0.05",
		100:    "1.00",
		1234:   "12.34",
		100000: "1000.00",
	}
	for minor, want := range cases {
		assert.Equal(t, want, FormatAmount(minor))
	}
}

// fakeStore is a stateful BTCPay store: created invoices can be fetched back.
type fakeStore struct {
	mu       sync.Mutex
	invoices map[string]createInvoiceBody
}

func (s *fakeStore) RoundTrip(r *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const prefix = "/api/v1/stores/store-1/invoices"
	switch {
	case r.Method == http.MethodPost && r.URL.Path == prefix:
		var body createInvoiceBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return jsonResponse(http.StatusBadRequest, `{"code":"invalid","message":"bad body"}`), nil
		}
		id := fmt.Sprintf("inv%04d", len(s.invoices)+1)
		s.invoices[id] = body
		return jsonResponse(http.StatusOK, fmt.Sprintf(
			`{"id":%q,"status":"New","checkoutLink":"https://btcpay.example.com/i/%s"}`, id, id)), nil

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, prefix+"/"):
		id := strings.TrimPrefix(r.URL.Path, prefix+"/")
		body, ok := s.invoices[id]
		if !ok {
			return jsonResponse(http.StatusNotFound, `{"code":"invoice-not-found","message":"not found"}`), nil
		}
		out, _ := json.Marshal(InvoiceDetail{
			ID:       id,
			Status:   InvoiceStatusSettled,
			Amount:   body.Amount,
			Currency: body.Currency,
			Metadata: body.Metadata,
		})
		return jsonResponse(http.StatusOK, string(out)), nil
	}
	return jsonResponse(http.StatusNotFound, `{"code":"not-found","message":"no route"}`), nil
}

func TestBTCPayGateway_TradeNoRoundTrip(t *testing.T) {
	gw := NewBTCPayGateway().(*btcpayGateway)
	gw.httpClient.Transport = &fakeStore{invoices: map[string]createInvoiceBody{}}
	cfg := testGatewayConfig()
	ctx := context.Background()

	for _, tradeNo := range []string{"T1001", "2024101512000001", "order/7 #a", "订单-42"} {
		t.Run(tradeNo, func(t *testing.T) {
			res, err := gw.CreateInvoice(ctx, cfg, InvoiceRequest{AmountMinor: 500, OrderID: tradeNo})
			require.NoError(t, err)
			invoiceID := path.Base(res.Data)

			detail, err := gw.GetInvoiceDetail(ctx, cfg, invoiceID)
			require.NoError(t, err)
			assert.Equal(t, tradeNo, detail.Metadata.OrderID)
			assert.Equal(t, "5.00", detail.Amount)

			body := fmt.Sprintf(`{"invoiceId":%q,"type":%q}`, invoiceID, EventInvoicePaymentSettled)
			verdict, err := NewVerifier(gw).Verify(ctx, cfg, signedEvent(body, cfg.WebhookSecret))
			require.NoError(t, err)
			require.NotNil(t, verdict.Payment)
			assert.Equal(t, tradeNo, verdict.Payment.TradeNo)
			assert.Equal(t, invoiceID, verdict.Payment.CallbackNo)
		})
	}
}
