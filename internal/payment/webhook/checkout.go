package webhook

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"btcpay-bridge/internal/logger"
	"btcpay-bridge/internal/order"
	"btcpay-bridge/internal/payment"

	"go.uber.org/zap"
)

type checkoutRequest struct {
	TradeNo string `json:"trade_no"`
	Method  int64  `json:"method"`
}

// Checkout handles POST /api/v1/order/checkout and returns the pay result.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req checkoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.TradeNo = strings.TrimSpace(req.TradeNo)
	if req.TradeNo == "" || req.Method <= 0 {
		writeError(w, http.StatusBadRequest, "trade_no and method are required")
		return
	}

	result, err := h.orders.Checkout(ctx, req.TradeNo, req.Method)
	if err != nil {
		status, msg := checkoutError(err)
		logger.FromCtx(ctx).Warn("Checkout failed",
			zap.String("trade_no", req.TradeNo),
			zap.Int64("payment_id", req.Method),
			zap.Int("status", status),
			zap.Error(err),
		)
		writeError(w, status, msg)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func checkoutError(err error) (int, string) {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, order.ErrOrderNotPending):
		return http.StatusBadRequest, "order is not pending"
	case errors.Is(err, order.ErrPaymentUnavailable):
		return http.StatusBadRequest, "payment method is not available"
	case errors.Is(err, payment.ErrConfig):
		return http.StatusInternalServerError, "payment gateway is not configured"
	case errors.Is(err, payment.ErrNetwork), errors.Is(err, payment.ErrRemote):
		return http.StatusBadGateway, "payment gateway error"
	default:
		return http.StatusInternalServerError, "fail"
	}
}
