package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"strings"

	"btcpay-bridge/internal/logger"
	"btcpay-bridge/internal/metrics"
	"btcpay-bridge/internal/order"
	"btcpay-bridge/internal/payment"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Reconciler applies a verified payment to the local order.
type Reconciler interface {
	Reconcile(ctx context.Context, tradeNo, callbackNo string) error
}

type Handler struct {
	payments   payment.Repository
	methods    *payment.Registry
	reconciler Reconciler
	orders     order.Service
	stats      *metrics.Webhook
}

func NewHandler(
	payments payment.Repository,
	methods *payment.Registry,
	reconciler Reconciler,
	orders order.Service,
	stats *metrics.Webhook,
) *Handler {
	if stats == nil {
		stats = &metrics.Webhook{}
	}
	return &Handler{
		payments:   payments,
		methods:    methods,
		reconciler: reconciler,
		orders:     orders,
		stats:      stats,
	}
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Code: status, Message: message})
}

// Notify handles POST /api/v1/guest/payment/notify/{method}/{uuid}.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	timer := metrics.StartTimer()
	h.stats.Received.Inc()
	defer func() { h.stats.ObserveLatency(timer.Duration()) }()

	ctx := r.Context()
	method := chi.URLParam(r, "method")
	uuid := chi.URLParam(r, "uuid")
	log := logger.Gateway(ctx, method, uuid)

	defer func() {
		if rec := recover(); rec != nil {
			h.stats.Panics.Inc()
			log.Error("Payment notification panic",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			writeError(w, http.StatusInternalServerError, "fail")
		}
	}()

	log.Info("Payment notification received",
		zap.String("remote_ip", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
	)

	inst, err := h.payments.GetByUUID(ctx, uuid)
	if err != nil {
		if errors.Is(err, payment.ErrInstanceNotFound) {
			h.stats.Rejected.Inc()
			writeError(w, http.StatusNotFound, "payment not found")
			return
		}
		log.Error("Failed to load payment instance", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "fail")
		return
	}
	if !strings.EqualFold(inst.Method, method) {
		h.stats.Rejected.Inc()
		log.Warn("Payment method does not match instance", zap.String("instance_method", inst.Method))
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}

	m, err := h.methods.Get(method)
	if err != nil {
		h.stats.Rejected.Inc()
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.stats.Rejected.Inc()
		log.Warn("Failed to read notification body", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, "verify error")
		return
	}

	verdict, err := m.Notify(ctx, inst.Config, payment.WebhookEvent{
		RawBody:   body,
		Signature: payment.SignatureFromHeader(r.Header),
	})
	if err != nil {
		h.stats.Rejected.Inc()
		log.Warn("Payment verification failed", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, "verify error")
		return
	}
	if verdict.Ignored || verdict.Payment == nil {
		h.stats.Ignored.Inc()
		log.Info("Payment notification ignored", zap.String("reason", verdict.Reason))
		writeError(w, http.StatusUnprocessableEntity, "verify error")
		return
	}

	paid := verdict.Payment
	log = log.With(
		zap.String("trade_no", paid.TradeNo),
		zap.String("invoice_id", paid.CallbackNo),
	)

	if err := h.reconciler.Reconcile(ctx, paid.TradeNo, paid.CallbackNo); err != nil {
		h.stats.HandleFail.Inc()
		log.Error("Payment handle failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, "handle error")
		return
	}

	h.stats.Settled.Inc()
	log.Info("Payment notification processed", zap.Duration("duration", timer.Duration()))

	result := "success"
	if paid.CustomResult != "" {
		result = paid.CustomResult
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, result)
}

// Stats handles GET /debug/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.stats.Snapshot())
}
