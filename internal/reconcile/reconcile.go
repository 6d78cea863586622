package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"btcpay-bridge/internal/lock"
	"btcpay-bridge/internal/logger"
	"btcpay-bridge/internal/notify"
	"btcpay-bridge/internal/order"
	"btcpay-bridge/internal/payment"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrReconcileFailed = errors.New("reconcile failed")
	ErrReconcileBusy   = errors.New("order is being reconciled by another request")
)

const defaultLockTTL = 30 * time.Second

type Reconciler struct {
	orders   order.Service
	payments payment.Repository
	notifier notify.Notifier
	locker   lock.Locker
	lockTTL  time.Duration
}

func NewReconciler(orders order.Service, payments payment.Repository, notifier notify.Notifier, locker lock.Locker) *Reconciler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if locker == nil {
		locker = lock.Nop{}
	}
	return &Reconciler{
		orders:   orders,
		payments: payments,
		notifier: notifier,
		locker:   locker,
		lockTTL:  defaultLockTTL,
	}
}

// Reconcile moves the order to paid at most once. Orders that are no longer
// pending are left alone and reported as success.
func (r *Reconciler) Reconcile(ctx context.Context, tradeNo, callbackNo string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("trade_no", tradeNo),
		zap.String("callback_no", callbackNo),
	)

	lockKey := "trade:" + tradeNo
	token, ok, err := r.locker.TryLock(ctx, lockKey, r.lockTTL)
	switch {
	case err != nil:
		// The conditional update still guarantees a single transition.
		log.Warn("Reconcile lock unavailable, continuing without it", zap.Error(err))
	case !ok:
		return ErrReconcileBusy
	default:
		defer func() {
			if err := r.locker.Unlock(ctx, lockKey, token); err != nil {
				log.Warn("Failed to release reconcile lock", zap.Error(err))
			}
		}()
	}

	o, err := r.orders.GetByTradeNo(ctx, tradeNo)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			log.Warn("Reconcile target order not found")
			return fmt.Errorf("%w: %s", ErrOrderNotFound, tradeNo)
		}
		return fmt.Errorf("%w: %w", ErrReconcileFailed, err)
	}

	if !o.IsPending() {
		log.Info("Order already processed, skipping", zap.String("status", string(o.Status)))
		return nil
	}

	updated, err := r.orders.Paid(ctx, o, callbackNo)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReconcileFailed, err)
	}
	if !updated {
		return nil
	}

	r.notifyPaid(ctx, o)
	return nil
}

func (r *Reconciler) notifyPaid(ctx context.Context, o *order.Order) {
	log := logger.FromCtx(ctx).With(zap.String("trade_no", o.TradeNo))

	method, name := "unknown", "unknown"
	if o.PaymentID != nil {
		inst, err := r.payments.GetByID(ctx, *o.PaymentID)
		if err != nil {
			log.Warn("Failed to load payment for notification", zap.Error(err))
		} else {
			method, name = inst.Method, inst.Name
		}
	}

	if err := r.notifier.NotifyAdmins(ctx, PaidMessage(o, method, name)); err != nil {
		log.Warn("Failed to send payment notification", zap.Error(err))
	}
}

// PaidMessage renders the admin notification for a settled order.
func PaidMessage(o *order.Order, method, name string) string {
	return fmt.Sprintf(
		"💰 Received %s\n"+
			"---------------\n"+
			"Gateway: %s\n"+
			"Channel: %s\n"+
			"Order: `%s`",
		decimal.NewFromInt(o.TotalAmount).Shift(-2).String(),
		method,
		name,
		o.TradeNo,
	)
}
