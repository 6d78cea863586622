package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"btcpay-bridge/internal/logger"
	"btcpay-bridge/internal/payment"

	"go.uber.org/zap"
)

type Service interface {
	GetByTradeNo(ctx context.Context, tradeNo string) (*Order, error)
	// Paid transitions a pending order to paid. It reports false when another
	// delivery already did so.
	Paid(ctx context.Context, o *Order, callbackNo string) (bool, error)
	Checkout(ctx context.Context, tradeNo string, paymentID int64) (*payment.PayResult, error)
}

type service struct {
	repo        Repository
	paymentRepo payment.Repository
	methods     *payment.Registry
	urls        *payment.URLBuilder
	now         func() time.Time
}

func NewService(repo Repository, payRepo payment.Repository, methods *payment.Registry, urls *payment.URLBuilder) Service {
	return &service{
		repo:        repo,
		paymentRepo: payRepo,
		methods:     methods,
		urls:        urls,
		now:         time.Now,
	}
}

func (s *service) GetByTradeNo(ctx context.Context, tradeNo string) (*Order, error) {
	return s.repo.GetByTradeNo(ctx, tradeNo)
}

func (s *service) Paid(ctx context.Context, o *Order, callbackNo string) (bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("trade_no", o.TradeNo),
		zap.String("callback_no", callbackNo),
	)

	updated, err := s.repo.MarkPaid(ctx, o.TradeNo, callbackNo, s.now())
	if err != nil {
		log.Error("Failed to mark order paid", zap.Error(err))
		return false, err
	}
	if !updated {
		log.Info("Order already settled by another delivery")
		return false, nil
	}

	o.Status = StatusPaid
	o.CallbackNo = callbackNo
	log.Info("Order marked as paid")
	return true, nil
}

func (s *service) Checkout(ctx context.Context, tradeNo string, paymentID int64) (*payment.PayResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("trade_no", tradeNo),
		zap.Int64("payment_id", paymentID),
	)

	o, err := s.repo.GetByTradeNo(ctx, tradeNo)
	if err != nil {
		return nil, err
	}
	if !o.IsPending() {
		return nil, ErrOrderNotPending
	}

	inst, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, payment.ErrInstanceNotFound) {
			return nil, ErrPaymentUnavailable
		}
		return nil, err
	}
	if !inst.Enabled {
		return nil, ErrPaymentUnavailable
	}

	method, err := s.methods.Get(inst.Method)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentUnavailable, err)
	}

	base := o.BaseAmount()
	handling := inst.Config.HandlingFee(base)
	total := base + handling
	if err := s.repo.SetPayment(ctx, o.ID, inst.ID, handling, total); err != nil {
		return nil, err
	}

	userID := o.UserID
	req := payment.InvoiceRequest{
		AmountMinor: total,
		OrderID:     o.TradeNo,
		UserID:      &userID,
		BuyerEmail:  o.Email,
		RedirectURL: s.urls.ReturnURL(o.TradeNo),
		NotifyURL:   s.urls.NotifyURL(*inst),
	}

	result, err := method.Pay(ctx, inst.Config, req)
	if err != nil {
		log.Error("Failed to create payment", zap.Error(err))
		return nil, err
	}

	log.Info("Checkout created",
		zap.Int64("total_amount", total),
		zap.Int64("handling_amount", handling),
	)
	return result, nil
}
