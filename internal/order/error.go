package order

import "errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPending    = errors.New("order is not pending")
	ErrPaymentUnavailable = errors.New("payment method unavailable")
)
