package order

import (
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusCancelled OrderStatus = "cancelled"
	StatusCompleted OrderStatus = "completed"
)

// Order amounts are in minor currency units.
type Order struct {
	ID             int64
	TradeNo        string
	UserID         int64
	PaymentID      *int64
	Email          string
	TotalAmount    int64
	HandlingAmount int64
	Status         OrderStatus
	CallbackNo     string
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (o *Order) IsPending() bool {
	return o.Status == StatusPending
}

// BaseAmount is the total before any handling fee was added.
func (o *Order) BaseAmount() int64 {
	return o.TotalAmount - o.HandlingAmount
}
