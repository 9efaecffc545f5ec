package procurement

import (
	"context"
	"time"
)

// RequestChangedEvent signals that a purchase request was created or moved
// through its lifecycle.
type RequestChangedEvent struct {
	RequestID  int64
	Number     string
	Status     RequestStatus
	ProjectRef string
	At         time.Time
}

// OrderIssuedEvent captures a purchase order created from a quote.
type OrderIssuedEvent struct {
	OrderID    int64
	RequestID  int64
	QuoteID    int64
	Number     string
	Total      float64
	ProjectRef string
	At         time.Time
}

// ReceiptPostedEvent describes a posted goods receipt and the resulting
// order status.
type ReceiptPostedEvent struct {
	GRNID       int64
	OrderID     int64
	Number      string
	Value       float64
	OrderStatus OrderStatus
	At          time.Time
}

// OrderStatusEvent describes a manual order transition (confirmation or
// cancellation).
type OrderStatusEvent struct {
	OrderID int64
	Number  string
	From    OrderStatus
	To      OrderStatus
	At      time.Time
}

// IntegrationHandler receives procurement domain events, typically to
// invalidate analytics rollups and schedule background refreshes.
type IntegrationHandler interface {
	HandleRequestChanged(ctx context.Context, evt RequestChangedEvent) error
	HandleOrderIssued(ctx context.Context, evt OrderIssuedEvent) error
	HandleOrderStatusChanged(ctx context.Context, evt OrderStatusEvent) error
	HandleReceiptPosted(ctx context.Context, evt ReceiptPostedEvent) error
}
