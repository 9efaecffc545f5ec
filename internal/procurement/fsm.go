package procurement

import "fmt"

// Status transitions are validated in one place so callers cannot produce
// sequences the workflow does not define. Both entities move forward only;
// the sole escape hatches are CLOSED for requests and CANCELLED for orders.

var requestFlow = map[RequestStatus][]RequestStatus{
	RequestStatusPending:  {RequestStatusQuoted, RequestStatusClosed},
	RequestStatusQuoted:   {RequestStatusApproved, RequestStatusOrdered, RequestStatusClosed},
	RequestStatusApproved: {RequestStatusOrdered, RequestStatusClosed},
	RequestStatusOrdered:  {RequestStatusClosed},
	RequestStatusClosed:   {},
}

var orderFlow = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:     {OrderStatusSent, OrderStatusCancelled},
	OrderStatusSent:      {OrderStatusConfirmed, OrderStatusPartial, OrderStatusReceived, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPartial, OrderStatusReceived, OrderStatusCancelled},
	OrderStatusPartial:   {OrderStatusReceived, OrderStatusCancelled},
	OrderStatusReceived:  {},
	OrderStatusCancelled: {},
}

// TransitionRequest validates a request status change. Same-status is a no-op.
func TransitionRequest(from, to RequestStatus) error {
	if from == to {
		return nil
	}
	for _, next := range requestFlow[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: request %s -> %s", ErrInvalidTransition, from, to)
}

// TransitionOrder validates an order status change. Same-status is a no-op.
func TransitionOrder(from, to OrderStatus) error {
	if from == to {
		return nil
	}
	for _, next := range orderFlow[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: order %s -> %s", ErrInvalidTransition, from, to)
}

// CanReceive reports whether goods may still be booked against the order.
func CanReceive(status OrderStatus) bool {
	switch status {
	case OrderStatusSent, OrderStatusConfirmed, OrderStatusPartial:
		return true
	}
	return false
}

// manual targets permitted through UpdateOrderStatus; PARTIAL and RECEIVED
// are reachable only through goods receipts.
func manualOrderTransitionAllowed(from, to OrderStatus) bool {
	switch to {
	case OrderStatusConfirmed:
		return from == OrderStatusSent
	case OrderStatusCancelled:
		return !orderTerminal(from)
	}
	return false
}

func orderTerminal(status OrderStatus) bool {
	return status == OrderStatusReceived || status == OrderStatusCancelled
}
