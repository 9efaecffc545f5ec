package procurement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionRequestForwardOnly(t *testing.T) {
	require.NoError(t, TransitionRequest(RequestStatusPending, RequestStatusQuoted))
	require.NoError(t, TransitionRequest(RequestStatusQuoted, RequestStatusApproved))
	require.NoError(t, TransitionRequest(RequestStatusQuoted, RequestStatusOrdered))
	require.NoError(t, TransitionRequest(RequestStatusApproved, RequestStatusOrdered))
	require.NoError(t, TransitionRequest(RequestStatusOrdered, RequestStatusClosed))

	// Backward moves are rejected everywhere.
	require.ErrorIs(t, TransitionRequest(RequestStatusQuoted, RequestStatusPending), ErrInvalidTransition)
	require.ErrorIs(t, TransitionRequest(RequestStatusOrdered, RequestStatusQuoted), ErrInvalidTransition)
	require.ErrorIs(t, TransitionRequest(RequestStatusClosed, RequestStatusPending), ErrInvalidTransition)

	// Skipping straight from PENDING to ORDERED is not defined.
	require.ErrorIs(t, TransitionRequest(RequestStatusPending, RequestStatusOrdered), ErrInvalidTransition)
}

func TestTransitionRequestSameStatusNoOp(t *testing.T) {
	require.NoError(t, TransitionRequest(RequestStatusClosed, RequestStatusClosed))
}

func TestTransitionOrder(t *testing.T) {
	require.NoError(t, TransitionOrder(OrderStatusSent, OrderStatusConfirmed))
	require.NoError(t, TransitionOrder(OrderStatusSent, OrderStatusPartial))
	require.NoError(t, TransitionOrder(OrderStatusConfirmed, OrderStatusReceived))
	require.NoError(t, TransitionOrder(OrderStatusPartial, OrderStatusCancelled))

	require.ErrorIs(t, TransitionOrder(OrderStatusReceived, OrderStatusPartial), ErrInvalidTransition)
	require.ErrorIs(t, TransitionOrder(OrderStatusCancelled, OrderStatusSent), ErrInvalidTransition)
	require.ErrorIs(t, TransitionOrder(OrderStatusPartial, OrderStatusSent), ErrInvalidTransition)
}

func TestCanReceive(t *testing.T) {
	require.True(t, CanReceive(OrderStatusSent))
	require.True(t, CanReceive(OrderStatusConfirmed))
	require.True(t, CanReceive(OrderStatusPartial))
	require.False(t, CanReceive(OrderStatusReceived))
	require.False(t, CanReceive(OrderStatusCancelled))
	require.False(t, CanReceive(OrderStatusDraft))
}

func TestManualOrderTransitionAllowed(t *testing.T) {
	require.True(t, manualOrderTransitionAllowed(OrderStatusSent, OrderStatusConfirmed))
	require.True(t, manualOrderTransitionAllowed(OrderStatusSent, OrderStatusCancelled))
	require.True(t, manualOrderTransitionAllowed(OrderStatusPartial, OrderStatusCancelled))

	require.False(t, manualOrderTransitionAllowed(OrderStatusConfirmed, OrderStatusConfirmed))
	require.False(t, manualOrderTransitionAllowed(OrderStatusSent, OrderStatusPartial))
	require.False(t, manualOrderTransitionAllowed(OrderStatusSent, OrderStatusReceived))
	require.False(t, manualOrderTransitionAllowed(OrderStatusReceived, OrderStatusCancelled))
	require.False(t, manualOrderTransitionAllowed(OrderStatusCancelled, OrderStatusCancelled))
}
