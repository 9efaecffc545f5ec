package integration

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/jobs"
)

type fakeInvalidator struct {
	calls int
	err   error
}

func (f *fakeInvalidator) Invalidate(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakeEnqueuer struct {
	payloads []jobs.AnalyticsRefreshPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueAnalyticsRefresh(ctx context.Context, payload jobs.AnalyticsRefreshPayload) (*asynq.TaskInfo, error) {
	f.payloads = append(f.payloads, payload)
	return nil, f.err
}

func TestHooksInvalidateAndEnqueue(t *testing.T) {
	inv := &fakeInvalidator{}
	enq := &fakeEnqueuer{}
	hooks := NewHooks(inv, enq, slog.Default())

	err := hooks.HandleOrderIssued(context.Background(), procurement.OrderIssuedEvent{
		Number: "PO-2026-00001",
		Total:  1062,
		At:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, 1, inv.calls)
	require.Len(t, enq.payloads, 1)
	require.Equal(t, "order:issued", enq.payloads[0].Reason)
	require.False(t, enq.payloads[0].RequestedAt.IsZero())
}

func TestHooksEnqueueFailureIsBestEffort(t *testing.T) {
	inv := &fakeInvalidator{}
	enq := &fakeEnqueuer{err: errors.New("queue full")}
	hooks := NewHooks(inv, enq, slog.Default())

	err := hooks.HandleReceiptPosted(context.Background(), procurement.ReceiptPostedEvent{
		Number:      "GRN-2026-00001",
		Value:       540,
		OrderStatus: procurement.OrderStatusPartial,
	})
	require.NoError(t, err)
	require.Equal(t, 1, inv.calls)
}

func TestHooksInvalidateFailurePropagates(t *testing.T) {
	inv := &fakeInvalidator{err: errors.New("redis down")}
	enq := &fakeEnqueuer{}
	hooks := NewHooks(inv, enq, slog.Default())

	err := hooks.HandleRequestChanged(context.Background(), procurement.RequestChangedEvent{
		Number: "PR-2026-00001",
		Status: procurement.RequestStatusQuoted,
	})
	require.Error(t, err)
	require.Empty(t, enq.payloads)
}

func TestHooksStatusReasons(t *testing.T) {
	enq := &fakeEnqueuer{}
	hooks := NewHooks(nil, enq, slog.Default())

	require.NoError(t, hooks.HandleOrderStatusChanged(context.Background(), procurement.OrderStatusEvent{
		From: procurement.OrderStatusSent,
		To:   procurement.OrderStatusConfirmed,
	}))
	require.NoError(t, hooks.HandleRequestChanged(context.Background(), procurement.RequestChangedEvent{
		Status: procurement.RequestStatusOrdered,
	}))
	require.Equal(t, []string{"order:CONFIRMED", "request:ORDERED"}, []string{enq.payloads[0].Reason, enq.payloads[1].Reason})
}
