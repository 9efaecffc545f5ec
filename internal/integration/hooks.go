package integration

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/money"
	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/jobs"
)

const currencyCode = "INR"

// CacheInvalidator bumps the analytics cache version after a mutation.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// RefreshEnqueuer schedules a background rebuild of the cached rollups.
type RefreshEnqueuer interface {
	EnqueueAnalyticsRefresh(ctx context.Context, payload jobs.AnalyticsRefreshPayload) (*asynq.TaskInfo, error)
}

// Hooks wires procurement domain events into the analytics cache and the
// background job queue.
type Hooks struct {
	cache  CacheInvalidator
	queue  RefreshEnqueuer
	logger *slog.Logger
}

// NewHooks constructs integration hooks. Either dependency may be nil; the
// hooks degrade to no-ops for the missing side.
func NewHooks(cache CacheInvalidator, queue RefreshEnqueuer, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{cache: cache, queue: queue, logger: logger}
}

// HandleRequestChanged invalidates rollups after a purchase request mutation.
func (h *Hooks) HandleRequestChanged(ctx context.Context, evt procurement.RequestChangedEvent) error {
	return h.refresh(ctx, "request:"+string(evt.Status), evt.At)
}

// HandleOrderIssued invalidates rollups after a purchase order is created.
func (h *Hooks) HandleOrderIssued(ctx context.Context, evt procurement.OrderIssuedEvent) error {
	if h == nil {
		return nil
	}
	h.logger.Info("purchase order issued",
		slog.String("number", evt.Number),
		slog.String("total", money.Format(evt.Total, currencyCode)))
	return h.refresh(ctx, "order:issued", evt.At)
}

// HandleOrderStatusChanged invalidates rollups after a manual order transition.
func (h *Hooks) HandleOrderStatusChanged(ctx context.Context, evt procurement.OrderStatusEvent) error {
	return h.refresh(ctx, "order:"+string(evt.To), evt.At)
}

// HandleReceiptPosted invalidates rollups after a goods receipt is posted.
func (h *Hooks) HandleReceiptPosted(ctx context.Context, evt procurement.ReceiptPostedEvent) error {
	if h == nil {
		return nil
	}
	h.logger.Info("goods receipt posted",
		slog.String("number", evt.Number),
		slog.String("value", money.Format(evt.Value, currencyCode)),
		slog.String("order_status", string(evt.OrderStatus)))
	return h.refresh(ctx, "grn:posted", evt.At)
}

// refresh bumps the cache version synchronously and enqueues a warmup. The
// enqueue is best effort; a full queue must not fail the business operation.
func (h *Hooks) refresh(ctx context.Context, reason string, at time.Time) error {
	if h == nil {
		return nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx); err != nil {
			return err
		}
	}
	if h.queue != nil {
		payload := jobs.AnalyticsRefreshPayload{Reason: reason, RequestedAt: at}
		if _, err := h.queue.EnqueueAnalyticsRefresh(ctx, payload); err != nil {
			h.logger.Warn("enqueue analytics refresh", slog.String("reason", reason), slog.Any("error", err))
		}
	}
	return nil
}
