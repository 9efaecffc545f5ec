// Package analytichttp serves the procurement dashboard rollups as JSON.
package analytichttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/analytics"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

const requestTimeout = 2 * time.Second

// DashboardService defines the rollup contract used by the handler.
type DashboardService interface {
	GetSavings(ctx context.Context) (analytics.SavingsReport, error)
	GetStats(ctx context.Context) (analytics.DashboardStats, error)
}

// Handler coordinates HTTP requests for the procurement dashboard.
type Handler struct {
	logger  *slog.Logger
	service DashboardService
}

// NewHandler constructs the analytics HTTP handler.
func NewHandler(logger *slog.Logger, service DashboardService) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	stats, err := h.service.GetStats(ctx)
	if err != nil {
		h.logger.Error("load dashboard stats", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleSavings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := h.service.GetSavings(ctx)
	if err != nil {
		h.logger.Error("load savings rollup", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
