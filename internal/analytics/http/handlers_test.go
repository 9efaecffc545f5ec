package analytichttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/analytics"
)

type stubService struct {
	savings analytics.SavingsReport
	stats   analytics.DashboardStats
	err     error
}

func (s *stubService) GetSavings(ctx context.Context) (analytics.SavingsReport, error) {
	return s.savings, s.err
}

func (s *stubService) GetStats(ctx context.Context) (analytics.DashboardStats, error) {
	return s.stats, s.err
}

func newDashboardRouter(svc DashboardService) chi.Router {
	h := NewHandler(slog.Default(), svc)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestDashboardSavings(t *testing.T) {
	svc := &stubService{savings: analytics.SavingsReport{
		Projects: []analytics.ProjectSavings{{ProjectRef: "PRJ-ALPHA", Budget: 1000, Actual: 900, Savings: 100, SavingsPercent: 10, Orders: 1}},
		Summary:  analytics.SavingsSummary{Budget: 1000, Actual: 900, Savings: 100, SavingsPercent: 10, Projects: 1},
	}}
	r := newDashboardRouter(svc)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard/savings", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var report analytics.SavingsReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	require.Len(t, report.Projects, 1)
	require.InDelta(t, 100.0, report.Summary.Savings, 0.001)
}

func TestDashboardStats(t *testing.T) {
	svc := &stubService{stats: analytics.DashboardStats{
		Requests:      []analytics.StatusCount{{Status: "PENDING", Count: 2, Total: 2500}},
		Orders:        []analytics.StatusCount{{Status: "SENT", Count: 1, Total: 1062}},
		OrderedValue:  1062,
		ReceivedValue: 540,
	}}
	r := newDashboardRouter(svc)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var stats analytics.DashboardStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.InDelta(t, 540.0, stats.ReceivedValue, 0.001)
	require.Equal(t, "PENDING", stats.Requests[0].Status)
}

func TestDashboardServiceFailure(t *testing.T) {
	r := newDashboardRouter(&stubService{err: errors.New("rollup failed")})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard/savings", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	// Detail stays empty so internals do not leak to callers.
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "Internal Error", problem["title"])
	require.NotContains(t, problem, "detail")
}
