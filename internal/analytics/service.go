package analytics

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/money"
)

// Repository exposes the aggregates the rollups are computed from.
type Repository interface {
	SavingsRows(ctx context.Context) ([]SavingsRow, error)
	RequestStatusCounts(ctx context.Context) ([]StatusCount, error)
	OrderStatusCounts(ctx context.Context) ([]StatusCount, error)
	ReceiptTotals(ctx context.Context) (ordered float64, received float64, err error)
}

// Service coordinates rollup execution with the cache layer. Rollups are pure
// functions of the persisted entity set; the cache only memoises them and is
// invalidated by version bumps whenever requests or orders change.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// GetSavings returns the budget/actual rollup per project plus the aggregate.
func (s *Service) GetSavings(ctx context.Context) (SavingsReport, error) {
	key, err := s.cache.BuildKey(ctx, "procure", "savings")
	if err != nil {
		return SavingsReport{}, err
	}
	var report SavingsReport
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
		rows, err := s.repo.SavingsRows(ctx)
		if err != nil {
			return nil, err
		}
		return BuildSavingsReport(rows), nil
	})
	return report, err
}

// GetStats returns per-status document counts and receipt totals.
func (s *Service) GetStats(ctx context.Context) (DashboardStats, error) {
	key, err := s.cache.BuildKey(ctx, "procure", "stats")
	if err != nil {
		return DashboardStats{}, err
	}
	var stats DashboardStats
	err = s.cache.FetchJSON(ctx, key, &stats, func(ctx context.Context) (interface{}, error) {
		var out DashboardStats
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			rows, err := s.repo.RequestStatusCounts(gctx)
			out.Requests = rows
			return err
		})
		g.Go(func() error {
			rows, err := s.repo.OrderStatusCounts(gctx)
			out.Orders = rows
			return err
		})
		g.Go(func() error {
			ordered, received, err := s.repo.ReceiptTotals(gctx)
			out.OrderedValue, out.ReceivedValue = ordered, received
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	})
	return stats, err
}

// Invalidate bumps the cache version after procurement writes.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// BuildSavingsReport folds raw rows into the report. Pure and deterministic.
func BuildSavingsReport(rows []SavingsRow) SavingsReport {
	report := SavingsReport{Projects: make([]ProjectSavings, 0, len(rows))}
	for _, row := range rows {
		savings, pct := ComputeSavings(row.Budget, row.Actual)
		report.Projects = append(report.Projects, ProjectSavings{
			ProjectRef:     row.ProjectRef,
			Budget:         money.Round2(row.Budget),
			Actual:         money.Round2(row.Actual),
			Savings:        savings,
			SavingsPercent: pct,
			Orders:         row.Orders,
		})
		report.Summary.Budget += row.Budget
		report.Summary.Actual += row.Actual
		report.Summary.Projects++
	}
	report.Summary.Budget = money.Round2(report.Summary.Budget)
	report.Summary.Actual = money.Round2(report.Summary.Actual)
	report.Summary.Savings, report.Summary.SavingsPercent = ComputeSavings(report.Summary.Budget, report.Summary.Actual)
	return report
}

// ComputeSavings returns budget-actual and the percentage saved. A zero
// budget yields a zero percentage, never NaN or infinity.
func ComputeSavings(budget, actual float64) (savings float64, percent float64) {
	savings = money.Round2(budget - actual)
	if budget == 0 {
		return savings, 0
	}
	return savings, money.Round2(savings / budget * 100)
}
