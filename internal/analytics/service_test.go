package analytics

import (
	"context"
	"math"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockRepo struct {
	savingsRows  []SavingsRow
	savingsCalls int
	requestRows  []StatusCount
	requestCalls int
	orderRows    []StatusCount
	orderCalls   int
	ordered      float64
	received     float64
	totalCalls   int
}

func (m *mockRepo) SavingsRows(ctx context.Context) ([]SavingsRow, error) {
	m.savingsCalls++
	return m.savingsRows, nil
}

func (m *mockRepo) RequestStatusCounts(ctx context.Context) ([]StatusCount, error) {
	m.requestCalls++
	return m.requestRows, nil
}

func (m *mockRepo) OrderStatusCounts(ctx context.Context) ([]StatusCount, error) {
	m.orderCalls++
	return m.orderRows, nil
}

func (m *mockRepo) ReceiptTotals(ctx context.Context) (float64, float64, error) {
	m.totalCalls++
	return m.ordered, m.received, nil
}

func newTestService(t *testing.T, repo Repository) (*Service, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	svc := NewService(repo, cache)
	return svc, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestGetSavingsCaches(t *testing.T) {
	repo := &mockRepo{
		savingsRows: []SavingsRow{
			{ProjectRef: "PRJ-ALPHA", Budget: 1000, Actual: 900, Orders: 1},
		},
	}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()
	ctx := context.Background()

	report, err := svc.GetSavings(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(report.Projects))
	}
	if report.Projects[0].Savings != 100 {
		t.Fatalf("expected savings 100 got %.2f", report.Projects[0].Savings)
	}
	if repo.savingsCalls != 1 {
		t.Fatalf("expected 1 repo call, got %d", repo.savingsCalls)
	}

	// Second call should hit cache.
	if _, err := svc.GetSavings(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.savingsCalls != 1 {
		t.Fatalf("expected cached read, repo calls %d", repo.savingsCalls)
	}
}

func TestInvalidateBustsCache(t *testing.T) {
	repo := &mockRepo{savingsRows: []SavingsRow{{ProjectRef: "PRJ-ALPHA", Budget: 500, Actual: 400}}}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()
	ctx := context.Background()

	if _, err := svc.GetSavings(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Invalidate(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetSavings(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.savingsCalls != 2 {
		t.Fatalf("expected reload after bump, repo calls %d", repo.savingsCalls)
	}
}

func TestGetStatsAssemblesSections(t *testing.T) {
	repo := &mockRepo{
		requestRows: []StatusCount{{Status: "PENDING", Count: 2, Total: 2500}},
		orderRows:   []StatusCount{{Status: "SENT", Count: 1, Total: 1062}},
		ordered:     1062,
		received:    540,
	}
	svc, cleanup := newTestService(t, repo)
	defer cleanup()

	stats, err := svc.GetStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats.Requests) != 1 || stats.Requests[0].Status != "PENDING" {
		t.Fatalf("unexpected requests section: %+v", stats.Requests)
	}
	if len(stats.Orders) != 1 || stats.Orders[0].Total != 1062 {
		t.Fatalf("unexpected orders section: %+v", stats.Orders)
	}
	if stats.OrderedValue != 1062 || stats.ReceivedValue != 540 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if repo.requestCalls != 1 || repo.orderCalls != 1 || repo.totalCalls != 1 {
		t.Fatalf("expected one call per section")
	}
}

func TestServiceWorksWithoutRedis(t *testing.T) {
	repo := &mockRepo{savingsRows: []SavingsRow{{ProjectRef: "PRJ-ALPHA", Budget: 100, Actual: 50}}}
	svc := NewService(repo, nil)

	report, err := svc.GetSavings(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Summary.Savings != 50 {
		t.Fatalf("expected savings 50 got %.2f", report.Summary.Savings)
	}
	if err := svc.Invalidate(context.Background()); err != nil {
		t.Fatalf("nil cache bump should be a no-op, got %v", err)
	}
}

func TestBuildSavingsReport(t *testing.T) {
	rows := []SavingsRow{
		{ProjectRef: "PRJ-ALPHA", Budget: 1000, Actual: 900, Orders: 2},
		{ProjectRef: "PRJ-BETA", Budget: 0, Actual: 150, Orders: 1},
		{ProjectRef: "PRJ-GAMMA", Budget: 400, Actual: 500, Orders: 1},
	}
	report := BuildSavingsReport(rows)

	if len(report.Projects) != 3 {
		t.Fatalf("expected 3 projects, got %d", len(report.Projects))
	}
	alpha := report.Projects[0]
	if alpha.Savings != 100 || alpha.SavingsPercent != 10 {
		t.Fatalf("unexpected alpha rollup: %+v", alpha)
	}
	beta := report.Projects[1]
	if beta.Savings != -150 || beta.SavingsPercent != 0 {
		t.Fatalf("zero budget must not divide: %+v", beta)
	}
	gamma := report.Projects[2]
	if gamma.Savings != -100 || gamma.SavingsPercent != -25 {
		t.Fatalf("overspend reports negative savings: %+v", gamma)
	}

	if report.Summary.Budget != 1400 || report.Summary.Actual != 1550 {
		t.Fatalf("unexpected summary: %+v", report.Summary)
	}
	if report.Summary.Projects != 3 {
		t.Fatalf("expected 3 projects in summary, got %d", report.Summary.Projects)
	}
}

func TestComputeSavingsNeverNaN(t *testing.T) {
	for _, budget := range []float64{0, 100, -0.0} {
		_, pct := ComputeSavings(budget, 50)
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			t.Fatalf("budget %.2f produced %v", budget, pct)
		}
	}
}
