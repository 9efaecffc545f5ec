package analytics

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository computes aggregates with SQL directly against the pool.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// SavingsRows joins planned spend (request estimates) against actual spend
// (orders that are confirmed or further along) per project.
func (r *PGRepository) SavingsRows(ctx context.Context) ([]SavingsRow, error) {
	rows, err := r.pool.Query(ctx, `
SELECT COALESCE(b.project_ref, a.project_ref) AS project_ref,
       COALESCE(b.budget, 0)                  AS budget,
       COALESCE(a.actual, 0)                  AS actual,
       COALESCE(a.orders, 0)                  AS orders
FROM (
    SELECT project_ref, SUM(total_estimated) AS budget
    FROM purchase_requests
    WHERE project_ref IS NOT NULL
    GROUP BY project_ref
) b
FULL OUTER JOIN (
    SELECT project_ref, SUM(total_amount) AS actual, COUNT(*) AS orders
    FROM purchase_orders
    WHERE project_ref IS NOT NULL
      AND status IN ('CONFIRMED', 'PARTIAL', 'RECEIVED')
    GROUP BY project_ref
) a ON a.project_ref = b.project_ref
ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []SavingsRow
	for rows.Next() {
		var row SavingsRow
		if err := rows.Scan(&row.ProjectRef, &row.Budget, &row.Actual, &row.Orders); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// RequestStatusCounts groups purchase requests by status.
func (r *PGRepository) RequestStatusCounts(ctx context.Context) ([]StatusCount, error) {
	return r.statusCounts(ctx, `SELECT status, COUNT(*), COALESCE(SUM(total_estimated),0) FROM purchase_requests GROUP BY status ORDER BY status`)
}

// OrderStatusCounts groups purchase orders by status.
func (r *PGRepository) OrderStatusCounts(ctx context.Context) ([]StatusCount, error) {
	return r.statusCounts(ctx, `SELECT status, COUNT(*), COALESCE(SUM(total_amount),0) FROM purchase_orders GROUP BY status ORDER BY status`)
}

// ReceiptTotals sums ordered versus received value across live orders.
func (r *PGRepository) ReceiptTotals(ctx context.Context) (float64, float64, error) {
	var ordered, received float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount),0), COALESCE(SUM(received_amount),0) FROM purchase_orders WHERE status <> 'CANCELLED'`).Scan(&ordered, &received)
	return ordered, received, err
}

func (r *PGRepository) statusCounts(ctx context.Context, query string) ([]StatusCount, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count, &sc.Total); err != nil {
			return nil, err
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}
