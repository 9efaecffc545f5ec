// Package analytics computes read-only rollups over the procurement data:
// budget versus actual purchase cost, and dashboard status counts.
package analytics

// SavingsRow is the raw per-project aggregate fetched from storage.
type SavingsRow struct {
	ProjectRef string
	Budget     float64
	Actual     float64
	Orders     int
}

// ProjectSavings reports budget versus actual spend for one project.
type ProjectSavings struct {
	ProjectRef     string  `json:"project_ref"`
	Budget         float64 `json:"budget"`
	Actual         float64 `json:"actual"`
	Savings        float64 `json:"savings"`
	SavingsPercent float64 `json:"savings_percent"`
	Orders         int     `json:"orders"`
}

// SavingsSummary aggregates the rollup across the whole scope.
type SavingsSummary struct {
	Budget         float64 `json:"budget"`
	Actual         float64 `json:"actual"`
	Savings        float64 `json:"savings"`
	SavingsPercent float64 `json:"savings_percent"`
	Projects       int     `json:"projects"`
}

// SavingsReport is the dashboard payload for GET /dashboard/savings.
type SavingsReport struct {
	Projects []ProjectSavings `json:"projects"`
	Summary  SavingsSummary   `json:"summary"`
}

// StatusCount counts documents per status with their monetary total.
type StatusCount struct {
	Status string  `json:"status"`
	Count  int     `json:"count"`
	Total  float64 `json:"total"`
}

// DashboardStats is the payload for GET /dashboard/stats.
type DashboardStats struct {
	Requests      []StatusCount `json:"requests"`
	Orders        []StatusCount `json:"orders"`
	OrderedValue  float64       `json:"ordered_value"`
	ReceivedValue float64       `json:"received_value"`
}
