package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAnalyticsRefresh rebuilds the cached savings and dashboard rollups.
	TaskAnalyticsRefresh = "analytics:refresh"
)

// AnalyticsRefreshPayload carries context about what triggered the refresh.
type AnalyticsRefreshPayload struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewAnalyticsRefreshTask constructs an Asynq task for an analytics refresh.
func NewAnalyticsRefreshTask(payload AnalyticsRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAnalyticsRefresh, data, asynq.Queue(QueueDefault)), nil
}
