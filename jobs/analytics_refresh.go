package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/analytics"
	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AnalyticsRefreshJob warms the cached procurement rollups after a mutation
// bumped the cache version.
type AnalyticsRefreshJob struct {
	Analytics *analytics.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewAnalyticsRefreshJob wires dependencies for the refresh handler.
func NewAnalyticsRefreshJob(analyticsSvc *analytics.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnalyticsRefreshJob {
	return &AnalyticsRefreshJob{
		Analytics: analyticsSvc,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes analytics refresh tasks.
func (j *AnalyticsRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Analytics == nil {
		return errors.New("analytics refresh: handler not configured")
	}
	var payload AnalyticsRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskAnalyticsRefresh)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	start := j.now()

	if _, err := j.Analytics.GetSavings(ctx); err != nil {
		resultErr = err
		logger.Error("warm savings rollup", slog.Any("error", err))
		return resultErr
	}
	if _, err := j.Analytics.GetStats(ctx); err != nil {
		resultErr = err
		logger.Error("warm dashboard stats", slog.Any("error", err))
		return resultErr
	}

	logger.Info("analytics refresh complete", slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *AnalyticsRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AnalyticsRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *AnalyticsRefreshJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
