package jobs

import (
	"context"
	"time"

	"paperdigest/internal/logging"
	"paperdigest/internal/services"
)

// MetricsReportJob periodically logs a summary of the API monitor statistics
type MetricsReportJob struct {
	monitor  *services.APIMonitor
	logStore *services.RequestLogStore
	lookback time.Duration
	lastRun  time.Time
}

// NewMetricsReportJob creates the report job. logStore can be nil.
func NewMetricsReportJob(monitor *services.APIMonitor, logStore *services.RequestLogStore, lookback time.Duration) *MetricsReportJob {
	if lookback <= 0 {
		lookback = time.Hour
	}
	return &MetricsReportJob{
		monitor:  monitor,
		logStore: logStore,
		lookback: lookback,
	}
}

// Run logs one line per endpoint and flags those above the alert threshold
func (j *MetricsReportJob) Run(ctx context.Context) error {
	j.lastRun = time.Now().UTC()
	logger := logging.WithJob("metrics_report")

	snapshot := j.monitor.Snapshot()
	if len(snapshot) == 0 {
		logger.Info("no api traffic recorded")
		return nil
	}

	var requests, failures int64
	for _, em := range snapshot {
		requests += em.RequestCount
		failures += em.ErrorCount

		attrs := []any{
			"endpoint", em.Endpoint,
			"requests", em.RequestCount,
			"avg_ms", em.AverageResponseTimeMs,
			"error_rate", em.ErrorRate,
		}
		if em.ErrorRate > services.ErrorRateAlertThreshold {
			logger.Warn("endpoint above error threshold", attrs...)
		} else {
			logger.Info("endpoint stats", attrs...)
		}
	}

	attrs := []any{"endpoints", len(snapshot), "requests", requests, "errors", failures}
	if j.logStore != nil {
		recent, err := j.logStore.RecentErrors(ctx, j.lastRun.Add(-j.lookback), 100)
		if err != nil {
			logger.Warn("failed to read persisted request errors", "error", err)
		} else {
			attrs = append(attrs, "persisted_errors", len(recent))
		}
	}
	logger.Info("api metrics report", attrs...)
	return nil
}
