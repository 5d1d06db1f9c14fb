package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"paperdigest/internal/logging"
)

// Error-rate alerting
const (
	ErrorRateAlertThreshold = 0.05
	errorRateAlertCooldown  = 5 * time.Minute
	requestLogWriteTimeout  = 5 * time.Second
)

// RequestLog is one structured API request record
type RequestLog struct {
	Timestamp     time.Time `json:"timestamp" bson:"timestamp"`
	Endpoint      string    `json:"endpoint" bson:"endpoint"`
	Method        string    `json:"method" bson:"method"`
	UserID        string    `json:"user_id,omitempty" bson:"userId,omitempty"`
	DurationMs    float64   `json:"duration_ms" bson:"durationMs"`
	StatusCode    int       `json:"status_code" bson:"statusCode"`
	OperationType string    `json:"operation_type,omitempty" bson:"operationType,omitempty"` // create, read, update, delete
	ErrorCode     string    `json:"error_code,omitempty" bson:"errorCode,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty" bson:"errorMessage,omitempty"`
}

// LastError is the most recent failure seen on an endpoint
type LastError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// EndpointMetrics aggregates requests for one method and route
type EndpointMetrics struct {
	Endpoint              string     `json:"endpoint"`
	RequestCount          int64      `json:"request_count"`
	AverageResponseTimeMs float64    `json:"average_response_time_ms"`
	ErrorCount            int64      `json:"error_count"`
	ErrorRate             float64    `json:"error_rate"`
	LastError             *LastError `json:"last_error,omitempty"`
}

// RequestLogSink persists request records
type RequestLogSink interface {
	Insert(ctx context.Context, entry *RequestLog) error
}

// APIMonitor keeps per-endpoint request statistics in memory and raises an
// alert when an endpoint's error rate passes ErrorRateAlertThreshold
type APIMonitor struct {
	mu      sync.Mutex
	metrics map[string]*EndpointMetrics

	// endpoint -> struct{}; present while an alert is cooling down
	alerts *cache.Cache
	sink   RequestLogSink
	logger *slog.Logger

	pending sync.WaitGroup
}

// NewAPIMonitor creates a monitor. sink may be nil.
func NewAPIMonitor(sink RequestLogSink) *APIMonitor {
	return &APIMonitor{
		metrics: make(map[string]*EndpointMetrics),
		alerts:  cache.New(errorRateAlertCooldown, 10*time.Minute),
		sink:    sink,
		logger:  slog.Default(),
	}
}

// Record logs a request, folds it into the endpoint statistics and checks the error rate
func (m *APIMonitor) Record(entry RequestLog) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	key := fmt.Sprintf("%s %s", entry.Method, entry.Endpoint)

	logger := logging.WithRequest(entry.Method, entry.Endpoint, entry.UserID)
	attrs := []any{"status", entry.StatusCode, "duration_ms", entry.DurationMs}
	if entry.ErrorCode != "" {
		attrs = append(attrs, "error_code", entry.ErrorCode)
	}
	if entry.StatusCode >= 500 {
		logger.Error("api request", attrs...)
	} else {
		logger.Info("api request", attrs...)
	}

	snapshot := m.update(key, entry)
	if snapshot.ErrorRate > ErrorRateAlertThreshold {
		m.alert(snapshot)
	}

	if m.sink != nil {
		m.pending.Add(1)
		go func(e RequestLog) {
			defer m.pending.Done()
			ctx, cancel := context.WithTimeout(context.Background(), requestLogWriteTimeout)
			defer cancel()
			if err := m.sink.Insert(ctx, &e); err != nil {
				m.logger.Warn("failed to persist request log", "endpoint", e.Endpoint, "error", err)
			}
		}(entry)
	}
}

func (m *APIMonitor) update(key string, entry RequestLog) EndpointMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.metrics[key]
	if !ok {
		current = &EndpointMetrics{Endpoint: key}
		m.metrics[key] = current
	}

	current.RequestCount++
	n := float64(current.RequestCount)
	current.AverageResponseTimeMs = (current.AverageResponseTimeMs*(n-1) + entry.DurationMs) / n

	if entry.StatusCode >= 400 {
		current.ErrorCount++
		if entry.ErrorCode != "" {
			current.LastError = &LastError{
				Code:      entry.ErrorCode,
				Message:   entry.ErrorMessage,
				Timestamp: entry.Timestamp,
			}
		}
	}
	current.ErrorRate = float64(current.ErrorCount) / n

	return copyMetrics(current)
}

func (m *APIMonitor) alert(metrics EndpointMetrics) {
	// Add fails while a previous alert for this endpoint is still cooling down
	if err := m.alerts.Add(metrics.Endpoint, struct{}{}, cache.DefaultExpiration); err != nil {
		return
	}
	m.logger.Error("HIGH ERROR RATE ALERT",
		"endpoint", metrics.Endpoint,
		"error_rate_pct", metrics.ErrorRate*100,
		"error_count", metrics.ErrorCount,
		"request_count", metrics.RequestCount,
	)
}

// Snapshot returns a copy of all endpoint statistics, sorted by endpoint
func (m *APIMonitor) Snapshot() []EndpointMetrics {
	m.mu.Lock()
	out := make([]EndpointMetrics, 0, len(m.metrics))
	for _, em := range m.metrics {
		out = append(out, copyMetrics(em))
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// Flush waits for in-flight request log writes
func (m *APIMonitor) Flush() {
	m.pending.Wait()
}

func copyMetrics(em *EndpointMetrics) EndpointMetrics {
	c := *em
	if em.LastError != nil {
		le := *em.LastError
		c.LastError = &le
	}
	return c
}
