package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memorySink struct {
	mu      sync.Mutex
	entries []RequestLog
	err     error
}

func (s *memorySink) Insert(ctx context.Context, entry *RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return s.err
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestAPIMonitor_Record(t *testing.T) {
	monitor := NewAPIMonitor(nil)

	monitor.Record(RequestLog{Endpoint: "/api/summaries", Method: "GET", StatusCode: 200, DurationMs: 10})
	monitor.Record(RequestLog{Endpoint: "/api/summaries", Method: "GET", StatusCode: 200, DurationMs: 30})
	monitor.Record(RequestLog{Endpoint: "/api/summaries", Method: "POST", StatusCode: 201, DurationMs: 5})

	snapshot := monitor.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("Expected 2 endpoints, got %d", len(snapshot))
	}

	get := snapshot[0]
	if get.Endpoint != "GET /api/summaries" {
		t.Errorf("Expected sorted endpoints, first is %q", get.Endpoint)
	}
	if get.RequestCount != 2 {
		t.Errorf("Expected 2 requests, got %d", get.RequestCount)
	}
	if get.AverageResponseTimeMs != 20 {
		t.Errorf("Expected average 20ms, got %v", get.AverageResponseTimeMs)
	}
	if get.ErrorCount != 0 || get.ErrorRate != 0 || get.LastError != nil {
		t.Errorf("Expected no errors, got %+v", get)
	}
}

func TestAPIMonitor_ErrorRate(t *testing.T) {
	monitor := NewAPIMonitor(nil)
	at := time.Date(2025, 2, 2, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		monitor.Record(RequestLog{Endpoint: "/api/summaries/:id", Method: "GET", StatusCode: 200})
	}
	monitor.Record(RequestLog{
		Timestamp:    at,
		Endpoint:     "/api/summaries/:id",
		Method:       "GET",
		StatusCode:   404,
		ErrorCode:    "NOT_FOUND",
		ErrorMessage: "Summary not found",
	})

	em := monitor.Snapshot()[0]
	if em.ErrorCount != 1 {
		t.Errorf("Expected 1 error, got %d", em.ErrorCount)
	}
	if em.ErrorRate != 0.25 {
		t.Errorf("Expected error rate 0.25, got %v", em.ErrorRate)
	}
	if em.LastError == nil || em.LastError.Code != "NOT_FOUND" || !em.LastError.Timestamp.Equal(at) {
		t.Errorf("Unexpected last error: %+v", em.LastError)
	}

	// A second alert within the cooldown is suppressed
	monitor.Record(RequestLog{Endpoint: "/api/summaries/:id", Method: "GET", StatusCode: 500, ErrorCode: "INTERNAL_ERROR"})
	if _, found := monitor.alerts.Get("GET /api/summaries/:id"); !found {
		t.Error("Expected alert cooldown to be active")
	}
}

func TestAPIMonitor_SnapshotIsACopy(t *testing.T) {
	monitor := NewAPIMonitor(nil)
	monitor.Record(RequestLog{Endpoint: "/x", Method: "GET", StatusCode: 400, ErrorCode: "VALIDATION_ERROR"})

	snapshot := monitor.Snapshot()
	snapshot[0].RequestCount = 99
	snapshot[0].LastError.Code = "CHANGED"

	again := monitor.Snapshot()[0]
	if again.RequestCount != 1 || again.LastError.Code != "VALIDATION_ERROR" {
		t.Errorf("Snapshot mutation leaked into monitor: %+v", again)
	}
}

func TestAPIMonitor_Sink(t *testing.T) {
	sink := &memorySink{}
	monitor := NewAPIMonitor(sink)

	for i := 0; i < 5; i++ {
		monitor.Record(RequestLog{Endpoint: "/api/users/me", Method: "GET", StatusCode: 200, UserID: "alice"})
	}
	monitor.Flush()

	if sink.count() != 5 {
		t.Errorf("Expected 5 persisted entries, got %d", sink.count())
	}
	if sink.entries[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be filled in")
	}
}

func TestAPIMonitor_SinkErrorsAreNotFatal(t *testing.T) {
	sink := &memorySink{err: errors.New("mongo down")}
	monitor := NewAPIMonitor(sink)

	monitor.Record(RequestLog{Endpoint: "/api/users/me", Method: "GET", StatusCode: 200})
	monitor.Flush()

	if got := monitor.Snapshot()[0].RequestCount; got != 1 {
		t.Errorf("Expected request to be counted despite sink failure, got %d", got)
	}
}

func TestAPIMonitor_Concurrent(t *testing.T) {
	monitor := NewAPIMonitor(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.Record(RequestLog{Endpoint: "/api/summaries", Method: "GET", StatusCode: 200, DurationMs: 1})
		}()
	}
	wg.Wait()

	if got := monitor.Snapshot()[0].RequestCount; got != 50 {
		t.Errorf("Expected 50 requests, got %d", got)
	}
}
