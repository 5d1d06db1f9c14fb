package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"paperdigest/internal/apierror"
	"paperdigest/internal/database"
	"paperdigest/internal/models"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New("sqlite://" + filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fixedClock returns a clock frozen at ts
func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func createTestUser(t *testing.T, db *database.DB, userID string) {
	t.Helper()

	users := NewUserService(db, nil)
	if err := users.SyncUser(context.Background(), userID); err != nil {
		t.Fatalf("Failed to provision user: %v", err)
	}
}

func setUsage(t *testing.T, db *database.DB, userID string, count int, periodStart time.Time) {
	t.Helper()

	_, err := db.Exec(`UPDATE users SET ai_usage_count = ?, usage_period_start = ? WHERE id = ?`,
		count, periodStart.UTC(), userID)
	if err != nil {
		t.Fatalf("Failed to set usage: %v", err)
	}
}

func TestQuotaService_Usage_NewUser(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "user-1")

	quota := NewQuotaService(db)
	status, err := quota.Usage(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}

	if status.UsageCount != 0 {
		t.Errorf("Expected usage 0, got %d", status.UsageCount)
	}
	if status.Limit != models.MonthlyAILimit {
		t.Errorf("Expected limit %d, got %d", models.MonthlyAILimit, status.Limit)
	}
	if status.Remaining() != models.MonthlyAILimit {
		t.Errorf("Expected %d remaining, got %d", models.MonthlyAILimit, status.Remaining())
	}
	if !status.PeriodEnd.Equal(models.NextMonthStart(status.PeriodStart)) {
		t.Errorf("Expected period end %v, got %v", models.NextMonthStart(status.PeriodStart), status.PeriodEnd)
	}
}

func TestQuotaService_UnknownUser(t *testing.T) {
	db := setupTestDB(t)
	quota := NewQuotaService(db)

	_, err := quota.Usage(context.Background(), "ghost")
	if !apierror.Is(err, apierror.KindNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}

	_, err = quota.CheckAndConsume(context.Background(), "ghost")
	if !apierror.Is(err, apierror.KindNotFound) {
		t.Errorf("Expected NotFound from CheckAndConsume, got %v", err)
	}
}

func TestQuotaService_CheckAndConsume(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "user-1")

	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	quota := NewQuotaService(db)
	quota.now = fixedClock(now)
	setUsage(t, db, "user-1", 3, models.MonthStart(now))

	decision, err := quota.CheckAndConsume(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}
	if !decision.Allowed {
		t.Error("Expected generation to be allowed")
	}
	if decision.UsageBefore != 3 {
		t.Errorf("Expected usage before 3, got %d", decision.UsageBefore)
	}
	if decision.UserID != "user-1" {
		t.Errorf("Expected decision for user-1, got %s", decision.UserID)
	}

	// The check itself does not consume
	status, _ := quota.Usage(context.Background(), "user-1")
	if status.UsageCount != 3 {
		t.Errorf("Expected usage to stay 3, got %d", status.UsageCount)
	}
}

func TestQuotaService_CheckAndConsume_Exhausted(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "user-1")

	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	quota := NewQuotaService(db)
	quota.now = fixedClock(now)
	setUsage(t, db, "user-1", models.MonthlyAILimit, models.MonthStart(now))

	_, err := quota.CheckAndConsume(context.Background(), "user-1")
	if !apierror.Is(err, apierror.KindQuotaExceeded) {
		t.Fatalf("Expected QuotaExceeded, got %v", err)
	}

	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Quota == nil {
		t.Fatalf("Expected quota details, got %#v", err)
	}
	if apiErr.Quota.CurrentUsage != 5 || apiErr.Quota.MonthlyLimit != 5 {
		t.Errorf("Unexpected quota details: %+v", apiErr.Quota)
	}
	wantReset := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	if !apiErr.Quota.ResetDate.Equal(wantReset) {
		t.Errorf("Expected reset %v, got %v", wantReset, apiErr.Quota.ResetDate)
	}
}

func TestQuotaService_MonthlyRollover(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "user-1")

	// Exhausted in January, read in February
	setUsage(t, db, "user-1", 5, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	quota := NewQuotaService(db)
	quota.now = fixedClock(time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC))

	decision, err := quota.CheckAndConsume(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Expected rollover to allow generation, got %v", err)
	}
	if decision.UsageBefore != 0 {
		t.Errorf("Expected usage reset to 0, got %d", decision.UsageBefore)
	}

	wantStart := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	if !decision.PeriodStart.Equal(wantStart) {
		t.Errorf("Expected period start %v, got %v", wantStart, decision.PeriodStart)
	}

	// The reset is persisted
	var (
		count int
		start time.Time
	)
	if err := db.QueryRow(`SELECT ai_usage_count, usage_period_start FROM users WHERE id = ?`, "user-1").Scan(&count, &start); err != nil {
		t.Fatalf("Failed to read user: %v", err)
	}
	if count != 0 || !start.UTC().Equal(wantStart) {
		t.Errorf("Expected persisted reset (0, %v), got (%d, %v)", wantStart, count, start.UTC())
	}
}

func TestQuotaService_RolloverAcrossYear(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "user-1")
	setUsage(t, db, "user-1", 4, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC))

	quota := NewQuotaService(db)
	quota.now = fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	status, err := quota.Usage(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if status.UsageCount != 0 {
		t.Errorf("Expected usage reset at the first instant of the month, got %d", status.UsageCount)
	}
	if want := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC); !status.PeriodEnd.Equal(want) {
		t.Errorf("Expected period end %v, got %v", want, status.PeriodEnd)
	}
}

func TestQuotaService_NoRolloverWithinMonth(t *testing.T) {
	db := setupTestDB(t)
	createTestUser(t, db, "user-1")
	setUsage(t, db, "user-1", 2, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	quota := NewQuotaService(db)
	quota.now = fixedClock(time.Date(2025, 6, 30, 23, 59, 59, 0, time.UTC))

	status, err := quota.Usage(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if status.UsageCount != 2 {
		t.Errorf("Expected usage 2, got %d", status.UsageCount)
	}
	if status.Remaining() != 3 {
		t.Errorf("Expected 3 remaining, got %d", status.Remaining())
	}
}
