package services

import (
	"context"
	"testing"
	"time"

	"paperdigest/internal/apierror"
	"paperdigest/internal/models"
)

func TestUserService_SyncUser(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserService(db, nil)
	now := time.Date(2025, 8, 17, 15, 4, 5, 0, time.UTC)
	users.now = fixedClock(now)
	ctx := context.Background()

	if err := users.SyncUser(ctx, "alice"); err != nil {
		t.Fatalf("SyncUser failed: %v", err)
	}

	user, err := users.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.AIUsageCount != 0 {
		t.Errorf("Expected usage 0, got %d", user.AIUsageCount)
	}
	if want := models.MonthStart(now); !user.UsagePeriodStart.Equal(want) {
		t.Errorf("Expected period start %v, got %v", want, user.UsagePeriodStart)
	}
}

func TestUserService_SyncUser_KeepsExistingRow(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserService(db, nil)
	ctx := context.Background()

	if err := users.SyncUser(ctx, "alice"); err != nil {
		t.Fatalf("SyncUser failed: %v", err)
	}
	setUsage(t, db, "alice", 3, models.MonthStart(time.Now()))

	// A fresh service has an empty provisioning cache and must not reset the row
	again := NewUserService(db, nil)
	if err := again.SyncUser(ctx, "alice"); err != nil {
		t.Fatalf("Second SyncUser failed: %v", err)
	}

	user, _ := again.GetUser(ctx, "alice")
	if user.AIUsageCount != 3 {
		t.Errorf("Expected usage to be preserved, got %d", user.AIUsageCount)
	}
}

func TestUserService_SyncUser_EmptyID(t *testing.T) {
	users := NewUserService(setupTestDB(t), nil)
	if err := users.SyncUser(context.Background(), ""); err == nil {
		t.Error("Expected error for empty user ID")
	}
}

func TestUserService_GetUser_NotFound(t *testing.T) {
	users := NewUserService(setupTestDB(t), nil)
	if _, err := users.GetUser(context.Background(), "nobody"); !apierror.Is(err, apierror.KindNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestUserService_DeleteAccount(t *testing.T) {
	db := setupTestDB(t)
	throttle := NewGenerationThrottle(nil, 1, time.Hour)
	users := NewUserService(db, throttle)
	quota := NewQuotaService(db)
	summaries := NewSummaryService(db, quota)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob"} {
		if err := users.SyncUser(ctx, id); err != nil {
			t.Fatalf("SyncUser failed: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := summaries.Create(ctx, "alice", "Alice's paper", testContent("a")); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	bobs, _ := summaries.Create(ctx, "bob", "Bob's paper", testContent("b"))

	// Use up alice's burst so the reset is observable
	if err := throttle.Allow(ctx, "alice"); err != nil {
		t.Fatalf("First Allow failed: %v", err)
	}

	if err := users.DeleteAccount(ctx, "alice"); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}

	var remaining int
	if err := db.QueryRow(`SELECT COUNT(*) FROM summaries WHERE user_id = ?`, "alice").Scan(&remaining); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if remaining != 0 {
		t.Errorf("Expected alice's summaries to be deleted, %d left", remaining)
	}
	if _, err := users.GetUser(ctx, "alice"); !apierror.Is(err, apierror.KindNotFound) {
		t.Errorf("Expected alice to be gone, got %v", err)
	}

	if _, err := summaries.Get(ctx, "bob", bobs.ID); err != nil {
		t.Errorf("Bob's summary should survive: %v", err)
	}

	if err := throttle.Allow(ctx, "alice"); err != nil {
		t.Errorf("Expected throttle to be reset after deletion, got %v", err)
	}

	// The row is recreated on the next authenticated request
	if err := users.SyncUser(ctx, "alice"); err != nil {
		t.Fatalf("SyncUser after deletion failed: %v", err)
	}
	if _, err := users.GetUser(ctx, "alice"); err != nil {
		t.Errorf("Expected alice to be provisioned again: %v", err)
	}
}

func TestUserService_DeleteAccount_Unknown(t *testing.T) {
	users := NewUserService(setupTestDB(t), nil)
	if err := users.DeleteAccount(context.Background(), "nobody"); !apierror.Is(err, apierror.KindNotFound) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}
