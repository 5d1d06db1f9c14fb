package handlers

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"paperdigest/internal/models"
)

func TestGetProfile(t *testing.T) {
	env := setupTestApp(t)

	resp, body := env.do(t, "GET", "/api/users/me", "alice", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["id"] != "alice" {
		t.Errorf("Expected id alice, got %v", body["id"])
	}
	if body["ai_usage_count"] != float64(0) || body["monthly_limit"] != float64(5) || body["remaining_generations"] != float64(5) {
		t.Errorf("Unexpected profile: %v", body)
	}

	start, err := time.Parse(time.RFC3339, body["usage_period_start"].(string))
	if err != nil {
		t.Fatalf("usage_period_start is not RFC3339: %v", err)
	}
	if want := models.MonthStart(time.Now()); !start.Equal(want) {
		t.Errorf("Expected period start %v, got %v", want, start)
	}
}

func TestGetAIUsage(t *testing.T) {
	env := setupTestApp(t)

	generateAI(t, env, "alice", "One")
	generateAI(t, env, "alice", "Two")

	resp, body := env.do(t, "GET", "/api/users/ai-usage", "alice", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["can_generate"] != true || body["usage_count"] != float64(2) || body["remaining_generations"] != float64(3) {
		t.Errorf("Unexpected usage: %v", body)
	}

	start, _ := time.Parse(time.RFC3339, body["period_start"].(string))
	end, _ := time.Parse(time.RFC3339, body["period_end"].(string))
	if !end.Equal(models.NextMonthStart(start)) {
		t.Errorf("Expected period_end to be the next month start, got %v -> %v", start, end)
	}
}

func TestGetAIUsage_Exhausted(t *testing.T) {
	env := setupTestApp(t)
	for i := 0; i < models.MonthlyAILimit; i++ {
		generateAI(t, env, "alice", "Generated")
	}

	_, body := env.do(t, "GET", "/api/users/ai-usage", "alice", nil)
	if body["can_generate"] != false || body["remaining_generations"] != float64(0) {
		t.Errorf("Expected exhausted quota, got %v", body)
	}
}

func TestGetAIUsage_MonthlyRollover(t *testing.T) {
	env := setupTestApp(t)

	// Provision alice, then pretend she exhausted last month's quota
	env.do(t, "GET", "/api/users/me", "alice", nil)
	lastMonth := models.MonthStart(time.Now()).AddDate(0, -1, 0)
	if _, err := env.db.Exec(`UPDATE users SET ai_usage_count = 5, usage_period_start = ? WHERE id = ?`, lastMonth, "alice"); err != nil {
		t.Fatalf("Failed to backdate usage: %v", err)
	}

	_, body := env.do(t, "GET", "/api/users/ai-usage", "alice", nil)
	if body["can_generate"] != true || body["usage_count"] != float64(0) {
		t.Errorf("Expected quota reset in the new month, got %v", body)
	}

	if status, body := generateAI(t, env, "alice", "Fresh month"); status != fiber.StatusCreated {
		t.Errorf("Expected generation after rollover, got %d (%v)", status, body)
	}
}

func TestDeleteAccount(t *testing.T) {
	env := setupTestApp(t)
	id := env.createSummary(t, "alice", "Alice's")["id"].(string)
	env.createSummary(t, "alice", "Alice's other")
	bobsID := env.createSummary(t, "bob", "Bob's")["id"].(string)

	tests := []struct {
		name string
		body interface{}
	}{
		{"no body", nil},
		{"missing confirmation", map[string]interface{}{}},
		{"lowercase", map[string]interface{}{"confirmation": "delete"}},
		{"padded", map[string]interface{}{"confirmation": " DELETE "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, "DELETE", "/api/users/me", "alice", tt.body)
			expectError(t, resp, body, fiber.StatusBadRequest, "INVALID_CONFIRMATION", "confirmation")
		})
	}

	resp, body := env.do(t, "DELETE", "/api/users/me", "alice", `{"confirmation": `)
	expectError(t, resp, body, fiber.StatusBadRequest, "VALIDATION_ERROR", "")

	resp, body = env.do(t, "DELETE", "/api/users/me", "alice", map[string]interface{}{"confirmation": "DELETE"})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["message"] == nil {
		t.Error("Expected a message")
	}

	var count int
	if err := env.db.QueryRow(`SELECT COUNT(*) FROM summaries WHERE user_id = ?`, "alice").Scan(&count); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected alice's summaries to be deleted, %d left", count)
	}

	// A later request re-provisions an empty account
	resp, body = env.do(t, "GET", "/api/summaries/"+id, "alice", nil)
	expectError(t, resp, body, fiber.StatusNotFound, "NOT_FOUND", "")

	if resp, _ := env.do(t, "GET", "/api/summaries/"+bobsID, "bob", nil); resp.StatusCode != fiber.StatusOK {
		t.Errorf("Bob's summary should survive, got %d", resp.StatusCode)
	}
}

func TestEndpointMetrics(t *testing.T) {
	env := setupTestApp(t)

	env.createSummary(t, "alice", "Tracked")
	env.do(t, "GET", "/api/summaries/00000000-0000-4000-8000-000000000000", "alice", nil)

	// Regular users are refused
	resp, body := env.do(t, "GET", "/api/metrics", "alice", nil)
	expectError(t, resp, body, fiber.StatusForbidden, "FORBIDDEN", "")

	for _, tc := range []struct{ name, userID, role string }{
		{"admin role", "carol", "admin"},
		{"superadmin id", "root-admin", "user"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/metrics", nil)
			req.Header.Set("Authorization", "Bearer "+env.token(t, tc.userID, tc.role))
			resp, err := env.app.Test(req, -1)
			if err != nil {
				t.Fatalf("Failed to send request: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != fiber.StatusOK {
				t.Fatalf("Expected 200, got %d", resp.StatusCode)
			}
			if got := resp.Header.Get("Cache-Control"); got != "no-cache, no-store, must-revalidate" {
				t.Errorf("Unexpected Cache-Control %q", got)
			}
			if resp.Header.Get("Pragma") != "no-cache" || resp.Header.Get("Expires") != "0" {
				t.Error("Expected Pragma and Expires no-cache headers")
			}
		})
	}

	snapshot := env.monitor.Snapshot()
	byEndpoint := make(map[string]int64)
	for _, em := range snapshot {
		byEndpoint[em.Endpoint] = em.RequestCount
		if em.Endpoint == "GET /api/summaries/:id" {
			if em.ErrorCount != 1 || em.LastError == nil || em.LastError.Code != "NOT_FOUND" {
				t.Errorf("Expected the 404 to be recorded, got %+v", em)
			}
		}
	}
	if byEndpoint["POST /api/summaries"] != 1 {
		t.Errorf("Expected 1 create recorded, got %v", byEndpoint)
	}
	if byEndpoint["GET /api/metrics"] < 2 {
		t.Errorf("Expected metrics requests recorded, got %v", byEndpoint)
	}
}
